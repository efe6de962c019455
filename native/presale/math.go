package presale

import "math/bits"

// Checked unsigned arithmetic. The engine never wraps silently: any overflow
// or division by zero surfaces as ErrArithmeticOverflow / ErrInvalidPrice and
// aborts the whole operation.

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// mulDiv computes floor(a * b / den) with a 128-bit intermediate so the
// product may exceed 64 bits as long as the quotient fits.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrInvalidPrice
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// Quotient would need more than 64 bits.
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}
