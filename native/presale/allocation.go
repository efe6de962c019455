package presale

// PurchaseReceipt reports the realized effect of a purchase. PaymentSpent can
// be lower than the requested payment only when the purchase drove the sale
// into its hard cap; the engine charges exactly PaymentSpent.
type PurchaseReceipt struct {
	TokensOut    uint64
	PaymentSpent uint64
}

// allocationPlan is the scratch effect of a purchase, computed against copies
// of the mutable sale fields. Nothing is committed until the whole walk
// validated; a failed plan leaves the stored record untouched.
type allocationPlan struct {
	levels       [LevelCount]Level
	currentLevel uint8
	totalSold    uint64
	tokensOut    uint64
	paymentSpent uint64
	softCapped   bool
	hardCapped   bool
}

// planAllocation walks the level ladder from the current tier, converting the
// payment into tokens at each tier's price and advancing tiers as they
// exhaust. Prices are fixed-point: tokens = payment * scale / price and
// cost = tokens * price / scale, both floored.
func planAllocation(p *Presale, payment uint64) (*allocationPlan, error) {
	if payment == 0 {
		return nil, ErrInvalidAmount
	}
	if p.IsHardCapped || p.SoldTokenAmount >= p.HardCapAmount {
		return nil, ErrHardCapExceeded
	}
	plan := &allocationPlan{
		levels:       p.Levels,
		currentLevel: p.CurrentLevel,
		totalSold:    p.SoldTokenAmount,
		softCapped:   p.IsSoftCapped,
		hardCapped:   p.IsHardCapped,
	}
	remaining := payment
	for remaining > 0 && int(plan.currentLevel) < LevelCount {
		level := &plan.levels[plan.currentLevel]
		avail := level.Remaining()
		if avail == 0 {
			plan.currentLevel++
			continue
		}
		if level.UnitPrice == 0 {
			return nil, ErrInvalidPrice
		}
		affordable, err := mulDiv(remaining, p.PriceScale, level.UnitPrice)
		if err != nil {
			return nil, err
		}
		buy := affordable
		if avail < buy {
			buy = avail
		}
		if buy == 0 {
			// Rounding dust: the leftover payment buys less than one
			// token unit at this tier's price.
			break
		}
		cost, err := mulDiv(buy, level.UnitPrice, p.PriceScale)
		if err != nil {
			return nil, err
		}
		newTotal, err := checkedAdd(plan.totalSold, buy)
		if err != nil {
			return nil, err
		}
		if newTotal > p.HardCapAmount {
			return nil, ErrHardCapExceeded
		}
		if newTotal > p.DepositTokenAmount {
			return nil, ErrExceedsDeposit
		}
		sold, err := checkedAdd(level.Sold, buy)
		if err != nil {
			return nil, err
		}
		level.Sold = sold
		plan.totalSold = newTotal
		tokens, err := checkedAdd(plan.tokensOut, buy)
		if err != nil {
			return nil, err
		}
		plan.tokensOut = tokens
		remaining, err = checkedSub(remaining, cost)
		if err != nil {
			return nil, err
		}
		if plan.totalSold >= p.SoftCapAmount {
			plan.softCapped = true
		}
		if level.Sold == level.Capacity {
			plan.currentLevel++
		}
		if plan.totalSold >= p.HardCapAmount {
			plan.hardCapped = true
			break
		}
	}
	plan.paymentSpent = payment - remaining
	if remaining > 0 && !plan.hardCapped {
		return nil, ErrExactPaymentRequired
	}
	if plan.tokensOut == 0 {
		return nil, ErrInvalidAmount
	}
	return plan, nil
}

// apply commits the plan onto the sale record. The derived cap flags are
// monotonic: once true they never reset.
func (plan *allocationPlan) apply(p *Presale) {
	p.Levels = plan.levels
	p.CurrentLevel = plan.currentLevel
	p.SoldTokenAmount = plan.totalSold
	p.IsSoftCapped = p.IsSoftCapped || plan.softCapped
	p.IsHardCapped = p.IsHardCapped || plan.hardCapped
}
