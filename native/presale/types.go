package presale

import (
	"fmt"
	"strings"
)

// LevelCount is the fixed number of pricing tiers in every sale ladder.
const LevelCount = 7

// DefaultPriceScale is the fixed-point scale applied to level prices when a
// sale does not configure its own. It matches USDT's six decimals so a
// UnitPrice of 1_000_000 * DefaultPriceScale reads as 1 USDT per whole token.
const DefaultPriceScale uint64 = 1_000_000

// TokenSymbol and PaymentSymbol are the two assets the sale custodies.
const (
	TokenSymbol   = "DGX"
	PaymentSymbol = "USDT"
)

// Level is one priced slice of the sale inventory. Capacity and Sold are
// denominated in sale token units; UnitPrice is the cost of one token unit in
// payment units, fixed-point scaled by the sale's PriceScale. SoftCap is an
// informational per-tier threshold and is never enforced by the engine.
type Level struct {
	Capacity  uint64
	UnitPrice uint64
	SoftCap   uint64
	Sold      uint64
}

// Remaining reports the unsold capacity of the level.
func (l Level) Remaining() uint64 {
	if l.Sold >= l.Capacity {
		return 0
	}
	return l.Capacity - l.Sold
}

// Exhausted reports whether the level has no unsold capacity left.
func (l Level) Exhausted() bool { return l.Remaining() == 0 }

// Status is the derived lifecycle state of a sale. It is never stored; the
// ledger keeps only the IsLive flag and the window, and the rest is
// recomputed so time-based transitions take effect lazily.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusLive
	StatusEnded
	StatusClaimable
	StatusRefundable
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusLive:
		return "live"
	case StatusEnded:
		return "ended"
	case StatusClaimable:
		return "claimable"
	case StatusRefundable:
		return "refundable"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Presale is the aggregate sale record. All token amounts share one unit; all
// payment amounts are in payment base units. Times are Unix seconds.
type Presale struct {
	ID                 [32]byte
	Admin              [20]byte
	TokenSymbol        string
	PaymentSymbol      string
	Levels             [LevelCount]Level
	CurrentLevel       uint8
	DepositTokenAmount uint64
	SoldTokenAmount    uint64
	SoftCapAmount      uint64
	HardCapAmount      uint64
	PriceScale         uint64
	StartTime          uint64
	EndTime            uint64
	CreatedAt          uint64
	IsLive             bool
	IsSoftCapped       bool
	IsHardCapped       bool
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored record.
func (p *Presale) Clone() *Presale {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Ended reports whether the sale window is over at the supplied time. A sale
// that was never started counts as ended for settlement purposes, matching
// the admission rule used by claim, refund and withdrawal.
func (p *Presale) Ended(now int64) bool {
	if p == nil {
		return false
	}
	return !p.IsLive || (now >= 0 && uint64(now) >= p.EndTime)
}

// Status derives the lifecycle state at the supplied time.
func (p *Presale) Status(now int64) Status {
	switch {
	case p == nil:
		return StatusCreated
	case p.IsLive && !(now >= 0 && uint64(now) >= p.EndTime):
		return StatusLive
	case p.SoldTokenAmount > 0:
		if p.SoldTokenAmount >= p.SoftCapAmount {
			return StatusClaimable
		}
		return StatusRefundable
	case p.DepositTokenAmount > 0:
		return StatusFunded
	default:
		return StatusCreated
	}
}

// UserInfo is the per-buyer contribution record, created lazily on first
// purchase. Contributed and Allocated only ever grow; the two settlement
// flags are terminal and mutually exclusive.
type UserInfo struct {
	Buyer         [20]byte
	Contributed   uint64
	Allocated     uint64
	ClaimedToken  bool
	ClaimedRefund bool
	BuyTime       uint64
	ClaimAmount   uint64
	ClaimTime     uint64
}

// Clone returns a copy of the user record.
func (u *UserInfo) Clone() *UserInfo {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Settled reports whether either terminal settlement path already ran.
func (u *UserInfo) Settled() bool {
	if u == nil {
		return false
	}
	return u.ClaimedToken || u.ClaimedRefund
}

// SanitizePresale validates the structural invariants of a sale record before
// it is persisted. Price monotonicity across the ladder is an admin-time
// responsibility checked at creation, not here.
func SanitizePresale(p *Presale) (*Presale, error) {
	if p == nil {
		return nil, fmt.Errorf("presale: nil record")
	}
	clone := p.Clone()
	clone.TokenSymbol = strings.ToUpper(strings.TrimSpace(clone.TokenSymbol))
	clone.PaymentSymbol = strings.ToUpper(strings.TrimSpace(clone.PaymentSymbol))
	if clone.TokenSymbol == "" {
		clone.TokenSymbol = TokenSymbol
	}
	if clone.PaymentSymbol == "" {
		clone.PaymentSymbol = PaymentSymbol
	}
	if clone.PriceScale == 0 {
		return nil, ErrInvalidPrice
	}
	if clone.SoftCapAmount > clone.HardCapAmount {
		return nil, fmt.Errorf("presale: soft cap exceeds hard cap")
	}
	if int(clone.CurrentLevel) > LevelCount {
		return nil, fmt.Errorf("presale: current level out of range: %d", clone.CurrentLevel)
	}
	var total uint64
	for i, level := range clone.Levels {
		if level.Sold > level.Capacity {
			return nil, fmt.Errorf("presale: level %d sold exceeds capacity", i)
		}
		sum, err := checkedAdd(total, level.Sold)
		if err != nil {
			return nil, err
		}
		total = sum
	}
	if total != clone.SoldTokenAmount {
		return nil, fmt.Errorf("presale: sold total mismatch: levels=%d record=%d", total, clone.SoldTokenAmount)
	}
	if clone.SoldTokenAmount > clone.DepositTokenAmount {
		return nil, fmt.Errorf("presale: sold exceeds deposited inventory")
	}
	return clone, nil
}
