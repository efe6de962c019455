package presale

import (
	"encoding/hex"
	"strconv"

	"dogxsale/core/types"
	"dogxsale/crypto"
)

const (
	EventTypeSaleCreated   = "presale.created"
	EventTypeSaleDeposited = "presale.deposited"
	EventTypeSaleStarted   = "presale.started"
	EventTypeSaleEnded     = "presale.ended"
	EventTypeSalePurchase  = "presale.purchase"
	EventTypeSaleClaimed   = "presale.claimed"
	EventTypeSaleRefunded  = "presale.refunded"
	EventTypeSaleWithdrawn = "presale.withdrawn"
	EventTypeSaleClosed    = "presale.closed"
)

// presaleEvent adapts a types.Event to the events.Emitter contract.
type presaleEvent struct {
	evt *types.Event
}

func (e presaleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e presaleEvent) Event() *types.Event { return e.evt }

func uintToString(v uint64) string { return strconv.FormatUint(v, 10) }

func addressString(addr [20]byte) string {
	return crypto.NewAddress(crypto.DGXPrefix, addr[:]).String()
}

func saleAttributes(p *Presale) map[string]string {
	attrs := map[string]string{
		"id":           hex.EncodeToString(p.ID[:]),
		"admin":        addressString(p.Admin),
		"currentLevel": uintToString(uint64(p.CurrentLevel)),
		"sold":         uintToString(p.SoldTokenAmount),
		"deposited":    uintToString(p.DepositTokenAmount),
		"softCapped":   strconv.FormatBool(p.IsSoftCapped),
		"hardCapped":   strconv.FormatBool(p.IsHardCapped),
		"live":         strconv.FormatBool(p.IsLive),
	}
	return attrs
}

func newSaleEvent(eventType string, p *Presale) *types.Event {
	if p == nil {
		return nil
	}
	return &types.Event{Type: eventType, Attributes: saleAttributes(p)}
}

// NewCreatedEvent returns the canonical payload for a newly created sale.
func NewCreatedEvent(p *Presale) *types.Event { return newSaleEvent(EventTypeSaleCreated, p) }

// NewDepositedEvent is emitted when the admin grows the sale inventory.
func NewDepositedEvent(p *Presale, amount uint64) *types.Event {
	evt := newSaleEvent(EventTypeSaleDeposited, p)
	if evt != nil {
		evt.Attributes["amount"] = uintToString(amount)
	}
	return evt
}

// NewStartedEvent is emitted when the sale goes live.
func NewStartedEvent(p *Presale) *types.Event { return newSaleEvent(EventTypeSaleStarted, p) }

// NewEndedEvent is emitted when the admin ends the sale.
func NewEndedEvent(p *Presale) *types.Event { return newSaleEvent(EventTypeSaleEnded, p) }

// NewPurchaseEvent is emitted after a committed purchase.
func NewPurchaseEvent(p *Presale, buyer [20]byte, receipt *PurchaseReceipt) *types.Event {
	evt := newSaleEvent(EventTypeSalePurchase, p)
	if evt != nil && receipt != nil {
		evt.Attributes["buyer"] = addressString(buyer)
		evt.Attributes["tokensOut"] = uintToString(receipt.TokensOut)
		evt.Attributes["paymentSpent"] = uintToString(receipt.PaymentSpent)
	}
	return evt
}

// NewClaimedEvent is emitted when a buyer claims tokens.
func NewClaimedEvent(p *Presale, buyer [20]byte, amount uint64) *types.Event {
	evt := newSaleEvent(EventTypeSaleClaimed, p)
	if evt != nil {
		evt.Attributes["buyer"] = addressString(buyer)
		evt.Attributes["amount"] = uintToString(amount)
	}
	return evt
}

// NewRefundedEvent is emitted when a buyer recovers their contribution.
func NewRefundedEvent(p *Presale, buyer [20]byte, amount uint64) *types.Event {
	evt := newSaleEvent(EventTypeSaleRefunded, p)
	if evt != nil {
		evt.Attributes["buyer"] = addressString(buyer)
		evt.Attributes["amount"] = uintToString(amount)
	}
	return evt
}

// NewWithdrawnEvent is emitted when the admin reclaims custody.
func NewWithdrawnEvent(p *Presale, symbol string, amount uint64) *types.Event {
	evt := newSaleEvent(EventTypeSaleWithdrawn, p)
	if evt != nil {
		evt.Attributes["asset"] = symbol
		evt.Attributes["amount"] = uintToString(amount)
	}
	return evt
}

// NewClosedEvent is emitted when the sale record is destroyed.
func NewClosedEvent(p *Presale) *types.Event { return newSaleEvent(EventTypeSaleClosed, p) }
