package rpc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"dogxsale/crypto"
	"dogxsale/native/presale"
)

type levelParam struct {
	Capacity  uint64 `json:"capacity"`
	UnitPrice uint64 `json:"unitPrice"`
	SoftCap   uint64 `json:"softCap,omitempty"`
}

type createSaleParams struct {
	Admin         string       `json:"admin"`
	Seed          uint64       `json:"seed"`
	Levels        []levelParam `json:"levels"`
	SoftCapAmount uint64       `json:"softCapAmount"`
	HardCapAmount uint64       `json:"hardCapAmount"`
	PriceScale    uint64       `json:"priceScale,omitempty"`
	StartTime     uint64       `json:"startTime,omitempty"`
	EndTime       uint64       `json:"endTime"`
}

type saleActionParams struct {
	SaleID string `json:"saleId"`
	Caller string `json:"caller"`
	Amount uint64 `json:"amount,omitempty"`
}

type buyParams struct {
	SaleID  string `json:"saleId"`
	Buyer   string `json:"buyer"`
	Payment uint64 `json:"payment"`
}

type claimParams struct {
	SaleID string `json:"saleId"`
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount,omitempty"`
}

type saleQueryParams struct {
	SaleID string `json:"saleId"`
	Buyer  string `json:"buyer,omitempty"`
}

type listEventsParams struct {
	Limit int `json:"limit"`
}

type levelResult struct {
	Capacity  uint64 `json:"capacity"`
	UnitPrice uint64 `json:"unitPrice"`
	SoftCap   uint64 `json:"softCap"`
	Sold      uint64 `json:"sold"`
	Remaining uint64 `json:"remaining"`
}

type saleResult struct {
	ID                 string        `json:"id"`
	Admin              string        `json:"admin"`
	Vault              string        `json:"vault"`
	Status             string        `json:"status"`
	TokenSymbol        string        `json:"tokenSymbol"`
	PaymentSymbol      string        `json:"paymentSymbol"`
	Levels             []levelResult `json:"levels"`
	CurrentLevel       uint8         `json:"currentLevel"`
	DepositTokenAmount uint64        `json:"depositTokenAmount"`
	SoldTokenAmount    uint64        `json:"soldTokenAmount"`
	SoftCapAmount      uint64        `json:"softCapAmount"`
	HardCapAmount      uint64        `json:"hardCapAmount"`
	PriceScale         uint64        `json:"priceScale"`
	StartTime          uint64        `json:"startTime"`
	EndTime            uint64        `json:"endTime"`
	CreatedAt          uint64        `json:"createdAt"`
	IsLive             bool          `json:"isLive"`
	IsSoftCapped       bool          `json:"isSoftCapped"`
	IsHardCapped       bool          `json:"isHardCapped"`
}

type userResult struct {
	Buyer         string `json:"buyer"`
	Contributed   uint64 `json:"contributed"`
	Allocated     uint64 `json:"allocated"`
	ClaimedToken  bool   `json:"claimedToken"`
	ClaimedRefund bool   `json:"claimedRefund"`
	BuyTime       uint64 `json:"buyTime,omitempty"`
	ClaimAmount   uint64 `json:"claimAmount,omitempty"`
	ClaimTime     uint64 `json:"claimTime,omitempty"`
}

type purchaseResult struct {
	SaleID       string `json:"saleId"`
	Buyer        string `json:"buyer"`
	TokensOut    uint64 `json:"tokensOut"`
	PaymentSpent uint64 `json:"paymentSpent"`
}

type settlementResult struct {
	SaleID string `json:"saleId"`
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount"`
	Kind   string `json:"kind"`
}

type withdrawalResult struct {
	SaleID string `json:"saleId"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func parseSaleID(raw string) ([32]byte, error) {
	var id [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return id, fmt.Errorf("invalid sale id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("invalid sale id: expected %d bytes, got %d", len(id), len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func formatSaleID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.DGXPrefix, addr[:]).String()
}

func saleResultFrom(sale *presale.Presale, now int64) saleResult {
	levels := make([]levelResult, len(sale.Levels))
	for i, level := range sale.Levels {
		levels[i] = levelResult{
			Capacity:  level.Capacity,
			UnitPrice: level.UnitPrice,
			SoftCap:   level.SoftCap,
			Sold:      level.Sold,
			Remaining: level.Remaining(),
		}
	}
	return saleResult{
		ID:                 formatSaleID(sale.ID),
		Admin:              formatAddress(sale.Admin),
		Vault:              formatAddress(presale.VaultAddress(sale.ID)),
		Status:             sale.Status(now).String(),
		TokenSymbol:        sale.TokenSymbol,
		PaymentSymbol:      sale.PaymentSymbol,
		Levels:             levels,
		CurrentLevel:       sale.CurrentLevel,
		DepositTokenAmount: sale.DepositTokenAmount,
		SoldTokenAmount:    sale.SoldTokenAmount,
		SoftCapAmount:      sale.SoftCapAmount,
		HardCapAmount:      sale.HardCapAmount,
		PriceScale:         sale.PriceScale,
		StartTime:          sale.StartTime,
		EndTime:            sale.EndTime,
		CreatedAt:          sale.CreatedAt,
		IsLive:             sale.IsLive,
		IsSoftCapped:       sale.IsSoftCapped,
		IsHardCapped:       sale.IsHardCapped,
	}
}

func userResultFrom(user *presale.UserInfo) userResult {
	return userResult{
		Buyer:         formatAddress(user.Buyer),
		Contributed:   user.Contributed,
		Allocated:     user.Allocated,
		ClaimedToken:  user.ClaimedToken,
		ClaimedRefund: user.ClaimedRefund,
		BuyTime:       user.BuyTime,
		ClaimAmount:   user.ClaimAmount,
		ClaimTime:     user.ClaimTime,
	}
}
