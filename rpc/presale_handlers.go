package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"dogxsale/native/presale"
	"dogxsale/observability"
)

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "parameter object required"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createSaleParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	admin, err := parseAddress(params.Admin)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid admin address", err.Error())
		return
	}
	if len(params.Levels) == 0 || len(params.Levels) > presale.LevelCount {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "levels must contain between 1 and 7 entries", nil)
		return
	}
	saleParams := presale.SaleParams{
		Seed:          params.Seed,
		SoftCapAmount: params.SoftCapAmount,
		HardCapAmount: params.HardCapAmount,
		PriceScale:    params.PriceScale,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
	}
	for i, level := range params.Levels {
		saleParams.Levels[i] = presale.Level{
			Capacity:  level.Capacity,
			UnitPrice: level.UnitPrice,
			SoftCap:   level.SoftCap,
		}
	}
	// Pad unused trailing tiers with the last configured price so the
	// ladder stays monotonic; their zero capacity keeps them inert.
	last := params.Levels[len(params.Levels)-1].UnitPrice
	for i := len(params.Levels); i < presale.LevelCount; i++ {
		saleParams.Levels[i] = presale.Level{UnitPrice: last}
	}
	sale, err := s.engine.Create(admin, saleParams)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("sale created", "sale", formatSaleID(sale.ID), "admin", params.Admin)
	writeResult(w, req.ID, saleResultFrom(sale, time.Now().Unix()))
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Deposit(id, caller, params.Amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.writeSale(w, req, id)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Start(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("sale started", "sale", params.SaleID)
	s.writeSale(w, req, id)
}

func (s *Server) handleEnd(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.End(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("sale ended", "sale", params.SaleID)
	s.writeSale(w, req, id)
}

func (s *Server) handleBuy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	receipt, err := s.engine.Buy(id, buyer, params.Payment)
	observability.SaleMetrics().RecordPurchase(params.SaleID, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if sale, saleErr := s.engine.GetSale(id); saleErr == nil {
		var raised uint64
		if s.ledger != nil {
			vault := presale.VaultAddress(id)
			if account, accErr := s.ledger.GetAccount(vault[:]); accErr == nil && account.BalanceUSDT.IsUint64() {
				raised = account.BalanceUSDT.Uint64()
			}
		}
		observability.SaleMetrics().RecordProgress(params.SaleID, sale.SoldTokenAmount, raised, sale.CurrentLevel)
	}
	s.log.Info("purchase committed",
		"sale", params.SaleID,
		"tokensOut", receipt.TokensOut,
		"paymentSpent", receipt.PaymentSpent)
	writeResult(w, req.ID, purchaseResult{
		SaleID:       params.SaleID,
		Buyer:        params.Buyer,
		TokensOut:    receipt.TokensOut,
		PaymentSpent: receipt.PaymentSpent,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	amount, err := s.engine.Claim(id, buyer, params.Amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.SaleMetrics().RecordSettlement(params.SaleID, "claim")
	writeResult(w, req.ID, settlementResult{SaleID: params.SaleID, Buyer: params.Buyer, Amount: amount, Kind: "claim"})
}

func (s *Server) handleRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	amount, err := s.engine.Refund(id, buyer)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.SaleMetrics().RecordSettlement(params.SaleID, "refund")
	writeResult(w, req.ID, settlementResult{SaleID: params.SaleID, Buyer: params.Buyer, Amount: amount, Kind: "refund"})
}

func (s *Server) handleWithdrawRaised(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, err := s.engine.WithdrawRaised(id, caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawalResult{SaleID: params.SaleID, Asset: presale.PaymentSymbol, Amount: amount})
}

func (s *Server) handleWithdrawUnsold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, err := s.engine.WithdrawUnsold(id, caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawalResult{SaleID: params.SaleID, Asset: presale.TokenSymbol, Amount: amount})
}

func (s *Server) handleClose(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleActionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, caller, rpcErr := parseSaleAction(params)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Close(id, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	s.log.Info("sale closed", "sale", params.SaleID)
	writeResult(w, req.ID, map[string]bool{"closed": true})
}

func (s *Server) handleGetSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.writeSale(w, req, id)
}

func (s *Server) handleGetUser(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	user, err := s.engine.GetUser(id, buyer)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, userResultFrom(user))
}

func (s *Server) handleListBuyers(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params saleQueryParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if s.ledger == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "buyer index unavailable", nil)
		return
	}
	buyers, err := s.ledger.Buyers(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to list buyers", err.Error())
		return
	}
	encoded := make([]string, len(buyers))
	for i, buyer := range buyers {
		encoded[i] = formatAddress(buyer)
	}
	writeResult(w, req.ID, encoded)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "too many parameters", nil)
		return
	}
	limit := 50
	if len(req.Params) == 1 {
		// The parameter is either a bare integer or {"limit": N}.
		raw := bytes.TrimSpace(req.Params[0])
		if len(raw) > 0 && raw[0] == '{' {
			var params listEventsParams
			if err := json.Unmarshal(raw, &params); err != nil {
				writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be an integer", err.Error())
				return
			}
			limit = params.Limit
		} else if err := json.Unmarshal(raw, &limit); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be an integer", err.Error())
			return
		}
	}
	if limit <= 0 {
		limit = 50
	} else if limit > recentEventCap {
		limit = recentEventCap
	}
	s.mu.Lock()
	events := s.recentEvents
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]interface{}, len(events))
	for i, evt := range events {
		out[i] = map[string]interface{}{"type": evt.Type, "attributes": evt.Attributes}
	}
	s.mu.Unlock()
	writeResult(w, req.ID, out)
}

func parseSaleAction(params saleActionParams) ([32]byte, [20]byte, *RPCError) {
	id, err := parseSaleID(params.SaleID)
	if err != nil {
		return id, [20]byte{}, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		return id, caller, &RPCError{Code: codeInvalidParams, Message: "invalid caller address", Data: err.Error()}
	}
	return id, caller, nil
}

func (s *Server) writeSale(w http.ResponseWriter, req *RPCRequest, id [32]byte) {
	sale, err := s.engine.GetSale(id)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleResultFrom(sale, time.Now().Unix()))
}
