package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dogxsale/crypto"
	"dogxsale/native/presale"
	"dogxsale/state"
	"dogxsale/storage"
)

type testHarness struct {
	server  *Server
	http    *httptest.Server
	manager *state.Manager
	now     int64
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := presale.NewLedger(manager)
	engine := presale.NewEngine()
	engine.SetState(ledger)
	h := &testHarness{manager: manager, now: 1_000}
	engine.SetNowFunc(func() int64 { return h.now })

	server := NewServer(engine, ledger, nil)
	server.SetAuthToken("test-secret")
	engine.SetEmitter(server)
	h.server = server
	h.http = httptest.NewServer(server.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *testHarness) call(t *testing.T, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	reqBody := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, h.http.URL, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func (h *testHarness) fund(t *testing.T, addr [20]byte, symbol string, amount uint64) {
	t.Helper()
	account, err := h.manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	switch symbol {
	case presale.TokenSymbol:
		account.BalanceDGX.SetUint64(amount)
	case presale.PaymentSymbol:
		account.BalanceUSDT.SetUint64(amount)
	}
	if err := h.manager.PutAccount(addr[:], account); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func testAddr(fill byte) ([20]byte, string) {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr, crypto.NewAddress(crypto.DGXPrefix, addr[:]).String()
}

func resultInto(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func createSaleViaRPC(t *testing.T, h *testHarness, adminStr string) saleResult {
	t.Helper()
	resp := h.call(t, "test-secret", "presale_create", createSaleParams{
		Admin: adminStr,
		Seed:  1,
		Levels: []levelParam{
			{Capacity: 100, UnitPrice: 1_000_000 * presale.DefaultPriceScale, SoftCap: 50},
		},
		SoftCapAmount: 50,
		HardCapAmount: 100,
		StartTime:     1_000,
		EndTime:       2_000,
	})
	var sale saleResult
	resultInto(t, resp, &sale)
	return sale
}

func TestLifecycleOverRPC(t *testing.T) {
	h := newHarness(t)
	admin, adminStr := testAddr(0xAD)
	buyer, buyerStr := testAddr(0xB1)

	sale := createSaleViaRPC(t, h, adminStr)
	if sale.Status != "created" {
		t.Fatalf("status = %q, want created", sale.Status)
	}

	h.fund(t, admin, presale.TokenSymbol, 100)
	resp := h.call(t, "test-secret", "presale_deposit", saleActionParams{SaleID: sale.ID, Caller: adminStr, Amount: 100})
	resultInto(t, resp, &sale)
	if sale.DepositTokenAmount != 100 {
		t.Fatalf("deposit not reflected: %+v", sale)
	}

	resp = h.call(t, "test-secret", "presale_start", saleActionParams{SaleID: sale.ID, Caller: adminStr})
	resultInto(t, resp, &sale)
	if !sale.IsLive {
		t.Fatalf("sale not live after start")
	}

	h.fund(t, buyer, presale.PaymentSymbol, 60_000_000)
	var purchase purchaseResult
	resp = h.call(t, "", "presale_buy", buyParams{SaleID: sale.ID, Buyer: buyerStr, Payment: 60_000_000})
	resultInto(t, resp, &purchase)
	if purchase.TokensOut != 60 || purchase.PaymentSpent != 60_000_000 {
		t.Fatalf("unexpected purchase: %+v", purchase)
	}

	var user userResult
	resp = h.call(t, "", "presale_getUser", saleQueryParams{SaleID: sale.ID, Buyer: buyerStr})
	resultInto(t, resp, &user)
	if user.Allocated != 60 || user.Contributed != 60_000_000 {
		t.Fatalf("unexpected user record: %+v", user)
	}

	var buyers []string
	resp = h.call(t, "", "presale_listBuyers", saleQueryParams{SaleID: sale.ID})
	resultInto(t, resp, &buyers)
	if len(buyers) != 1 || buyers[0] != buyerStr {
		t.Fatalf("unexpected buyer list: %v", buyers)
	}

	resp = h.call(t, "test-secret", "presale_end", saleActionParams{SaleID: sale.ID, Caller: adminStr})
	resultInto(t, resp, &sale)
	if sale.IsLive {
		t.Fatalf("sale still live after end")
	}

	h.now = 2_500
	var settlement settlementResult
	resp = h.call(t, "", "presale_claim", claimParams{SaleID: sale.ID, Buyer: buyerStr})
	resultInto(t, resp, &settlement)
	if settlement.Amount != 60 || settlement.Kind != "claim" {
		t.Fatalf("unexpected settlement: %+v", settlement)
	}

	var withdrawal withdrawalResult
	resp = h.call(t, "test-secret", "presale_withdrawRaised", saleActionParams{SaleID: sale.ID, Caller: adminStr})
	resultInto(t, resp, &withdrawal)
	if withdrawal.Amount != 60_000_000 || withdrawal.Asset != presale.PaymentSymbol {
		t.Fatalf("unexpected withdrawal: %+v", withdrawal)
	}
	resp = h.call(t, "test-secret", "presale_withdrawUnsold", saleActionParams{SaleID: sale.ID, Caller: adminStr})
	resultInto(t, resp, &withdrawal)
	if withdrawal.Amount != 40 || withdrawal.Asset != presale.TokenSymbol {
		t.Fatalf("unexpected unsold withdrawal: %+v", withdrawal)
	}

	resp = h.call(t, "test-secret", "presale_close", saleActionParams{SaleID: sale.ID, Caller: adminStr})
	if resp.Error != nil {
		t.Fatalf("close failed: %+v", resp.Error)
	}
	resp = h.call(t, "", "presale_get", saleQueryParams{SaleID: sale.ID})
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("expected not-found after close, got %+v", resp.Error)
	}
}

func TestAdminMethodsRequireAuth(t *testing.T) {
	h := newHarness(t)
	_, adminStr := testAddr(0xAD)

	resp := h.call(t, "", "presale_create", createSaleParams{Admin: adminStr})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}
	resp = h.call(t, "wrong-token", "presale_start", saleActionParams{})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", resp.Error)
	}
}

func TestBuyValidation(t *testing.T) {
	h := newHarness(t)
	_, adminStr := testAddr(0xAD)
	_, buyerStr := testAddr(0xB1)
	sale := createSaleViaRPC(t, h, adminStr)

	resp := h.call(t, "", "presale_buy", buyParams{SaleID: "not-hex", Buyer: buyerStr, Payment: 1})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params for bad sale id, got %+v", resp.Error)
	}

	resp = h.call(t, "", "presale_buy", buyParams{SaleID: sale.ID, Buyer: "dgx1invalid", Payment: 1})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params for bad buyer, got %+v", resp.Error)
	}

	// Sale was never started: the engine rejects with a state conflict.
	resp = h.call(t, "", "presale_buy", buyParams{SaleID: sale.ID, Buyer: buyerStr, Payment: 1_000_000})
	if resp.Error == nil || resp.Error.Code != codeInvalidState {
		t.Fatalf("expected invalid state, got %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	h := newHarness(t)
	resp := h.call(t, "", "presale_nope", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestMalformedRequests(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Post(h.http.URL, "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", decoded.Error)
	}

	empty := h.call(t, "", "", nil)
	if empty.Error == nil || empty.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request for missing method, got %+v", empty.Error)
	}
}

func TestBuyRateLimit(t *testing.T) {
	h := newHarness(t)
	_, adminStr := testAddr(0xAD)
	_, buyerStr := testAddr(0xB1)
	sale := createSaleViaRPC(t, h, adminStr)

	var limited bool
	for i := 0; i <= maxBuysPerWindow; i++ {
		resp := h.call(t, "", "presale_buy", buyParams{SaleID: sale.ID, Buyer: buyerStr, Payment: 1_000_000})
		if resp.Error != nil && resp.Error.Code == codeRateLimited {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("rate limiter never engaged")
	}
}

func TestListEventsReturnsRecent(t *testing.T) {
	h := newHarness(t)
	admin, adminStr := testAddr(0xAD)
	sale := createSaleViaRPC(t, h, adminStr)

	h.fund(t, admin, presale.TokenSymbol, 100)
	resp := h.call(t, "test-secret", "presale_deposit", saleActionParams{SaleID: sale.ID, Caller: adminStr, Amount: 100})
	if resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	var events []struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	resp = h.call(t, "", "presale_listEvents", 10)
	resultInto(t, resp, &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// The limit also arrives as an object from the gateway bridge.
	events = nil
	resp = h.call(t, "", "presale_listEvents", listEventsParams{Limit: 10})
	resultInto(t, resp, &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 events for object-form limit, got %d", len(events))
	}
	if events[0].Type != presale.EventTypeSaleCreated || events[1].Type != presale.EventTypeSaleDeposited {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
	if events[1].Attributes["amount"] != "100" {
		t.Fatalf("deposit amount missing from event: %v", events[1].Attributes)
	}
}
