package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"dogxsale/gateway/middleware"
)

const (
	testSaleID    = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testJWTSecret = "routes-test-secret"
	testNodeToken = "node-bearer-token"
)

// fakeDaemon records the JSON-RPC traffic the gateway forwards.
type fakeDaemon struct {
	mu       sync.Mutex
	requests []rpcRequest
	auths    []string
	respond  func(req rpcRequest) (interface{}, *rpcError)
}

func newFakeDaemon(respond func(req rpcRequest) (interface{}, *rpcError)) *fakeDaemon {
	return &fakeDaemon{respond: respond}
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	f.mu.Unlock()

	result, rpcErr := f.respond(req)
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeDaemon) last(t *testing.T) (rpcRequest, string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests forwarded to daemon")
	}
	return f.requests[len(f.requests)-1], f.auths[len(f.auths)-1]
}

func newTestGateway(t *testing.T, respond func(req rpcRequest) (interface{}, *rpcError), auth *middleware.Authenticator) (*httptest.Server, *fakeDaemon) {
	t.Helper()
	daemon := newFakeDaemon(respond)
	daemonSrv := httptest.NewServer(daemon)
	t.Cleanup(daemonSrv.Close)

	target, err := url.Parse(daemonSrv.URL + "/rpc")
	if err != nil {
		t.Fatalf("parse daemon url: %v", err)
	}
	handler, err := New(Config{
		SaleTarget:    target,
		NodeAuthToken: testNodeToken,
		Authenticator: auth,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	gw := httptest.NewServer(handler)
	t.Cleanup(gw.Close)
	return gw, daemon
}

func okRespond(req rpcRequest) (interface{}, *rpcError) {
	return map[string]string{"ok": req.Method}, nil
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": middleware.ScopeSaleAdmin,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestGatewayForwardsBuy(t *testing.T) {
	gw, daemon := newTestGateway(t, okRespond, nil)

	body := strings.NewReader(`{"buyer":"dgx1buyer","payment":50000000}`)
	resp, err := http.Post(gw.URL+"/v1/sales/"+testSaleID+"/buy", "application/json", body)
	if err != nil {
		t.Fatalf("post buy: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	forwarded, auth := daemon.last(t)
	if forwarded.Method != "presale_buy" {
		t.Fatalf("expected presale_buy, got %q", forwarded.Method)
	}
	if auth != "" {
		t.Fatalf("buy must not carry the node admin token, got %q", auth)
	}
	if len(forwarded.Params) != 1 {
		t.Fatalf("expected a single param object, got %d", len(forwarded.Params))
	}
	param, ok := forwarded.Params[0].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected param shape %T", forwarded.Params[0])
	}
	if param["saleId"] != testSaleID {
		t.Fatalf("sale id not injected from path: %v", param["saleId"])
	}
	if param["buyer"] != "dgx1buyer" {
		t.Fatalf("buyer not forwarded: %v", param["buyer"])
	}
}

func TestGatewayForwardsQueries(t *testing.T) {
	gw, daemon := newTestGateway(t, okRespond, nil)

	cases := []struct {
		path   string
		method string
	}{
		{"/v1/sales/" + testSaleID, "presale_get"},
		{"/v1/sales/" + testSaleID + "/buyers", "presale_listBuyers"},
		{"/v1/sales/" + testSaleID + "/users/dgx1buyer", "presale_getUser"},
		{"/v1/sales/events?limit=10", "presale_listEvents"},
	}
	for _, tc := range cases {
		resp, err := http.Get(gw.URL + tc.path)
		if err != nil {
			t.Fatalf("get %s: %v", tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, resp.StatusCode)
		}
		forwarded, _ := daemon.last(t)
		if forwarded.Method != tc.method {
			t.Fatalf("%s: expected %q, got %q", tc.path, tc.method, forwarded.Method)
		}
	}
}

func TestGatewayAdminCarriesNodeToken(t *testing.T) {
	gw, daemon := newTestGateway(t, okRespond, nil)

	body := strings.NewReader(`{"caller":"dgx1admin","amount":100}`)
	resp, err := http.Post(gw.URL+"/v1/sales/"+testSaleID+"/deposit", "application/json", body)
	if err != nil {
		t.Fatalf("post deposit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	forwarded, auth := daemon.last(t)
	if forwarded.Method != "presale_deposit" {
		t.Fatalf("expected presale_deposit, got %q", forwarded.Method)
	}
	if auth != "Bearer "+testNodeToken {
		t.Fatalf("admin call missing node token, got %q", auth)
	}
}

func TestGatewayAdminRequiresJWT(t *testing.T) {
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: testJWTSecret,
	}, nil)
	gw, daemon := newTestGateway(t, okRespond, auth)

	body := `{"caller":"dgx1admin"}`
	resp, err := http.Post(gw.URL+"/v1/sales/"+testSaleID+"/start", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, gw.URL+"/v1/sales/"+testSaleID+"/start", strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post start with token: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d", authed.StatusCode)
	}

	// Public endpoints stay open regardless of the authenticator.
	public, err := http.Get(gw.URL + "/v1/sales/" + testSaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	public.Body.Close()
	if public.StatusCode != http.StatusOK {
		t.Fatalf("expected public query to pass, got %d", public.StatusCode)
	}

	forwarded, _ := daemon.last(t)
	if forwarded.Method != "presale_get" {
		t.Fatalf("expected presale_get, got %q", forwarded.Method)
	}
}

func TestGatewayMapsDaemonErrors(t *testing.T) {
	respond := func(req rpcRequest) (interface{}, *rpcError) {
		switch req.Method {
		case "presale_get":
			return nil, &rpcError{Code: -32004, Message: "sale not found"}
		case "presale_buy":
			return nil, &rpcError{Code: -32011, Message: "sale is not live"}
		default:
			return nil, &rpcError{Code: -32000, Message: "boom"}
		}
	}
	gw, _ := newTestGateway(t, respond, nil)

	resp, err := http.Get(gw.URL + "/v1/sales/" + testSaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing sale, got %d", resp.StatusCode)
	}

	buy, err := http.Post(gw.URL+"/v1/sales/"+testSaleID+"/buy", "application/json",
		strings.NewReader(`{"buyer":"dgx1buyer","payment":1000000}`))
	if err != nil {
		t.Fatalf("post buy: %v", err)
	}
	defer buy.Body.Close()
	if buy.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for state conflict, got %d", buy.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(buy.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] != "sale is not live" {
		t.Fatalf("daemon message not surfaced: %v", payload)
	}
}

func TestGatewayRejectsMalformedBody(t *testing.T) {
	gw, _ := newTestGateway(t, okRespond, nil)

	resp, err := http.Post(gw.URL+"/v1/sales/"+testSaleID+"/buy", "application/json",
		strings.NewReader(`{"buyer":`))
	if err != nil {
		t.Fatalf("post buy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestGatewayHealthz(t *testing.T) {
	gw, _ := newTestGateway(t, okRespond, nil)
	resp, err := http.Get(gw.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}
