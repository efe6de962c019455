package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// saleRoutes bridges the REST surface to the sale daemon's JSON-RPC API.
type saleRoutes struct {
	client *rpcClient
}

func newSaleRoutes(target *url.URL, authToken string) (*saleRoutes, error) {
	client, err := newRPCClient(target, authToken)
	if err != nil {
		return nil, err
	}
	return &saleRoutes{client: client}, nil
}

func (sr *saleRoutes) mountPublic(r chi.Router) {
	r.Get("/events", sr.listEvents)
	r.Get("/{saleID}", sr.getSale)
	r.Get("/{saleID}/buyers", sr.listBuyers)
	r.Get("/{saleID}/users/{buyer}", sr.getUser)
	r.Post("/{saleID}/buy", sr.buy)
	r.Post("/{saleID}/claim", sr.claim)
	r.Post("/{saleID}/refund", sr.refund)
}

func (sr *saleRoutes) mountAdmin(r chi.Router) {
	r.Post("/", sr.createSale)
	r.Post("/{saleID}/deposit", sr.deposit)
	r.Post("/{saleID}/start", sr.start)
	r.Post("/{saleID}/end", sr.end)
	r.Post("/{saleID}/withdraw/raised", sr.withdrawRaised)
	r.Post("/{saleID}/withdraw/unsold", sr.withdrawUnsold)
	r.Post("/{saleID}/close", sr.closeSale)
}

type levelBody struct {
	Capacity  uint64 `json:"capacity"`
	UnitPrice uint64 `json:"unitPrice"`
	SoftCap   uint64 `json:"softCap,omitempty"`
}

type createSaleBody struct {
	Admin         string      `json:"admin"`
	Seed          uint64      `json:"seed"`
	Levels        []levelBody `json:"levels"`
	SoftCapAmount uint64      `json:"softCapAmount"`
	HardCapAmount uint64      `json:"hardCapAmount"`
	PriceScale    uint64      `json:"priceScale,omitempty"`
	StartTime     uint64      `json:"startTime,omitempty"`
	EndTime       uint64      `json:"endTime"`
}

type saleActionBody struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount,omitempty"`
	SaleID string `json:"saleId,omitempty"`
}

type buyBody struct {
	Buyer   string `json:"buyer"`
	Payment uint64 `json:"payment"`
	SaleID  string `json:"saleId,omitempty"`
}

type claimBody struct {
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount,omitempty"`
	SaleID string `json:"saleId,omitempty"`
}

func (sr *saleRoutes) createSale(w http.ResponseWriter, r *http.Request) {
	var body createSaleBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	sr.forward(w, r, "presale_create", body, true)
}

func (sr *saleRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_deposit")
}

func (sr *saleRoutes) start(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_start")
}

func (sr *saleRoutes) end(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_end")
}

func (sr *saleRoutes) withdrawRaised(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_withdrawRaised")
}

func (sr *saleRoutes) withdrawUnsold(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_withdrawUnsold")
}

func (sr *saleRoutes) closeSale(w http.ResponseWriter, r *http.Request) {
	sr.saleAction(w, r, "presale_close")
}

func (sr *saleRoutes) saleAction(w http.ResponseWriter, r *http.Request, method string) {
	var body saleActionBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	body.SaleID = chi.URLParam(r, "saleID")
	sr.forward(w, r, method, body, true)
}

func (sr *saleRoutes) buy(w http.ResponseWriter, r *http.Request) {
	var body buyBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	body.SaleID = chi.URLParam(r, "saleID")
	sr.forward(w, r, "presale_buy", body, false)
}

func (sr *saleRoutes) claim(w http.ResponseWriter, r *http.Request) {
	var body claimBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	body.SaleID = chi.URLParam(r, "saleID")
	sr.forward(w, r, "presale_claim", body, false)
}

func (sr *saleRoutes) refund(w http.ResponseWriter, r *http.Request) {
	var body claimBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	body.SaleID = chi.URLParam(r, "saleID")
	sr.forward(w, r, "presale_refund", body, false)
}

func (sr *saleRoutes) getSale(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{"saleId": chi.URLParam(r, "saleID")}
	sr.forward(w, r, "presale_get", params, false)
}

func (sr *saleRoutes) getUser(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{
		"saleId": chi.URLParam(r, "saleID"),
		"buyer":  chi.URLParam(r, "buyer"),
	}
	sr.forward(w, r, "presale_getUser", params, false)
}

func (sr *saleRoutes) listBuyers(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{"saleId": chi.URLParam(r, "saleID")}
	sr.forward(w, r, "presale_listBuyers", params, false)
}

func (sr *saleRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	var params interface{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, errors.New("invalid limit"))
			return
		}
		params = map[string]int{"limit": limit}
	}
	sr.forward(w, r, "presale_listEvents", params, false)
}

func (sr *saleRoutes) forward(w http.ResponseWriter, r *http.Request, method string, params interface{}, authorized bool) {
	result, err := sr.client.call(r.Context(), method, params, authorized)
	if err != nil {
		writeForwardError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, saleRequestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func writeForwardError(w http.ResponseWriter, err error) {
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	status := http.StatusBadGateway
	switch rpcErr.Code {
	case -32700, -32600, -32602:
		status = http.StatusBadRequest
	case -32001:
		status = http.StatusUnauthorized
	case -32004:
		status = http.StatusNotFound
	case -32011:
		status = http.StatusConflict
	case -32020:
		status = http.StatusTooManyRequests
	case -32601:
		status = http.StatusNotImplemented
	}
	writeJSONError(w, status, rpcErr.Message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
