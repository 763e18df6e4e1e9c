package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const maxBodyBytes = 1 << 20

// RateSource is the exchange-rate lookup served next to the supplier
// endpoints. Rates are units of currency per USD.
type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler exposes a Supplier over HTTP.
type Handler struct {
	supplier contractx.Supplier
	rates    RateSource
	version  string
}

func NewHandler(supplier contractx.Supplier, rates RateSource, version string) *Handler {
	return &Handler{supplier: supplier, rates: rates, version: version}
}

// RegisterRoutes registers the supplier routes on mux under prefix, which
// may be empty.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimRight(prefix, "/")
	mux.HandleFunc("GET "+prefix+"/health", h.handleHealth)
	mux.HandleFunc("POST "+prefix+"/v1/quote", h.handleQuote)
	mux.HandleFunc("POST "+prefix+"/v1/order", h.handleOrder)
	mux.HandleFunc("GET "+prefix+"/v1/order/{id}", h.handleOrderStatus)
	mux.HandleFunc("GET "+prefix+"/v1/exchange_rate/{currency}", h.handleRate)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"supplier_id": h.supplier.ID(),
		"version":     h.version,
	})
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req contractx.QuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	q, err := h.supplier.RequestQuote(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	var q contractx.Quote
	if err := decodeJSON(r, &q); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	order, err := h.supplier.PlaceOrder(r.Context(), q)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	status := http.StatusOK
	if !order.Status.Terminal() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, order)
}

func (h *Handler) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := h.supplier.OrderStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleRate(w http.ResponseWriter, r *http.Request) {
	ccy := strings.ToUpper(r.PathValue("currency"))
	if h.rates == nil {
		writeError(r.Context(), w, fmt.Errorf("%w: no exchange rates", contractx.ErrUnavailable))
		return
	}
	rate, err := h.rates.Rate(r.Context(), ccy)
	if err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			writeJSON(w, http.StatusNotFound, errorBody{Code: contractx.CodeValidation, Message: err.Error()})
			return
		}
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": ccy, "rate": rate})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", contractx.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := contractx.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(ctx).Error().Err(err).Msg("supplier request failed")
	}
	writeJSON(w, status, errorBody{Code: contractx.Code(err), Message: err.Error()})
}

var _ contractx.Supplier = (*HTTPSupplier)(nil)

// HTTPSupplier is a Supplier served by a remote Handler. Error codes in
// responses are mapped back to contract sentinel errors.
type HTTPSupplier struct {
	id         string
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSupplier(id, baseURL string, client *http.Client) (*HTTPSupplier, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: supplier id is required", contractx.ErrValidation)
	}
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("%w: invalid supplier url: %v", contractx.ErrValidation, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSupplier{id: id, baseURL: trimmed, httpClient: client}, nil
}

func (c *HTTPSupplier) ID() string { return c.id }

func (c *HTTPSupplier) RequestQuote(ctx context.Context, req contractx.QuoteRequest) (contractx.Quote, error) {
	var q contractx.Quote
	err := c.do(ctx, http.MethodPost, "/v1/quote", req, &q)
	return q, err
}

func (c *HTTPSupplier) PlaceOrder(ctx context.Context, quote contractx.Quote) (contractx.Order, error) {
	var o contractx.Order
	err := c.do(ctx, http.MethodPost, "/v1/order", quote, &o)
	return o, err
}

func (c *HTTPSupplier) OrderStatus(ctx context.Context, orderID string) (contractx.Order, error) {
	var o contractx.Order
	err := c.do(ctx, http.MethodGet, "/v1/order/"+url.PathEscape(orderID), nil, &o)
	return o, err
}

func (c *HTTPSupplier) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal supplier request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build supplier request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: supplier %s: %v", contractx.ErrUnavailable, c.id, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read supplier response: %v", contractx.ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Code != "" {
			if sentinel, ok := contractx.ErrorForCode(eb.Code); ok {
				return fmt.Errorf("%w: %s", sentinel, eb.Message)
			}
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: supplier %s status %d", contractx.ErrUnavailable, c.id, resp.StatusCode)
		}
		return fmt.Errorf("supplier %s status %d: %s", c.id, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode supplier response: %w", err)
	}
	return nil
}
