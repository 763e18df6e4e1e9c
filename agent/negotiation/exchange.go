package negotiation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const (
	defaultUnitPrice   = 50.0
	standardShipping   = 100.0
	urgentShipping     = 500.0
	standardLeadDays   = 14
	urgentLeadDays     = 5
	defaultQuoteTTL    = 15 * time.Minute
	defaultRetention   = 24 * time.Hour
	pruneInterval      = time.Minute
	defaultCurrency    = "USD"
	orderIDPrefix      = "PO-"
	firstOrderSequence = 10000
)

// DefaultPrices are the unit prices, in the exchange currency, for parts
// that do not use the base price.
func DefaultPrices() map[string]float64 {
	return map[string]float64{
		"Logic-Core-CPU": 120,
		"Memory-DDR5":    35,
	}
}

// ExchangeConfig is loaded with the SUPPLIER prefix.
type ExchangeConfig struct {
	ID       string        `envconfig:"ID" split_words:"true" default:"SUP-ACME"`
	Currency string        `envconfig:"CURRENCY" split_words:"true" default:"USD"`
	QuoteTTL time.Duration `envconfig:"QUOTE_TTL" split_words:"true" default:"15m"`
	// FailureRate is the chance that a quote request finds no stock.
	FailureRate float64 `envconfig:"FAILURE_RATE" split_words:"true" default:"0.2"`
	// ConfirmAfter delays confirmation of a placed order.
	ConfirmAfter time.Duration `envconfig:"CONFIRM_AFTER" split_words:"true" default:"0s"`
	// PriceFactor scales every unit price, so several mock suppliers can
	// quote differently from one catalog.
	PriceFactor float64 `envconfig:"PRICE_FACTOR" split_words:"true" default:"1"`
	Seed        int64   `envconfig:"SEED" split_words:"true" default:"0"`
	// OrderRetention is how long orders stay queryable after they are
	// placed. Expired quotes are kept for one extra QuoteTTL.
	OrderRetention time.Duration `envconfig:"ORDER_RETENTION" split_words:"true" default:"24h"`
}

func (c ExchangeConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: supplier id is required", contractx.ErrValidation)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("%w: failure rate must be within [0,1]", contractx.ErrValidation)
	}
	if c.QuoteTTL < 0 || c.ConfirmAfter < 0 || c.OrderRetention < 0 {
		return fmt.Errorf("%w: durations must not be negative", contractx.ErrValidation)
	}
	if c.PriceFactor < 0 {
		return fmt.Errorf("%w: price factor must not be negative", contractx.ErrValidation)
	}
	return nil
}

type ExchangeOption func(*Exchange)

func WithExchangeClock(now func() time.Time) ExchangeOption {
	return func(e *Exchange) {
		if now != nil {
			e.now = now
		}
	}
}

func WithPrices(prices map[string]float64) ExchangeOption {
	return func(e *Exchange) {
		for part, p := range prices {
			e.prices[part] = p
		}
	}
}

type placedOrder struct {
	order    contractx.Order
	placedAt time.Time
	reject   bool
	delay    int
}

var _ contractx.Supplier = (*Exchange)(nil)

// Exchange is an in-process mock supplier. Orders are accepted as PLACED and
// confirmed asynchronously once ConfirmAfter has passed.
type Exchange struct {
	mu         sync.Mutex
	cfg        ExchangeConfig
	now        func() time.Time
	rng        *rand.Rand
	prices     map[string]float64
	outOfStock map[string]bool
	rejected   map[string]bool
	delayDays  int
	quotes     map[string]contractx.Quote
	orders     map[string]*placedOrder
	seq        int
	lastPrune  time.Time
}

func NewExchange(cfg ExchangeConfig, opts ...ExchangeOption) (*Exchange, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = defaultCurrency
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = defaultQuoteTTL
	}
	if cfg.PriceFactor == 0 {
		cfg.PriceFactor = 1
	}
	if cfg.OrderRetention == 0 {
		cfg.OrderRetention = defaultRetention
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Exchange{
		cfg:        cfg,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(seed)),
		prices:     DefaultPrices(),
		outOfStock: map[string]bool{},
		rejected:   map[string]bool{},
		quotes:     map[string]contractx.Quote{},
		orders:     map[string]*placedOrder{},
		seq:        firstOrderSequence,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

func (e *Exchange) ID() string { return e.cfg.ID }

func (e *Exchange) RequestQuote(ctx context.Context, req contractx.QuoteRequest) (contractx.Quote, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Quote{}, err
	}
	if err := req.Validate(); err != nil {
		return contractx.Quote{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.outOfStock[req.PartID] || (e.cfg.FailureRate > 0 && e.rng.Float64() < e.cfg.FailureRate) {
		return contractx.Quote{}, fmt.Errorf("%w: %s has no stock of %s", contractx.ErrNoStock, e.cfg.ID, req.PartID)
	}

	shipping, lead := standardShipping, standardLeadDays
	if req.Urgent {
		shipping, lead = urgentShipping, urgentLeadDays
	}
	now := e.now()
	q := contractx.Quote{
		QuoteID:      "Q-" + uuid.NewString(),
		SupplierID:   e.cfg.ID,
		PartID:       req.PartID,
		Quantity:     req.Quantity,
		UnitPrice:    e.unitPriceLocked(req.PartID),
		ShippingFee:  shipping,
		Currency:     e.cfg.Currency,
		LeadTimeDays: lead,
		ExpiresAt:    now.Add(e.cfg.QuoteTTL).UTC(),
		Urgent:       req.Urgent,
	}
	e.pruneLocked(now)
	e.quotes[q.QuoteID] = q
	return q, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, quote contractx.Quote) (contractx.Order, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	issued, ok := e.quotes[quote.QuoteID]
	if !ok {
		if quote.QuoteID != "" && quote.Expired(now) {
			return contractx.Order{}, fmt.Errorf("%w: quote %s expired", contractx.ErrQuoteExpired, quote.QuoteID)
		}
		return contractx.Order{}, fmt.Errorf("%w: unknown quote %s", contractx.ErrValidation, quote.QuoteID)
	}
	if issued.Expired(now) {
		delete(e.quotes, quote.QuoteID)
		return contractx.Order{}, fmt.Errorf("%w: quote %s expired at %s", contractx.ErrQuoteExpired, quote.QuoteID, issued.ExpiresAt.Format(time.RFC3339))
	}
	if current := e.unitPriceLocked(issued.PartID); current != issued.UnitPrice {
		delete(e.quotes, quote.QuoteID)
		return contractx.Order{}, fmt.Errorf("%w: %s unit price moved from %.2f to %.2f", contractx.ErrPriceChanged, issued.PartID, issued.UnitPrice, current)
	}
	if e.outOfStock[issued.PartID] {
		delete(e.quotes, quote.QuoteID)
		return contractx.Order{}, fmt.Errorf("%w: %s sold out of %s", contractx.ErrNoStock, e.cfg.ID, issued.PartID)
	}
	delete(e.quotes, quote.QuoteID)

	e.seq++
	order := contractx.Order{
		OrderID:      fmt.Sprintf("%s%05d", orderIDPrefix, e.seq),
		QuoteID:      issued.QuoteID,
		SupplierID:   e.cfg.ID,
		PartID:       issued.PartID,
		Quantity:     issued.Quantity,
		TotalCost:    round2(issued.Total()),
		Currency:     issued.Currency,
		Status:       contractx.OrderPlaced,
		LeadTimeDays: issued.LeadTimeDays,
	}
	e.orders[order.OrderID] = &placedOrder{
		order:    order,
		placedAt: now,
		reject:   e.rejected[issued.PartID],
		delay:    e.delayDays,
	}
	e.pruneLocked(now)
	return order, nil
}

// pruneLocked drops quotes one TTL past expiry and orders older than the
// retention window. It runs at most once per pruneInterval.
func (e *Exchange) pruneLocked(now time.Time) {
	if !e.lastPrune.IsZero() && now.Sub(e.lastPrune) < pruneInterval {
		return
	}
	e.lastPrune = now
	for id, q := range e.quotes {
		if !now.Before(q.ExpiresAt.Add(e.cfg.QuoteTTL)) {
			delete(e.quotes, id)
		}
	}
	for id, po := range e.orders {
		if !now.Before(po.placedAt.Add(e.cfg.OrderRetention)) {
			delete(e.orders, id)
		}
	}
}

func (e *Exchange) OrderStatus(ctx context.Context, orderID string) (contractx.Order, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	po, ok := e.orders[orderID]
	if !ok {
		return contractx.Order{}, fmt.Errorf("%w: %s", contractx.ErrUnknownOrder, orderID)
	}
	if po.order.Status == contractx.OrderPlaced && !e.now().Before(po.placedAt.Add(e.cfg.ConfirmAfter)) {
		if po.reject {
			po.order.Status = contractx.OrderFailed
			po.order.Message = "supplier could not fulfil the order"
		} else {
			po.order.Status = contractx.OrderConfirmed
			po.order.LeadTimeDays += po.delay
			po.order.Message = fmt.Sprintf("estimated delivery in %d days", po.order.LeadTimeDays)
		}
	}
	return po.order, nil
}

// SetPrice changes the unit price of a part. Outstanding quotes at the old
// price are refused with contract.ErrPriceChanged.
func (e *Exchange) SetPrice(partID string, unitPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[partID] = unitPrice / e.cfg.PriceFactor
}

func (e *Exchange) SetOutOfStock(partID string, out bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outOfStock[partID] = out
}

// RejectOrders makes future orders for partID end FAILED on confirmation.
func (e *Exchange) RejectOrders(partID string, reject bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected[partID] = reject
}

// SetDeliveryDelay adds days to the lead time reported on confirmation.
func (e *Exchange) SetDeliveryDelay(days int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delayDays = days
}

func (e *Exchange) unitPriceLocked(partID string) float64 {
	base, ok := e.prices[partID]
	if !ok {
		base = defaultUnitPrice
	}
	return round2(base * e.cfg.PriceFactor)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
