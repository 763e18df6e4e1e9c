package negotiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var errStillPlaced = errors.New("order not yet confirmed")

// RequesterConfig is loaded with the NEGOTIATION prefix.
type RequesterConfig struct {
	CanonicalCurrency string        `envconfig:"CANONICAL_CURRENCY" split_words:"true" default:"USD"`
	PollInitial       time.Duration `envconfig:"POLL_INITIAL" split_words:"true" default:"100ms"`
	PollMax           time.Duration `envconfig:"POLL_MAX" split_words:"true" default:"2s"`
	PollMaxTries      uint          `envconfig:"POLL_MAX_TRIES" split_words:"true" default:"10"`
}

func DefaultRequesterConfig() RequesterConfig {
	return RequesterConfig{
		CanonicalCurrency: "USD",
		PollInitial:       100 * time.Millisecond,
		PollMax:           2 * time.Second,
		PollMaxTries:      10,
	}
}

func (c RequesterConfig) Validate() error {
	if len(strings.TrimSpace(c.CanonicalCurrency)) != 3 {
		return fmt.Errorf("%w: canonical currency must be a 3-letter code", contractx.ErrValidation)
	}
	if c.PollInitial <= 0 || c.PollMax < c.PollInitial {
		return fmt.Errorf("%w: poll intervals must be positive and ordered", contractx.ErrValidation)
	}
	if c.PollMaxTries == 0 {
		return fmt.Errorf("%w: poll max tries must be positive", contractx.ErrValidation)
	}
	return nil
}

type RequesterOption func(*Requester)

func WithRequesterClock(now func() time.Time) RequesterOption {
	return func(r *Requester) {
		if now != nil {
			r.now = now
		}
	}
}

var _ contractx.Negotiator = (*Requester)(nil)

// Requester drives quotes and orders against the suppliers in a Directory.
// It refreshes expired quotes once, waits for asynchronous confirmation and
// converts totals to the canonical currency through the tool gateway.
type Requester struct {
	dir   *Directory
	tools contractx.ToolGateway
	cfg   RequesterConfig
	now   func() time.Time
}

func NewRequester(dir *Directory, tools contractx.ToolGateway, cfg RequesterConfig, opts ...RequesterOption) (*Requester, error) {
	if dir == nil {
		return nil, fmt.Errorf("%w: directory is required", contractx.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.CanonicalCurrency = strings.ToUpper(strings.TrimSpace(cfg.CanonicalCurrency))
	r := &Requester{dir: dir, tools: tools, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Requester) CanonicalCurrency() string { return r.cfg.CanonicalCurrency }

func (r *Requester) Candidates(partID string) []string {
	return r.dir.Candidates(partID)
}

// Quote asks one supplier for a quote. A quote that is already expired on
// arrival is requested again once.
func (r *Requester) Quote(ctx context.Context, supplierID string, req contractx.QuoteRequest) (contractx.Quote, error) {
	s, err := r.dir.Get(supplierID)
	if err != nil {
		return contractx.Quote{}, err
	}
	q, err := s.RequestQuote(ctx, req)
	if err != nil {
		return contractx.Quote{}, err
	}
	if !q.Expired(r.now()) {
		return q, nil
	}

	log.Ctx(ctx).Debug().Str("supplier_id", supplierID).Str("quote_id", q.QuoteID).Msg("quote expired on arrival, requesting again")
	q, err = s.RequestQuote(ctx, req)
	if err != nil {
		return contractx.Quote{}, err
	}
	if q.Expired(r.now()) {
		return contractx.Quote{}, fmt.Errorf("%w: %s keeps issuing expired quotes", contractx.ErrQuoteExpired, supplierID)
	}
	return q, nil
}

// Order places quote with its supplier and waits for a terminal status. An
// expired quote is refreshed once; the fresh quote must not cost more than
// the one being placed. A supplier that never confirms within the poll
// budget yields a FAILED order.
func (r *Requester) Order(ctx context.Context, supplierID string, quote contractx.Quote) (contractx.Order, error) {
	s, err := r.dir.Get(supplierID)
	if err != nil {
		return contractx.Order{}, err
	}
	logger := log.Ctx(ctx).With().Str("component", "negotiation").Str("supplier_id", supplierID).Str("part_id", quote.PartID).Logger()

	refreshed := false
	if quote.Expired(r.now()) {
		if quote, err = r.refresh(ctx, s, quote); err != nil {
			return contractx.Order{}, err
		}
		refreshed = true
	}

	order, err := s.PlaceOrder(ctx, quote)
	if errors.Is(err, contractx.ErrQuoteExpired) && !refreshed {
		logger.Debug().Str("quote_id", quote.QuoteID).Msg("supplier reported quote expired, refreshing")
		if quote, err = r.refresh(ctx, s, quote); err != nil {
			return contractx.Order{}, err
		}
		order, err = s.PlaceOrder(ctx, quote)
	}
	if err != nil {
		return contractx.Order{}, err
	}
	if order.Status.Terminal() {
		return order, nil
	}

	return r.awaitConfirmation(ctx, s, order)
}

func (r *Requester) refresh(ctx context.Context, s contractx.Supplier, old contractx.Quote) (contractx.Quote, error) {
	fresh, err := s.RequestQuote(ctx, contractx.QuoteRequest{
		PartID:   old.PartID,
		Quantity: old.Quantity,
		Urgent:   old.Urgent,
	})
	if err != nil {
		return contractx.Quote{}, err
	}
	if fresh.Expired(r.now()) {
		return contractx.Quote{}, fmt.Errorf("%w: refreshed quote %s already expired", contractx.ErrQuoteExpired, fresh.QuoteID)
	}
	if fresh.Currency != old.Currency || fresh.Total() > old.Total()+0.005 {
		return contractx.Quote{}, fmt.Errorf("%w: refreshed quote %.2f %s exceeds %.2f %s", contractx.ErrPriceChanged, fresh.Total(), fresh.Currency, old.Total(), old.Currency)
	}
	return fresh, nil
}

func (r *Requester) awaitConfirmation(ctx context.Context, s contractx.Supplier, placed contractx.Order) (contractx.Order, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.PollInitial
	b.MaxInterval = r.cfg.PollMax

	last := placed
	order, err := backoff.Retry(ctx, func() (contractx.Order, error) {
		o, err := s.OrderStatus(ctx, placed.OrderID)
		if err != nil {
			if errors.Is(err, contractx.ErrUnknownOrder) {
				return contractx.Order{}, backoff.Permanent(err)
			}
			return contractx.Order{}, err
		}
		last = o
		if !o.Status.Terminal() {
			return contractx.Order{}, errStillPlaced
		}
		return o, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.PollMaxTries),
	)
	if err == nil {
		return order, nil
	}
	if errors.Is(err, contractx.ErrUnknownOrder) {
		return contractx.Order{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contractx.Order{}, ctxErr
	}

	log.Ctx(ctx).Warn().Err(err).Str("order_id", placed.OrderID).Msg("order confirmation budget exhausted")
	last.Status = contractx.OrderFailed
	last.Message = "no confirmation from supplier"
	return last, nil
}

// CanonicalTotal converts the quote total to the canonical currency. The
// second result is false when the conversion is unavailable.
func (r *Requester) CanonicalTotal(ctx context.Context, quote contractx.Quote) (float64, bool) {
	if strings.EqualFold(quote.Currency, r.cfg.CanonicalCurrency) || quote.Currency == "" {
		return round2(quote.Total()), true
	}
	if r.tools == nil {
		return 0, false
	}
	d := r.tools.Query(ctx, contractx.SourceCurrency, map[string]any{
		"amount": quote.Total(),
		"from":   quote.Currency,
		"to":     r.cfg.CanonicalCurrency,
	})
	if !d.Available {
		return 0, false
	}
	v, ok := d.Data["converted"].(float64)
	if !ok {
		return 0, false
	}
	return round2(v), true
}
