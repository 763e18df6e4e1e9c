package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var _ contractx.ToolGateway = (*Gateway)(nil)

// Gateway is the only path agents have to news, inventory and exchange
// rates. Source failures never escape as errors; they come back as digests
// with Available=false.
type Gateway struct {
	news      NewsSource
	inventory InventorySource
	rates     RateSource
	compactor *Compactor
	limiter   *rate.Limiter
	cfg       Config
}

type GatewayOption func(*Gateway)

func WithNews(src NewsSource) GatewayOption {
	return func(g *Gateway) { g.news = src }
}

func WithInventory(src InventorySource) GatewayOption {
	return func(g *Gateway) { g.inventory = src }
}

func WithRates(src RateSource) GatewayOption {
	return func(g *Gateway) { g.rates = src }
}

func WithSummarizer(s Summarizer) GatewayOption {
	return func(g *Gateway) { g.compactor = NewCompactor(g.cfg.MaxDigestWords, g.cfg.MaxDigestBytes, s) }
}

func NewGateway(cfg Config, opts ...GatewayOption) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	g := &Gateway{cfg: cfg, compactor: NewCompactor(cfg.MaxDigestWords, cfg.MaxDigestBytes, nil)}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *Gateway) Query(ctx context.Context, kind contractx.SourceKind, params map[string]any) contractx.Digest {
	logger := log.Ctx(ctx).With().Str("component", "tool").Str("kind", string(kind)).Logger()

	var (
		digest contractx.Digest
		err    error
	)
	switch kind {
	case contractx.SourceNews:
		digest, err = g.queryNews(ctx, params)
	case contractx.SourceInventory:
		digest, err = g.queryInventory(ctx, params)
	case contractx.SourceCurrency:
		digest, err = g.convert(ctx, params)
	default:
		err = fmt.Errorf("%w: unknown source kind %q", contractx.ErrValidation, kind)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("tool query unavailable")
		return unavailable(kind, err)
	}
	logger.Debug().Bool("truncated", digest.Truncated).Msg("tool query served")
	return digest
}

func (g *Gateway) queryNews(ctx context.Context, params map[string]any) (contractx.Digest, error) {
	if g.news == nil {
		return contractx.Digest{}, fmt.Errorf("%w: no news source configured", contractx.ErrUnavailable)
	}
	query := stringParam(params, "query")
	if query == "" {
		return contractx.Digest{}, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}

	headlines, err := call(ctx, g, func(ctx context.Context) ([]string, error) {
		return g.news.Search(ctx, query)
	})
	if err != nil {
		return contractx.Digest{}, err
	}

	raw := fmt.Sprintf("No recent breaking news found regarding '%s'.", query)
	if len(headlines) > 0 {
		raw = strings.Join(headlines, "\n")
	}
	content, truncated := g.compactor.Compact(ctx, raw)
	return contractx.Digest{
		Kind:      contractx.SourceNews,
		Content:   content,
		Data:      map[string]any{"query": query, "results": len(headlines)},
		Available: true,
		Truncated: truncated,
	}, nil
}

func (g *Gateway) queryInventory(ctx context.Context, params map[string]any) (contractx.Digest, error) {
	if g.inventory == nil {
		return contractx.Digest{}, fmt.Errorf("%w: no inventory source configured", contractx.ErrUnavailable)
	}
	q := InventoryQuery{
		Region:       stringParam(params, "region"),
		PartID:       stringParam(params, "part_id"),
		LowStockOnly: boolParam(params, "low_stock_only"),
	}

	items, err := call(ctx, g, func(ctx context.Context) ([]InventoryItem, error) {
		return g.inventory.Query(ctx, q)
	})
	if err != nil {
		return contractx.Digest{}, err
	}

	lines := make([]string, 0, len(items))
	lowStock := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.String())
		if it.LowStock() {
			lowStock = append(lowStock, it.PartID)
		}
	}
	content := "No inventory records matched."
	if len(lines) > 0 {
		content = strings.Join(lines, "\n")
	}
	return contractx.Digest{
		Kind:      contractx.SourceInventory,
		Content:   content,
		Data:      map[string]any{"items": items, "low_stock": lowStock},
		Available: true,
	}, nil
}

func (g *Gateway) convert(ctx context.Context, params map[string]any) (contractx.Digest, error) {
	if g.rates == nil {
		return contractx.Digest{}, fmt.Errorf("%w: no rate source configured", contractx.ErrUnavailable)
	}
	amount, ok := floatParam(params, "amount")
	if !ok || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return contractx.Digest{}, fmt.Errorf("%w: amount must be a non-negative number", contractx.ErrValidation)
	}
	from := strings.ToUpper(stringParam(params, "from"))
	if from == "" {
		return contractx.Digest{}, fmt.Errorf("%w: from currency is required", contractx.ErrValidation)
	}
	to := strings.ToUpper(stringParam(params, "to"))
	if to == "" {
		to = "USD"
	}

	fromRate, err := g.rate(ctx, from)
	if err != nil {
		return contractx.Digest{}, err
	}
	toRate, err := g.rate(ctx, to)
	if err != nil {
		return contractx.Digest{}, err
	}

	converted := amount / fromRate * toRate
	return contractx.Digest{
		Kind:    contractx.SourceCurrency,
		Content: fmt.Sprintf("%.2f %s = %.2f %s (1 USD = %g %s)", amount, from, converted, to, fromRate, from),
		Data: map[string]any{
			"amount":    amount,
			"from":      from,
			"to":        to,
			"converted": converted,
			"rate":      fromRate,
		},
		Available: true,
	}, nil
}

func (g *Gateway) rate(ctx context.Context, currency string) (float64, error) {
	if currency == "USD" {
		return 1, nil
	}
	return call(ctx, g, func(ctx context.Context) (float64, error) {
		return g.rates.Rate(ctx, currency)
	})
}

// call runs one source operation under the rate limiter, a per-attempt
// timeout and bounded exponential backoff. Validation errors are not retried.
func call[T any](ctx context.Context, g *Gateway, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.RetryInitial
	if g.cfg.RetryMax > 0 {
		b.MaxInterval = g.cfg.RetryMax
	}

	tries := g.cfg.MaxRetries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(fmt.Errorf("%w: %v", contractx.ErrUnavailable, err))
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.QueryTimeout)
		defer cancel()

		out, err := op(attemptCtx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, contractx.ErrValidation) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Ctx(ctx).Debug().Err(err).Dur("retry_in", next).Msg("tool source retry")
		}),
	)
}

func unavailable(kind contractx.SourceKind, err error) contractx.Digest {
	return contractx.Digest{
		Kind:      kind,
		Content:   fmt.Sprintf("%s: %s unavailable (%v)", contractx.CodeUnavailable, kind, err),
		Available: false,
	}
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func boolParam(params map[string]any, key string) bool {
	switch t := params[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch t := params[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
