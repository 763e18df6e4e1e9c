package tool

import (
	"fmt"
	"time"
)

type Config struct {
	MaxDigestWords int           `split_words:"true" default:"50"`
	MaxDigestBytes int           `split_words:"true" default:"600"`
	QueryTimeout   time.Duration `split_words:"true" default:"5s"`
	MaxRetries     uint          `split_words:"true" default:"3"`
	RetryInitial   time.Duration `split_words:"true" default:"100ms"`
	RetryMax       time.Duration `split_words:"true" default:"2s"`
	// RateLimit is queries per second shared by all sources; 0 disables it.
	RateLimit float64 `split_words:"true" default:"20"`
	RateBurst int     `split_words:"true" default:"10"`
	// RatesURL points at a supplier exchange-rate endpoint. Empty uses the
	// static rate table.
	RatesURL string `envconfig:"RATES_URL"`
}

func DefaultConfig() Config {
	return Config{
		MaxDigestWords: 50,
		MaxDigestBytes: 600,
		QueryTimeout:   5 * time.Second,
		MaxRetries:     3,
		RetryInitial:   100 * time.Millisecond,
		RetryMax:       2 * time.Second,
		RateLimit:      20,
		RateBurst:      10,
	}
}

func (c *Config) Validate() error {
	if c.MaxDigestWords <= 0 {
		return fmt.Errorf("max digest words must be positive, got %d", c.MaxDigestWords)
	}
	if c.MaxDigestBytes < 0 {
		return fmt.Errorf("max digest bytes must not be negative, got %d", c.MaxDigestBytes)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}
