package procurement

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// ApprovalThreshold is compared with the canonical total; totals at or
	// above it wait for a human.
	ApprovalThreshold float64       `split_words:"true" default:"5000"`
	ReliabilityFloor  float64       `split_words:"true" default:"0.3"`
	ApprovalTTL       time.Duration `envconfig:"APPROVAL_TTL" default:"0s"`
	Currency          string        `split_words:"true" default:"USD"`
	// NotifyDestination is the QStash URL or topic told about new approval
	// requests. Empty disables notifications.
	NotifyDestination string `split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		ApprovalThreshold: 5000,
		ReliabilityFloor:  0.3,
		Currency:          "USD",
	}
}

func (c *Config) Validate() error {
	if c.ApprovalThreshold < 0 {
		return fmt.Errorf("approval threshold %v must not be negative", c.ApprovalThreshold)
	}
	if c.ReliabilityFloor < 0 || c.ReliabilityFloor > 1 {
		return fmt.Errorf("reliability floor %v outside [0,1]", c.ReliabilityFloor)
	}
	if c.ApprovalTTL < 0 {
		return errors.New("approval ttl must be >= 0")
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	return nil
}
