package investigator

import (
	"fmt"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

// Config is loaded with the INVESTIGATOR prefix.
type Config struct {
	MaxIterations       int     `envconfig:"MAX_ITERATIONS" split_words:"true" default:"3"`
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" split_words:"true" default:"0.7"`
	// UnavailablePenalty is subtracted from the reasoner's confidence for
	// every tool result that came back unavailable.
	UnavailablePenalty float64 `envconfig:"UNAVAILABLE_PENALTY" split_words:"true" default:"0.15"`
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:       3,
		ConfidenceThreshold: 0.7,
		UnavailablePenalty:  0.15,
	}
}

func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1", contractx.ErrValidation)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold must be within [0,1]", contractx.ErrValidation)
	}
	if c.UnavailablePenalty < 0 || c.UnavailablePenalty > 1 {
		return fmt.Errorf("%w: unavailable penalty must be within [0,1]", contractx.ErrValidation)
	}
	return nil
}
