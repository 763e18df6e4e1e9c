package supervisor

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

// Config is loaded with the SUPERVISOR prefix.
type Config struct {
	Dimensions       []string      `envconfig:"DIMENSIONS" split_words:"true" default:"POLITICAL,WEATHER,LOGISTICS"`
	DimensionTimeout time.Duration `envconfig:"DIMENSION_TIMEOUT" split_words:"true" default:"20s"`
}

func DefaultConfig() Config {
	return Config{
		Dimensions:       []string{"POLITICAL", "WEATHER", "LOGISTICS"},
		DimensionTimeout: 20 * time.Second,
	}
}

func (c Config) Validate() error {
	if _, err := c.dimensions(); err != nil {
		return err
	}
	if c.DimensionTimeout <= 0 {
		return fmt.Errorf("%w: dimension timeout must be positive", contractx.ErrValidation)
	}
	return nil
}

func (c Config) dimensions() ([]contractx.Dimension, error) {
	if len(c.Dimensions) == 0 {
		return nil, fmt.Errorf("%w: at least one dimension is required", contractx.ErrValidation)
	}
	seen := map[contractx.Dimension]bool{}
	out := make([]contractx.Dimension, 0, len(c.Dimensions))
	for _, raw := range c.Dimensions {
		d, err := contractx.ParseDimension(raw)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}
