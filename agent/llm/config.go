package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	openrouterx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/openrouter"
)

type Role string

const (
	RoleInvestigator Role = "investigator"
	RoleCompactor    Role = "compactor"
)

// Config is loaded with the OPENROUTER prefix. An empty APIKey means the
// engine runs offline with the keyword reasoner and extractive compaction.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	InvestigatorModel       string  `envconfig:"INVESTIGATOR_MODEL" split_words:"true"`
	CompactorModel          string  `envconfig:"COMPACTOR_MODEL" split_words:"true"`
	InvestigatorTemperature float32 `envconfig:"INVESTIGATOR_TEMPERATURE" split_words:"true" default:"-1"`
	CompactorTemperature    float32 `envconfig:"COMPACTOR_TEMPERATURE" split_words:"true" default:"-1"`
	// SummarizeNews routes news compaction through the compactor model.
	SummarizeNews bool `envconfig:"SUMMARIZE_NEWS" split_words:"true" default:"false"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required when an api key is set", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleInvestigator:
		if v := strings.TrimSpace(c.InvestigatorModel); v != "" {
			modelName = v
		}
		if c.InvestigatorTemperature >= 0 {
			temp = c.InvestigatorTemperature
		}
	case RoleCompactor:
		if v := strings.TrimSpace(c.CompactorModel); v != "" {
			modelName = v
		}
		if c.CompactorTemperature >= 0 {
			temp = c.CompactorTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
