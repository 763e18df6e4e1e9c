package reasoning

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	llmx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/llm"
	promptx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/prompt"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
	openrouterx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/openrouter"
)

// NewReasoner returns the model-backed reasoner when an API key is
// configured and the keyword reasoner otherwise.
func NewReasoner(ctx context.Context, cfg llmx.Config) (contractx.Reasoner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		log.Ctx(ctx).Info().Msg("no model configured, using keyword reasoner")
		return NewKeywordReasoner(), nil
	}

	modelCfg := cfg.OpenRouterFor(llmx.RoleInvestigator)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create investigator model: %v", contractx.ErrModelInvoke, err)
	}
	return NewLLMReasoner(ctx, chatModel, promptx.LoadPromptSet())
}

// NewSummarizer returns the compactor summariser, or nil when news is
// compacted extractively.
func NewSummarizer(cfg llmx.Config) (toolx.Summarizer, error) {
	if !cfg.Enabled() || !cfg.SummarizeNews {
		return nil, nil
	}
	modelCfg := cfg.OpenRouterFor(llmx.RoleCompactor)
	client := openrouterx.NewClient(modelCfg)
	if client == nil {
		return nil, openrouterx.ErrNotConfigured
	}
	s, err := toolx.NewLLMSummarizer(client, modelCfg.Model, promptx.LoadPromptSet().Compactor)
	if err != nil {
		return nil, err
	}
	return s, nil
}
