package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var _ Summarizer = (*LLMSummarizer)(nil)

// LLMSummarizer asks an OpenAI-compatible endpoint for an entity-preserving
// summary. The Compactor re-applies the word cap to whatever comes back.
type LLMSummarizer struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int64
}

func NewLLMSummarizer(client *openai.Client, model, systemPrompt string) (*LLMSummarizer, error) {
	if client == nil {
		return nil, errors.New("summarizer: client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("summarizer: model is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: compactor prompt", contractx.ErrPromptMissing)
	}
	return &LLMSummarizer{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: systemPrompt,
		maxTokens:    256,
	}, nil
}

func (s *LLMSummarizer) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	user := fmt.Sprintf("Word limit: %d\n\n%s", maxWords, text)
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(s.systemPrompt),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(s.maxTokens),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summarize: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: summarize: empty choices", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
