package reasoning

import (
	"context"
	"errors"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	promptx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/prompt"
)

type fakeToolCallingModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	idx       int
	systems   []string
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(input) > 0 {
		f.systems = append(f.systems, input[0].Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func (f *fakeToolCallingModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.systems)
}

func testPrompts() promptx.PromptSet {
	return promptx.PromptSet{
		Investigator:       "normal prompt",
		InvestigatorStrict: "strict prompt",
		Compactor:          "compactor prompt",
	}
}

func testRequest() contractx.JudgmentRequest {
	return contractx.JudgmentRequest{
		Task:      "assess weather risk",
		Region:    "Taiwan",
		Dimension: contractx.DimensionWeather,
		Evidence:  []string{"[NEWS_SEARCH] Magnitude 7.4 earthquake strikes Taiwan."},
		Iteration: 1,
	}
}

func TestLLMReasonerParsesJudgment(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"risk_level":"critical","confidence":0.55,"affected_parts":[],"rationale":"quake","follow_up":[{"tool":"inventory.query","args":{"region":"Taiwan"}}]}`},
		},
	}
	r, err := NewLLMReasoner(context.Background(), fake, testPrompts())
	if err != nil {
		t.Fatalf("NewLLMReasoner() error = %v", err)
	}

	j, err := r.Reason(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Reason() error = %v", err)
	}
	if j.RiskLevel != contractx.RiskCritical {
		t.Fatalf("unexpected risk level: %s", j.RiskLevel)
	}
	if j.Confidence != 0.55 {
		t.Fatalf("unexpected confidence: %v", j.Confidence)
	}
	if len(j.FollowUp) != 1 || j.FollowUp[0].Tool != "inventory.query" {
		t.Fatalf("unexpected follow up: %#v", j.FollowUp)
	}
	if fake.calls() != 1 {
		t.Fatalf("expected a single model call, got %d", fake.calls())
	}
}

func TestLLMReasonerRetriesWithStrictPrompt(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: "The risk looks critical to me."},
			{Content: "```json\n{\"risk_level\":\"MEDIUM\",\"confidence\":0.8,\"affected_parts\":[\"Logic-Core-CPU\"],\"rationale\":\"delays\"}\n```"},
		},
	}
	r, err := NewLLMReasoner(context.Background(), fake, testPrompts())
	if err != nil {
		t.Fatalf("NewLLMReasoner() error = %v", err)
	}

	j, err := r.Reason(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Reason() error = %v", err)
	}
	if j.RiskLevel != contractx.RiskMedium || len(j.AffectedParts) != 1 {
		t.Fatalf("unexpected judgment: %#v", j)
	}
	if fake.calls() != 2 {
		t.Fatalf("expected two model calls, got %d", fake.calls())
	}
	if fake.systems[0] != "normal prompt" || fake.systems[1] != "strict prompt" {
		t.Fatalf("unexpected prompts used: %#v", fake.systems)
	}
}

func TestLLMReasonerMalformedAfterRetry(t *testing.T) {
	t.Parallel()

	cases := map[string][]*schema.Message{
		"not json": {
			{Content: "critical"},
			{Content: "still critical"},
		},
		"confidence out of range": {
			{Content: `{"risk_level":"LOW","confidence":1.5,"rationale":"x"}`},
			{Content: `{"risk_level":"LOW","confidence":-0.1,"rationale":"x"}`},
		},
		"unknown risk level": {
			{Content: `{"risk_level":"SEVERE","confidence":0.9}`},
			{Content: `{"risk_level":"HIGH","confidence":0.9}`},
		},
		"missing confidence": {
			{Content: `{"risk_level":"LOW"}`},
			{Content: `{"risk_level":"LOW","rationale":"x"}`},
		},
		"tool outside catalog": {
			{Content: `{"risk_level":"LOW","confidence":0.4,"follow_up":[{"tool":"math.evaluate"}]}`},
			{Content: `{"risk_level":"LOW","confidence":0.4,"follow_up":[{"tool":"shell.exec"}]}`},
		},
	}

	for name, responses := range cases {
		responses := responses
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeToolCallingModel{responses: responses}
			r, err := NewLLMReasoner(context.Background(), fake, testPrompts())
			if err != nil {
				t.Fatalf("NewLLMReasoner() error = %v", err)
			}
			_, err = r.Reason(context.Background(), testRequest())
			if !errors.Is(err, contractx.ErrMalformedJudgment) {
				t.Fatalf("expected ErrMalformedJudgment, got %v", err)
			}
			if fake.calls() != 2 {
				t.Fatalf("expected exactly one retry, got %d calls", fake.calls())
			}
		})
	}
}

func TestLLMReasonerModelErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("upstream 502")}
	r, err := NewLLMReasoner(context.Background(), fake, testPrompts())
	if err != nil {
		t.Fatalf("NewLLMReasoner() error = %v", err)
	}

	_, err = r.Reason(context.Background(), testRequest())
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
	if errors.Is(err, contractx.ErrMalformedJudgment) {
		t.Fatalf("model failure must not be reported as malformed judgment")
	}
	if fake.calls() != 1 {
		t.Fatalf("expected a single call, got %d", fake.calls())
	}
}

func TestLLMReasonerValidatesRequest(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{}
	r, err := NewLLMReasoner(context.Background(), fake, testPrompts())
	if err != nil {
		t.Fatalf("NewLLMReasoner() error = %v", err)
	}

	req := testRequest()
	req.Dimension = "SEISMIC"
	if _, err := r.Reason(context.Background(), req); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if fake.calls() != 0 {
		t.Fatalf("model must not be called for invalid requests")
	}
}

func TestNewLLMReasonerRequiresPrompts(t *testing.T) {
	t.Parallel()

	_, err := NewLLMReasoner(context.Background(), &fakeToolCallingModel{}, promptx.PromptSet{})
	if !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("expected ErrPromptMissing, got %v", err)
	}
}

func TestLoadedPromptsHaveNoTemplatePlaceholders(t *testing.T) {
	t.Parallel()

	// The system prompt goes through an FString template, so a stray brace
	// would be read as a missing variable.
	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"risk_level":"LOW","confidence":0.9,"rationale":"calm"}`},
		},
	}
	r, err := NewLLMReasoner(context.Background(), fake, promptx.LoadPromptSet())
	if err != nil {
		t.Fatalf("NewLLMReasoner() error = %v", err)
	}
	if _, err := r.Reason(context.Background(), testRequest()); err != nil {
		t.Fatalf("Reason() error = %v", err)
	}
}
