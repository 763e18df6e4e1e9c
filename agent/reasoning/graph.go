package reasoning

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const (
	nodeJudge       = "judge"
	nodeJudgeStrict = "judge_strict"
)

func compileJudgmentGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, judgmentLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[judgmentLLMOutput](ctx, chatModel, systemPrompt, graphName)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}

type judgeState struct {
	Req contractx.JudgmentRequest
}

// compileRuntimeGraph routes a validated request to the normal or strict
// judge.
func compileRuntimeGraph(
	ctx context.Context,
	judge func(context.Context, contractx.JudgmentRequest, bool) (contractx.Judgment, error),
) (compose.Runnable[contractx.JudgmentRequest, contractx.Judgment], error) {
	graph := compose.NewGraph[contractx.JudgmentRequest, contractx.Judgment]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, req contractx.JudgmentRequest) (*judgeState, error) {
			if strings.TrimSpace(req.Region) == "" {
				return nil, fmt.Errorf("%w: region is required", contractx.ErrValidation)
			}
			if _, err := contractx.ParseDimension(string(req.Dimension)); err != nil {
				return nil, err
			}
			return &judgeState{Req: req}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add reasoning validate node: %w", err)
	}

	for name, strict := range map[string]bool{nodeJudge: false, nodeJudgeStrict: true} {
		strict := strict
		if err := graph.AddLambdaNode(name,
			compose.InvokableLambda(func(ctx context.Context, in *judgeState) (contractx.Judgment, error) {
				if in == nil {
					return contractx.Judgment{}, fmt.Errorf("%w: reasoning graph state is nil", contractx.ErrValidation)
				}
				return judge(ctx, in.Req, strict)
			}),
		); err != nil {
			return nil, fmt.Errorf("add reasoning %s node: %w", name, err)
		}
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *judgeState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: reasoning graph state is nil", contractx.ErrValidation)
			}
			if in.Req.Strict {
				return nodeJudgeStrict, nil
			}
			return nodeJudge, nil
		},
		map[string]bool{
			nodeJudge:       true,
			nodeJudgeStrict: true,
		},
	)

	if err := graph.AddBranch("validate_request", branch); err != nil {
		return nil, fmt.Errorf("add reasoning branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "validate_request"); err != nil {
		return nil, fmt.Errorf("add reasoning edge start->validate: %w", err)
	}
	if err := graph.AddEdge(nodeJudge, compose.END); err != nil {
		return nil, fmt.Errorf("add reasoning edge judge->end: %w", err)
	}
	if err := graph.AddEdge(nodeJudgeStrict, compose.END); err != nil {
		return nil, fmt.Errorf("add reasoning edge judge_strict->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("reasoning.runtime_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile reasoning runtime graph: %w", err)
	}
	return runner, nil
}

// compileStructuredLLMGraph chains prompt, model and a JSON parser. Parse
// failures surface as contract.ErrSchemaViolation so callers can tell them
// apart from transport errors.
func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (T, error) {
			var zero T
			if msg == nil {
				return zero, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
			}
			out, err := parser.Parse(ctx, &schema.Message{
				Role:    msg.Role,
				Content: stripCodeFence(msg.Content),
			})
			if err != nil {
				return zero, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
			}
			return out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
