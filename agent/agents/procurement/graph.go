package procurement

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/nodes/procurement"
)

type stepFunc func(ctx context.Context, st *nodex.GraphState, d *nodex.Deps) (*nodex.GraphState, error)

func addStep[I any](graph *compose.Graph[I, nodex.GraphOutput], name string, d *nodex.Deps, fn stepFunc) error {
	if err := graph.AddLambdaNode(name,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return fn(ctx, in, d)
		}),
	); err != nil {
		return fmt.Errorf("add node %s: %w", name, err)
	}
	return nil
}

func addFinish[I any](graph *compose.Graph[I, nodex.GraphOutput]) error {
	if err := graph.AddLambdaNode("finish",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.Finish(in)
		}),
	); err != nil {
		return fmt.Errorf("add node finish: %w", err)
	}
	return nil
}

// unlessFailed routes a failed workflow straight to finish.
func unlessFailed[I any](graph *compose.Graph[I, nodex.GraphOutput], from, next string) error {
	branch := compose.NewGraphBranch(func(ctx context.Context, in *nodex.GraphState) (string, error) {
		if nodex.Failed(in) {
			return "finish", nil
		}
		return next, nil
	}, map[string]bool{"finish": true, next: true})
	if err := graph.AddBranch(from, branch); err != nil {
		return fmt.Errorf("add branch %s: %w", from, err)
	}
	return nil
}

func addEdges[I any](graph *compose.Graph[I, nodex.GraphOutput], edges [][2]string) error {
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// compileStartGraph runs a new purchase up to either a placed order or a
// suspended approval request.
func (s *Service) compileStartGraph(ctx context.Context) (compose.Runnable[nodex.StartInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.StartInput, nodex.GraphOutput]()
	d := s.deps

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.StartInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, d)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	steps := []struct {
		name string
		fn   stepFunc
	}{
		{"check_memory", nodex.CheckMemory},
		{"request_quote", nodex.RequestQuote},
		{"evaluate", nodex.Evaluate},
		{"auto_approve", nodex.AutoApprove},
		{"await_approval", nodex.AwaitApproval},
		{"notify_approver", nodex.NotifyApprover},
		{"place_order", nodex.PlaceOrder},
		{"update_memory", nodex.UpdateMemory},
	}
	for _, step := range steps {
		if err := addStep(graph, step.name, d, step.fn); err != nil {
			return nil, err
		}
	}
	if err := addFinish(graph); err != nil {
		return nil, err
	}

	if err := addEdges(graph, [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "check_memory"},
		{"auto_approve", "place_order"},
		{"await_approval", "notify_approver"},
		{"notify_approver", "finish"},
		{"update_memory", "finish"},
		{"finish", compose.END},
	}); err != nil {
		return nil, err
	}
	if err := unlessFailed(graph, "check_memory", "request_quote"); err != nil {
		return nil, err
	}
	if err := unlessFailed(graph, "request_quote", "evaluate"); err != nil {
		return nil, err
	}
	if err := unlessFailed(graph, "place_order", "update_memory"); err != nil {
		return nil, err
	}

	approval := compose.NewGraphBranch(func(ctx context.Context, in *nodex.GraphState) (string, error) {
		if nodex.NeedsApproval(in) {
			return "await_approval", nil
		}
		return "auto_approve", nil
	}, map[string]bool{"await_approval": true, "auto_approve": true})
	if err := graph.AddBranch("evaluate", approval); err != nil {
		return nil, fmt.Errorf("add branch evaluate: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("procurement.start"))
	if err != nil {
		return nil, fmt.Errorf("compile procurement start graph: %w", err)
	}
	return runner, nil
}

// compileResumeGraph applies a human decision to a suspended workflow and,
// when approved, carries it through ordering.
func (s *Service) compileResumeGraph(ctx context.Context) (compose.Runnable[nodex.ResolveInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.ResolveInput, nodex.GraphOutput]()
	d := s.deps

	if err := graph.AddLambdaNode("load_approval",
		compose.InvokableLambda(func(ctx context.Context, in nodex.ResolveInput) (*nodex.GraphState, error) {
			return nodex.LoadApproval(ctx, in, d)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_approval: %w", err)
	}
	for _, step := range []struct {
		name string
		fn   stepFunc
	}{
		{"apply_resolution", nodex.ApplyResolution},
		{"place_order", nodex.PlaceOrder},
		{"update_memory", nodex.UpdateMemory},
	} {
		if err := addStep(graph, step.name, d, step.fn); err != nil {
			return nil, err
		}
	}
	if err := addFinish(graph); err != nil {
		return nil, err
	}

	if err := addEdges(graph, [][2]string{
		{compose.START, "load_approval"},
		{"load_approval", "apply_resolution"},
		{"update_memory", "finish"},
		{"finish", compose.END},
	}); err != nil {
		return nil, err
	}
	if err := unlessFailed(graph, "apply_resolution", "place_order"); err != nil {
		return nil, err
	}
	if err := unlessFailed(graph, "place_order", "update_memory"); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("procurement.resume"))
	if err != nil {
		return nil, fmt.Errorf("compile procurement resume graph: %w", err)
	}
	return runner, nil
}
