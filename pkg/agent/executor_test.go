package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/tool"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// scriptedTool records executions and returns a scripted result.
type scriptedTool struct {
	name string
	tag  risk.Tag

	mu     sync.Mutex
	calls  []map[string]any
	result *builtin.Result
	err    error
	block  chan struct{} // when set, Execute waits for it
}

func (s *scriptedTool) Name() string        { return s.name }
func (s *scriptedTool) Description() string { return s.name }
func (s *scriptedTool) RiskTag() risk.Tag   { return s.tag }

func (s *scriptedTool) Parameters() builtin.ParameterSchema {
	return builtin.ParameterSchema{Type: "object"}
}

func (s *scriptedTool) Execute(ctx context.Context, params map[string]any) (*builtin.Result, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, params)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return builtin.Ok(map[string]any{"tool": s.name}), nil
}

func (s *scriptedTool) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func registryWith(tools ...*scriptedTool) *tool.Registry {
	r := tool.NewEmptyRegistry()
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func TestExecutorRunsIndependentCalls(t *testing.T) {
	a := &scriptedTool{name: "a", tag: risk.TagReadOnly}
	b := &scriptedTool{name: "b", tag: risk.TagReadOnly}
	e := NewExecutor(registryWith(a, b), nil)

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "a", Args: map[string]any{}},
		{ID: "c2", Tool: "b", Args: map[string]any{}},
	}}

	results := e.Run(context.Background(), plan, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID, "results merge in plan order")
	assert.Equal(t, "c2", results[1].CallID)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestExecutorBindsDependencyResults(t *testing.T) {
	lookup := &scriptedTool{
		name:   "lookup",
		tag:    risk.TagReadOnly,
		result: builtin.Ok(map[string]any{"category_id": int64(3)}),
	}
	create := &scriptedTool{name: "create", tag: risk.TagAdditive}
	e := NewExecutor(registryWith(lookup, create), nil)

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "lookup", Args: map[string]any{"name": "food"}},
		{
			ID: "c2", Tool: "create", Args: map[string]any{"amount": 35.0},
			DependsOn: []string{"c1"},
			Bindings:  []planner.Binding{{Param: "category_id", FromCall: "c1", Field: "category_id"}},
		},
	}}

	results := e.Run(context.Background(), plan, nil)
	require.Len(t, results, 2)
	assert.True(t, results[1].Success)
	require.Len(t, create.calls, 1)
	assert.Equal(t, int64(3), create.calls[0]["category_id"])
	assert.Equal(t, 35.0, create.calls[0]["amount"])
}

func TestExecutorSkipsDependentsOfFailures(t *testing.T) {
	lookup := &scriptedTool{
		name:   "lookup",
		tag:    risk.TagReadOnly,
		result: builtin.Fail("category not found"),
	}
	create := &scriptedTool{name: "create", tag: risk.TagAdditive}
	other := &scriptedTool{name: "other", tag: risk.TagAdditive}
	e := NewExecutor(registryWith(lookup, create, other), nil)

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "lookup", Args: map[string]any{}},
		{ID: "c2", Tool: "create", Args: map[string]any{}, DependsOn: []string{"c1"}},
		{ID: "c3", Tool: "other", Args: map[string]any{}},
	}}

	results := e.Run(context.Background(), plan, nil)
	require.Len(t, results, 3)

	assert.True(t, results[0].Failed())
	assert.True(t, results[1].Skipped, "dependent of a failed call is skipped")
	assert.Zero(t, create.callCount())
	assert.True(t, results[2].Success, "independent call still runs")
}

func TestExecutorReusesPreResults(t *testing.T) {
	query := &scriptedTool{name: "query", tag: risk.TagReadOnly}
	create := &scriptedTool{name: "create", tag: risk.TagAdditive}
	e := NewExecutor(registryWith(query, create), nil)

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "query", Args: map[string]any{}},
		{ID: "c2", Tool: "create", Args: map[string]any{}},
	}}
	pre := map[string]planner.CallResult{
		"c1": {CallID: "c1", Tool: "query", Success: true, Data: map[string]any{"cached": true}},
	}

	results := e.Run(context.Background(), plan, pre)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].Data["cached"], "pre-run result is reused, not re-executed")
	assert.Zero(t, query.callCount())
	assert.Equal(t, 1, create.callCount())
}

func TestExecutorMissingBindingFieldFails(t *testing.T) {
	lookup := &scriptedTool{
		name:   "lookup",
		tag:    risk.TagReadOnly,
		result: builtin.Ok(map[string]any{"something_else": 1}),
	}
	create := &scriptedTool{name: "create", tag: risk.TagAdditive}
	e := NewExecutor(registryWith(lookup, create), nil)

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "lookup", Args: map[string]any{}},
		{
			ID: "c2", Tool: "create", Args: map[string]any{},
			DependsOn: []string{"c1"},
			Bindings:  []planner.Binding{{Param: "category_id", FromCall: "c1", Field: "category_id"}},
		},
	}}

	results := e.Run(context.Background(), plan, nil)
	require.Len(t, results, 2)
	assert.True(t, results[1].Failed())
	assert.Zero(t, create.callCount())
}

func TestExecutorCancelledContextSkipsPending(t *testing.T) {
	a := &scriptedTool{name: "a", tag: risk.TagReadOnly}
	e := NewExecutor(registryWith(a), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &planner.Plan{Calls: []*planner.ToolCall{
		{ID: "c1", Tool: "a", Args: map[string]any{}},
	}}

	results := e.Run(ctx, plan, nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Zero(t, a.callCount())
}

func TestExecutorEmptyPlan(t *testing.T) {
	e := NewExecutor(tool.NewEmptyRegistry(), nil)
	assert.Nil(t, e.Run(context.Background(), &planner.Plan{}, nil))
}
