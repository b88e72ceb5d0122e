package agent

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/tool"
)

// Executor runs a plan's calls. Independent calls run concurrently; a call
// waits for every declared dependency and is skipped when one fails.
// Results come back merged in plan order so presentation is deterministic
// regardless of completion order.
type Executor struct {
	registry *tool.Registry
	logger   *logging.Logger
}

// NewExecutor creates an executor over the registry. logger may be nil.
func NewExecutor(registry *tool.Registry, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Run executes every call in the plan not already settled in pre.
// pre carries results of calls that ran ahead during a confirmation wait;
// those calls are not re-executed. Cancelling ctx stops further dispatch
// but never interrupts an already-dispatched mutating call.
func (e *Executor) Run(ctx context.Context, plan *planner.Plan, pre map[string]planner.CallResult) []planner.CallResult {
	n := len(plan.Calls)
	if n == 0 {
		return nil
	}

	var mu sync.Mutex
	results := make(map[string]planner.CallResult, n)
	done := make(map[string]chan struct{}, n)
	for _, call := range plan.Calls {
		done[call.ID] = make(chan struct{})
	}
	for id, res := range pre {
		if _, ok := done[id]; !ok {
			continue
		}
		results[id] = res
		close(done[id])
	}

	record := func(res planner.CallResult) {
		mu.Lock()
		results[res.CallID] = res
		mu.Unlock()
		close(done[res.CallID])
	}
	settled := func(id string) (planner.CallResult, bool) {
		mu.Lock()
		defer mu.Unlock()
		res, ok := results[id]
		return res, ok
	}

	g := new(errgroup.Group)
	for _, call := range plan.Calls {
		if _, ran := pre[call.ID]; ran {
			continue
		}
		call := call
		g.Go(func() error {
			record(e.runCall(ctx, call, done, settled))
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]planner.CallResult, 0, n)
	for _, call := range plan.Calls {
		if res, ok := results[call.ID]; ok {
			merged = append(merged, res)
		}
	}
	return merged
}

func (e *Executor) runCall(ctx context.Context, call *planner.ToolCall, done map[string]chan struct{}, settled func(string) (planner.CallResult, bool)) planner.CallResult {
	for _, depID := range call.DependsOn {
		ch, ok := done[depID]
		if !ok {
			return skipped(call, fmt.Sprintf("dependency %s not in plan", depID))
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return skipped(call, "turn cancelled")
		}
		dep, ok := settled(depID)
		if !ok || !dep.Success {
			return skipped(call, fmt.Sprintf("dependency %s did not succeed", depID))
		}
	}

	if ctx.Err() != nil {
		return skipped(call, "turn cancelled")
	}

	args := make(map[string]any, len(call.Args)+len(call.Bindings))
	for k, v := range call.Args {
		args[k] = v
	}
	for _, binding := range call.Bindings {
		dep, _ := settled(binding.FromCall)
		value, ok := dep.Data[binding.Field]
		if !ok {
			return failed(call, fmt.Sprintf("dependency result has no %q field", binding.Field))
		}
		args[binding.Param] = value
	}

	execCtx := ctx
	if tag, ok := e.registry.RiskTag(call.Tool); ok && tag != risk.TagReadOnly {
		// A dispatched mutating call runs to completion; there is no
		// rollback for partial external side effects.
		execCtx = context.WithoutCancel(ctx)
	}

	res, err := e.registry.ExecuteCall(execCtx, call.ID, call.Tool, args)
	switch {
	case err != nil:
		e.logger.Error(logging.CategoryTool, "call_failed", call.Tool, map[string]any{
			"call_id": call.ID,
			"error":   err.Error(),
		})
		return failed(call, err.Error())
	case res == nil:
		return failed(call, "tool returned no result")
	case !res.Success:
		return planner.CallResult{CallID: call.ID, Tool: call.Tool, Error: res.Error}
	default:
		return planner.CallResult{CallID: call.ID, Tool: call.Tool, Success: true, Data: res.Data}
	}
}

func skipped(call *planner.ToolCall, reason string) planner.CallResult {
	return planner.CallResult{CallID: call.ID, Tool: call.Tool, Skipped: true, Error: reason}
}

func failed(call *planner.ToolCall, reason string) planner.CallResult {
	return planner.CallResult{CallID: call.ID, Tool: call.Tool, Error: reason}
}
