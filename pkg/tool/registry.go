package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tallyhq/tally/pkg/ledger"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/session"
	"github.com/tallyhq/tally/pkg/tool/builtin"
)

// Registry manages all available tools and runs them through the
// configured middleware chain.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	middlewares []Middleware
	executor    Executor
}

// NewEmptyRegistry creates a new empty tool registry without any built-in
// tools. Primarily for tests.
func NewEmptyRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	r.rebuildExecutor()
	return r
}

// NewRegistry creates a tool registry with the builtin ledger tools bound
// to the given client.
func NewRegistry(client ledger.Client) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	r.Register(&builtin.CreateTransactionTool{Client: client})
	r.Register(&builtin.UpdateTransactionTool{Client: client})
	r.Register(&builtin.DeleteTransactionTool{Client: client})
	r.Register(&builtin.BulkDeleteTransactionsTool{Client: client})
	r.Register(&builtin.QueryTransactionsTool{Client: client})
	r.Register(&builtin.ListCategoriesTool{Client: client})
	r.Register(&builtin.LookupCategoryTool{Client: client})
	r.Register(&builtin.CreateCategoryTool{Client: client})
	r.Register(&builtin.ListPaymentMethodsTool{Client: client})

	r.rebuildExecutor()
	return r
}

// Register registers a tool
func (r *Registry) Register(t Tool) {
	if r == nil || t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// RiskTag resolves a tool name to its static risk tag. Implements
// risk.TagLookup.
func (r *Registry) RiskTag(name string) (risk.Tag, bool) {
	t, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return t.RiskTag(), true
}

// List returns all registered tools sorted by name
func (r *Registry) List() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Definitions returns wire-friendly descriptions of every tool, for
// inclusion in model prompts.
func (r *Registry) Definitions() []Definition {
	tools := r.List()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Describe(t))
	}
	return defs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Use registers a middleware on the registry.
func (r *Registry) Use(mw Middleware) {
	if r == nil || mw == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
	r.rebuildExecutorLocked()
}

// ExecuteWithContext executes a tool by name using the provided context.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, params map[string]any) (*builtin.Result, error) {
	return r.ExecuteCall(ctx, "", name, params)
}

// ExecuteCall executes a tool with an explicit call ID for correlation.
func (r *Registry) ExecuteCall(ctx context.Context, callID, name string, params map[string]any) (*builtin.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	if callID == "" {
		callID = session.NewCallID()
	}
	if params == nil {
		params = map[string]any{}
	}

	execCtx := &ExecutionContext{
		Context:   ctx,
		ToolName:  name,
		Tool:      t,
		CallID:    callID,
		Params:    params,
		StartTime: time.Now(),
		Attempt:   1,
		Metadata:  make(map[string]any),
	}

	r.mu.RLock()
	exec := r.executor
	r.mu.RUnlock()
	if exec == nil {
		return nil, fmt.Errorf("tool executor not initialized")
	}
	return exec(execCtx)
}

func (r *Registry) rebuildExecutor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildExecutorLocked()
}

func (r *Registry) rebuildExecutorLocked() {
	base := r.baseExecutor()
	r.executor = Chain(r.middlewares...)(base)
}

func (r *Registry) baseExecutor() Executor {
	return func(ctx *ExecutionContext) (*builtin.Result, error) {
		if ctx == nil {
			return nil, fmt.Errorf("execution context required")
		}
		if ctx.Context != nil {
			if err := ctx.Context.Err(); err != nil {
				return nil, err
			}
		}
		t := ctx.Tool
		if t == nil {
			var ok bool
			t, ok = r.Get(ctx.ToolName)
			if !ok {
				return nil, fmt.Errorf("tool not found: %s", ctx.ToolName)
			}
			ctx.Tool = t
		}

		execCtx := ctx.Context
		if execCtx == nil {
			execCtx = context.Background()
		}
		return t.Execute(execCtx, ctx.Params)
	}
}
