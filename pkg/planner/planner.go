package planner

import (
	"fmt"
	"strings"

	"github.com/tallyhq/tally/pkg/intent"
	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/session"
	"github.com/tallyhq/tally/pkg/tool"
)

// Planner expands intents into plans. It never invents tools outside the
// registry: each known action maps to a fixed set of registered tools, and
// every emitted call is validated against the tool's schema before it makes
// the plan. Invalid entries are dropped and surfaced, not executed.
type Planner struct {
	registry *tool.Registry
	logger   *logging.Logger
}

// New creates a planner over the given registry. logger may be nil.
func New(registry *tool.Registry, logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{registry: registry, logger: logger}
}

// Build maps an accepted intent to a plan. An unknown or purely
// conversational action yields an empty plan; unknown additionally carries
// a clarifying note.
func (p *Planner) Build(it intent.Intent) *Plan {
	b := &builder{planner: p, plan: &Plan{}, lookups: map[string]string{}}

	switch it.Action {
	case intent.ActionRecordTransaction:
		b.recordTransactions(it.Params)
	case intent.ActionUpdateTransaction:
		b.updateTransaction(it.Params)
	case intent.ActionDeleteTransaction:
		b.deleteTransaction(it.Params)
	case intent.ActionBulkDelete:
		b.bulkDelete(it.Params)
	case intent.ActionQueryTransactions:
		b.queryTransactions(it.Params)
	case intent.ActionListCategories:
		b.simpleCall("list_categories")
	case intent.ActionCreateCategory:
		b.createCategory(it.Params)
	case intent.ActionListPaymentMethods:
		b.simpleCall("list_payment_methods")
	case intent.ActionChat:
		// Conversational reply, nothing to execute.
	default:
		b.plan.Note = "I don't know how to do that with the ledger."
	}

	p.logger.Info(logging.CategoryPlan, "built", it.Action, map[string]any{
		"calls":   len(b.plan.Calls),
		"dropped": len(b.plan.Dropped),
	})
	return b.plan
}

// builder accumulates one plan. lookups dedupes category lookups by
// lowercased name so a batch referencing the same category resolves it once.
type builder struct {
	planner *Planner
	plan    *Plan
	lookups map[string]string
}

func (b *builder) recordTransactions(params map[string]any) {
	items := itemList(params)
	if len(items) == 0 {
		b.drop("create_transaction", "no transaction details extracted")
		return
	}
	for _, item := range items {
		args := map[string]any{}
		amount, ok := num(item, "amount")
		if !ok || amount <= 0 {
			b.drop("create_transaction", "missing or invalid amount")
			continue
		}
		args["amount"] = amount
		copyString(item, args, "direction")
		copyString(item, args, "payment_method")
		copyString(item, args, "note")
		copyString(item, args, "occurred_at")
		if id, ok := num(item, "category_id"); ok {
			args["category_id"] = id
		}

		b.emitWithCategory("create_transaction", args, item, "category_id")
	}
}

func (b *builder) updateTransaction(params map[string]any) {
	id, ok := num(params, "id")
	if !ok {
		b.drop("update_transaction", "no transaction id")
		return
	}
	args := map[string]any{"id": id}
	if amount, ok := num(params, "amount"); ok {
		args["amount"] = amount
	}
	copyString(params, args, "payment_method")
	copyString(params, args, "note")
	if id, ok := num(params, "category_id"); ok {
		args["category_id"] = id
	}

	b.emitWithCategory("update_transaction", args, params, "category_id")
}

func (b *builder) deleteTransaction(params map[string]any) {
	id, ok := num(params, "id")
	if !ok {
		b.drop("delete_transaction", "no transaction id")
		return
	}
	b.emit("delete_transaction", map[string]any{"id": id}, nil, nil)
}

func (b *builder) bulkDelete(params map[string]any) {
	args := map[string]any{}
	copyString(params, args, "direction")
	copyString(params, args, "from")
	copyString(params, args, "to")
	copyString(params, args, "keyword")
	if id, ok := num(params, "category_id"); ok {
		args["category_id"] = id
	}

	_, hasCategory := str(params, "category")
	if len(args) == 0 && !hasCategory {
		b.drop("bulk_delete_transactions", "bulk delete requires a filter")
		return
	}
	b.emitWithCategory("bulk_delete_transactions", args, params, "category_id")
}

func (b *builder) queryTransactions(params map[string]any) {
	args := map[string]any{}
	copyString(params, args, "direction")
	copyString(params, args, "from")
	copyString(params, args, "to")
	copyString(params, args, "keyword")
	copyString(params, args, "payment_method")
	if limit, ok := num(params, "limit"); ok {
		args["limit"] = limit
	}
	if id, ok := num(params, "category_id"); ok {
		args["category_id"] = id
	}
	b.emitWithCategory("query_transactions", args, params, "category_id")
}

func (b *builder) createCategory(params map[string]any) {
	name, ok := str(params, "name")
	if !ok {
		b.drop("create_category", "no category name")
		return
	}
	args := map[string]any{"name": name}
	copyString(params, args, "kind")
	b.emit("create_category", args, nil, nil)
}

func (b *builder) simpleCall(toolName string) {
	b.emit(toolName, map[string]any{}, nil, nil)
}

// emitWithCategory emits a call, resolving a category reference first when
// the source gives a name instead of an id. The lookup precedes its
// dependent in plan order and the id is bound from the lookup's result.
func (b *builder) emitWithCategory(toolName string, args, source map[string]any, bindParam string) {
	if _, bound := args[bindParam]; bound {
		b.emit(toolName, args, nil, nil)
		return
	}
	name, ok := str(source, "category")
	if !ok {
		b.emit(toolName, args, nil, nil)
		return
	}

	lookupID := b.categoryLookup(name)
	b.emit(toolName, args, []string{lookupID}, []Binding{
		{Param: bindParam, FromCall: lookupID, Field: "category_id"},
	})
}

// categoryLookup returns the call ID of the lookup for name, emitting it on
// first use.
func (b *builder) categoryLookup(name string) string {
	key := strings.ToLower(name)
	if id, ok := b.lookups[key]; ok {
		return id
	}
	id := session.NewCallID()
	b.plan.Calls = append(b.plan.Calls, &ToolCall{
		ID:   id,
		Tool: "lookup_category",
		Args: map[string]any{"name": name},
	})
	b.lookups[key] = id
	return id
}

func (b *builder) emit(toolName string, args map[string]any, dependsOn []string, bindings []Binding) {
	t, ok := b.planner.registry.Get(toolName)
	if !ok {
		// Mapping tables only reference registered tools; reaching this
		// is a defect, not user input.
		b.drop(toolName, "tool not registered")
		return
	}
	if err := tool.ValidateParams(t.Parameters(), args); err != nil {
		b.drop(toolName, err.Error())
		return
	}
	b.plan.Calls = append(b.plan.Calls, &ToolCall{
		ID:        session.NewCallID(),
		Tool:      toolName,
		Args:      args,
		DependsOn: dependsOn,
		Bindings:  bindings,
	})
}

func (b *builder) drop(toolName, reason string) {
	b.planner.logger.Warn(logging.CategoryPlan, "entry_dropped",
		fmt.Sprintf("%s: %s", toolName, reason), nil)
	b.plan.Dropped = append(b.plan.Dropped, DroppedCall{Tool: toolName, Reason: reason})
}

// itemList extracts the transaction items, falling back to treating the
// params themselves as a single item.
func itemList(params map[string]any) []map[string]any {
	if raw, ok := params["items"].([]any); ok {
		items := make([]map[string]any, 0, len(raw))
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	}
	if _, ok := params["amount"]; ok {
		return []map[string]any{params}
	}
	return nil
}

func str(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func num(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func copyString(src, dst map[string]any, key string) {
	if s, ok := str(src, key); ok {
		dst[key] = s
	}
}
