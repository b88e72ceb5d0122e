package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/intent"
	"github.com/tallyhq/tally/pkg/ledger"
	"github.com/tallyhq/tally/pkg/tool"
)

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	// The builtins never execute during planning, so a nil client is fine.
	var client ledger.Client
	return New(tool.NewRegistry(client), nil)
}

func TestBuildRecordSingle(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{
			"items": []any{
				map[string]any{"amount": 35.0, "category_id": 3.0, "note": "lunch"},
			},
		},
	})

	require.Len(t, plan.Calls, 1)
	call := plan.Calls[0]
	assert.Equal(t, "create_transaction", call.Tool)
	assert.Equal(t, 35.0, call.Args["amount"])
	assert.Equal(t, 3.0, call.Args["category_id"])
	assert.Empty(t, call.DependsOn)
	assert.Empty(t, plan.Dropped)
}

func TestBuildRecordFlatParams(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{"amount": 12.5, "note": "coffee"},
	})

	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "create_transaction", plan.Calls[0].Tool)
}

func TestBuildInsertsCategoryLookup(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{
			"items": []any{
				map[string]any{"amount": 35.0, "category": "food"},
			},
		},
	})

	require.Len(t, plan.Calls, 2)
	lookup, create := plan.Calls[0], plan.Calls[1]

	assert.Equal(t, "lookup_category", lookup.Tool)
	assert.Equal(t, "food", lookup.Args["name"])

	assert.Equal(t, "create_transaction", create.Tool)
	assert.Equal(t, []string{lookup.ID}, create.DependsOn)
	require.Len(t, create.Bindings, 1)
	assert.Equal(t, Binding{Param: "category_id", FromCall: lookup.ID, Field: "category_id"}, create.Bindings[0])
}

func TestBuildSharesLookupAcrossBatch(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{
			"items": []any{
				map[string]any{"amount": 10.0, "category": "Food"},
				map[string]any{"amount": 20.0, "category": "food"},
				map[string]any{"amount": 30.0, "category": "transport"},
			},
		},
	})

	lookups := 0
	for _, c := range plan.Calls {
		if c.Tool == "lookup_category" {
			lookups++
		}
	}
	assert.Equal(t, 2, lookups, "same category name resolves once")
	assert.Len(t, plan.Calls, 5)
}

func TestBuildDropsInvalidItems(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{
			"items": []any{
				map[string]any{"amount": 35.0},
				map[string]any{"note": "no amount"},
				map[string]any{"amount": -5.0},
			},
		},
	})

	assert.Len(t, plan.Calls, 1)
	require.Len(t, plan.Dropped, 2)
	assert.Equal(t, "create_transaction", plan.Dropped[0].Tool)
}

func TestBuildDropsSchemaViolations(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionQueryTransactions,
		Params: map[string]any{"direction": "sideways"},
	})

	assert.True(t, plan.Empty())
	require.Len(t, plan.Dropped, 1)
	assert.Contains(t, plan.Dropped[0].Reason, "direction")
}

func TestBuildUpdateAndDelete(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{
		Action: intent.ActionUpdateTransaction,
		Params: map[string]any{"id": 7.0, "amount": 20.0},
	})
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "update_transaction", plan.Calls[0].Tool)

	plan = p.Build(intent.Intent{
		Action: intent.ActionDeleteTransaction,
		Params: map[string]any{"id": 7.0},
	})
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "delete_transaction", plan.Calls[0].Tool)

	plan = p.Build(intent.Intent{Action: intent.ActionDeleteTransaction})
	assert.True(t, plan.Empty())
	assert.Len(t, plan.Dropped, 1)
}

func TestBuildBulkDeleteRequiresFilter(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{Action: intent.ActionBulkDelete})
	assert.True(t, plan.Empty())
	require.Len(t, plan.Dropped, 1)

	plan = p.Build(intent.Intent{
		Action: intent.ActionBulkDelete,
		Params: map[string]any{"category": "test"},
	})
	require.Len(t, plan.Calls, 2)
	assert.Equal(t, "lookup_category", plan.Calls[0].Tool)
	assert.Equal(t, "bulk_delete_transactions", plan.Calls[1].Tool)
}

func TestBuildConversationalAndUnknown(t *testing.T) {
	p := newPlanner(t)

	plan := p.Build(intent.Intent{Action: intent.ActionChat})
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Note)

	plan = p.Build(intent.Intent{Action: intent.ActionUnknown})
	assert.True(t, plan.Empty())
	assert.NotEmpty(t, plan.Note)
}

func TestBuildSimpleReads(t *testing.T) {
	p := newPlanner(t)

	for action, toolName := range map[string]string{
		intent.ActionListCategories:     "list_categories",
		intent.ActionListPaymentMethods: "list_payment_methods",
	} {
		plan := p.Build(intent.Intent{Action: action})
		require.Len(t, plan.Calls, 1, action)
		assert.Equal(t, toolName, plan.Calls[0].Tool)
	}
}

func TestMutatingCount(t *testing.T) {
	p := newPlanner(t)
	reg := tool.NewRegistry(nil)

	plan := p.Build(intent.Intent{
		Action: intent.ActionRecordTransaction,
		Params: map[string]any{
			"items": []any{
				map[string]any{"amount": 1.0, "category": "food"},
				map[string]any{"amount": 2.0, "category": "food"},
			},
		},
	})

	// One shared lookup plus two creates; only the creates mutate.
	assert.Equal(t, 2, plan.MutatingCount(reg))
}
