package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/tallyhq/tally/pkg/ledger"
	"github.com/tallyhq/tally/pkg/risk"
)

// ListCategoriesTool lists the user's ledger categories.
type ListCategoriesTool struct {
	Client ledger.Client
}

func (t *ListCategoriesTool) Name() string {
	return "list_categories"
}

func (t *ListCategoriesTool) Description() string {
	return "List all ledger categories"
}

func (t *ListCategoriesTool) RiskTag() risk.Tag {
	return risk.TagReadOnly
}

func (t *ListCategoriesTool) Parameters() ParameterSchema {
	return ParameterSchema{Type: "object"}
}

func (t *ListCategoriesTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	cats, err := t.Client.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(cats))
	for _, c := range cats {
		items = append(items, map[string]any{"id": c.ID, "name": c.Name, "kind": c.Kind})
	}
	return Ok(map[string]any{"categories": items, "count": len(items)}), nil
}

// LookupCategoryTool resolves a category name to its identifier. The planner
// inserts it ahead of calls whose category could not be bound from context.
type LookupCategoryTool struct {
	Client ledger.Client
}

func (t *LookupCategoryTool) Name() string {
	return "lookup_category"
}

func (t *LookupCategoryTool) Description() string {
	return "Resolve a category name to its ledger identifier"
}

func (t *LookupCategoryTool) RiskTag() risk.Tag {
	return risk.TagReadOnly
}

func (t *LookupCategoryTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"name": {Type: "string", Description: "Category name, matched case-insensitively"},
		},
		Required: []string{"name"},
	}
}

func (t *LookupCategoryTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	name, ok := stringParam(params, "name")
	if !ok {
		return Fail("name is required"), nil
	}

	cats, err := t.Client.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return Ok(map[string]any{"category_id": c.ID, "name": c.Name}), nil
		}
	}
	return Fail(fmt.Sprintf("category %q not found", name)), nil
}

// CreateCategoryTool adds a new ledger category.
type CreateCategoryTool struct {
	Client ledger.Client
}

func (t *CreateCategoryTool) Name() string {
	return "create_category"
}

func (t *CreateCategoryTool) Description() string {
	return "Create a new ledger category"
}

func (t *CreateCategoryTool) RiskTag() risk.Tag {
	return risk.TagAdditive
}

func (t *CreateCategoryTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"name": {Type: "string"},
			"kind": {Type: "string", Enum: []string{"expense", "income"}},
		},
		Required: []string{"name"},
	}
}

func (t *CreateCategoryTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	name, ok := stringParam(params, "name")
	if !ok {
		return Fail("name is required"), nil
	}
	kind, _ := stringParam(params, "kind")
	if kind == "" {
		kind = "expense"
	}

	created, err := t.Client.CreateCategory(ctx, ledger.Category{Name: name, Kind: kind})
	if err != nil {
		return nil, err
	}
	return Ok(map[string]any{"category_id": created.ID, "name": created.Name}), nil
}

// ListPaymentMethodsTool lists the user's payment methods.
type ListPaymentMethodsTool struct {
	Client ledger.Client
}

func (t *ListPaymentMethodsTool) Name() string {
	return "list_payment_methods"
}

func (t *ListPaymentMethodsTool) Description() string {
	return "List all payment methods"
}

func (t *ListPaymentMethodsTool) RiskTag() risk.Tag {
	return risk.TagReadOnly
}

func (t *ListPaymentMethodsTool) Parameters() ParameterSchema {
	return ParameterSchema{Type: "object"}
}

func (t *ListPaymentMethodsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	methods, err := t.Client.ListPaymentMethods(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(methods))
	for _, m := range methods {
		items = append(items, map[string]any{"id": m.ID, "name": m.Name})
	}
	return Ok(map[string]any{"payment_methods": items, "count": len(items)}), nil
}
