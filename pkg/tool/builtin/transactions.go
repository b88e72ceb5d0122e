package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/tallyhq/tally/pkg/ledger"
	"github.com/tallyhq/tally/pkg/risk"
)

// CreateTransactionTool records a single ledger entry.
type CreateTransactionTool struct {
	Client ledger.Client
}

func (t *CreateTransactionTool) Name() string {
	return "create_transaction"
}

func (t *CreateTransactionTool) Description() string {
	return "Record a single expense or income transaction in the ledger"
}

func (t *CreateTransactionTool) RiskTag() risk.Tag {
	return risk.TagAdditive
}

func (t *CreateTransactionTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"amount":         {Type: "number", Description: "Transaction amount, always positive"},
			"direction":      {Type: "string", Description: "expense or income", Enum: []string{"expense", "income"}},
			"category_id":    {Type: "integer", Description: "Ledger category identifier"},
			"payment_method": {Type: "string", Description: "How the transaction was settled"},
			"note":           {Type: "string", Description: "Free-form note"},
			"occurred_at":    {Type: "string", Description: "RFC3339 timestamp, defaults to now"},
		},
		Required: []string{"amount"},
	}
}

func (t *CreateTransactionTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	amount, ok := floatParam(params, "amount")
	if !ok || amount <= 0 {
		return Fail("amount must be a positive number"), nil
	}

	direction, _ := stringParam(params, "direction")
	if direction == "" {
		direction = "expense"
	}

	occurredAt, err := timeParam(params, "occurred_at")
	if err != nil {
		return Fail(err.Error()), nil
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tx := ledger.Transaction{
		Amount:     amount,
		Direction:  direction,
		OccurredAt: occurredAt,
	}
	if id, ok := intParam(params, "category_id"); ok {
		tx.CategoryID = id
	}
	if pm, ok := stringParam(params, "payment_method"); ok {
		tx.PaymentMethod = pm
	}
	if note, ok := stringParam(params, "note"); ok {
		tx.Note = note
	}

	created, err := t.Client.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return Ok(map[string]any{
		"transaction_id": created.ID,
		"amount":         created.Amount,
		"direction":      created.Direction,
		"category":       created.Category,
	}), nil
}

// UpdateTransactionTool modifies fields of an existing entry.
type UpdateTransactionTool struct {
	Client ledger.Client
}

func (t *UpdateTransactionTool) Name() string {
	return "update_transaction"
}

func (t *UpdateTransactionTool) Description() string {
	return "Modify an existing transaction's amount, category, note, or payment method"
}

func (t *UpdateTransactionTool) RiskTag() risk.Tag {
	return risk.TagDestructive
}

func (t *UpdateTransactionTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"id":             {Type: "integer", Description: "Transaction identifier"},
			"amount":         {Type: "number"},
			"category_id":    {Type: "integer"},
			"payment_method": {Type: "string"},
			"note":           {Type: "string"},
		},
		Required: []string{"id"},
	}
}

func (t *UpdateTransactionTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id, ok := intParam(params, "id")
	if !ok {
		return Fail("id is required"), nil
	}

	fields := map[string]any{}
	for _, key := range []string{"amount", "category_id", "payment_method", "note"} {
		if v, present := params[key]; present {
			fields[key] = v
		}
	}
	if len(fields) == 0 {
		return Fail("nothing to update"), nil
	}

	updated, err := t.Client.UpdateTransaction(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	return Ok(map[string]any{
		"transaction_id": updated.ID,
		"amount":         updated.Amount,
	}), nil
}

// DeleteTransactionTool removes a single entry.
type DeleteTransactionTool struct {
	Client ledger.Client
}

func (t *DeleteTransactionTool) Name() string {
	return "delete_transaction"
}

func (t *DeleteTransactionTool) Description() string {
	return "Delete a single transaction by id"
}

func (t *DeleteTransactionTool) RiskTag() risk.Tag {
	return risk.TagDestructive
}

func (t *DeleteTransactionTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"id": {Type: "integer", Description: "Transaction identifier"},
		},
		Required: []string{"id"},
	}
}

func (t *DeleteTransactionTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	id, ok := intParam(params, "id")
	if !ok {
		return Fail("id is required"), nil
	}
	if err := t.Client.DeleteTransaction(ctx, id); err != nil {
		return nil, err
	}
	return Ok(map[string]any{"transaction_id": id, "deleted": true}), nil
}

// BulkDeleteTransactionsTool removes every entry matching a filter.
// Irreversible; tagged critical so no preference can bypass confirmation.
type BulkDeleteTransactionsTool struct {
	Client ledger.Client
}

func (t *BulkDeleteTransactionsTool) Name() string {
	return "bulk_delete_transactions"
}

func (t *BulkDeleteTransactionsTool) Description() string {
	return "Delete all transactions matching a filter. Irreversible."
}

func (t *BulkDeleteTransactionsTool) RiskTag() risk.Tag {
	return risk.TagCritical
}

func (t *BulkDeleteTransactionsTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"category_id": {Type: "integer"},
			"direction":   {Type: "string", Enum: []string{"expense", "income"}},
			"from":        {Type: "string", Description: "RFC3339 lower bound"},
			"to":          {Type: "string", Description: "RFC3339 upper bound"},
			"keyword":     {Type: "string", Description: "Match against transaction notes"},
		},
	}
}

func (t *BulkDeleteTransactionsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	q, err := queryFromParams(params)
	if err != nil {
		return Fail(err.Error()), nil
	}
	if q == (ledger.Query{}) {
		return Fail("refusing to bulk delete without a filter"), nil
	}

	res, err := t.Client.BulkDeleteTransactions(ctx, q)
	if err != nil {
		return nil, err
	}
	return Ok(map[string]any{"deleted": res.Deleted}), nil
}

// QueryTransactionsTool lists entries matching a filter.
type QueryTransactionsTool struct {
	Client ledger.Client
}

func (t *QueryTransactionsTool) Name() string {
	return "query_transactions"
}

func (t *QueryTransactionsTool) Description() string {
	return "List transactions matching optional category, direction, time range, and keyword filters"
}

func (t *QueryTransactionsTool) RiskTag() risk.Tag {
	return risk.TagReadOnly
}

func (t *QueryTransactionsTool) Parameters() ParameterSchema {
	return ParameterSchema{
		Type: "object",
		Properties: map[string]Property{
			"category_id":    {Type: "integer"},
			"direction":      {Type: "string", Enum: []string{"expense", "income"}},
			"payment_method": {Type: "string"},
			"from":           {Type: "string", Description: "RFC3339 lower bound"},
			"to":             {Type: "string", Description: "RFC3339 upper bound"},
			"keyword":        {Type: "string"},
			"limit":          {Type: "integer"},
		},
	}
}

func (t *QueryTransactionsTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	q, err := queryFromParams(params)
	if err != nil {
		return Fail(err.Error()), nil
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	txs, err := t.Client.QueryTransactions(ctx, q)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(txs))
	var total float64
	for _, tx := range txs {
		items = append(items, map[string]any{
			"id":        tx.ID,
			"amount":    tx.Amount,
			"direction": tx.Direction,
			"category":  tx.Category,
			"note":      tx.Note,
			"occurred":  tx.OccurredAt.Format(time.RFC3339),
		})
		total += tx.Amount
	}
	return Ok(map[string]any{
		"transactions": items,
		"count":        len(items),
		"total":        total,
	}), nil
}

func queryFromParams(params map[string]any) (ledger.Query, error) {
	var q ledger.Query
	if id, ok := intParam(params, "category_id"); ok {
		q.CategoryID = id
	}
	if dir, ok := stringParam(params, "direction"); ok {
		if dir != "expense" && dir != "income" {
			return q, fmt.Errorf("direction %q (valid: expense, income)", dir)
		}
		q.Direction = dir
	}
	if pm, ok := stringParam(params, "payment_method"); ok {
		q.PaymentMethod = pm
	}
	from, err := timeParam(params, "from")
	if err != nil {
		return q, err
	}
	q.From = from
	to, err := timeParam(params, "to")
	if err != nil {
		return q, err
	}
	q.To = to
	if kw, ok := stringParam(params, "keyword"); ok {
		q.Keyword = kw
	}
	if limit, ok := intParam(params, "limit"); ok {
		q.Limit = int(limit)
	}
	return q, nil
}
