package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/model"
	"github.com/tallyhq/tally/pkg/preferences"
	"github.com/tallyhq/tally/pkg/telemetry"
)

// Rewriter turns raw user text into a Decision via one language model call.
type Rewriter struct {
	client model.Completer
	logger *logging.Logger
}

// Input is everything the rewriter knows about the message.
type Input struct {
	Text           string
	History        []model.Message
	RuntimeContext map[string]any
}

// NewRewriter creates a rewriter. logger may be nil.
func NewRewriter(client model.Completer, logger *logging.Logger) *Rewriter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Rewriter{client: client, logger: logger}
}

// rewriteResponse is the JSON contract the model is asked to follow.
type rewriteResponse struct {
	Action             string         `json:"action"`
	Params             map[string]any `json:"params"`
	Confidence         float64        `json:"confidence"`
	Ambiguous          []string       `json:"ambiguous"`
	ClarifyingQuestion string         `json:"clarifying_question"`
}

// Rewrite asks the model for a normalized intent and branches on the
// configured thresholds. A failed model call yields the unknown-intent
// sentinel and the clarify branch; it never silently proceeds to planning.
func (r *Rewriter) Rewrite(ctx context.Context, in Input, th preferences.Thresholds) *Decision {
	resp, err := r.client.Complete(ctx, model.ChatRequest{
		Messages:       r.buildMessages(in),
		Temperature:    0.1,
		MaxTokens:      1024,
		ResponseFormat: &model.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		telemetry.RecordModelCall("intent", "error")
		r.logger.Error(logging.CategoryIntent, "rewrite_failed", err.Error(), nil)
		return r.decide(Unknown(), "", th)
	}
	telemetry.RecordModelCall("intent", "ok")

	var parsed rewriteResponse
	if err := model.DecodeJSON(resp.Text(), &parsed); err != nil {
		r.logger.Error(logging.CategoryIntent, "rewrite_undecodable", err.Error(), map[string]any{
			"raw": resp.Text(),
		})
		return r.decide(Unknown(), "", th)
	}

	it := Intent{
		Action:     strings.TrimSpace(parsed.Action),
		Params:     parsed.Params,
		Confidence: clamp01(parsed.Confidence),
		Ambiguous:  parsed.Ambiguous,
	}
	if !isKnownAction(it.Action) {
		r.logger.Warn(logging.CategoryIntent, "unknown_action", it.Action, nil)
		it = Intent{Action: ActionUnknown, Confidence: 0, Ambiguous: parsed.Ambiguous}
	}

	return r.decide(it, parsed.ClarifyingQuestion, th)
}

func (r *Rewriter) decide(it Intent, question string, th preferences.Thresholds) *Decision {
	d := &Decision{Intent: it}
	switch {
	case it.Confidence >= th.IntentHigh:
		d.Outcome = OutcomeAccept
	case it.Confidence >= th.IntentLow:
		d.Outcome = OutcomeAcceptWithCaveat
	default:
		d.Outcome = OutcomeClarify
		d.ClarifyingQuestion = question
		if d.ClarifyingQuestion == "" {
			d.ClarifyingQuestion = clarifyingQuestion(it)
		}
	}

	r.logger.Info(logging.CategoryIntent, "decision", d.Outcome.String(), map[string]any{
		"action":     it.Action,
		"confidence": it.Confidence,
		"ambiguous":  it.Ambiguous,
	})
	return d
}

const systemPrompt = `You are the intent parser for a personal bookkeeping assistant.
Normalize the user's message into exactly one JSON object:
{"action": "<action>", "params": {...}, "confidence": <0..1>, "ambiguous": ["<param>", ...], "clarifying_question": "<question or empty>"}

Actions:
- record_transaction: record one or more expense/income entries. params: items (array of {amount, direction, category, payment_method, note, occurred_at}).
- update_transaction: modify an entry. params: id plus changed fields.
- delete_transaction: delete one entry. params: id.
- bulk_delete_transactions: delete all entries matching a filter. params: category, direction, from, to, keyword.
- query_transactions: list or summarize entries. params: category, direction, from, to, keyword, limit.
- list_categories, create_category (params: name, kind), list_payment_methods.
- chat: conversational reply, nothing to execute.
- unknown: you cannot tell what the user wants.

Rules:
- confidence reflects how sure you are of BOTH the action and its params.
- list every parameter you had to guess in "ambiguous".
- amounts are positive numbers; dates are RFC3339.
- respond with the JSON object only.`

func (r *Rewriter) buildMessages(in Input) []model.Message {
	msgs := make([]model.Message, 0, len(in.History)+3)
	msgs = append(msgs, model.Message{Role: "system", Content: systemPrompt})

	if len(in.RuntimeContext) > 0 {
		if ctxJSON, err := json.Marshal(in.RuntimeContext); err == nil {
			msgs = append(msgs, model.Message{
				Role:    "system",
				Content: fmt.Sprintf("Runtime context: %s", ctxJSON),
			})
		}
	}

	msgs = append(msgs, in.History...)
	msgs = append(msgs, model.Message{Role: "user", Content: in.Text})
	return msgs
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
