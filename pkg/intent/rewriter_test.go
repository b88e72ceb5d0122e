package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/model"
	"github.com/tallyhq/tally/pkg/preferences"
)

// fakeCompleter returns a canned response or error.
type fakeCompleter struct {
	content string
	err     error
	lastReq model.ChatRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.ChatResponse{
		Choices: []model.Choice{{Message: model.Message{Role: "assistant", Content: f.content}}},
	}, nil
}

func thresholds() preferences.Thresholds {
	return preferences.Defaults().Thresholds
}

func TestRewriteHighConfidenceAccepts(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "record_transaction",
		"params": {"items": [{"amount": 35, "category": "food"}]},
		"confidence": 0.85,
		"ambiguous": []
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "lunch 35"}, thresholds())
	require.NotNil(t, d)
	assert.Equal(t, OutcomeAccept, d.Outcome)
	assert.Equal(t, ActionRecordTransaction, d.Intent.Action)
	assert.InDelta(t, 0.85, d.Intent.Confidence, 1e-9)
	assert.False(t, d.Caveat())
	assert.Empty(t, d.ClarifyingQuestion)
}

func TestRewriteMidConfidenceCaveat(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "record_transaction",
		"params": {"items": [{"amount": 35}]},
		"confidence": 0.55,
		"ambiguous": ["category"]
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "spent 35 on stuff"}, thresholds())
	assert.Equal(t, OutcomeAcceptWithCaveat, d.Outcome)
	assert.True(t, d.Caveat())
	assert.Empty(t, d.ClarifyingQuestion, "caveat branch still plans, no question yet")
}

func TestRewriteLowConfidenceClarifies(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "record_transaction",
		"params": {},
		"confidence": 0.2,
		"ambiguous": ["amount", "category"]
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "记一下"}, thresholds())
	assert.Equal(t, OutcomeClarify, d.Outcome)
	assert.Contains(t, d.ClarifyingQuestion, "amount")
	assert.Contains(t, d.ClarifyingQuestion, "category")
}

func TestRewriteUsesModelQuestion(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "unknown",
		"confidence": 0.1,
		"ambiguous": [],
		"clarifying_question": "How much did you spend?"
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "uh"}, thresholds())
	assert.Equal(t, OutcomeClarify, d.Outcome)
	assert.Equal(t, "How much did you spend?", d.ClarifyingQuestion)
}

func TestRewriteModelFailureForcesClarify(t *testing.T) {
	fc := &fakeCompleter{err: errors.New(errors.ErrCodeLMUnavailable, "down")}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "lunch 35"}, thresholds())
	require.NotNil(t, d)
	assert.Equal(t, OutcomeClarify, d.Outcome)
	assert.Equal(t, ActionUnknown, d.Intent.Action)
	assert.Zero(t, d.Intent.Confidence)
	assert.NotEmpty(t, d.ClarifyingQuestion)
}

func TestRewriteUndecodableOutputForcesClarify(t *testing.T) {
	fc := &fakeCompleter{content: "sure, recorded!"}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "lunch 35"}, thresholds())
	assert.Equal(t, OutcomeClarify, d.Outcome)
	assert.Equal(t, ActionUnknown, d.Intent.Action)
}

func TestRewriteUnknownActionDemoted(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "transfer_funds",
		"confidence": 0.9
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "wire 500 to bob"}, thresholds())
	assert.Equal(t, OutcomeClarify, d.Outcome)
	assert.Equal(t, ActionUnknown, d.Intent.Action)
	assert.Zero(t, d.Intent.Confidence)
}

func TestRewriteConfidenceClamped(t *testing.T) {
	fc := &fakeCompleter{content: `{
		"action": "list_categories",
		"confidence": 7.5
	}`}
	r := NewRewriter(fc, nil)

	d := r.Rewrite(context.Background(), Input{Text: "what categories do I have"}, thresholds())
	assert.Equal(t, OutcomeAccept, d.Outcome)
	assert.Equal(t, 1.0, d.Intent.Confidence)
}

func TestRewritePromptIncludesHistoryAndContext(t *testing.T) {
	fc := &fakeCompleter{content: `{"action": "chat", "confidence": 0.9}`}
	r := NewRewriter(fc, nil)

	r.Rewrite(context.Background(), Input{
		Text: "and yesterday?",
		History: []model.Message{
			{Role: "user", Content: "how much did I spend today"},
			{Role: "assistant", Content: "120 total"},
		},
		RuntimeContext: map[string]any{"today": "2026-08-31"},
	}, thresholds())

	msgs := fc.lastReq.Messages
	require.GreaterOrEqual(t, len(msgs), 5)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "2026-08-31")
	assert.Equal(t, "and yesterday?", msgs[len(msgs)-1].Content)
}
