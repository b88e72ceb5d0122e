package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tallyhq/tally/pkg/approval"
	"github.com/tallyhq/tally/pkg/bus"
	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/intent"
	"github.com/tallyhq/tally/pkg/logging"
	"github.com/tallyhq/tally/pkg/model"
	"github.com/tallyhq/tally/pkg/planner"
	"github.com/tallyhq/tally/pkg/preferences"
	"github.com/tallyhq/tally/pkg/reflection"
	"github.com/tallyhq/tally/pkg/risk"
	"github.com/tallyhq/tally/pkg/session"
	"github.com/tallyhq/tally/pkg/telemetry"
	"github.com/tallyhq/tally/pkg/tool"
)

const historyWindow = 12

// Deps bundles the collaborators a controller needs.
type Deps struct {
	Model          model.Completer
	Registry       *tool.Registry
	Prefs          preferences.Store
	Bus            bus.MessageBus
	Logger         *logging.Logger
	ConfirmTimeout time.Duration // zero disables the confirmation deadline
}

// Controller drives one conversation. At most one turn is non-terminal at
// a time: a new message cancels the in-flight turn before starting its own.
// Methods are safe for concurrent use.
type Controller struct {
	conversationID string
	userID         string

	rewriter   *intent.Rewriter
	planner    *planner.Planner
	classifier *risk.Classifier
	gate       *approval.Gate
	executor   *Executor
	reflector  *reflection.Reflector
	registry   *tool.Registry
	prefsStore preferences.Store
	bus        bus.MessageBus
	logger     *logging.Logger

	confirmTimeout time.Duration

	mu      sync.Mutex
	history []model.Message
	active  *activeTurn
}

// activeTurn is the per-turn state the controller tracks while a turn is
// non-terminal. Discarded at completion.
type activeTurn struct {
	turn   *Turn
	ctx    context.Context
	cancel context.CancelFunc
	prefs  preferences.Preferences

	readAhead     map[string]planner.CallResult
	readAheadDone chan struct{}
	deadlineTimer *time.Timer
	resolving     bool
}

// NewController creates the controller for one conversation.
func NewController(conversationID, userID string, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	b := deps.Bus
	if b == nil {
		b = bus.NewMemoryBus()
	}
	store := deps.Prefs
	if store == nil {
		store = preferences.NewMemoryStore()
	}

	return &Controller{
		conversationID: conversationID,
		userID:         userID,
		rewriter:       intent.NewRewriter(deps.Model, logger),
		planner:        planner.New(deps.Registry, logger),
		classifier:     risk.NewClassifier(deps.Registry),
		gate:           approval.NewGate(logger, deps.ConfirmTimeout),
		executor:       NewExecutor(deps.Registry, logger),
		reflector:      reflection.New(logger),
		registry:       deps.Registry,
		prefsStore:     store,
		bus:            b,
		logger:         logger,
		confirmTimeout: deps.ConfirmTimeout,
	}
}

// ConversationID returns the conversation this controller drives.
func (c *Controller) ConversationID() string {
	return c.conversationID
}

// HandleMessage runs one user message through the state machine. It returns
// when the turn reaches a terminal state or suspends at
// AwaitingConfirmation; a suspended turn is later driven by Resolve. Any
// in-flight turn is cancelled first.
func (c *Controller) HandleMessage(ctx context.Context, text string) (turn *Turn, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty message")
	}

	c.mu.Lock()
	if c.active != nil && !c.active.turn.Done() {
		c.abortLocked(c.active, "superseded by a new message")
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	turn = &Turn{
		ID:             session.NewTurnID(),
		ConversationID: c.conversationID,
		Input:          text,
		StartedAt:      time.Now(),
	}
	active := &activeTurn{turn: turn, ctx: turnCtx, cancel: cancel}
	c.active = active
	history := append([]model.Message(nil), c.history...)
	c.mu.Unlock()

	defer c.recoverTurn(active)

	telemetry.RecordTurnStarted()
	c.logger.SetTurnID(turn.ID)
	c.logger.Info(logging.CategoryTurn, "started", text, nil)

	prefs := c.loadPrefs(turnCtx)
	c.mu.Lock()
	active.prefs = prefs
	c.mu.Unlock()

	// Parsing
	c.transition(turn, StateParsing, nil)
	decision := c.rewriter.Rewrite(turnCtx, intent.Input{
		Text:    text,
		History: history,
		RuntimeContext: map[string]any{
			"today":           time.Now().Format("2006-01-02"),
			"conversation_id": c.conversationID,
		},
	}, prefs.Thresholds)
	turn.Decision = decision

	if aborted := c.bailIfCancelled(active); aborted {
		return turn, nil
	}
	if decision.Outcome == intent.OutcomeClarify {
		turn.Response = &Response{Text: decision.ClarifyingQuestion}
		c.complete(active, "clarify")
		return turn, nil
	}

	// Planning
	c.transition(turn, StatePlanning, nil)
	plan := c.planner.Build(decision.Intent)
	batch := plan.MutatingCount(c.registry)
	for _, call := range plan.Calls {
		call.Risk = c.classifier.Classify(call.Tool, call.Args, batch, prefs)
	}
	turn.Plan = plan

	if plan.Empty() {
		c.reflectAndComplete(active, nil)
		return turn, nil
	}

	// Confirmation gating
	if req := c.gate.Evaluate(c.conversationID, turn.ID, plan, prefs); req != nil {
		turn.Confirmation = req
		c.transition(turn, StateAwaitingConfirmation, map[string]any{
			"confirmation_id": req.ID,
			"gated_calls":     len(req.Items),
		})
		c.publishConfirmation(turn)
		c.startReadAhead(active, req)
		c.armDeadline(active, req)
		return turn, nil
	}

	// Executing
	c.transition(turn, StateExecuting, nil)
	results := c.executor.Run(turnCtx, plan, nil)
	turn.Results = results

	if aborted := c.bailIfCancelled(active); aborted {
		return turn, nil
	}
	c.reflectAndComplete(active, results)
	return turn, nil
}

// Resolve applies the host's decision to the pending confirmation. The
// confirmation ID must match the suspended turn's request.
func (c *Controller) Resolve(confirmationID string, decision approval.Decision) (*Turn, error) {
	c.mu.Lock()
	active := c.active
	if active == nil || active.resolving || active.turn.Confirmation == nil ||
		active.turn.Confirmation.ID != confirmationID ||
		active.turn.State() != StateAwaitingConfirmation {
		c.mu.Unlock()
		return nil, errors.New(errors.ErrCodeConfirmationUnknown,
			fmt.Sprintf("no pending confirmation %s", confirmationID))
	}
	active.resolving = true
	if active.deadlineTimer != nil {
		active.deadlineTimer.Stop()
	}
	prefs := active.prefs
	c.mu.Unlock()

	defer c.recoverTurn(active)
	turn := active.turn
	telemetry.RecordConfirmation(string(decision.Resolution))
	c.logger.Info(logging.CategoryApproval, "resolved", string(decision.Resolution), map[string]any{
		"confirmation_id": confirmationID,
	})

	if !decision.Approves() {
		reason := "aborted by user"
		if decision.Resolution == approval.ResolutionTimeout {
			reason = "confirmation timed out"
		}
		if decision.Reason != "" {
			reason = fmt.Sprintf("%s: %s", reason, decision.Reason)
		}
		// Read-ahead results are discarded with the plan.
		active.cancel()
		turn.Response = &Response{
			Text:        "Okay, I won't do that. Nothing was performed.",
			Aborted:     true,
			AbortReason: reason,
		}
		c.complete(active, "aborted")
		return turn, nil
	}

	if decision.Resolution == approval.ResolutionAlwaysAllow {
		toolName := decision.ToolName
		if updated, changed := approval.ApplyAlwaysAllow(prefs, toolName, c.registry); changed {
			prefs = updated
			c.mu.Lock()
			active.prefs = updated
			c.mu.Unlock()
			if err := c.prefsStore.Save(context.Background(), c.userID, updated); err != nil {
				c.logger.Warn(logging.CategoryApproval, "prefs_save_failed", err.Error(), nil)
			}
		}
	}

	c.transition(turn, StateExecuting, nil)
	pre := c.waitReadAhead(active)
	results := c.executor.Run(active.ctx, turn.Plan, pre)
	turn.Results = results

	if aborted := c.bailIfCancelled(active); aborted {
		return turn, nil
	}
	c.reflectAndComplete(active, results)
	return turn, nil
}

// Cancel aborts the in-flight turn, if any. Already-dispatched mutating
// calls run to completion; only further dispatch and the final response
// are suppressed.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && !c.active.turn.Done() {
		c.abortLocked(c.active, "cancelled")
	}
}

// Preferences returns the preferences snapshot of the in-flight turn, or
// the stored preferences when idle.
func (c *Controller) Preferences(ctx context.Context) preferences.Preferences {
	c.mu.Lock()
	if c.active != nil && !c.active.turn.Done() {
		prefs := c.active.prefs
		c.mu.Unlock()
		return prefs
	}
	c.mu.Unlock()
	return c.loadPrefs(ctx)
}

func (c *Controller) loadPrefs(ctx context.Context) preferences.Preferences {
	prefs, err := c.prefsStore.Load(ctx, c.userID)
	if err != nil {
		c.logger.Warn(logging.CategoryTurn, "prefs_load_failed", err.Error(), nil)
		return preferences.Defaults()
	}
	return preferences.Resolve(prefs)
}

// startReadAhead runs the read-only, non-gated calls of the plan while the
// turn waits for confirmation. Mutating calls never run ahead. Results are
// kept aside and merged on approval, or discarded on rejection.
func (c *Controller) startReadAhead(active *activeTurn, req *approval.Request) {
	plan := active.turn.Plan
	eligible := make(map[string]bool, len(plan.Calls))
	var ahead []*planner.ToolCall
	for _, call := range plan.Calls {
		if req.Covers(call.ID) {
			continue
		}
		tag, ok := c.registry.RiskTag(call.Tool)
		if !ok || tag != risk.TagReadOnly {
			continue
		}
		depsEligible := true
		for _, dep := range call.DependsOn {
			if !eligible[dep] {
				depsEligible = false
				break
			}
		}
		if !depsEligible {
			continue
		}
		eligible[call.ID] = true
		ahead = append(ahead, call)
	}

	done := make(chan struct{})
	c.mu.Lock()
	active.readAheadDone = done
	c.mu.Unlock()

	if len(ahead) == 0 {
		close(done)
		return
	}

	go func() {
		defer close(done)
		results := c.executor.Run(active.ctx, &planner.Plan{Calls: ahead}, nil)
		byID := make(map[string]planner.CallResult, len(results))
		for _, res := range results {
			byID[res.CallID] = res
		}
		c.mu.Lock()
		active.readAhead = byID
		c.mu.Unlock()
	}()
}

func (c *Controller) waitReadAhead(active *activeTurn) map[string]planner.CallResult {
	c.mu.Lock()
	done := active.readAheadDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return active.readAhead
}

// armDeadline resolves the confirmation as a timeout when the host imposes
// a deadline and no decision arrives in time.
func (c *Controller) armDeadline(active *activeTurn, req *approval.Request) {
	if c.confirmTimeout <= 0 {
		return
	}
	timer := time.AfterFunc(c.confirmTimeout, func() {
		_, _ = c.Resolve(req.ID, approval.Decision{Resolution: approval.ResolutionTimeout})
	})
	c.mu.Lock()
	active.deadlineTimer = timer
	c.mu.Unlock()
}

func (c *Controller) reflectAndComplete(active *activeTurn, results []planner.CallResult) {
	turn := active.turn
	c.transition(turn, StateReflecting, nil)
	refl := c.reflector.Reflect(turn.Decision, turn.Plan, results, active.prefs)
	turn.Reflection = refl
	turn.Response = c.buildResponse(turn, refl)
	c.complete(active, "completed")
}

func (c *Controller) buildResponse(turn *Turn, refl *reflection.Result) *Response {
	resp := &Response{
		Results:          turn.Results,
		Dropped:          turn.Plan.Dropped,
		SuggestedActions: refl.SuggestedActions,
	}
	if refl.NeedsClarification() {
		resp.Text = refl.ClarifyingMessage
		return resp
	}

	succeeded, failures := 0, 0
	for _, res := range turn.Results {
		if res.Success {
			succeeded++
		} else {
			failures++
		}
	}

	var parts []string
	switch {
	case len(turn.Plan.Calls) == 0 && turn.Plan.Note != "":
		parts = append(parts, turn.Plan.Note)
	case len(turn.Plan.Calls) == 0:
		parts = append(parts, "Okay.")
	case failures == 0:
		parts = append(parts, "Done.")
	default:
		parts = append(parts, fmt.Sprintf("%d of %d steps completed.", succeeded, succeeded+failures))
	}
	for _, dropped := range turn.Plan.Dropped {
		parts = append(parts, fmt.Sprintf("Skipped %s: %s.", dropped.Tool, dropped.Reason))
	}
	resp.Text = strings.Join(parts, " ")
	return resp
}

// transition moves the turn to a new state and publishes the event.
// Terminal states are sticky: a concurrently aborted turn stays aborted.
func (c *Controller) transition(turn *Turn, state State, detail map[string]any) {
	if turn.Done() {
		return
	}
	turn.setState(state)
	c.logger.Info(logging.CategoryTurn, "state", state.String(), detail)
	c.publishState(turn, detail)
}

// complete finishes the turn, publishes the final response, and records
// the exchange in conversation history.
func (c *Controller) complete(active *activeTurn, outcome string) {
	turn := active.turn
	if turn.Done() {
		return
	}
	turn.EndedAt = time.Now()
	c.transition(turn, StateCompleted, map[string]any{"outcome": outcome})
	c.publishResponse(turn)
	telemetry.RecordTurnCompleted(outcome, turn.EndedAt.Sub(turn.StartedAt))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, model.Message{Role: "user", Content: turn.Input})
	if turn.Response != nil && turn.Response.Text != "" {
		c.history = append(c.history, model.Message{Role: "assistant", Content: turn.Response.Text})
	}
	if len(c.history) > historyWindow {
		c.history = c.history[len(c.history)-historyWindow:]
	}
	if c.active == active {
		c.active = nil
	}
	active.cancel()
}

// abortLocked force-completes a non-terminal turn. Caller holds c.mu.
func (c *Controller) abortLocked(active *activeTurn, reason string) {
	active.cancel()
	turn := active.turn
	turn.EndedAt = time.Now()
	turn.Response = &Response{Aborted: true, AbortReason: reason, Text: "That request was cancelled."}
	turn.setState(StateCompleted)
	c.publishState(turn, map[string]any{"outcome": "aborted", "reason": reason})
	c.publishResponse(turn)
	telemetry.RecordTurnCompleted("aborted", turn.EndedAt.Sub(turn.StartedAt))
	if active.deadlineTimer != nil {
		active.deadlineTimer.Stop()
	}
	if c.active == active {
		c.active = nil
	}
}

// bailIfCancelled reports whether the turn was aborted out from under the
// pipeline (new message or explicit cancel) and should stop producing
// output.
func (c *Controller) bailIfCancelled(active *activeTurn) bool {
	if active.ctx.Err() == nil {
		return false
	}
	return active.turn.Done()
}

// recoverTurn converts a panic in the pipeline into the Error state so a
// defect surfaces as a failed turn instead of killing the process.
func (c *Controller) recoverTurn(active *activeTurn) {
	r := recover()
	if r == nil {
		return
	}
	turn := active.turn
	c.logger.Error(logging.CategoryTurn, "panic", fmt.Sprint(r), nil)
	c.transition(turn, StateError, map[string]any{"panic": fmt.Sprint(r)})

	turn.EndedAt = time.Now()
	turn.Response = &Response{
		Text:        "Something went wrong handling that request.",
		Aborted:     true,
		AbortReason: "internal error",
	}
	// Error always drains to Completed.
	turn.setState(StateCompleted)
	c.publishState(turn, map[string]any{"outcome": "error"})
	c.publishResponse(turn)
	telemetry.RecordTurnCompleted("error", turn.EndedAt.Sub(turn.StartedAt))

	c.mu.Lock()
	if c.active == active {
		c.active = nil
	}
	c.mu.Unlock()
	active.cancel()
}
