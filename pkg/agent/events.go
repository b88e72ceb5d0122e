package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tallyhq/tally/pkg/bus"
	"github.com/tallyhq/tally/pkg/logging"
)

// TurnEvent is published on every state transition so hosts can render
// progress.
type TurnEvent struct {
	ConversationID string         `json:"conversation_id"`
	TurnID         string         `json:"turn_id"`
	State          string         `json:"state"`
	At             time.Time      `json:"at"`
	Detail         map[string]any `json:"detail,omitempty"`
}

func (c *Controller) publishState(turn *Turn, detail map[string]any) {
	event := TurnEvent{
		ConversationID: c.conversationID,
		TurnID:         turn.ID,
		State:          turn.State().String(),
		At:             time.Now(),
		Detail:         detail,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := c.bus.Publish(context.Background(), bus.TurnSubject(c.conversationID, "state"), data); err != nil {
		c.logger.Warn(logging.CategoryTurn, "event_publish_failed", err.Error(), nil)
	}
}

func (c *Controller) publishResponse(turn *Turn) {
	if turn.Response == nil {
		return
	}
	payload := struct {
		ConversationID string    `json:"conversation_id"`
		TurnID         string    `json:"turn_id"`
		Response       *Response `json:"response"`
	}{c.conversationID, turn.ID, turn.Response}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.bus.Publish(context.Background(), bus.TurnSubject(c.conversationID, "response"), data)
}

func (c *Controller) publishConfirmation(turn *Turn) {
	if turn.Confirmation == nil {
		return
	}
	data, err := json.Marshal(turn.Confirmation)
	if err != nil {
		return
	}
	_ = c.bus.Publish(context.Background(), bus.ConfirmationSubject(c.conversationID), data)
}
