// Package agentserver exposes the agent over HTTP for host applications.
// Hosts post user messages and confirmation decisions, and stream turn
// events over a WebSocket bridged to the message bus.
package agentserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyhq/tally/pkg/agent"
	"github.com/tallyhq/tally/pkg/approval"
	"github.com/tallyhq/tally/pkg/bus"
	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/logging"
)

const (
	maxBodyBytes   = 1 << 20
	eventSendBuf   = 64
	wsWriteTimeout = 10 * time.Second
)

// Server adapts the agent manager to HTTP hosts.
type Server struct {
	manager  *agent.Manager
	bus      bus.MessageBus
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server over the given manager and bus.
func New(manager *agent.Manager, messageBus bus.MessageBus, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		bus:     messageBus,
		logger:  logging.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/conversations/{conversationID}/messages", s.handleMessage)
		r.Delete("/conversations/{conversationID}/turn", s.handleCancel)
		r.Get("/conversations/{conversationID}/preferences", s.handlePreferences)
		r.Post("/confirmations/{confirmationID}", s.handleConfirmation)
		r.Get("/events", s.handleEvents)
	})

	return r
}

type messageRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

type turnPayload struct {
	TurnID         string            `json:"turn_id"`
	ConversationID string            `json:"conversation_id"`
	State          string            `json:"state"`
	Confirmation   *approval.Request `json:"confirmation,omitempty"`
	Response       *agent.Response   `json:"response,omitempty"`
}

func turnToPayload(t *agent.Turn) turnPayload {
	return turnPayload{
		TurnID:         t.ID,
		ConversationID: t.ConversationID,
		State:          t.State().String(),
		Confirmation:   t.Confirmation,
		Response:       t.Response,
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = "default"
	}

	ctrl := s.manager.Controller(conversationID, userID)
	turn, err := ctrl.HandleMessage(r.Context(), req.Text)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, turnToPayload(turn))
}

type confirmationRequest struct {
	ConversationID string `json:"conversation_id"`
	Resolution     string `json:"resolution"`
	ToolName       string `json:"tool_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	confirmationID := chi.URLParam(r, "confirmationID")

	var req confirmationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	switch approval.Resolution(req.Resolution) {
	case approval.ResolutionApprove, approval.ResolutionReject, approval.ResolutionAlwaysAllow:
	default:
		respondError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput,
			"resolution must be approve, reject, or always_allow"))
		return
	}

	ctrl, ok := s.manager.Lookup(req.ConversationID)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New(errors.ErrCodeConfirmationUnknown,
			"unknown conversation"))
		return
	}

	turn, err := ctrl.Resolve(confirmationID, approval.Decision{
		Resolution: approval.Resolution(req.Resolution),
		ToolName:   req.ToolName,
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, turnToPayload(turn))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	ctrl, ok := s.manager.Lookup(conversationID)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New(errors.ErrCodeInvalidInput,
			"unknown conversation"))
		return
	}
	ctrl.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	ctrl, ok := s.manager.Lookup(conversationID)
	if !ok {
		respondError(w, http.StatusNotFound, errors.New(errors.ErrCodeInvalidInput,
			"unknown conversation"))
		return
	}
	respondJSON(w, http.StatusOK, ctrl.Preferences(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleEvents upgrades to a WebSocket and relays bus messages matching the
// requested subject. Defaults to every turn and confirmation event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		subject = bus.SubjectPrefix + ".>"
	}
	if !strings.HasPrefix(subject, bus.SubjectPrefix+".") {
		respondError(w, http.StatusBadRequest, errors.New(errors.ErrCodeInvalidInput,
			"subject must be under "+bus.SubjectPrefix))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(logging.CategoryServer, "ws_upgrade_failed", err.Error(), nil)
		return
	}

	relay := newEventRelay(conn)
	sub, err := s.bus.Subscribe(r.Context(), subject, func(msg *bus.Message) []byte {
		relay.enqueue(msg)
		return nil
	})
	if err != nil {
		relay.close()
		s.logger.Warn(logging.CategoryServer, "ws_subscribe_failed", err.Error(), nil)
		return
	}

	s.logger.Info(logging.CategoryServer, "ws_connected", "event stream opened",
		map[string]any{"subject": subject, "remote": r.RemoteAddr})

	go relay.writePump()
	relay.readUntilClosed()

	_ = sub.Unsubscribe()
	relay.close()
}

// eventEnvelope frames a bus message for WebSocket clients.
type eventEnvelope struct {
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// eventRelay pumps bus messages to one WebSocket client. Slow clients drop
// events rather than block the bus.
type eventRelay struct {
	conn *websocket.Conn
	send chan eventEnvelope

	mu     sync.Mutex
	closed bool
}

func newEventRelay(conn *websocket.Conn) *eventRelay {
	return &eventRelay{
		conn: conn,
		send: make(chan eventEnvelope, eventSendBuf),
	}
}

func (er *eventRelay) enqueue(msg *bus.Message) {
	er.mu.Lock()
	defer er.mu.Unlock()
	if er.closed {
		return
	}
	select {
	case er.send <- eventEnvelope{Subject: msg.Subject, Data: msg.Data}:
	default:
	}
}

func (er *eventRelay) writePump() {
	for env := range er.send {
		payload, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = er.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := er.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// readUntilClosed drains client frames so close handshakes are processed.
func (er *eventRelay) readUntilClosed() {
	for {
		if _, _, err := er.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (er *eventRelay) close() {
	er.mu.Lock()
	defer er.mu.Unlock()
	if er.closed {
		return
	}
	er.closed = true
	close(er.send)
	_ = er.conn.Close()
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "parse request body")
	}
	return nil
}

func statusFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeConfirmationUnknown:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	type errorBody struct {
		Error     string `json:"error"`
		Code      string `json:"code,omitempty"`
		Retryable bool   `json:"retryable,omitempty"`
	}
	body := errorBody{Error: err.Error(), Retryable: errors.IsRetryable(err)}
	if code := errors.CodeOf(err); code != "" {
		body.Code = string(code)
	}
	respondJSON(w, status, body)
}
