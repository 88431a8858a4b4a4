package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
)

const (
	sendQueueSize  = 64
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
)

type WSHandler struct {
	service  *app.QuizService
	hub      *hub.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, h *hub.Hub, logger *zap.Logger, allowedOrigins []string) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		hub:     h,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    domain.CommandType `json:"type"`
	Payload json.RawMessage    `json:"payload"`
}

// commandPayload is the union of every inbound payload; pointers mark required fields.
type commandPayload struct {
	SessionID      int64       `json:"sessionId"`
	ParticipantID  int64       `json:"participantId"`
	Role           domain.Role `json:"role"`
	QuestionID     int64       `json:"questionId"`
	SelectedAnswer *int        `json:"selectedAnswer"`
	ResponseTime   *int        `json:"responseTime"`
	QuestionIndex  *int        `json:"questionIndex"`
}

// client is one websocket connection. Outbound events go through a bounded
// queue drained by a single writer goroutine.
type client struct {
	id   string
	conn *websocket.Conn
	send chan domain.Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	// set once join_room succeeds; only the reader goroutine touches it
	reg *hub.Registration
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan domain.Event, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Send enqueues without blocking and reports false when the queue is full or closed.
func (c *client) Send(event domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	// unblocks the reader
	_ = c.conn.Close()
}

func (c *client) writeLoop(logger *zap.Logger) {
	for {
		select {
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				logger.Debug("ws write error", zap.String("conn_id", c.id), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeWS upgrades HTTP requests to websockets. A connection receives session
// events once it has sent join_room.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := newClient(conn)
	h.logger.Info("ws connected", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(h.logger)
	}()

	ctx := r.Context()
	for {
		// only transport failures end the loop; a bad frame gets an error reply
		_, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(frame, &inbound); err != nil {
			h.reply(c, domain.ErrorEvent(fmt.Errorf("invalid message: %w", domain.ErrMalformedCommand)))
			continue
		}
		if err := h.dispatch(ctx, c, inbound); err != nil {
			h.reply(c, domain.ErrorEvent(err))
		}
	}

	h.leave(ctx, c)
	c.Close()
	<-writerDone
	h.logger.Info("ws disconnected", zap.String("conn_id", c.id))
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, msg inboundMessage) error {
	var p commandPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", msg.Type, domain.ErrMalformedCommand)
		}
	}

	switch msg.Type {
	case domain.CmdPing:
		h.reply(c, domain.Event{Type: domain.EvtPong})
		return nil
	case domain.CmdJoinRoom:
		return h.join(ctx, c, p)
	case domain.CmdSubmitAnswer:
		return h.submit(ctx, c, p)
	case domain.CmdStart, domain.CmdAdvance, domain.CmdPauseTimer, domain.CmdResumeTimer, domain.CmdEnd:
		return h.control(ctx, c, msg.Type, p)
	default:
		return fmt.Errorf("unsupported message type %q: %w", msg.Type, domain.ErrMalformedCommand)
	}
}

func (h *WSHandler) join(ctx context.Context, c *client, p commandPayload) error {
	if c.reg != nil {
		return fmt.Errorf("connection already joined session %d: %w", c.reg.SessionID, domain.ErrMalformedCommand)
	}
	if p.SessionID == 0 {
		return fmt.Errorf("sessionId is required: %w", domain.ErrMalformedCommand)
	}
	if p.Role == domain.RoleParticipant && p.ParticipantID == 0 {
		return fmt.Errorf("participantId is required: %w", domain.ErrMalformedCommand)
	}
	reg := hub.Registration{ConnID: c.id, SessionID: p.SessionID, Role: p.Role}
	if p.Role == domain.RoleParticipant {
		reg.ParticipantID = p.ParticipantID
	}

	err := h.service.Attach(ctx, p.SessionID, p.Role, reg.ParticipantID, func(snap domain.SessionSnapshot) {
		// registered before the lock is released so no later broadcast is missed
		h.hub.Register(reg, c)
		h.reply(c, domain.Event{Type: domain.EvtJoined, SessionID: p.SessionID, Payload: snap})
	})
	if err != nil {
		return err
	}
	c.reg = &reg
	h.logger.Info("ws joined",
		zap.String("conn_id", c.id),
		zap.Int64("session_id", reg.SessionID),
		zap.String("role", string(reg.Role)),
		zap.Int64("participant_id", reg.ParticipantID))
	return nil
}

func (h *WSHandler) submit(ctx context.Context, c *client, p commandPayload) error {
	if c.reg == nil {
		return fmt.Errorf("join_room first: %w", domain.ErrMalformedCommand)
	}
	if p.QuestionID == 0 || p.SelectedAnswer == nil || p.ResponseTime == nil {
		return fmt.Errorf("questionId, selectedAnswer and responseTime are required: %w", domain.ErrMalformedCommand)
	}
	participantID := p.ParticipantID
	if c.reg.Role == domain.RoleParticipant {
		if participantID == 0 {
			participantID = c.reg.ParticipantID
		}
		if participantID != c.reg.ParticipantID {
			return fmt.Errorf("connection speaks for participant %d: %w", c.reg.ParticipantID, domain.ErrMalformedCommand)
		}
	}
	if participantID == 0 {
		return fmt.Errorf("participantId is required: %w", domain.ErrMalformedCommand)
	}

	response, err := h.service.SubmitAnswer(ctx, c.reg.SessionID, domain.AnswerSubmission{
		ParticipantID:  participantID,
		QuestionID:     p.QuestionID,
		SelectedAnswer: *p.SelectedAnswer,
		ResponseTime:   *p.ResponseTime,
	})
	if err != nil {
		return err
	}
	h.reply(c, domain.Event{Type: domain.EvtAnswerAccepted, SessionID: c.reg.SessionID, Payload: response})
	return nil
}

func (h *WSHandler) control(ctx context.Context, c *client, cmd domain.CommandType, p commandPayload) error {
	if c.reg == nil || c.reg.Role != domain.RolePresenter {
		return fmt.Errorf("%s requires a joined presenter: %w", cmd, domain.ErrMalformedCommand)
	}
	if p.SessionID != 0 && p.SessionID != c.reg.SessionID {
		return fmt.Errorf("connection joined session %d: %w", c.reg.SessionID, domain.ErrMalformedCommand)
	}
	sessionID := c.reg.SessionID

	var err error
	switch cmd {
	case domain.CmdStart:
		_, err = h.service.Start(ctx, sessionID)
	case domain.CmdAdvance:
		if p.QuestionIndex == nil {
			return fmt.Errorf("questionIndex is required: %w", domain.ErrMalformedCommand)
		}
		_, err = h.service.Advance(ctx, sessionID, *p.QuestionIndex)
	case domain.CmdPauseTimer:
		_, err = h.service.PauseTimer(ctx, sessionID)
	case domain.CmdResumeTimer:
		_, err = h.service.ResumeTimer(ctx, sessionID)
	case domain.CmdEnd:
		_, err = h.service.End(ctx, sessionID)
	}
	return err
}

func (h *WSHandler) leave(ctx context.Context, c *client) {
	if c.reg == nil {
		return
	}
	reg := *c.reg
	h.service.Detach(ctx, reg.SessionID, reg.ParticipantID, func() int {
		h.hub.Unregister(c.id)
		if reg.Role != domain.RoleParticipant {
			return 0
		}
		return h.hub.ParticipantConnections(reg.SessionID, reg.ParticipantID)
	})
}

// reply unicasts to c; a connection that cannot take it is dropped.
func (h *WSHandler) reply(c *client, event domain.Event) {
	if !c.Send(event) {
		c.Close()
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
