package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

// Role is what a connection may do in a session.
type Role string

const (
	RoleAdmin  Role = "admin"
	RolePlayer Role = "player"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// connectParams are read from the upgrade request query string.
type connectParams struct {
	SessionID     string `validate:"required,session_id"`
	ParticipantID string `validate:"required_if=Role player,max=64"`
	DisplayName   string `validate:"required_if=Role player,max=64"`
	Role          Role   `validate:"oneof=admin player"`
}

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	validate *validator.Validate
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewWSHandler builds the websocket endpoint. An empty allowedOrigins accepts every origin.
func NewWSHandler(service *app.GameService, logger zerolog.Logger, m *metrics.Metrics, allowedOrigins []string) *WSHandler {
	validate := validator.New()
	_ = validate.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return sessionIDPattern.MatchString(fl.Field().String())
	})
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		validate: validate,
		logger:   logger,
		metrics:  m,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
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

// connection is the per-socket state of ServeWS.
type connection struct {
	sessionID     string
	participantID string
	role          Role
	send          chan domain.Message
	logger        zerolog.Logger
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game use cases.
// The first message on every connection is a SESSION_SNAPSHOT; broadcasts follow.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := connectParams{
		SessionID:     q.Get("sessionId"),
		ParticipantID: q.Get("participantId"),
		DisplayName:   q.Get("name"),
		Role:          Role(q.Get("role")),
	}
	if params.Role == "" {
		params.Role = RolePlayer
	}
	if err := h.validate.Struct(params); err != nil {
		http.Error(w, "invalid sessionId, participantId, name, or role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	// Requests outlive a cancelled upgrade request only long enough to finish.
	ctx := context.WithoutCancel(r.Context())
	c := &connection{
		sessionID:     params.SessionID,
		participantID: params.ParticipantID,
		role:          params.Role,
		send:          make(chan domain.Message, sendBuffer),
		logger: h.logger.With().
			Str("session_id", params.SessionID).
			Str("participant_id", params.ParticipantID).
			Str("role", string(params.Role)).Logger(),
	}

	if _, err := h.service.Join(ctx, c.sessionID, c.participantID, params.DisplayName); err != nil {
		_ = conn.WriteJSON(c.rejected("JOIN", err))
		return
	}
	defer h.service.Leave(context.Background(), c.sessionID, c.participantID)

	// Subscribe before taking the snapshot so nothing falls between them.
	sub, err := h.service.Subscribe(ctx, c.sessionID)
	if err != nil {
		_ = conn.WriteJSON(c.rejected("JOIN", err))
		return
	}
	defer sub.Close()

	snapshot, err := h.service.Snapshot(ctx, c.sessionID)
	if err != nil {
		_ = conn.WriteJSON(c.rejected("JOIN", err))
		return
	}

	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("ws write failed")
				_ = conn.Close()
				for range c.send {
				}
				return
			}
		}
	}()

	c.send <- c.message(snapshot)

	go func() {
		defer close(updatesDone)
		for {
			select {
			case d, ok := <-sub.C:
				if !ok {
					// Dropped by the bus; closing makes the client reconnect and resync.
					c.logger.Info().Msg("event feed closed")
					_ = conn.Close()
					return
				}
				if d.Err != nil {
					c.logger.Warn().Err(d.Err).Msg("dropping undecodable event")
					continue
				}
				select {
				case c.send <- d.Message:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("ws read failed")
			}
			break
		}
		var req domain.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.send <- c.rejected("", fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
			continue
		}
		reply, err := h.handle(ctx, c, req)
		if err != nil {
			c.send <- c.rejected(string(req.Type), err)
			continue
		}
		if reply != nil {
			c.send <- c.message(reply)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(c.send)
	<-writerDone
}

// handle applies one request. Broadcast effects reach the sender through its
// subscription; only point-to-point replies are returned.
func (h *WSHandler) handle(ctx context.Context, c *connection, req domain.Request) (domain.Event, error) {
	if req.Type.AdminOnly() && c.role != RoleAdmin {
		return nil, domain.ErrForbidden
	}
	switch req.Type {
	case domain.RequestStartRound:
		var p domain.StartRoundPayload
		if err := h.decode(req, &p); err != nil {
			return nil, err
		}
		selector := app.ContentSelector{SurahFrom: p.SurahFrom, SurahTo: p.SurahTo, Reciter: p.Reciter}
		if err := h.validate.Struct(selector); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		_, err := h.service.StartRound(ctx, c.sessionID, app.StartRoundRequest{QuestionType: p.QuestionType, Selector: selector})
		return nil, err
	case domain.RequestBuzz:
		if c.participantID == "" {
			return nil, domain.ErrParticipantNotFound
		}
		var p domain.BuzzPayload
		if err := h.decode(req, &p); err != nil {
			return nil, err
		}
		_, err := h.service.Buzz(ctx, c.sessionID, c.participantID, p.RoundID, p.ClientElapsed)
		return nil, err
	case domain.RequestSubmitAnswer:
		if c.participantID == "" {
			return nil, domain.ErrParticipantNotFound
		}
		var p domain.SubmitAnswerPayload
		if err := h.decode(req, &p); err != nil {
			return nil, err
		}
		return nil, h.service.SubmitAnswer(ctx, c.sessionID, c.participantID, p.RoundID, p.Text)
	case domain.RequestValidateAnswer:
		var p domain.ValidateAnswerPayload
		if err := h.decode(req, &p); err != nil {
			return nil, err
		}
		_, err := h.service.ValidateAnswer(ctx, c.sessionID, app.ValidateRequest{
			RoundID:       p.RoundID,
			ParticipantID: p.ParticipantID,
			Correct:       p.IsCorrect,
			Points:        p.Points,
		})
		return nil, err
	case domain.RequestEndRound:
		var p domain.EndRoundPayload
		if err := h.decode(req, &p); err != nil {
			return nil, err
		}
		return nil, h.service.EndRound(ctx, c.sessionID, p.RoundID)
	case domain.RequestHeartbeat:
		if c.participantID == "" {
			return nil, nil
		}
		return nil, h.service.Heartbeat(ctx, c.sessionID, c.participantID)
	case domain.RequestSync:
		snapshot, err := h.service.Snapshot(ctx, c.sessionID)
		if err != nil {
			return nil, err
		}
		return snapshot, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidRequest, req.Type)
	}
}

func (h *WSHandler) decode(req domain.Request, dst any) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("%w: %s without payload", domain.ErrInvalidRequest, req.Type)
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", domain.ErrInvalidRequest, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func (c *connection) message(ev domain.Event) domain.Message {
	return domain.Message{SessionID: c.sessionID, Timestamp: time.Now().UTC(), Event: ev}
}

func (c *connection) rejected(request string, err error) domain.Message {
	code := app.RejectionCode(err)
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrForbidden) {
		c.logger.Warn().Err(err).Str("request", request).Str("code", code).Msg("request refused")
	}
	return c.message(domain.RequestRejected{Request: request, Code: code, Message: err.Error()})
}
