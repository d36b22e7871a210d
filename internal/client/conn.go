package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/clocksync"
	"hifdh-quest-service/internal/domain"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 15 * time.Second
	defaultInitialBackoff       = 250 * time.Millisecond
	defaultMaxBackoff           = 5 * time.Second
	writeWait                   = 10 * time.Second
)

var (
	// ErrServerUnreachable is returned once the bounded reconnect attempts are used up.
	ErrServerUnreachable = errors.New("server unreachable")
	// ErrHandshakeRejected means the server refused the connection parameters.
	ErrHandshakeRejected = errors.New("server rejected the connection")
	// ErrNotConnected is returned by requests sent while no socket is open.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
	// ErrBuzzerDisabled means the local buzzer state does not allow a buzz.
	ErrBuzzerDisabled = errors.New("buzzer is not enabled")
)

// Config describes one client seat in a session.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL           string
	SessionID     string
	ParticipantID string
	DisplayName   string
	Admin         bool

	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	HeartbeatInterval    time.Duration

	Dialer *websocket.Dialer
	Clock  clockwork.Clock
	Logger zerolog.Logger
	// OnMessage sees every server message after the mirror applied it.
	OnMessage func(domain.Message)
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Session is an explicitly owned connection to one game session. It feeds
// a Mirror and a Countdown and reconnects with bounded backoff; every
// reconnect is a resync because the server opens with a snapshot.
type Session struct {
	cfg       Config
	logger    zerolog.Logger
	countdown *clocksync.Countdown
	mirror    *Mirror

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

// NewSession builds a disconnected session. opts configure its countdown.
func NewSession(cfg Config, opts ...clocksync.Option) *Session {
	cfg = cfg.withDefaults()
	countdown := clocksync.New(cfg.Clock, opts...)
	return &Session{
		cfg: cfg,
		logger: cfg.Logger.With().
			Str("session_id", cfg.SessionID).
			Str("participant_id", cfg.ParticipantID).Logger(),
		countdown: countdown,
		mirror:    NewMirror(cfg.ParticipantID, countdown),
	}
}

func (s *Session) Mirror() *Mirror {
	return s.mirror
}

func (s *Session) Countdown() *clocksync.Countdown {
	return s.countdown
}

func (s *Session) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("sessionId", s.cfg.SessionID)
	if s.cfg.ParticipantID != "" {
		q.Set("participantId", s.cfg.ParticipantID)
		q.Set("name", s.cfg.DisplayName)
	}
	if s.cfg.Admin {
		q.Set("role", "admin")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the socket, retrying with exponential backoff up to
// MaxReconnectAttempts before giving up with ErrServerUnreachable.
func (s *Session) Connect(ctx context.Context) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	attempts := 0
	op := func() error {
		if s.isClosed() {
			return backoff.Permanent(ErrClosed)
		}
		attempts++
		conn, resp, err := s.cfg.Dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusBadRequest {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrHandshakeRejected, err))
			}
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return backoff.Permanent(ErrClosed)
		}
		s.conn = conn
		s.mu.Unlock()
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.InitialBackoff
	policy.MaxInterval = s.cfg.MaxBackoff
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxReconnectAttempts-1)), ctx)

	err = backoff.RetryNotify(op, bounded, func(err error, wait time.Duration) {
		s.logger.Warn().Err(err).Dur("retry_in", wait).Int("attempt", attempts).Msg("connect failed")
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClosed), errors.Is(err, ErrHandshakeRejected):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w after %d attempts: %v", ErrServerUnreachable, attempts, err)
	}
}

// Run reads server messages until ctx is done or Close is called. A lost
// connection is re-established and resynced; when that fails Run returns
// ErrServerUnreachable so the caller can offer a manual retry.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { s.dropConn(nil) })
	defer stop()

	go s.heartbeatLoop(ctx)
	go func() { _ = s.countdown.Run(ctx) }()

	for {
		conn := s.current()
		if conn == nil {
			if err := s.Connect(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
			conn = s.current()
		}
		err := s.readLoop(conn)
		s.dropConn(conn)
		if s.isClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("connection lost, resubscribing")
	}
}

func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		msg, err := domain.DecodeMessage(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed server message")
			continue
		}
		s.mirror.Apply(msg)
		if s.cfg.OnMessage != nil {
			s.cfg.OnMessage(msg)
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	if s.cfg.ParticipantID == "" {
		return
	}
	ticker := s.cfg.Clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			err := s.Heartbeat()
			if err != nil && !errors.Is(err, ErrNotConnected) {
				s.logger.Debug().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func (s *Session) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// dropConn closes conn, or whatever is open when conn is nil.
func (s *Session) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || (conn != nil && s.conn != conn) {
		return
	}
	s.conn.Close()
	s.conn = nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close disposes of the session. Run returns nil afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.countdown.Stop()
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return conn.Close()
}

// send writes a request. Delivery is not confirmation: the outcome arrives
// as a later broadcast or REQUEST_REJECTED.
func (s *Session) send(typ domain.RequestType, payload any) error {
	req, err := domain.NewRequest(typ, payload)
	if err != nil {
		return err
	}
	conn := s.current()
	if conn == nil {
		if s.isClosed() {
			return ErrClosed
		}
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// Buzz optimistically marks the buzzer as pressed and asks the server for a
// slot. The server's BUZZER_PRESSED or REQUEST_REJECTED settles it.
func (s *Session) Buzz() error {
	now := s.cfg.Clock.Now()
	roundID, ok := s.mirror.IntendBuzz(now)
	if !ok {
		return ErrBuzzerDisabled
	}
	elapsed := 0.0
	if round := s.mirror.View().Server.Round; round != nil {
		elapsed = math.Max(0, now.Sub(round.TimerStartsAt).Seconds())
	}
	if err := s.send(domain.RequestBuzz, domain.BuzzPayload{RoundID: roundID, ClientElapsed: elapsed}); err != nil {
		s.mirror.CancelIntent(roundID)
		return err
	}
	return nil
}

func (s *Session) SubmitAnswer(roundID, text string) error {
	return s.send(domain.RequestSubmitAnswer, domain.SubmitAnswerPayload{RoundID: roundID, Text: text})
}

func (s *Session) StartRound(p domain.StartRoundPayload) error {
	return s.send(domain.RequestStartRound, p)
}

func (s *Session) ValidateAnswer(p domain.ValidateAnswerPayload) error {
	return s.send(domain.RequestValidateAnswer, p)
}

func (s *Session) EndRound(roundID string) error {
	return s.send(domain.RequestEndRound, domain.EndRoundPayload{RoundID: roundID})
}

func (s *Session) Heartbeat() error {
	return s.send(domain.RequestHeartbeat, domain.HeartbeatPayload{ParticipantID: s.cfg.ParticipantID})
}

// Sync asks the server for a fresh snapshot.
func (s *Session) Sync() error {
	return s.send(domain.RequestSync, nil)
}
