package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/infra/memory"
	transport "hifdh-quest-service/internal/transport/http"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func newGameServer(t *testing.T) *httptest.Server {
	t.Helper()
	bus := memory.NewEventBus(256)
	store := memory.NewSessionStore(app.NewSessionFactory(app.SessionDeps{
		Settings: app.GameSettings{BankID: memory.SampleBankID, TimerSeconds: 60},
		Events:   bus,
		Logger:   zerolog.Nop(),
	}))
	verses := memory.NewVerseRepository(memory.NewStaticVerseLoader(map[string]domain.VerseBank{
		memory.SampleBankID: memory.SampleBank(),
	}), time.Minute)
	service := app.NewGameService(store, verses, bus, zerolog.Nop(), nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", transport.NewWSHandler(service, zerolog.Nop(), nil, nil).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func runSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = s.Close()
		<-done
	})
}

func TestSessionPlaysARound(t *testing.T) {
	server := newGameServer(t)

	admin := NewSession(Config{URL: wsURL(server), SessionID: "halaqa-1", Admin: true, Logger: zerolog.Nop()})
	player := NewSession(Config{URL: wsURL(server), SessionID: "halaqa-1", ParticipantID: "u1", DisplayName: "Amina", Logger: zerolog.Nop()})
	require.NoError(t, admin.Connect(context.Background()))
	runSession(t, admin)
	require.NoError(t, player.Connect(context.Background()))
	runSession(t, player)

	require.Eventually(t, func() bool {
		return len(player.Mirror().View().Server.Scoreboard) == 1
	}, 5*time.Second, 10*time.Millisecond, "player never saw its own snapshot")

	require.NoError(t, admin.StartRound(domain.StartRoundPayload{QuestionType: domain.QuestionGuessSurah}))
	require.Eventually(t, func() bool {
		return player.Mirror().BuzzerState() == domain.BuzzerEnabled
	}, 5*time.Second, 10*time.Millisecond, "round never reached the player")

	require.NoError(t, player.Buzz())
	require.ErrorIs(t, player.Buzz(), ErrBuzzerDisabled)

	require.Eventually(t, func() bool {
		return admin.Mirror().CurrentTurn() == "u1"
	}, 5*time.Second, 10*time.Millisecond, "admin never saw the buzz")
	require.Equal(t, domain.BuzzerBuzzed, player.Mirror().BuzzerState())

	roundID := admin.Mirror().View().Server.Round.ID
	require.NoError(t, admin.ValidateAnswer(domain.ValidateAnswerPayload{RoundID: roundID, ParticipantID: "u1", IsCorrect: true}))
	require.Eventually(t, func() bool {
		view := player.Mirror().View()
		return view.Server.State == domain.RoundStateEnded && view.Server.WinnerID == "u1"
	}, 5*time.Second, 10*time.Millisecond, "round never ended on the player")
	require.Equal(t, domain.BuzzerLocked, player.Mirror().BuzzerState())
}

func TestSessionGivesUpAfterBoundedAttempts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewSession(Config{
		URL:                  wsURL(server),
		SessionID:            "halaqa-1",
		ParticipantID:        "u1",
		DisplayName:          "Amina",
		MaxReconnectAttempts: 3,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		Logger:               zerolog.Nop(),
	})
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrServerUnreachable)
	require.EqualValues(t, 3, attempts.Load())
}

func TestSessionDoesNotRetryRejectedHandshake(t *testing.T) {
	server := newGameServer(t)
	s := NewSession(Config{
		URL:            wsURL(server),
		SessionID:      "not a valid id",
		ParticipantID:  "u1",
		DisplayName:    "Amina",
		InitialBackoff: time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrHandshakeRejected)
	require.False(t, errors.Is(err, ErrServerUnreachable))
}

func TestSessionResyncsAfterDrop(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)
		snapshot := domain.SessionSnapshot{State: domain.RoundIdle, ServerTime: time.Now().UTC()}
		if n > 1 {
			round := domain.Round{ID: "r2", TimerSeconds: 60, TimerStartsAt: time.Now().UTC()}
			snapshot = domain.SessionSnapshot{State: domain.RoundActive, Round: &round, BuzzingOpen: true, TotalBuzzesAllowed: 3, ServerTime: time.Now().UTC()}
		}
		data, err := domain.EncodeMessage(domain.Message{SessionID: "halaqa-1", Timestamp: time.Now().UTC(), Event: snapshot})
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection right after the snapshot.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	var snapshots atomic.Int32
	s := NewSession(Config{
		URL:            wsURL(server),
		SessionID:      "halaqa-1",
		ParticipantID:  "u1",
		DisplayName:    "Amina",
		InitialBackoff: time.Millisecond,
		Logger:         zerolog.Nop(),
		OnMessage: func(msg domain.Message) {
			if msg.Event.Type() == domain.EventSessionSnapshot {
				snapshots.Add(1)
			}
		},
	})
	runSession(t, s)

	require.Eventually(t, func() bool {
		return snapshots.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond, "session did not resubscribe")
	view := s.Mirror().View()
	require.Equal(t, domain.RoundActive, view.Server.State)
	require.Equal(t, "r2", view.Server.Round.ID)
	require.Equal(t, domain.BuzzerEnabled, view.Buzzer)
}

func TestSessionRequestsNeedAConnection(t *testing.T) {
	s := NewSession(Config{URL: "ws://127.0.0.1:1/ws", SessionID: "halaqa-1", Logger: zerolog.Nop()})
	require.ErrorIs(t, s.EndRound("r1"), ErrNotConnected)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Sync(), ErrClosed)
}
