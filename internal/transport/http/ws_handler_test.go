package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	bus := memory.NewEventBus(256)
	factory := app.NewSessionFactory(app.SessionDeps{
		Settings: app.GameSettings{BankID: memory.SampleBankID, TimerSeconds: 60},
		Events:   bus,
		Logger:   zerolog.Nop(),
	})
	store := memory.NewSessionStore(factory)
	verses := memory.NewVerseRepository(memory.NewStaticVerseLoader(map[string]domain.VerseBank{
		memory.SampleBankID: memory.SampleBank(),
	}), time.Minute)
	service := app.NewGameService(store, verses, bus, zerolog.Nop(), nil)
	wsHandler := NewWSHandler(service, zerolog.Nop(), nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) wireMessage {
	t.Helper()
	var msg wireMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%s)", expect, msg.Type, msg.Payload)
	}
	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) wireMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readNext(conn, t, "")
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s within 20 messages", want)
	return wireMessage{}
}

func send(t *testing.T, conn *websocket.Conn, typ domain.RequestType, payload any) {
	t.Helper()
	req, err := domain.NewRequest(typ, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketBuzzFlow(t *testing.T) {
	server := newTestServer(t)

	admin := dial(t, server, "sessionId=halaqa-1&role=admin")
	readNext(admin, t, "SESSION_SNAPSHOT")

	player := dial(t, server, "sessionId=halaqa-1&participantId=u1&name=Amina")
	msg := readNext(player, t, "SESSION_SNAPSHOT")
	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(msg.Payload, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.State != domain.RoundIdle || len(snapshot.Scoreboard) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	send(t, admin, domain.RequestStartRound, domain.StartRoundPayload{QuestionType: domain.QuestionGuessSurah})

	msg = readUntil(player, t, "ROUND_STARTED")
	var started domain.RoundStarted
	if err := json.Unmarshal(msg.Payload, &started); err != nil {
		t.Fatalf("decode round: %v", err)
	}
	if started.RoundID == "" || started.TotalBuzzesAllowed != 3 {
		t.Fatalf("unexpected round %+v", started)
	}

	send(t, player, domain.RequestBuzz, domain.BuzzPayload{RoundID: started.RoundID, ClientElapsed: 0.8})
	msg = readUntil(admin, t, "BUZZER_PRESSED")
	var pressed domain.BuzzerPressed
	if err := json.Unmarshal(msg.Payload, &pressed); err != nil {
		t.Fatalf("decode buzz: %v", err)
	}
	if pressed.ParticipantID != "u1" || pressed.Rank != 1 || pressed.RemainingSlots != 2 {
		t.Fatalf("unexpected buzz %+v", pressed)
	}

	send(t, admin, domain.RequestValidateAnswer, domain.ValidateAnswerPayload{
		RoundID:       started.RoundID,
		ParticipantID: "u1",
		IsCorrect:     true,
	})
	msg = readUntil(player, t, "ROUND_ENDED")
	var ended domain.RoundEnded
	if err := json.Unmarshal(msg.Payload, &ended); err != nil {
		t.Fatalf("decode end: %v", err)
	}
	if ended.WinnerID != "u1" || ended.Reason != domain.EndCorrectAnswer {
		t.Fatalf("unexpected end %+v", ended)
	}
}

func TestWebSocketRejectsAdminRequestsFromPlayers(t *testing.T) {
	server := newTestServer(t)
	player := dial(t, server, "sessionId=halaqa-2&participantId=u1&name=Amina")
	readNext(player, t, "SESSION_SNAPSHOT")

	send(t, player, domain.RequestStartRound, domain.StartRoundPayload{})
	msg := readUntil(player, t, "REQUEST_REJECTED")
	var rejected domain.RequestRejected
	if err := json.Unmarshal(msg.Payload, &rejected); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if rejected.Code != "forbidden" || rejected.Request != "START_ROUND" {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
}

func TestWebSocketRejectsMalformedRequests(t *testing.T) {
	server := newTestServer(t)
	player := dial(t, server, "sessionId=halaqa-3&participantId=u1&name=Amina")
	readNext(player, t, "SESSION_SNAPSHOT")

	cases := []any{
		map[string]any{"type": "BUZZ", "payload": map[string]any{"clientElapsed": 1}},
		map[string]any{"type": "BUZZ", "payload": "not an object"},
		map[string]any{"type": "DANCE"},
	}
	for _, body := range cases {
		if err := player.WriteJSON(body); err != nil {
			t.Fatalf("write: %v", err)
		}
		msg := readUntil(player, t, "REQUEST_REJECTED")
		var rejected domain.RequestRejected
		if err := json.Unmarshal(msg.Payload, &rejected); err != nil {
			t.Fatalf("decode rejection: %v", err)
		}
		if rejected.Code != "invalid_request" {
			t.Fatalf("expected invalid_request for %v, got %+v", body, rejected)
		}
	}

	// The connection survives protocol violations.
	send(t, player, domain.RequestSync, nil)
	readUntil(player, t, "SESSION_SNAPSHOT")
}

func TestWebSocketBuzzOutsideRoundIsRejected(t *testing.T) {
	server := newTestServer(t)
	player := dial(t, server, "sessionId=halaqa-4&participantId=u1&name=Amina")
	readNext(player, t, "SESSION_SNAPSHOT")

	send(t, player, domain.RequestBuzz, domain.BuzzPayload{RoundID: "stale"})
	msg := readUntil(player, t, "REQUEST_REJECTED")
	var rejected domain.RequestRejected
	if err := json.Unmarshal(msg.Payload, &rejected); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if rejected.Code != "buzzing_closed" {
		t.Fatalf("expected buzzing_closed, got %+v", rejected)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	server := newTestServer(t)
	for _, query := range []string{
		"participantId=u1&name=Amina",
		"sessionId=halaqa-5&name=Amina",
		"sessionId=bad.subject&participantId=u1&name=Amina",
		"sessionId=halaqa-5&participantId=u1&name=Amina&role=owner",
	} {
		resp, err := http.Get(server.URL + "/ws?" + query)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", query, resp.StatusCode)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://halaqa.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://halaqa.example")
	if !check(req) {
		t.Fatalf("allowed origin refused")
	}
	if !originChecker(nil)(req) {
		t.Fatalf("empty allow list must accept every origin")
	}
}
