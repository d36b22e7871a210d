package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

// recentRounds bounds the per-session round history kept in Redis.
const recentRounds = 50

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map; their single-writer lock cannot be
//     shared across processes.
//   - Redis marks session liveness and keeps the summaries of recent rounds
//     so another instance or an operator can inspect them.
//   - Cross-instance fan-out of events goes through the pub/sub EventBus.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	factory  app.SessionFactory
	mu       sync.RWMutex
	sessions map[string]*app.GameSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration, factory app.SessionFactory) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		factory:  factory,
		sessions: make(map[string]*app.GameSession),
	}
}

func (s *SessionStore) GetOrCreate(sessionID string) *app.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session
	}
	session := s.factory(sessionID)
	s.sessions[sessionID] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), livenessKey(sessionID), "1", s.ttl).Err()
	return session
}

func (s *SessionStore) Get(sessionID string) (*app.GameSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Touch re-arms the liveness marker.
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	if err := s.client.Set(ctx, livenessKey(sessionID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}

// Sweep retires idle sessions whose liveness marker expired. Join, Leave
// and heartbeats re-arm the marker.
func (s *SessionStore) Sweep(ctx context.Context) int {
	s.mu.RLock()
	var idle []string
	for id, session := range s.sessions {
		if session.Idle() {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	retired := 0
	for _, id := range idle {
		live, err := s.client.Exists(ctx, livenessKey(id)).Result()
		if err != nil || live > 0 {
			continue
		}
		s.mu.Lock()
		session, ok := s.sessions[id]
		if ok && session.Retire(0) {
			delete(s.sessions, id)
		} else {
			ok = false
		}
		s.mu.Unlock()
		if ok {
			session.Close()
			retired++
		}
	}
	return retired
}

// RecordRound appends an ended round to the session history:
//
//	RPUSH quest:session:{id}:rounds {json}; LTRIM to the most recent rounds
func (s *SessionStore) RecordRound(ctx context.Context, summary domain.RoundSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode round %s: %w", summary.Round.ID, err)
	}
	key := roundsKey(summary.Round.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -recentRounds, -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record round %s: %w", summary.Round.ID, err)
	}
	return nil
}

// RecentRounds returns the stored summaries of a session, oldest first.
func (s *SessionStore) RecentRounds(ctx context.Context, sessionID string) ([]domain.RoundSummary, error) {
	items, err := s.client.LRange(ctx, roundsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read rounds of %s: %w", sessionID, err)
	}
	out := make([]domain.RoundSummary, 0, len(items))
	for _, item := range items {
		var summary domain.RoundSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			return nil, fmt.Errorf("decode round of %s: %w", sessionID, err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func livenessKey(sessionID string) string {
	return "quest:session:" + sessionID
}

func roundsKey(sessionID string) string {
	return "quest:session:" + sessionID + ":rounds"
}
