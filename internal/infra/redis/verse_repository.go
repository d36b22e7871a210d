package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"hifdh-quest-service/internal/domain"
	"hifdh-quest-service/internal/infra/memory"
)

// VerseRepository caches verse banks in Redis as one JSON blob per bank and
// falls back to a loader on cache miss:
//
//	SET quest:bank:{bankID} {json} EX ttl
type VerseRepository struct {
	client *redis.Client
	loader memory.VerseLoader
	ttl    time.Duration
	logger zerolog.Logger
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewVerseRepository(client *redis.Client, loader memory.VerseLoader, ttl time.Duration, logger zerolog.Logger) *VerseRepository {
	return &VerseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *VerseRepository) GetBank(ctx context.Context, bankID string) (domain.VerseBank, error) {
	if bank, ok := r.cached(ctx, bankID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.cached(ctx, bankID); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.VerseBank{}, err
		}

		data, err := json.Marshal(bank)
		if err != nil {
			return domain.VerseBank{}, fmt.Errorf("encode bank %s: %w", bankID, err)
		}
		if err := r.client.Set(ctx, bankKey(bankID), data, r.ttlWithJitter()).Err(); err != nil {
			r.logger.Warn().Err(err).Str("bank_id", bankID).Msg("cache verse bank")
		}
		return bank, nil
	})
	if err != nil {
		return domain.VerseBank{}, err
	}
	return result.(domain.VerseBank), nil
}

func (r *VerseRepository) cached(ctx context.Context, bankID string) (domain.VerseBank, bool) {
	data, err := r.client.Get(ctx, bankKey(bankID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("bank_id", bankID).Msg("read cached verse bank")
		}
		return domain.VerseBank{}, false
	}
	var bank domain.VerseBank
	if err := json.Unmarshal(data, &bank); err != nil || len(bank.Verses) == 0 {
		return domain.VerseBank{}, false
	}
	return bank, true
}

func bankKey(bankID string) string {
	return "quest:bank:" + bankID
}

func (r *VerseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
