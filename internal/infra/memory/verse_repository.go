package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"hifdh-quest-service/internal/domain"
)

// VerseLoader fetches a verse bank from a backing store (e.g., Postgres).
type VerseLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.VerseBank, error)
}

// VerseRepository caches verse banks with TTL to avoid repeated DB hits.
type VerseRepository struct {
	loader VerseLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.VerseBank
	expiresAt time.Time
}

func NewVerseRepository(loader VerseLoader, ttl time.Duration) *VerseRepository {
	return NewVerseRepositoryWithClock(loader, ttl, clockwork.NewRealClock())
}

// NewVerseRepositoryWithClock is used by tests to control expiry.
func NewVerseRepositoryWithClock(loader VerseLoader, ttl time.Duration, clock clockwork.Clock) *VerseRepository {
	return &VerseRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *VerseRepository) GetBank(ctx context.Context, bankID string) (domain.VerseBank, error) {
	if bank, ok := r.lookup(bankID); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		if bank, ok := r.lookup(bankID); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.VerseBank{}, err
		}

		r.mu.Lock()
		r.cache[bankID] = cachedBank{
			bank:      bank,
			expiresAt: r.clock.Now().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.VerseBank{}, err
	}
	return result.(domain.VerseBank), nil
}

func (r *VerseRepository) lookup(bankID string) (domain.VerseBank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[bankID]
	if !ok || !entry.expiresAt.After(r.clock.Now()) {
		return domain.VerseBank{}, false
	}
	return entry.bank, true
}

func (r *VerseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticVerseLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticVerseLoader struct {
	banks map[string]domain.VerseBank
}

func NewStaticVerseLoader(banks map[string]domain.VerseBank) *StaticVerseLoader {
	return &StaticVerseLoader{banks: banks}
}

func (l *StaticVerseLoader) LoadBank(_ context.Context, bankID string) (domain.VerseBank, error) {
	if bank, ok := l.banks[bankID]; ok {
		return bank, nil
	}
	return domain.VerseBank{}, domain.ErrBankNotFound
}
