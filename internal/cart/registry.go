package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CleanupInterval is how often idle stores are evicted.
const CleanupInterval = 30 * time.Second

type entry struct {
	store      *Store
	lastAccess time.Time
}

// Registry owns one Store per browser session. Stores are hydrated on first
// use and dropped from memory after idleTTL without access; their persisted
// copy stays in Storage.
type Registry struct {
	storage Storage
	opts    []Option
	idleTTL time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	stores map[string]*entry
	sfg    singleflight.Group // one hydration per session

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewRegistry(storage Storage, idleTTL time.Duration, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		storage:     storage,
		opts:        append([]Option{WithLogger(log)}, opts...),
		idleTTL:     idleTTL,
		log:         log,
		stores:      make(map[string]*entry),
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Get returns the session's store, hydrating it from storage if needed.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	r.mu.Lock()
	if e, ok := r.stores[sessionID]; ok {
		e.lastAccess = time.Now()
		r.mu.Unlock()
		return e.store, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		// shared by every waiter, so it must not die with the first caller
		store, err := Open(context.WithoutCancel(ctx), r.storage, sessionKey(sessionID), r.opts...)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.stores[sessionID]; ok {
			return e.store, nil
		}
		r.stores[sessionID] = &entry{store: store, lastAccess: time.Now()}
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Len reports the number of stores held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Close stops the cleanup loop.
func (r *Registry) Close() {
	close(r.stopCleanup)
	r.wg.Wait()
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(time.Now())
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.stores {
		if now.Sub(e.lastAccess) > r.idleTTL {
			delete(r.stores, id)
			r.log.Debug("evicted idle cart", zap.String("session_id", id))
		}
	}
}

func sessionKey(sessionID string) string {
	return StorageKey + ":" + sessionID
}
