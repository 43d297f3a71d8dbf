package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/coderr"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/metrics"
	"github.com/perchdb/perch/internal/query"
)

// DefaultTTL is the idle budget an engine gets when the caller does
// not pick one.
const DefaultTTL = 600 * time.Second

type entry struct {
	q        *query.Query
	database string
	ttl      time.Duration
	expires  time.Time
	isOpen   bool
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Engines   int    // Entries currently registered
	Open      int    // Entries currently leased out
	Inserted  uint64 // Total inserts since creation
	Destroyed uint64 // Total explicit destroys
	Expired   uint64 // Total sweeper evictions
}

// QueryRegistry owns parked execution engines keyed by engine id.
// It never iterates engines on behalf of queries; every access is by
// id, so concurrent queries cannot see each other's engines.
type QueryRegistry struct {
	mu        sync.RWMutex
	entries   map[uint64]*entry
	inserted  uint64
	destroyed uint64
	expired   uint64
}

// New creates an empty registry.
func New() *QueryRegistry {
	return &QueryRegistry{
		entries: make(map[uint64]*entry),
	}
}

// Insert parks a query's engine under id with the given idle budget.
// A ttl of zero means DefaultTTL. Inserting an id twice is an error.
func (r *QueryRegistry) Insert(id uint64, q *query.Query, ttl time.Duration) error {
	if q == nil {
		return ErrNilQuery.WithCausef("engine:%d", id)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return ErrDuplicateEngine.WithCausef("engine:%d", id)
	}
	r.entries[id] = &entry{
		q:        q,
		database: q.Database(),
		ttl:      ttl,
		expires:  time.Now().Add(ttl),
	}
	r.inserted++
	metrics.EnginesRegistered.Inc()
	return nil
}

// Open leases the engine registered under id for one exchange. While
// open it cannot expire or be destroyed. Callers must Close it.
func (r *QueryRegistry) Open(database string, id uint64) (*query.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.database != database {
		return nil, ErrEngineNotFound.WithCausef("database:%s, engine:%d", database, id)
	}
	if e.isOpen {
		return nil, ErrEngineInUse.WithCausef("engine:%d", id)
	}
	e.isOpen = true
	return e.q, nil
}

// Close returns a lease and restarts the idle clock.
func (r *QueryRegistry) Close(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrEngineNotFound.WithCausef("engine:%d", id)
	}
	e.isOpen = false
	e.expires = time.Now().Add(e.ttl)
	return nil
}

// Destroy drops the engine registered under id. The database name
// must match the one the engine was inserted under; ids are never
// guessable across databases. reason records why the engine went
// away and only shows up in the log line.
func (r *QueryRegistry) Destroy(database string, id uint64, reason coderr.Code) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.database != database {
		r.mu.Unlock()
		return ErrEngineNotFound.WithCausef("database:%s, engine:%d", database, id)
	}
	if e.isOpen {
		r.mu.Unlock()
		return ErrEngineInUse.WithCausef("engine:%d", id)
	}
	delete(r.entries, id)
	r.destroyed++
	r.mu.Unlock()

	metrics.EnginesRegistered.Dec()
	log.Debug("engine destroyed",
		zap.Uint64("engine", id),
		zap.String("database", database),
		zap.Int("reason", int(reason)))
	return nil
}

// Contains reports whether an engine is registered under id.
func (r *QueryRegistry) Contains(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// ExpireQueries drops every entry whose idle budget ran out before
// now, skipping open entries. Returns the number of evictions.
func (r *QueryRegistry) ExpireQueries(now time.Time) int {
	r.mu.Lock()
	var evicted []uint64
	for id, e := range r.entries {
		if !e.isOpen && now.After(e.expires) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.expired += uint64(len(evicted))
	r.mu.Unlock()

	for _, id := range evicted {
		metrics.EnginesRegistered.Dec()
		metrics.EngineEvictions.Inc()
		log.Info("engine expired", zap.Uint64("engine", id))
	}
	return len(evicted)
}

// Run is the sweep loop. It blocks until the context is canceled,
// expiring idle engines every interval.
func (r *QueryRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("registry sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			r.ExpireQueries(time.Now())
		case <-ctx.Done():
			log.Info("registry sweeper stopping")
			return
		}
	}
}

// Stats returns a point-in-time summary.
func (r *QueryRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := 0
	for _, e := range r.entries {
		if e.isOpen {
			open++
		}
	}
	return Stats{
		Engines:   len(r.entries),
		Open:      open,
		Inserted:  r.inserted,
		Destroyed: r.destroyed,
		Expired:   r.expired,
	}
}
