// Package resolver matches free text against a tenant's equipment.
package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

const (
	// DefaultTTL is how long a tenant's corpus snapshot is served before
	// it is reloaded.
	DefaultTTL = 5 * time.Minute

	// ConfidentScore is the score a match must exceed to be used as an
	// equipment reference without disambiguation.
	ConfidentScore = 0.6

	// SearchLimit caps Search results.
	SearchLimit = 10

	exactCodeScore = 1.0
	exactNameScore = 0.95
)

// Match is an equipment paired with its similarity to a query. Equipment is
// nil when the corpus is empty.
type Match struct {
	Equipment *model.Equipment `json:"equipment,omitempty"`
	Score     float64          `json:"score"`
}

// Confident reports whether the match is good enough to act on.
func (m Match) Confident() bool {
	return m.Equipment != nil && m.Score > ConfidentScore
}

type entry struct {
	equipment model.Equipment
	code      []rune
	name      []rune
}

// match returns a copy so callers cannot modify the shared snapshot.
func (e *entry) match(score float64) Match {
	eq := e.equipment
	return Match{Equipment: &eq, Score: score}
}

type snapshot struct {
	loadedAt time.Time
	entries  []entry
}

// Resolver holds one corpus snapshot per tenant. Snapshots older than the
// TTL are reloaded on next use; concurrent reloads of a tenant are merged.
type Resolver struct {
	db    *sql.DB
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu        sync.RWMutex
	snapshots map[int64]*snapshot
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets the snapshot lifetime.
func WithTTL(ttl time.Duration) Option { return func(r *Resolver) { r.ttl = ttl } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// New creates a Resolver reading equipment from db.
func New(db *sql.DB, opts ...Option) *Resolver {
	r := &Resolver{
		db:        db,
		ttl:       DefaultTTL,
		now:       time.Now,
		snapshots: make(map[int64]*snapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func fold(s string) []rune {
	return []rune(cases.Fold().String(strings.TrimSpace(s)))
}

// Resolve returns the equipment of a tenant that best matches query. An
// exact code match scores 1.0 and an exact name match 0.95, both ignoring
// case. Otherwise every item is scored by the better of its code and name
// similarity and the best item wins; ties go to the item listed first.
func (r *Resolver) Resolve(ctx context.Context, tenantID int64, query string) (Match, error) {
	snap, err := r.snapshot(ctx, tenantID)
	if err != nil {
		return Match{}, err
	}

	q := fold(query)
	if len(q) == 0 {
		return Match{}, nil
	}

	for i := range snap.entries {
		if string(snap.entries[i].code) == string(q) {
			return snap.entries[i].match(exactCodeScore), nil
		}
	}
	for i := range snap.entries {
		if string(snap.entries[i].name) == string(q) {
			return snap.entries[i].match(exactNameScore), nil
		}
	}

	var best Match
	for i := range snap.entries {
		e := &snap.entries[i]
		score := max(similarity(q, e.code), similarity(q, e.name))
		if best.Equipment == nil || score > best.Score {
			best = e.match(score)
		}
	}
	return best, nil
}

// Search returns up to SearchLimit equipment whose name, code or
// description contains query. It always reads the store.
func (r *Resolver) Search(ctx context.Context, tenantID int64, query string) ([]model.Equipment, error) {
	return store.SearchEquipment(ctx, r.db, tenantID, query, SearchLimit)
}

// Invalidate drops the tenant's snapshot so the next use reloads it.
func (r *Resolver) Invalidate(tenantID int64) {
	r.mu.Lock()
	delete(r.snapshots, tenantID)
	r.mu.Unlock()
}

func (r *Resolver) snapshot(ctx context.Context, tenantID int64) (*snapshot, error) {
	r.mu.RLock()
	snap := r.snapshots[tenantID]
	r.mu.RUnlock()
	if snap != nil && r.now().Sub(snap.loadedAt) < r.ttl {
		return snap, nil
	}

	// The load is shared by every waiting caller and outlives any one of them.
	v, err, _ := r.group.Do(strconv.FormatInt(tenantID, 10), func() (any, error) {
		return r.load(context.WithoutCancel(ctx), tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

func (r *Resolver) load(ctx context.Context, tenantID int64) (*snapshot, error) {
	list, err := store.ListEquipment(ctx, r.db, store.EquipmentFilter{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("loading equipment corpus: %w", err)
	}

	snap := &snapshot{loadedAt: r.now(), entries: make([]entry, len(list))}
	for i, e := range list {
		snap.entries[i] = entry{equipment: e, code: fold(e.Code), name: fold(e.Name)}
	}

	r.mu.Lock()
	r.snapshots[tenantID] = snap
	r.mu.Unlock()
	return snap, nil
}
