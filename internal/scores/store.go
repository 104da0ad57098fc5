// Package scores keeps the current risk snapshot per entity.
package scores

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const lockStripes = 64

// Store persists snapshots and serves reads through a cache.
//
// Writes and cache fills for the same entity are serialized on a lock
// stripe, so a fill can never put back a row older than the one the last
// Upsert wrote through.
type Store struct {
	repo  domain.ScoreRepository
	cache domain.Cache
	ttl   time.Duration
	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// NewStore creates a store. cache may be nil to disable read-through caching.
func NewStore(repo domain.ScoreRepository, c domain.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{repo: repo, cache: c, ttl: ttl, now: time.Now}
}

func cacheKey(scope domain.Scope, entityID string) string {
	return "score:" + string(scope) + ":" + entityID
}

func (s *Store) lockFor(tenantID, key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) cacheSet(ctx context.Context, tenantID, key string, score *domain.RiskScore) {
	if err := cache.SetJSON(ctx, s.cache, tenantID, key, score, s.ttl); err != nil {
		slog.Warn("score cache write failed",
			"tenant_id", tenantID,
			"scope", score.Scope,
			"entity_id", score.EntityID,
			"error", err,
		)
	}
}

func (s *Store) cacheGet(ctx context.Context, tenantID, key, entityID string) (*domain.RiskScore, bool) {
	cached, ok, err := cache.GetJSON[domain.RiskScore](ctx, s.cache, tenantID, key)
	if err != nil {
		slog.Warn("score cache read failed", "tenant_id", tenantID, "entity_id", entityID, "error", err)
		return nil, false
	}
	return cached, ok
}

// Upsert replaces the entity's snapshot and returns the stored row.
// severity must be the band of score.
func (s *Store) Upsert(ctx context.Context, tenantID string, scope domain.Scope, entityID string,
	score float64, severity domain.Severity, triggered []string) (*domain.RiskScore, error) {
	if tenantID == "" || entityID == "" {
		return nil, fmt.Errorf("%w: tenantID and entityID are required", domain.ErrInvalidInput)
	}
	if score < domain.MinScore || score > domain.MaxScore {
		return nil, fmt.Errorf("%w: score %.2f out of range", domain.ErrInvalidInput, score)
	}
	if severity != domain.SeverityFor(score) {
		return nil, fmt.Errorf("%w: severity %s does not match score %.2f", domain.ErrInvalidInput, severity, score)
	}
	if triggered == nil {
		triggered = []string{}
	}

	key := cacheKey(scope, entityID)
	if s.cache != nil {
		mu := s.lockFor(tenantID, key)
		mu.Lock()
		defer mu.Unlock()
	}

	stored, err := s.repo.UpsertScore(ctx, &domain.RiskScore{
		TenantID:           tenantID,
		Scope:              scope,
		EntityID:           entityID,
		Score:              score,
		Severity:           severity,
		TriggeredRuleCodes: triggered,
		GeneratedAt:        s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// Write through the committed row. A failed write leaves the previous
	// entry, so drop it rather than serve it until the TTL runs out.
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, tenantID, key, stored, s.ttl); err != nil {
			slog.Warn("score cache write-through failed",
				"tenant_id", tenantID,
				"scope", scope,
				"entity_id", entityID,
				"error", err,
			)
			if err := s.cache.Delete(ctx, tenantID, key); err != nil {
				slog.Warn("score cache invalidation failed", "tenant_id", tenantID, "entity_id", entityID, "error", err)
			}
		}
	}
	return stored, nil
}

// Get returns the current snapshot, or ErrNotFound.
func (s *Store) Get(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.RiskScore, error) {
	if s.cache == nil {
		return s.repo.GetScore(ctx, tenantID, scope, entityID)
	}

	key := cacheKey(scope, entityID)
	if cached, ok := s.cacheGet(ctx, tenantID, key, entityID); ok {
		return cached, nil
	}

	mu := s.lockFor(tenantID, key)
	mu.Lock()
	defer mu.Unlock()

	// An Upsert may have written through while we waited.
	if cached, ok := s.cacheGet(ctx, tenantID, key, entityID); ok {
		return cached, nil
	}

	score, err := s.repo.GetScore(ctx, tenantID, scope, entityID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, tenantID, key, score)
	return score, nil
}

// List returns the tenant's snapshots for a scope, optionally by severity.
func (s *Store) List(ctx context.Context, tenantID string, scope domain.Scope, severity domain.Severity) ([]*domain.RiskScore, error) {
	if severity != "" && !severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidInput, severity)
	}
	return s.repo.ListScores(ctx, tenantID, scope, severity)
}
