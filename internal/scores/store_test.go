package scores

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// countingRepo wraps a ScoreRepository and counts reads.
type countingRepo struct {
	domain.ScoreRepository
	mu    sync.Mutex
	reads int
}

func (c *countingRepo) GetScore(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.RiskScore, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.ScoreRepository.GetScore(ctx, tenantID, scope, entityID)
}

// gatedRepo holds the first GetScore after reading, until release is closed.
type gatedRepo struct {
	domain.ScoreRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepo) GetScore(ctx context.Context, tenantID string, scope domain.Scope, entityID string) (*domain.RiskScore, error) {
	score, err := g.ScoreRepository.GetScore(ctx, tenantID, scope, entityID)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return score, err
}

func newStore(t *testing.T) (*Store, *countingRepo) {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "scores.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	counting := &countingRepo{ScoreRepository: repo}
	return NewStore(counting, cache.NewLRUCache(100), time.Minute), counting
}

func TestUpsertAndGet(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	stored, err := store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-1", 80, domain.SeverityHigh, []string{"DUP-001", "DOC-AMT-001"})
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.Score)
	assert.False(t, stored.GeneratedAt.IsZero())

	first, err := store.Get(ctx, "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "t1", domain.ScopeDocument, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, first.TriggeredRuleCodes, second.TriggeredRuleCodes)
	assert.Equal(t, 0, repo.reads, "upsert writes the row through to the cache")
}

func TestGetFillsCacheOnMiss(t *testing.T) {
	store, repo := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-1", 40, domain.SeverityMedium, []string{"DUP-001"})
	require.NoError(t, err)
	require.NoError(t, store.cache.Delete(ctx, "t1", cacheKey(domain.ScopeDocument, "doc-1")))

	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, "t1", domain.ScopeDocument, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 40.0, got.Score)
	}
	assert.Equal(t, 1, repo.reads)
}

func TestUpsertReplacesCachedSnapshot(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "t1", domain.ScopeCompany, "co-1", 70, domain.SeverityHigh, []string{"CMP-HRD-001"})
	require.NoError(t, err)
	_, err = store.Get(ctx, "t1", domain.ScopeCompany, "co-1")
	require.NoError(t, err)

	_, err = store.Upsert(ctx, "t1", domain.ScopeCompany, "co-1", 0, domain.SeverityLow, nil)
	require.NoError(t, err)

	got, err := store.Get(ctx, "t1", domain.ScopeCompany, "co-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, domain.SeverityLow, got.Severity)
	assert.Empty(t, got.TriggeredRuleCodes)
}

func TestUpsertRejectsInconsistentSnapshot(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-1", 101, domain.SeverityHigh, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-1", 30, domain.SeverityMedium, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.Upsert(ctx, "", domain.ScopeDocument, "doc-1", 0, domain.SeverityLow, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetMissingAndOtherTenant(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-1", 10, domain.SeverityLow, nil)
	require.NoError(t, err)

	_, err = store.Get(ctx, "t2", domain.ScopeDocument, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Get(ctx, "t1", domain.ScopeDocument, "doc-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListHigh(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i, score := range []float64{10, 50, 70, 95} {
		_, err := store.Upsert(ctx, "t1", domain.ScopeDocument, fmt.Sprintf("doc-%d", i), score, domain.SeverityFor(score), nil)
		require.NoError(t, err)
	}

	high, err := store.List(ctx, "t1", domain.ScopeDocument, domain.SeverityHigh)
	require.NoError(t, err)
	assert.Len(t, high, 2)

	all, err := store.List(ctx, "t1", domain.ScopeDocument, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = store.List(ctx, "t1", domain.ScopeDocument, "critical")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConcurrentUpsertsLeaveOneRow(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := float64(i * 10)
			_, err := store.Upsert(ctx, "t1", domain.ScopeDocument, "doc-race", score, domain.SeverityFor(score), []string{fmt.Sprintf("R-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx, "t1", domain.ScopeDocument, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Whichever writer won, its columns are consistent with each other.
	got := all[0]
	require.Len(t, got.TriggeredRuleCodes, 1)
	assert.Equal(t, fmt.Sprintf("R-%d", int(got.Score/10)), got.TriggeredRuleCodes[0])
	assert.Equal(t, domain.SeverityFor(got.Score), got.Severity)
}

func TestSlowFillDoesNotResurrectOldSnapshot(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "gated.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	gated := &gatedRepo{ScoreRepository: repo, entered: make(chan struct{}), release: make(chan struct{})}
	c := cache.NewLRUCache(100)
	store := NewStore(gated, c, time.Minute)
	ctx := context.Background()

	_, err = store.Upsert(ctx, "t1", domain.ScopeCompany, "co-1", 70, domain.SeverityHigh, []string{"CMP-HRD-001"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "t1", cacheKey(domain.ScopeCompany, "co-1")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Reads the 70 row, then stalls before filling the cache.
		_, err := store.Get(ctx, "t1", domain.ScopeCompany, "co-1")
		assert.NoError(t, err)
	}()
	<-gated.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := store.Upsert(ctx, "t1", domain.ScopeCompany, "co-1", 0, domain.SeverityLow, nil)
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	got, err := store.Get(ctx, "t1", domain.ScopeCompany, "co-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, domain.SeverityLow, got.Severity)

	stored, err := repo.GetScore(ctx, "t1", domain.ScopeCompany, "co-1")
	require.NoError(t, err)
	assert.Equal(t, stored.Score, got.Score)
}
