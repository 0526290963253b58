package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingRepo counts reads so the tests can tell hit from miss.
type trackingRepo struct {
	mu      sync.Mutex
	records map[int64]*PlayerRecord
	byName  map[string]int64
	reads   int
}

func newTrackingRepo() *trackingRepo {
	return &trackingRepo{
		records: make(map[int64]*PlayerRecord),
		byName:  make(map[string]int64),
	}
}

func (r *trackingRepo) FindByID(_ context.Context, id int64) (*PlayerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *trackingRepo) FindByNameLower(ctx context.Context, nameLower string) (*PlayerRecord, error) {
	r.mu.Lock()
	id, ok := r.byName[nameLower]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *trackingRepo) Create(_ context.Context, rec *PlayerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = int64(len(r.records) + 1)
	cp := *rec
	r.records[rec.ID] = &cp
	r.byName[rec.NameLower] = rec.ID
	return nil
}

func (r *trackingRepo) Save(_ context.Context, rec *PlayerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *trackingRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *trackingRepo) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func newCacheUnderTest(t *testing.T) (*CachedPlayers, *trackingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newTrackingRepo()
	return NewCachedPlayers(repo, client, "ambonmud", time.Minute), repo, mr
}

func TestCachedPlayers_SecondReadIsAHit(t *testing.T) {
	ctx := context.Background()
	cache, repo, _ := newCacheUnderTest(t)

	rec := testRecord("alira")
	require.NoError(t, cache.Create(ctx, rec))
	baseline := repo.readCount()

	got, err := cache.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "alira", got.Name)
	assert.Equal(t, baseline, repo.readCount(), "Create primed the cache")

	_, err = cache.FindByNameLower(ctx, "alira")
	require.NoError(t, err)
	assert.Equal(t, baseline, repo.readCount())
}

func TestCachedPlayers_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, repo, _ := newCacheUnderTest(t)

	rec := testRecord("alira")
	require.NoError(t, cache.Create(ctx, rec))

	rec.HP = 3
	require.NoError(t, cache.Save(ctx, rec))

	before := repo.readCount()
	got, err := cache.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.HP, "read after save sees the new state")
	assert.Equal(t, before+1, repo.readCount(), "invalidation forces a store read")
}

func TestCachedPlayers_ExpiryFallsThrough(t *testing.T) {
	ctx := context.Background()
	cache, repo, mr := newCacheUnderTest(t)

	rec := testRecord("alira")
	require.NoError(t, cache.Create(ctx, rec))
	mr.FastForward(2 * time.Minute)

	before := repo.readCount()
	_, err := cache.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before+1, repo.readCount())
}

func TestCachedPlayers_RedisDownIsTransparent(t *testing.T) {
	ctx := context.Background()
	cache, repo, mr := newCacheUnderTest(t)

	rec := testRecord("alira")
	require.NoError(t, cache.Create(ctx, rec))
	mr.Close()

	got, err := cache.FindByID(ctx, rec.ID)
	require.NoError(t, err, "cache trouble must not surface")
	assert.Equal(t, "alira", got.Name)
	assert.Positive(t, repo.readCount())
}

func TestCachedPlayers_MissOnUnknownID(t *testing.T) {
	ctx := context.Background()
	cache, _, _ := newCacheUnderTest(t)

	_, err := cache.FindByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
