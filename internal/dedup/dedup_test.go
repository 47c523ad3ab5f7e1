package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	ids       map[string]struct{}
	lookups   int
	markCalls int
}

func newMemRepo(ids ...string) *memRepo {
	r := &memRepo{ids: make(map[string]struct{})}
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}

	return r
}

func (r *memRepo) IsProcessed(_ context.Context, uniqueID string) (bool, error) {
	r.lookups++
	_, ok := r.ids[uniqueID]

	return ok, nil
}

func (r *memRepo) MarkProcessed(_ context.Context, uniqueID string, _ int64, _ int) error {
	r.markCalls++
	r.ids[uniqueID] = struct{}{}

	return nil
}

func (r *memRepo) ProcessedIDs(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}

	return out, nil
}

func TestIndexWarmsFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo("100_1", "100_2")

	idx, err := NewIndex(ctx, repo)
	require.NoError(t, err)

	seen, err := idx.Seen(ctx, "100_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Warmed ids never hit the repository.
	assert.Zero(t, repo.lookups)
}

func TestIndexMarkThenSeen(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	idx, err := NewIndex(ctx, repo)
	require.NoError(t, err)

	seen, err := idx.Seen(ctx, "100_9")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, idx.Mark(ctx, "100_9", 100, 9))
	assert.Equal(t, 1, repo.markCalls)

	seen, err = idx.Seen(ctx, "100_9")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestIndexFallsThroughOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()

	idx, err := NewIndex(ctx, repo)
	require.NoError(t, err)

	// Written behind the cache's back.
	repo.ids["200_5"] = struct{}{}

	seen, err := idx.Seen(ctx, "200_5")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, repo.lookups)

	// Second lookup is served from cache.
	_, err = idx.Seen(ctx, "200_5")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookups)
}
