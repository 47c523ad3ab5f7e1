// Package dedup keeps the set of already-processed posts, backed by the
// state store with an in-memory cache on the hot path.
package dedup

import (
	"context"
	"sync"

	"github.com/soukbot/tg-product-scraper/internal/observability"
)

// Repository is the slice of the state store the index needs.
type Repository interface {
	IsProcessed(ctx context.Context, uniqueID string) (bool, error)
	MarkProcessed(ctx context.Context, uniqueID string, channelID int64, messageID int) error
	ProcessedIDs(ctx context.Context) ([]string, error)
}

type Index struct {
	repo Repository

	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewIndex builds an index warmed with every id the repository already holds.
func NewIndex(ctx context.Context, repo Repository) (*Index, error) {
	ids, err := repo.ProcessedIDs(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	return &Index{repo: repo, seen: seen}, nil
}

// Seen reports whether the post was already processed. Cache misses fall
// through to the repository so concurrent writers are still caught.
func (i *Index) Seen(ctx context.Context, uniqueID string) (bool, error) {
	i.mu.RLock()
	_, ok := i.seen[uniqueID]
	i.mu.RUnlock()

	if ok {
		observability.DedupSkips.Inc()

		return true, nil
	}

	ok, err := i.repo.IsProcessed(ctx, uniqueID)
	if err != nil {
		return false, err
	}

	if ok {
		i.remember(uniqueID)
		observability.DedupSkips.Inc()
	}

	return ok, nil
}

// Mark records a processed post. Called only after the record was delivered,
// saved, or queued, so a crash mid-processing leaves the post eligible for a
// retry on the next run.
func (i *Index) Mark(ctx context.Context, uniqueID string, channelID int64, messageID int) error {
	if err := i.repo.MarkProcessed(ctx, uniqueID, channelID, messageID); err != nil {
		return err
	}

	i.remember(uniqueID)

	return nil
}

func (i *Index) remember(uniqueID string) {
	i.mu.Lock()
	i.seen[uniqueID] = struct{}{}
	i.mu.Unlock()
}
