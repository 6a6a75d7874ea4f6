package noop

import (
	"context"
	"time"

	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.HistoryCache, error) {
			return &noopHistoryCache{}, nil
		},
	})
}

type noopHistoryCache struct{}

func (n *noopHistoryCache) Available() bool { return false }
func (n *noopHistoryCache) Get(_ context.Context, _ int64) ([]model.Turn, error) {
	return nil, nil
}
func (n *noopHistoryCache) Set(_ context.Context, _ int64, _ []model.Turn, _ time.Duration) error {
	return nil
}

var _ cache.HistoryCache = (*noopHistoryCache)(nil)
