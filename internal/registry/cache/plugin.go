package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/docspace/conversation-service/internal/model"
)

// HistoryCache caches resolved branch histories. Messages are append-only, so
// a cached history for a given tip message can never go stale; entries expire
// by TTL only to bound memory.
type HistoryCache interface {
	Available() bool
	Get(ctx context.Context, tipMessageID int64) ([]model.Turn, error)
	Set(ctx context.Context, tipMessageID int64, turns []model.Turn, ttl time.Duration) error
}

// Loader creates a cache from config carried in the context.
type Loader func(ctx context.Context) (HistoryCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
