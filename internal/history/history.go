// Package history reconstructs the conversation line leading to a message.
// The message's materialized path names every ancestor, so the whole history
// is two queries: one point read, one bulk fetch.
package history

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/pathcodec"
	"github.com/docspace/conversation-service/internal/registry/cache"
	"github.com/docspace/conversation-service/internal/registry/store"
)

// DefaultCacheTTL bounds memory held by cached histories. Histories are
// immutable, so the TTL is about eviction, not staleness.
const DefaultCacheTTL = time.Hour

type Retriever struct {
	store    store.ConversationStore
	cache    cache.HistoryCache
	cacheTTL time.Duration
}

// NewRetriever builds a Retriever. cache may be nil or unavailable; history
// retrieval then always hits the store.
func NewRetriever(s store.ConversationStore, c cache.HistoryCache) *Retriever {
	return &Retriever{store: s, cache: c, cacheTTL: DefaultCacheTTL}
}

// WithTTL overrides the cache TTL for stored histories.
func (r *Retriever) WithTTL(ttl time.Duration) *Retriever {
	if ttl > 0 {
		r.cacheTTL = ttl
	}
	return r
}

// History returns the ordered {role, content} turns from the thread root
// through the given message, inclusive. Cache failures are logged and the
// store is consulted instead.
func (r *Retriever) History(ctx context.Context, messageID int64) ([]model.Turn, error) {
	if r.cacheUsable() {
		turns, err := r.cache.Get(ctx, messageID)
		if err != nil {
			log.Warn("history cache read failed", "messageID", messageID, "error", err)
		} else if turns != nil {
			return turns, nil
		}
	}

	turns, err := r.load(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if r.cacheUsable() {
		if err := r.cache.Set(ctx, messageID, turns, r.cacheTTL); err != nil {
			log.Warn("history cache write failed", "messageID", messageID, "error", err)
		}
	}
	return turns, nil
}

func (r *Retriever) load(ctx context.Context, messageID int64) ([]model.Turn, error) {
	msg, err := r.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	ids, err := pathcodec.Decode(msg.Path)
	if err != nil {
		return nil, err
	}

	messages, err := r.store.MessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// The bulk fetch does not promise path order; re-sort by the decoded
	// ancestor chain. A missing ancestor would corrupt the history, so it
	// fails instead of skipping.
	byID := make(map[int64]*model.Message, len(messages))
	for i := range messages {
		byID[messages[i].ID] = &messages[i]
	}
	turns := make([]model.Turn, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, &store.NotFoundError{Resource: "message", ID: strconv.FormatInt(id, 10)}
		}
		turns = append(turns, model.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

func (r *Retriever) cacheUsable() bool {
	return r.cache != nil && r.cache.Available()
}
