package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docspace/conversation-service/internal/history"
	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore serves messages from a map; only the two methods the retriever
// uses are implemented.
type stubStore struct {
	store.ConversationStore
	messages map[int64]model.Message
}

func (s *stubStore) MessageByID(_ context.Context, id int64) (*model.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, &store.NotFoundError{Resource: "message", ID: "unknown"}
	}
	return &m, nil
}

func (s *stubStore) MessagesByIDs(_ context.Context, ids []int64) ([]model.Message, error) {
	var out []model.Message
	// Deliberately reversed to prove the retriever re-sorts into path order.
	for i := len(ids) - 1; i >= 0; i-- {
		if m, ok := s.messages[ids[i]]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingCache struct {
	available bool
	getErr    error
	entries   map[int64][]model.Turn
	sets      int
}

func (c *recordingCache) Available() bool { return c.available }

func (c *recordingCache) Get(_ context.Context, tip int64) ([]model.Turn, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[tip], nil
}

func (c *recordingCache) Set(_ context.Context, tip int64, turns []model.Turn, _ time.Duration) error {
	if c.entries == nil {
		c.entries = map[int64][]model.Turn{}
	}
	c.entries[tip] = turns
	c.sets++
	return nil
}

func threadMessages() map[int64]model.Message {
	return map[int64]model.Message{
		1:  {ID: 1, Role: model.RoleUser, Content: "what is a rolling deploy?", Path: "1/"},
		5:  {ID: 5, Role: model.RoleAssistant, Content: "a gradual replacement of instances", Path: "1/5/"},
		20: {ID: 20, Role: model.RoleUser, Content: "and a canary?", Path: "1/5/20/"},
	}
}

func TestHistoryOrderedRootToTip(t *testing.T) {
	r := history.NewRetriever(&stubStore{messages: threadMessages()}, nil)

	turns, err := r.History(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "what is a rolling deploy?", turns[0].Content)
	assert.Equal(t, "a gradual replacement of instances", turns[1].Content)
	assert.Equal(t, "and a canary?", turns[2].Content)
}

func TestHistoryRootMessage(t *testing.T) {
	r := history.NewRetriever(&stubStore{messages: threadMessages()}, nil)

	turns, err := r.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "what is a rolling deploy?", turns[0].Content)
}

func TestHistoryUnknownMessage(t *testing.T) {
	r := history.NewRetriever(&stubStore{messages: threadMessages()}, nil)

	_, err := r.History(context.Background(), 404)
	var notFound *store.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestHistoryMissingAncestorFails(t *testing.T) {
	msgs := threadMessages()
	delete(msgs, 5)
	r := history.NewRetriever(&stubStore{messages: msgs}, nil)

	_, err := r.History(context.Background(), 20)
	var notFound *store.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestHistoryPopulatesCache(t *testing.T) {
	c := &recordingCache{available: true}
	r := history.NewRetriever(&stubStore{messages: threadMessages()}, c)

	_, err := r.History(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, c.sets)

	// Second call is served from the cache.
	turns, err := r.History(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, turns, 3)
	assert.Equal(t, 1, c.sets)
}

func TestHistoryCacheErrorFallsBackToStore(t *testing.T) {
	c := &recordingCache{available: true, getErr: errors.New("connection refused")}
	r := history.NewRetriever(&stubStore{messages: threadMessages()}, c)

	turns, err := r.History(context.Background(), 20)
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}
