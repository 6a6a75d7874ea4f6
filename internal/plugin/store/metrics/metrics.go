package metrics

import (
	"context"
	"time"

	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
)

// Wrap returns a ConversationStore that records StoreLatency for every operation.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ConversationStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) CreateSpace(ctx context.Context, name, description string) (*model.Space, error) {
	defer observe("create_space", time.Now())
	return m.inner.CreateSpace(ctx, name, description)
}

func (m *metricsStore) ListSpaces(ctx context.Context) ([]model.Space, error) {
	defer observe("list_spaces", time.Now())
	return m.inner.ListSpaces(ctx)
}

func (m *metricsStore) GetSpace(ctx context.Context, spaceID int64) (*model.Space, error) {
	defer observe("get_space", time.Now())
	return m.inner.GetSpace(ctx, spaceID)
}

func (m *metricsStore) CreateDocument(ctx context.Context, spaceID int64, filename, fileType, fileURL string) (*model.Document, error) {
	defer observe("create_document", time.Now())
	return m.inner.CreateDocument(ctx, spaceID, filename, fileType, fileURL)
}

func (m *metricsStore) ListDocuments(ctx context.Context, spaceID int64) ([]model.Document, error) {
	defer observe("list_documents", time.Now())
	return m.inner.ListDocuments(ctx, spaceID)
}

func (m *metricsStore) UpdateDocumentURL(ctx context.Context, documentID int64, fileURL string) error {
	defer observe("update_document_url", time.Now())
	return m.inner.UpdateDocumentURL(ctx, documentID, fileURL)
}

func (m *metricsStore) DocumentIDByFilename(ctx context.Context, spaceID int64, filename string) (*int64, error) {
	defer observe("document_id_by_filename", time.Now())
	return m.inner.DocumentIDByFilename(ctx, spaceID, filename)
}

func (m *metricsStore) CreateThread(ctx context.Context, spaceID int64, title string, creatorUserID int64) (*model.Thread, error) {
	defer observe("create_thread", time.Now())
	return m.inner.CreateThread(ctx, spaceID, title, creatorUserID)
}

func (m *metricsStore) ListThreads(ctx context.Context, spaceID int64) ([]model.Thread, error) {
	defer observe("list_threads", time.Now())
	return m.inner.ListThreads(ctx, spaceID)
}

func (m *metricsStore) GetThread(ctx context.Context, threadID int64) (*model.Thread, error) {
	defer observe("get_thread", time.Now())
	return m.inner.GetThread(ctx, threadID)
}

func (m *metricsStore) EnsureThread(ctx context.Context, threadID *int64, spaceID int64, seedTitle string, creatorUserID int64) (*model.Thread, error) {
	defer observe("ensure_thread", time.Now())
	return m.inner.EnsureThread(ctx, threadID, spaceID, seedTitle, creatorUserID)
}

func (m *metricsStore) ThreadsForDocument(ctx context.Context, documentID int64) ([]store.AnchoredThread, error) {
	defer observe("threads_for_document", time.Now())
	return m.inner.ThreadsForDocument(ctx, documentID)
}

func (m *metricsStore) AnchorThread(ctx context.Context, threadID, documentID int64, pageNumber int) error {
	defer observe("anchor_thread", time.Now())
	return m.inner.AnchorThread(ctx, threadID, documentID, pageNumber)
}

func (m *metricsStore) ListAnchors(ctx context.Context, threadID int64) ([]model.ContextAnchor, error) {
	defer observe("list_anchors", time.Now())
	return m.inner.ListAnchors(ctx, threadID)
}

func (m *metricsStore) AppendMessage(ctx context.Context, req store.AppendMessageRequest) (*model.Message, error) {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, req)
}

func (m *metricsStore) LastMessageID(ctx context.Context, threadID int64) (*int64, error) {
	defer observe("last_message_id", time.Now())
	return m.inner.LastMessageID(ctx, threadID)
}

func (m *metricsStore) MessageByID(ctx context.Context, messageID int64) (*model.Message, error) {
	defer observe("message_by_id", time.Now())
	return m.inner.MessageByID(ctx, messageID)
}

func (m *metricsStore) MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	defer observe("messages_by_ids", time.Now())
	return m.inner.MessagesByIDs(ctx, ids)
}

func (m *metricsStore) MessagesByPathPrefix(ctx context.Context, prefix string) ([]model.Message, error) {
	defer observe("messages_by_path_prefix", time.Now())
	return m.inner.MessagesByPathPrefix(ctx, prefix)
}

func (m *metricsStore) ListMessages(ctx context.Context, threadID int64) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, threadID)
}

func (m *metricsStore) BranchMessages(ctx context.Context, branchID int64) ([]model.Message, error) {
	defer observe("branch_messages", time.Now())
	return m.inner.BranchMessages(ctx, branchID)
}
