package sqlite_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/plugin/store/gormstore"
	"github.com/docspace/conversation-service/internal/plugin/store/sqlite"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.ConversationStore, context.Context) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))

	return gormstore.New(db), context.Background()
}

// setupThread creates a space and an empty thread for message tests.
func setupThread(t *testing.T, store registrystore.ConversationStore, ctx context.Context) *model.Thread {
	t.Helper()
	space, err := store.CreateSpace(ctx, "engineering", "")
	require.NoError(t, err)
	thread, err := store.CreateThread(ctx, space.ID, "deploy questions", 1)
	require.NoError(t, err)
	return thread
}

func appendUser(t *testing.T, store registrystore.ConversationStore, ctx context.Context, threadID int64, content string, parentID *int64, fork bool) *model.Message {
	t.Helper()
	msg, err := store.AppendMessage(ctx, registrystore.AppendMessageRequest{
		ThreadID:        threadID,
		UserID:          1,
		Role:            model.RoleUser,
		Content:         content,
		ParentMessageID: parentID,
		ForkOrigin:      fork,
	})
	require.NoError(t, err)
	return msg
}

func TestCreateAndGetSpace(t *testing.T) {
	store, ctx := setupTestStore(t)

	space, err := store.CreateSpace(ctx, "research", "papers and notes")
	require.NoError(t, err)
	assert.Equal(t, "research", space.Name)

	got, err := store.GetSpace(ctx, space.ID)
	require.NoError(t, err)
	assert.Equal(t, space.ID, got.ID)

	_, err = store.GetSpace(ctx, 9999)
	var notFound *registrystore.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestCreateSpaceRequiresName(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.CreateSpace(ctx, "  ", "")
	var validation *registrystore.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "name", validation.Field)
}

func TestThreadTitleTruncation(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)

	long := strings.Repeat("a", 60)
	thread, err := store.CreateThread(ctx, space.ID, long, 1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 47)+"...", thread.Title)

	short, err := store.CreateThread(ctx, space.ID, "short title", 1)
	require.NoError(t, err)
	assert.Equal(t, "short title", short.Title)
}

func TestEnsureThread(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)

	created, err := store.EnsureThread(ctx, nil, space.ID, "what is a canary deploy?", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.CreatorUserID)
	assert.True(t, created.IsPublic)

	same, err := store.EnsureThread(ctx, &created.ID, space.ID, "ignored", 7)
	require.NoError(t, err)
	assert.Equal(t, created.ID, same.ID)

	missing := int64(9999)
	_, err = store.EnsureThread(ctx, &missing, space.ID, "", 7)
	var notFound *registrystore.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestAppendMessagePathInvariant(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	assert.Nil(t, root.ParentMessageID)
	assert.Nil(t, root.BranchID)
	require.NotEmpty(t, root.Path)

	reply := appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)
	assert.Equal(t, root.Path+pathSegment(reply.ID), reply.Path)

	third := appendUser(t, store, ctx, thread.ID, "q2", &reply.ID, false)
	assert.Equal(t, reply.Path+pathSegment(third.ID), third.Path)
	assert.Nil(t, third.BranchID)
}

func pathSegment(id int64) string {
	return strconv.FormatInt(id, 10) + "/"
}

func TestForkOriginSelfReference(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	a1 := appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)
	_ = appendUser(t, store, ctx, thread.ID, "q2", &a1.ID, false)

	// Replying to the root while q2 is the tip forks.
	fork := appendUser(t, store, ctx, thread.ID, "alt question", &root.ID, true)
	require.NotNil(t, fork.BranchID)
	assert.Equal(t, fork.ID, *fork.BranchID)
	assert.True(t, fork.IsForkOrigin())
	assert.Equal(t, root.Path+pathSegment(fork.ID), fork.Path)
}

func TestBranchInheritance(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	_ = appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)

	fork := appendUser(t, store, ctx, thread.ID, "alt", &root.ID, true)
	child := appendUser(t, store, ctx, thread.ID, "alt reply", &fork.ID, false)
	grandchild := appendUser(t, store, ctx, thread.ID, "alt followup", &child.ID, false)

	require.NotNil(t, child.BranchID)
	assert.Equal(t, fork.ID, *child.BranchID)
	require.NotNil(t, grandchild.BranchID)
	assert.Equal(t, fork.ID, *grandchild.BranchID)
	assert.False(t, child.IsForkOrigin())
}

func TestAppendMessageParentNotFound(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	missing := int64(404)
	_, err := store.AppendMessage(ctx, registrystore.AppendMessageRequest{
		ThreadID:        thread.ID,
		UserID:          1,
		Role:            model.RoleUser,
		Content:         "hi",
		ParentMessageID: &missing,
	})
	var parentNotFound *registrystore.ParentNotFoundError
	require.True(t, errors.As(err, &parentNotFound))
	assert.Equal(t, missing, parentNotFound.ParentMessageID)

	// No partial row left behind.
	last, err := store.LastMessageID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestAppendMessageThreadNotFound(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.AppendMessage(ctx, registrystore.AppendMessageRequest{
		ThreadID: 9999,
		UserID:   1,
		Role:     model.RoleUser,
		Content:  "hi",
	})
	var notFound *registrystore.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestAppendMessageValidation(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	var validation *registrystore.ValidationError

	_, err := store.AppendMessage(ctx, registrystore.AppendMessageRequest{
		ThreadID: thread.ID, UserID: 1, Role: "robot", Content: "hi",
	})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "role", validation.Field)

	_, err = store.AppendMessage(ctx, registrystore.AppendMessageRequest{
		ThreadID: thread.ID, UserID: 1, Role: model.RoleUser, Content: "  ",
	})
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "content", validation.Field)
}

func TestLastMessageIDAcrossBranches(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	last, err := store.LastMessageID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	_ = appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)
	fork := appendUser(t, store, ctx, thread.ID, "alt", &root.ID, true)

	last, err = store.LastMessageID(ctx, thread.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, fork.ID, *last)
}

func TestMessagesByPathPrefix(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	_ = appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)
	fork := appendUser(t, store, ctx, thread.ID, "alt", &root.ID, true)

	// Everything descends from the root.
	descendants, err := store.MessagesByPathPrefix(ctx, root.Path)
	require.NoError(t, err)
	assert.Len(t, descendants, 3)

	// Only the fork descends from the fork origin's path.
	forkLine, err := store.MessagesByPathPrefix(ctx, fork.Path)
	require.NoError(t, err)
	require.Len(t, forkLine, 1)
	assert.Equal(t, fork.ID, forkLine[0].ID)
}

func TestBranchMessagesOrdered(t *testing.T) {
	store, ctx := setupTestStore(t)
	thread := setupThread(t, store, ctx)

	root := appendUser(t, store, ctx, thread.ID, "q1", nil, false)
	a1 := appendUser(t, store, ctx, thread.ID, "a1", &root.ID, false)
	_ = appendUser(t, store, ctx, thread.ID, "q2", &a1.ID, false)

	fork := appendUser(t, store, ctx, thread.ID, "alt", &root.ID, true)
	forkReply := appendUser(t, store, ctx, thread.ID, "alt reply", &fork.ID, false)

	line, err := store.BranchMessages(ctx, fork.ID)
	require.NoError(t, err)
	require.Len(t, line, 3)
	assert.Equal(t, root.ID, line[0].ID)
	assert.Equal(t, fork.ID, line[1].ID)
	assert.Equal(t, forkReply.ID, line[2].ID)

	_, err = store.BranchMessages(ctx, 9999)
	var notFound *registrystore.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestAnchorThreadIdempotent(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)
	thread, err := store.CreateThread(ctx, space.ID, "t", 1)
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, space.ID, "paper.pdf", "pdf", "")
	require.NoError(t, err)

	require.NoError(t, store.AnchorThread(ctx, thread.ID, doc.ID, 3))
	// Same triple again is a no-op, not an error.
	require.NoError(t, store.AnchorThread(ctx, thread.ID, doc.ID, 3))
	// A different page is a new anchor.
	require.NoError(t, store.AnchorThread(ctx, thread.ID, doc.ID, 4))

	anchors, err := store.ListAnchors(ctx, thread.ID)
	require.NoError(t, err)
	assert.Len(t, anchors, 2)
}

func TestAnchorThreadDefaultsPage(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)
	thread, err := store.CreateThread(ctx, space.ID, "t", 1)
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, space.ID, "paper.pdf", "pdf", "")
	require.NoError(t, err)

	require.NoError(t, store.AnchorThread(ctx, thread.ID, doc.ID, 0))
	anchors, err := store.ListAnchors(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, 1, anchors[0].PageNumber)
}

func TestDocumentIDByFilename(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, space.ID, "uploads/2026/annual report.pdf", "pdf", "")
	require.NoError(t, err)

	// Temp prefix and URL encoding are stripped before matching.
	id, err := store.DocumentIDByFilename(ctx, space.ID, "temp_annual%20report.pdf")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, doc.ID, *id)

	id, err = store.DocumentIDByFilename(ctx, space.ID, "missing.pdf")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = store.DocumentIDByFilename(ctx, space.ID, "")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestThreadsForDocument(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, space.ID, "paper.pdf", "pdf", "")
	require.NoError(t, err)

	t1, err := store.CreateThread(ctx, space.ID, "page five", 1)
	require.NoError(t, err)
	t2, err := store.CreateThread(ctx, space.ID, "page two", 1)
	require.NoError(t, err)

	require.NoError(t, store.AnchorThread(ctx, t1.ID, doc.ID, 5))
	require.NoError(t, store.AnchorThread(ctx, t2.ID, doc.ID, 2))

	threads, err := store.ThreadsForDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, 2, threads[0].PageNumber)
	assert.Equal(t, t2.ID, threads[0].Thread.ID)
	assert.Equal(t, 5, threads[1].PageNumber)
}

func TestUpdateDocumentURL(t *testing.T) {
	store, ctx := setupTestStore(t)
	space, err := store.CreateSpace(ctx, "s", "")
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, space.ID, "paper.pdf", "pdf", "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateDocumentURL(ctx, doc.ID, "https://files.example.com/paper.pdf"))

	docs, err := store.ListDocuments(ctx, space.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://files.example.com/paper.pdf", docs[0].FileURL)

	err = store.UpdateDocumentURL(ctx, 9999, "x")
	var notFound *registrystore.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
