package store

import (
	"context"
	"fmt"
	"time"

	"github.com/docspace/conversation-service/internal/model"
)

// AppendMessageRequest is the input for the two-phase message append.
type AppendMessageRequest struct {
	ThreadID        int64
	UserID          int64
	Role            model.Role
	Content         string
	ParentMessageID *int64
	// ForkOrigin marks the message as the first of a new branch; its branch
	// id becomes its own message id instead of the inherited parent branch.
	ForkOrigin bool
}

// AnchoredThread is a thread joined with the anchor that links it to a document.
type AnchoredThread struct {
	Thread     model.Thread `json:"thread"`
	PageNumber int          `json:"pageNumber"`
}

// ConversationStore is the primary data access interface for the
// branching conversation store.
type ConversationStore interface {
	// Spaces
	CreateSpace(ctx context.Context, name, description string) (*model.Space, error)
	ListSpaces(ctx context.Context) ([]model.Space, error)
	GetSpace(ctx context.Context, spaceID int64) (*model.Space, error)

	// Documents
	CreateDocument(ctx context.Context, spaceID int64, filename, fileType, fileURL string) (*model.Document, error)
	ListDocuments(ctx context.Context, spaceID int64) ([]model.Document, error)
	UpdateDocumentURL(ctx context.Context, documentID int64, fileURL string) error
	// DocumentIDByFilename resolves a filename reported by the generation
	// collaborator back to a document in the space. The match is a
	// best-effort suffix match; (nil, nil) means no document matched.
	DocumentIDByFilename(ctx context.Context, spaceID int64, filename string) (*int64, error)

	// Threads
	CreateThread(ctx context.Context, spaceID int64, title string, creatorUserID int64) (*model.Thread, error)
	ListThreads(ctx context.Context, spaceID int64) ([]model.Thread, error)
	GetThread(ctx context.Context, threadID int64) (*model.Thread, error)
	// EnsureThread returns the existing thread when threadID is non-nil, or
	// creates a new one titled from seedTitle. Long seed titles are
	// truncated to 47 characters plus an ellipsis.
	EnsureThread(ctx context.Context, threadID *int64, spaceID int64, seedTitle string, creatorUserID int64) (*model.Thread, error)
	// ThreadsForDocument lists threads anchored to a document, ordered by
	// page number then creation time (newest first within a page).
	ThreadsForDocument(ctx context.Context, documentID int64) ([]AnchoredThread, error)

	// Anchors
	// AnchorThread is idempotent: re-anchoring an existing
	// (thread, document, page) triple is a no-op, never an error.
	AnchorThread(ctx context.Context, threadID, documentID int64, pageNumber int) error
	ListAnchors(ctx context.Context, threadID int64) ([]model.ContextAnchor, error)

	// Messages
	AppendMessage(ctx context.Context, req AppendMessageRequest) (*model.Message, error)
	// LastMessageID returns the most recently created message id in the
	// thread regardless of branch, or nil for an empty thread.
	LastMessageID(ctx context.Context, threadID int64) (*int64, error)
	MessageByID(ctx context.Context, messageID int64) (*model.Message, error)
	// MessagesByIDs bulk-fetches messages; result order is unspecified.
	MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error)
	// MessagesByPathPrefix lists messages whose materialized path starts
	// with the given prefix, ordered by id.
	MessagesByPathPrefix(ctx context.Context, prefix string) ([]model.Message, error)
	ListMessages(ctx context.Context, threadID int64) ([]model.Message, error)
	// BranchMessages returns the ordered line from the thread root through
	// the tip of the branch identified by its fork-origin message id.
	BranchMessages(ctx context.Context, branchID int64) ([]model.Message, error)
}

// Clock supplies timestamps for created rows. Stores default to time.Now;
// tests may substitute a fixed clock.
type Clock func() time.Time

// Loader creates a ConversationStore from config carried in the context.
type Loader func(ctx context.Context) (ConversationStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
