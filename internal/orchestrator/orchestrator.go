// Package orchestrator coordinates a full conversation turn: thread
// resolution, fork placement, the two message appends, and best-effort
// document anchoring around the responder call.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docspace/conversation-service/internal/branch"
	"github.com/docspace/conversation-service/internal/history"
	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/registry/generate"
	"github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
)

// GenerationError reports a responder failure that happened after the user
// message was durably stored. The caller can retry generation against the
// recorded message instead of re-sending the question.
type GenerationError struct {
	ThreadID  int64
	MessageID int64
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed for message %d in thread %d: %v", e.MessageID, e.ThreadID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProcessMessageRequest is one user turn.
type ProcessMessageRequest struct {
	// ThreadID continues an existing thread; nil starts a new one in SpaceID,
	// titled from Content.
	ThreadID *int64
	SpaceID  int64
	UserID   int64
	Content  string
	// ParentMessageID addresses the message being replied to; nil continues
	// from the thread tip. Addressing a non-tip message forks.
	ParentMessageID *int64
	// WithHistory includes the ancestor turns as generation context.
	WithHistory bool
	// DocumentID and PageNumber anchor the thread to the page the user was
	// reading. Optional.
	DocumentID *int64
	PageNumber *int
}

// ProcessMessageResult reports both stored messages and the generated reply.
type ProcessMessageResult struct {
	ThreadID       int64  `json:"threadId"`
	MessageID      int64  `json:"messageId"`
	ReplyMessageID int64  `json:"replyMessageId"`
	BranchID       *int64 `json:"branchId,omitempty"`
	IsFork         bool   `json:"isFork"`
	Response       string `json:"response"`
	// SourceDocumentID is set when the responder cited a document that could
	// be matched back to the space.
	SourceDocumentID *int64 `json:"sourceDocumentId,omitempty"`
}

// TreeMessage is a message annotated with the branches forking off it.
type TreeMessage struct {
	model.Message
	Forks []BranchSummary `json:"forks,omitempty"`
}

// BranchSummary previews a branch for tree rendering.
type BranchSummary struct {
	BranchID  int64  `json:"branchId"`
	Preview   string `json:"preview"`
	CreatedAt string `json:"createdAt"`
}

// Tree is a thread with its full message set, fork points annotated.
type Tree struct {
	Thread   model.Thread  `json:"thread"`
	Messages []TreeMessage `json:"messages"`
}

type Orchestrator struct {
	store     store.ConversationStore
	resolver  *branch.Resolver
	retriever *history.Retriever
	responder generate.Responder
}

func New(s store.ConversationStore, retriever *history.Retriever, responder generate.Responder) *Orchestrator {
	return &Orchestrator{
		store:     s,
		resolver:  branch.NewResolver(s),
		retriever: retriever,
		responder: responder,
	}
}

// ProcessMessage runs one conversation turn. The user message is stored
// before generation starts, so a responder failure never loses the question.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req ProcessMessageRequest) (*ProcessMessageResult, error) {
	thread, err := o.store.EnsureThread(ctx, req.ThreadID, req.SpaceID, req.Content, req.UserID)
	if err != nil {
		return nil, err
	}

	placement, err := o.resolver.ResolveParent(ctx, thread.ID, req.ParentMessageID)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.store.AppendMessage(ctx, store.AppendMessageRequest{
		ThreadID:        thread.ID,
		UserID:          req.UserID,
		Role:            model.RoleUser,
		Content:         req.Content,
		ParentMessageID: placement.ParentID,
		ForkOrigin:      placement.ForkOrigin,
	})
	if err != nil {
		return nil, err
	}
	observeAppend(model.RoleUser, placement.ForkOrigin)

	var turns []model.Turn
	if req.WithHistory && userMsg.ParentMessageID != nil {
		turns, err = o.retriever.History(ctx, *userMsg.ParentMessageID)
		if err != nil {
			return nil, &GenerationError{ThreadID: thread.ID, MessageID: userMsg.ID, Err: err}
		}
	}

	answer, err := o.responder.Query(ctx, req.Content, turns, thread.SpaceID)
	if err != nil {
		log.Error("reply generation failed",
			"threadID", thread.ID, "messageID", userMsg.ID, "error", err)
		return nil, &GenerationError{ThreadID: thread.ID, MessageID: userMsg.ID, Err: err}
	}

	// The assistant reply always extends the user message; it is never a
	// fork origin itself.
	replyMsg, err := o.store.AppendMessage(ctx, store.AppendMessageRequest{
		ThreadID:        thread.ID,
		UserID:          req.UserID,
		Role:            model.RoleAssistant,
		Content:         answer.Text,
		ParentMessageID: &userMsg.ID,
	})
	if err != nil {
		return nil, &GenerationError{ThreadID: thread.ID, MessageID: userMsg.ID, Err: err}
	}
	observeAppend(model.RoleAssistant, false)

	sourceDocID := o.anchorThread(ctx, thread, req, answer)

	return &ProcessMessageResult{
		ThreadID:         thread.ID,
		MessageID:        userMsg.ID,
		ReplyMessageID:   replyMsg.ID,
		BranchID:         replyMsg.BranchID,
		IsFork:           placement.ForkOrigin,
		Response:         answer.Text,
		SourceDocumentID: sourceDocID,
	}, nil
}

// anchorThread records document context for the turn. Anchoring is
// best-effort: a failure here must not fail a turn whose messages are
// already stored.
func (o *Orchestrator) anchorThread(ctx context.Context, thread *model.Thread, req ProcessMessageRequest, answer *generate.Answer) *int64 {
	page := 1
	if req.PageNumber != nil && *req.PageNumber > 0 {
		page = *req.PageNumber
	}

	if req.DocumentID != nil {
		if err := o.store.AnchorThread(ctx, thread.ID, *req.DocumentID, page); err != nil {
			log.Warn("failed to anchor thread to request document",
				"threadID", thread.ID, "documentID", *req.DocumentID, "error", err)
		}
	}

	if answer.SourceFilename == "" {
		return nil
	}
	docID, err := o.store.DocumentIDByFilename(ctx, thread.SpaceID, answer.SourceFilename)
	if err != nil {
		log.Warn("failed to match cited document",
			"threadID", thread.ID, "filename", answer.SourceFilename, "error", err)
		return nil
	}
	if docID == nil {
		return nil
	}
	if err := o.store.AnchorThread(ctx, thread.ID, *docID, page); err != nil {
		log.Warn("failed to anchor thread to cited document",
			"threadID", thread.ID, "documentID", *docID, "error", err)
	}
	return docID
}

func observeAppend(role model.Role, fork bool) {
	if security.MessagesAppendedTotal != nil {
		security.MessagesAppendedTotal.WithLabelValues(string(role)).Inc()
	}
	if fork && security.ForksTotal != nil {
		security.ForksTotal.Inc()
	}
}

const forkPreviewLen = 80

func forkPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= forkPreviewLen {
		return content
	}
	return string(runes[:forkPreviewLen]) + "..."
}

// ThreadTree returns the thread with every message, annotating each message
// with previews of the branches that fork off it.
func (o *Orchestrator) ThreadTree(ctx context.Context, threadID int64) (*Tree, error) {
	thread, err := o.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	messages, err := o.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	// Fork origins grouped by the message they reply to.
	forksByParent := make(map[int64][]BranchSummary)
	for i := range messages {
		m := &messages[i]
		if m.IsForkOrigin() && m.ParentMessageID != nil {
			forksByParent[*m.ParentMessageID] = append(forksByParent[*m.ParentMessageID], BranchSummary{
				BranchID:  *m.BranchID,
				Preview:   forkPreview(m.Content),
				CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}

	tree := &Tree{Thread: *thread, Messages: make([]TreeMessage, len(messages))}
	for i, m := range messages {
		tree.Messages[i] = TreeMessage{Message: m, Forks: forksByParent[m.ID]}
	}
	return tree, nil
}

// Branch returns the ordered messages of one branch, thread root through tip.
func (o *Orchestrator) Branch(ctx context.Context, branchID int64) ([]model.Message, error) {
	return o.store.BranchMessages(ctx, branchID)
}
