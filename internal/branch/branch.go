// Package branch decides where a new message attaches in a thread's fork
// tree. A fork is never requested explicitly: replying to any message that is
// not the thread's latest one starts a branch.
package branch

import (
	"context"

	"github.com/docspace/conversation-service/internal/registry/store"
)

// Placement is the resolved attachment point for a new message.
type Placement struct {
	// ParentID is the message the new one replies to; nil for a thread root.
	ParentID *int64
	// ForkOrigin is true when the new message starts a branch, which happens
	// exactly when the caller addressed a parent that is not the thread tip.
	ForkOrigin bool
}

// Detect is the pure fork predicate. lastID is the thread's most recent
// message id (nil for an empty thread); requestedParentID is the parent the
// caller addressed (nil to continue from the tip).
func Detect(lastID, requestedParentID *int64) Placement {
	if requestedParentID == nil {
		return Placement{ParentID: lastID}
	}
	if lastID != nil && *requestedParentID == *lastID {
		return Placement{ParentID: requestedParentID}
	}
	return Placement{ParentID: requestedParentID, ForkOrigin: true}
}

// Resolver binds the fork predicate to the store's view of the thread tip.
type Resolver struct {
	store store.ConversationStore
}

func NewResolver(s store.ConversationStore) *Resolver {
	return &Resolver{store: s}
}

// ResolveParent determines the placement for a message about to be appended
// to the thread. The result is only as fresh as the tip read; two callers
// racing past the same tip produce sibling branches, which is accepted.
func (r *Resolver) ResolveParent(ctx context.Context, threadID int64, requestedParentID *int64) (Placement, error) {
	lastID, err := r.store.LastMessageID(ctx, threadID)
	if err != nil {
		return Placement{}, err
	}
	return Detect(lastID, requestedParentID), nil
}
