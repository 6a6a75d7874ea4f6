package model

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether the role is one of the closed set of message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Space is an isolated workspace. Documents and threads belong to exactly one space.
type Space struct {
	ID          int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name"        gorm:"not null"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"   gorm:"not null"`
}

func (Space) TableName() string { return "spaces" }

// Document is the metadata record for an uploaded file. The bytes themselves
// live in external object storage; only the locator is kept here.
type Document struct {
	ID         int64     `json:"id"         gorm:"primaryKey;autoIncrement"`
	SpaceID    int64     `json:"spaceId"    gorm:"not null;index"`
	Filename   string    `json:"filename"   gorm:"not null"`
	FileType   string    `json:"fileType"`
	FileURL    string    `json:"fileUrl"`
	UploadedAt time.Time `json:"uploadedAt" gorm:"not null"`
}

func (Document) TableName() string { return "documents" }

// Thread is a conversation root within a space.
type Thread struct {
	ID            int64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	SpaceID       int64     `json:"spaceId"       gorm:"not null;index"`
	Title         string    `json:"title"`
	CreatorUserID int64     `json:"creatorUserId"`
	IsPublic      bool      `json:"isPublic"      gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"createdAt"     gorm:"not null"`
}

func (Thread) TableName() string { return "threads" }

// ContextAnchor links a thread to a specific (document, page) pair.
// At most one anchor exists per (thread, document, page) triple.
type ContextAnchor struct {
	ID         int64 `json:"id"         gorm:"primaryKey;autoIncrement"`
	ThreadID   int64 `json:"threadId"   gorm:"not null;uniqueIndex:uq_anchor,priority:1"`
	DocumentID int64 `json:"documentId" gorm:"not null;uniqueIndex:uq_anchor,priority:2;index:idx_anchors_doc_page,priority:1"`
	PageNumber int   `json:"pageNumber" gorm:"not null;default:1;uniqueIndex:uq_anchor,priority:3;index:idx_anchors_doc_page,priority:2"`
}

func (ContextAnchor) TableName() string { return "context_anchors" }

// Message is a single turn in a thread's fork tree.
//
// Path is the materialized ancestor chain including the message itself,
// e.g. "1/5/20/". It is derived once during the two-phase append and never
// changes afterwards; every ancestry query reads it instead of chasing
// parent pointers.
//
// BranchID is nil on the trunk. A fork origin carries its own id, and every
// descendant of the fork inherits that id.
type Message struct {
	ID              int64     `json:"id"                        gorm:"primaryKey;autoIncrement"`
	ThreadID        int64     `json:"threadId"                  gorm:"not null;index:idx_messages_branching,priority:1"`
	UserID          int64     `json:"userId"                    gorm:"not null"`
	Role            Role      `json:"role"                      gorm:"not null"`
	Content         string    `json:"content"                   gorm:"not null"`
	Path            string    `json:"path"                      gorm:"not null;index"`
	ParentMessageID *int64    `json:"parentMessageId,omitempty"`
	BranchID        *int64    `json:"branchId,omitempty"        gorm:"index:idx_messages_branching,priority:2"`
	CreatedAt       time.Time `json:"createdAt"                 gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// IsForkOrigin reports whether this message started a branch.
func (m *Message) IsForkOrigin() bool {
	return m.BranchID != nil && *m.BranchID == m.ID
}

// Turn is the {role, content} projection of a message used as generation context.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
