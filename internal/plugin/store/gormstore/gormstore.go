// Package gormstore implements the conversation store over GORM. The
// postgres and sqlite plugins wrap it with their own connection setup and
// migrations; all query logic lives here.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docspace/conversation-service/internal/model"
	"github.com/docspace/conversation-service/internal/pathcodec"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Store implements registrystore.ConversationStore using GORM.
type Store struct {
	db  *gorm.DB
	now registrystore.Clock
}

// New wraps an open GORM handle. The handle must have been opened with
// TranslateError so duplicate-key violations surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock substitutes the timestamp source. Test hook.
func (s *Store) WithClock(clock registrystore.Clock) *Store {
	s.now = clock
	return s
}

// --- Spaces ---

func (s *Store) CreateSpace(ctx context.Context, name, description string) (*model.Space, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &registrystore.ValidationError{Field: "name", Message: "must not be empty"}
	}
	space := model.Space{Name: name, Description: description, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&space).Error; err != nil {
		return nil, fmt.Errorf("failed to create space: %w", err)
	}
	return &space, nil
}

func (s *Store) ListSpaces(ctx context.Context) ([]model.Space, error) {
	var spaces []model.Space
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&spaces).Error; err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	return spaces, nil
}

func (s *Store) GetSpace(ctx context.Context, spaceID int64) (*model.Space, error) {
	var space model.Space
	if err := s.db.WithContext(ctx).First(&space, spaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "space", ID: formatID(spaceID)}
		}
		return nil, fmt.Errorf("failed to load space: %w", err)
	}
	return &space, nil
}

// --- Documents ---

func (s *Store) CreateDocument(ctx context.Context, spaceID int64, filename, fileType, fileURL string) (*model.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, &registrystore.ValidationError{Field: "filename", Message: "must not be empty"}
	}
	if _, err := s.GetSpace(ctx, spaceID); err != nil {
		return nil, err
	}
	doc := model.Document{
		SpaceID:    spaceID,
		Filename:   filename,
		FileType:   fileType,
		FileURL:    fileURL,
		UploadedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return &doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, spaceID int64) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("uploaded_at DESC").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *Store) UpdateDocumentURL(ctx context.Context, documentID int64, fileURL string) error {
	result := s.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ?", documentID).
		Update("file_url", fileURL)
	if result.Error != nil {
		return fmt.Errorf("failed to update document url: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "document", ID: formatID(documentID)}
	}
	return nil
}

// DocumentIDByFilename matches a responder-reported filename to a document in
// the space. Upload pipelines prefix temp markers and URL-encode names, so the
// needle is cleaned before a suffix match.
func (s *Store) DocumentIDByFilename(ctx context.Context, spaceID int64, filename string) (*int64, error) {
	needle := cleanFilename(filename)
	if needle == "" {
		return nil, nil
	}
	var doc model.Document
	result := s.db.WithContext(ctx).
		Where("space_id = ? AND filename LIKE ?", spaceID, "%"+needle).
		Order("uploaded_at DESC").
		Limit(1).
		Find(&doc)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to match document by filename: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &doc.ID, nil
}

func cleanFilename(filename string) string {
	name := strings.TrimSpace(filename)
	name = strings.TrimPrefix(name, "temp_")
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return name
}

// --- Threads ---

// Thread titles seeded from a first message are shortened to keep listings scannable.
const maxSeedTitleLen = 47

func seedTitle(seed string) string {
	runes := []rune(strings.TrimSpace(seed))
	if len(runes) <= maxSeedTitleLen {
		return string(runes)
	}
	return string(runes[:maxSeedTitleLen]) + "..."
}

func (s *Store) CreateThread(ctx context.Context, spaceID int64, title string, creatorUserID int64) (*model.Thread, error) {
	if _, err := s.GetSpace(ctx, spaceID); err != nil {
		return nil, err
	}
	thread := model.Thread{
		SpaceID:       spaceID,
		Title:         seedTitle(title),
		CreatorUserID: creatorUserID,
		IsPublic:      true,
		CreatedAt:     s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return &thread, nil
}

func (s *Store) ListThreads(ctx context.Context, spaceID int64) ([]model.Thread, error) {
	var threads []model.Thread
	if err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("created_at DESC").
		Find(&threads).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

func (s *Store) GetThread(ctx context.Context, threadID int64) (*model.Thread, error) {
	var thread model.Thread
	if err := s.db.WithContext(ctx).First(&thread, threadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "thread", ID: formatID(threadID)}
		}
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return &thread, nil
}

func (s *Store) EnsureThread(ctx context.Context, threadID *int64, spaceID int64, seed string, creatorUserID int64) (*model.Thread, error) {
	if threadID != nil {
		return s.GetThread(ctx, *threadID)
	}
	return s.CreateThread(ctx, spaceID, seed, creatorUserID)
}

func (s *Store) ThreadsForDocument(ctx context.Context, documentID int64) ([]registrystore.AnchoredThread, error) {
	type row struct {
		model.Thread
		PageNumber int `gorm:"column:page_number"`
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("threads t").
		Select("t.*, a.page_number").
		Joins("JOIN context_anchors a ON a.thread_id = t.id").
		Where("a.document_id = ?", documentID).
		Order("a.page_number ASC, t.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads for document: %w", err)
	}
	out := make([]registrystore.AnchoredThread, len(rows))
	for i, r := range rows {
		out[i] = registrystore.AnchoredThread{Thread: r.Thread, PageNumber: r.PageNumber}
	}
	return out, nil
}

// --- Anchors ---

func (s *Store) AnchorThread(ctx context.Context, threadID, documentID int64, pageNumber int) error {
	if pageNumber < 1 {
		pageNumber = 1
	}
	anchor := model.ContextAnchor{
		ThreadID:   threadID,
		DocumentID: documentID,
		PageNumber: pageNumber,
	}
	err := s.db.WithContext(ctx).Create(&anchor).Error
	if err == nil || isDuplicateKey(err) {
		// Re-anchoring the same (thread, document, page) is a no-op.
		return nil
	}
	return fmt.Errorf("failed to anchor thread: %w", err)
}

func (s *Store) ListAnchors(ctx context.Context, threadID int64) ([]model.ContextAnchor, error) {
	var anchors []model.ContextAnchor
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&anchors).Error; err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	return anchors, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Messages ---

func (s *Store) AppendMessage(ctx context.Context, req registrystore.AppendMessageRequest) (*model.Message, error) {
	if !req.Role.Valid() {
		return nil, &registrystore.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", req.Role)}
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &registrystore.ValidationError{Field: "content", Message: "must not be empty"}
	}

	var msg model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread model.Thread
		if err := tx.First(&thread, req.ThreadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &registrystore.NotFoundError{Resource: "thread", ID: formatID(req.ThreadID)}
			}
			return fmt.Errorf("failed to load thread: %w", err)
		}

		var parentPath string
		var parentBranch *int64
		if req.ParentMessageID != nil {
			var parent model.Message
			if err := tx.Where("id = ? AND thread_id = ?", *req.ParentMessageID, req.ThreadID).
				First(&parent).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &registrystore.ParentNotFoundError{
						ThreadID:        req.ThreadID,
						ParentMessageID: *req.ParentMessageID,
					}
				}
				return fmt.Errorf("failed to load parent message: %w", err)
			}
			parentPath = parent.Path
			parentBranch = parent.BranchID
		}

		// Phase one: insert with an empty path to obtain the id.
		msg = model.Message{
			ThreadID:        req.ThreadID,
			UserID:          req.UserID,
			Role:            req.Role,
			Content:         req.Content,
			ParentMessageID: req.ParentMessageID,
			CreatedAt:       s.now(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		// Phase two: finalize path and branch now that the id is known.
		msg.Path = pathcodec.Append(parentPath, msg.ID)
		if req.ForkOrigin {
			branchID := msg.ID
			msg.BranchID = &branchID
		} else {
			msg.BranchID = parentBranch
		}
		if err := tx.Model(&model.Message{}).
			Where("id = ?", msg.ID).
			Updates(map[string]any{"path": msg.Path, "branch_id": msg.BranchID}).Error; err != nil {
			return fmt.Errorf("failed to finalize message path: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Store) LastMessageID(ctx context.Context, threadID int64) (*int64, error) {
	var msg model.Message
	result := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		Limit(1).
		Find(&msg)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find latest message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &msg.ID, nil
}

func (s *Store) MessageByID(ctx context.Context, messageID int64) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: formatID(messageID)}
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &msg, nil
}

func (s *Store) MessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []model.Message
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

func (s *Store) MessagesByPathPrefix(ctx context.Context, prefix string) ([]model.Message, error) {
	var messages []model.Message
	if err := s.db.WithContext(ctx).
		Where("path LIKE ?", prefix+"%").
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages by path: %w", err)
	}
	return messages, nil
}

func (s *Store) ListMessages(ctx context.Context, threadID int64) ([]model.Message, error) {
	var messages []model.Message
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// BranchMessages returns the full line of a branch, root through tip, in path
// order. The branch tip is the highest id carrying the branch id; its path
// names every message on the line.
func (s *Store) BranchMessages(ctx context.Context, branchID int64) ([]model.Message, error) {
	var tip model.Message
	result := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("id DESC").
		Limit(1).
		Find(&tip)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find branch tip: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, &registrystore.NotFoundError{Resource: "branch", ID: formatID(branchID)}
	}

	ids, err := pathcodec.Decode(tip.Path)
	if err != nil {
		return nil, err
	}
	messages, err := s.MessagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]model.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	ordered := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, &registrystore.NotFoundError{Resource: "message", ID: formatID(id)}
		}
		ordered = append(ordered, m)
	}
	return ordered, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
