package messages

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/docspace/conversation-service/internal/history"
	"github.com/docspace/conversation-service/internal/orchestrator"
	"github.com/docspace/conversation-service/internal/pathcodec"
	registryroute "github.com/docspace/conversation-service/internal/registry/route"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 130,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts message routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, orch *orchestrator.Orchestrator, retriever *history.Retriever, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/messages", func(c *gin.Context) {
		postMessage(c, orch)
	})
	g.GET("/messages/:messageId", func(c *gin.Context) {
		getMessage(c, store)
	})
	g.GET("/messages/:messageId/history", func(c *gin.Context) {
		messageHistory(c, retriever)
	})
}

func postMessage(c *gin.Context, orch *orchestrator.Orchestrator) {
	var req struct {
		ThreadID        *int64 `json:"threadId"`
		SpaceID         int64  `json:"spaceId"`
		Content         string `json:"content"`
		ParentMessageID *int64 `json:"parentMessageId"`
		WithHistory     bool   `json:"withHistory"`
		DocumentID      *int64 `json:"documentId"`
		PageNumber      *int   `json:"pageNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := orch.ProcessMessage(c.Request.Context(), orchestrator.ProcessMessageRequest{
		ThreadID:        req.ThreadID,
		SpaceID:         req.SpaceID,
		UserID:          security.UserID(c),
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
		WithHistory:     req.WithHistory,
		DocumentID:      req.DocumentID,
		PageNumber:      req.PageNumber,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func getMessage(c *gin.Context, store registrystore.ConversationStore) {
	messageID, ok := pathID(c, "messageId", "message")
	if !ok {
		return
	}
	msg, err := store.MessageByID(c.Request.Context(), messageID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func messageHistory(c *gin.Context, retriever *history.Retriever) {
	messageID, ok := pathID(c, "messageId", "message")
	if !ok {
		return
	}
	turns, err := retriever.History(c.Request.Context(), messageID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": turns})
}

func pathID(c *gin.Context, param, resource string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": resource + " not found"})
		return 0, false
	}
	return id, true
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var parentNotFound *registrystore.ParentNotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var malformed *pathcodec.MalformedPathError
	var generation *orchestrator.GenerationError

	switch {
	case errors.As(err, &generation):
		// The user message was stored before generation failed; return its
		// location so the client can retry without re-sending the question.
		c.JSON(http.StatusBadGateway, gin.H{
			"code":      "generation_failed",
			"error":     "reply generation failed",
			"threadId":  generation.ThreadID,
			"messageId": generation.MessageID,
		})
	case errors.As(err, &parentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &malformed):
		c.JSON(http.StatusInternalServerError, gin.H{"code": "data_integrity", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
