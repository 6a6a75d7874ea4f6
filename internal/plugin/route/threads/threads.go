package threads

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/docspace/conversation-service/internal/orchestrator"
	registryroute "github.com/docspace/conversation-service/internal/registry/route"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 120,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts thread routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, orch *orchestrator.Orchestrator, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/spaces/:spaceId/threads", func(c *gin.Context) {
		listThreads(c, store)
	})
	g.POST("/spaces/:spaceId/threads", func(c *gin.Context) {
		createThread(c, store)
	})
	g.GET("/threads/:threadId", func(c *gin.Context) {
		getThread(c, store)
	})
	g.GET("/threads/:threadId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
	g.GET("/threads/:threadId/tree", func(c *gin.Context) {
		threadTree(c, orch)
	})
	g.GET("/threads/:threadId/branches/:branchId", func(c *gin.Context) {
		branchMessages(c, orch)
	})
	g.GET("/threads/:threadId/anchors", func(c *gin.Context) {
		listAnchors(c, store)
	})
	g.POST("/threads/:threadId/anchors", func(c *gin.Context) {
		anchorThread(c, store)
	})
}

func listThreads(c *gin.Context, store registrystore.ConversationStore) {
	spaceID, ok := pathID(c, "spaceId", "space")
	if !ok {
		return
	}
	threads, err := store.ListThreads(c.Request.Context(), spaceID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": threads})
}

func createThread(c *gin.Context, store registrystore.ConversationStore) {
	spaceID, ok := pathID(c, "spaceId", "space")
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	thread, err := store.CreateThread(c.Request.Context(), spaceID, req.Title, security.UserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

func getThread(c *gin.Context, store registrystore.ConversationStore) {
	threadID, ok := pathID(c, "threadId", "thread")
	if !ok {
		return
	}
	thread, err := store.GetThread(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func listMessages(c *gin.Context, store registrystore.ConversationStore) {
	threadID, ok := pathID(c, "threadId", "thread")
	if !ok {
		return
	}
	messages, err := store.ListMessages(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func threadTree(c *gin.Context, orch *orchestrator.Orchestrator) {
	threadID, ok := pathID(c, "threadId", "thread")
	if !ok {
		return
	}
	tree, err := orch.ThreadTree(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func branchMessages(c *gin.Context, orch *orchestrator.Orchestrator) {
	if _, ok := pathID(c, "threadId", "thread"); !ok {
		return
	}
	branchID, ok := pathID(c, "branchId", "branch")
	if !ok {
		return
	}
	messages, err := orch.Branch(c.Request.Context(), branchID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": messages})
}

func listAnchors(c *gin.Context, store registrystore.ConversationStore) {
	threadID, ok := pathID(c, "threadId", "thread")
	if !ok {
		return
	}
	anchors, err := store.ListAnchors(c.Request.Context(), threadID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": anchors})
}

func anchorThread(c *gin.Context, store registrystore.ConversationStore) {
	threadID, ok := pathID(c, "threadId", "thread")
	if !ok {
		return
	}
	var req struct {
		DocumentID int64 `json:"documentId"`
		PageNumber int   `json:"pageNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := store.AnchorThread(c.Request.Context(), threadID, req.DocumentID, req.PageNumber); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
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
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
