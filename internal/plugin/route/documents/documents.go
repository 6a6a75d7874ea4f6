package documents

import (
	"errors"
	"net/http"
	"strconv"

	registryroute "github.com/docspace/conversation-service/internal/registry/route"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 110,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts document routes on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/spaces/:spaceId/documents", func(c *gin.Context) {
		listDocuments(c, store)
	})
	g.POST("/spaces/:spaceId/documents", func(c *gin.Context) {
		createDocument(c, store)
	})
	g.PATCH("/documents/:documentId", func(c *gin.Context) {
		updateDocumentURL(c, store)
	})
	g.GET("/documents/:documentId/threads", func(c *gin.Context) {
		listThreadsForDocument(c, store)
	})
}

func listDocuments(c *gin.Context, store registrystore.ConversationStore) {
	spaceID, ok := pathID(c, "spaceId", "space")
	if !ok {
		return
	}
	docs, err := store.ListDocuments(c.Request.Context(), spaceID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": docs})
}

func createDocument(c *gin.Context, store registrystore.ConversationStore) {
	spaceID, ok := pathID(c, "spaceId", "space")
	if !ok {
		return
	}
	var req struct {
		Filename string `json:"filename"`
		FileType string `json:"fileType"`
		FileURL  string `json:"fileUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := store.CreateDocument(c.Request.Context(), spaceID, req.Filename, req.FileType, req.FileURL)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func updateDocumentURL(c *gin.Context, store registrystore.ConversationStore) {
	documentID, ok := pathID(c, "documentId", "document")
	if !ok {
		return
	}
	var req struct {
		FileURL string `json:"fileUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := store.UpdateDocumentURL(c.Request.Context(), documentID, req.FileURL); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listThreadsForDocument(c *gin.Context, store registrystore.ConversationStore) {
	documentID, ok := pathID(c, "documentId", "document")
	if !ok {
		return
	}
	threads, err := store.ThreadsForDocument(c.Request.Context(), documentID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": threads})
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
