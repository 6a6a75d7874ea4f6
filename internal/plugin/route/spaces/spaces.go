package spaces

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
		Order: 100,
		Loader: func(r *gin.Engine) error {
			return nil // routes are mounted by the serve command after store init
		},
	})
}

// MountRoutes mounts space routes on the given router.
// Called after store initialization so the store is available.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/spaces", func(c *gin.Context) {
		listSpaces(c, store)
	})
	g.POST("/spaces", func(c *gin.Context) {
		createSpace(c, store)
	})
	g.GET("/spaces/:spaceId", func(c *gin.Context) {
		getSpace(c, store)
	})
}

func listSpaces(c *gin.Context, store registrystore.ConversationStore) {
	spaces, err := store.ListSpaces(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": spaces})
}

func createSpace(c *gin.Context, store registrystore.ConversationStore) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	space, err := store.CreateSpace(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, space)
}

func getSpace(c *gin.Context, store registrystore.ConversationStore) {
	spaceID, err := strconv.ParseInt(c.Param("spaceId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "space not found"})
		return
	}

	space, err := store.GetSpace(c.Request.Context(), spaceID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
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
