package messages_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/history"
	"github.com/docspace/conversation-service/internal/orchestrator"
	"github.com/docspace/conversation-service/internal/plugin/generate/static"
	"github.com/docspace/conversation-service/internal/plugin/route/messages"
	"github.com/docspace/conversation-service/internal/plugin/store/gormstore"
	"github.com/docspace/conversation-service/internal/plugin/store/sqlite"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, registrystore.ConversationStore, int64) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	store := gormstore.New(db)

	space, err := store.CreateSpace(context.Background(), "workspace", "")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	auth := security.NewAuthenticator(&cfg).Middleware()

	retriever := history.NewRetriever(store, nil)
	orch := orchestrator.New(store, retriever, &static.Responder{Text: "canned"})

	router := gin.New()
	messages.MountRoutes(router, store, orch, retriever, auth)
	return router, store, space.ID
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-User-ID", "1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostMessageCreatesThread(t *testing.T) {
	router, _, spaceID := setupRouter(t)

	rec := postJSON(t, router, "/v1/messages", gin.H{
		"spaceId": spaceID,
		"content": "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result orchestrator.ProcessMessageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "canned", result.Response)
	assert.NotZero(t, result.ThreadID)
	assert.False(t, result.IsFork)
}

func TestPostMessageRequiresAuth(t *testing.T) {
	router, _, spaceID := setupRouter(t)

	data, err := json.Marshal(gin.H{"spaceId": spaceID, "content": "hello"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostMessageUnknownSpace(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := postJSON(t, router, "/v1/messages", gin.H{
		"spaceId": 9999,
		"content": "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageUnknownParent(t *testing.T) {
	router, _, spaceID := setupRouter(t)

	first := postJSON(t, router, "/v1/messages", gin.H{"spaceId": spaceID, "content": "q1"})
	require.Equal(t, http.StatusCreated, first.Code)
	var result orchestrator.ProcessMessageResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &result))

	rec := postJSON(t, router, "/v1/messages", gin.H{
		"threadId":        result.ThreadID,
		"spaceId":         spaceID,
		"content":         "reply to nothing",
		"parentMessageId": 9999,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageHistoryEndpoint(t *testing.T) {
	router, _, spaceID := setupRouter(t)

	first := postJSON(t, router, "/v1/messages", gin.H{"spaceId": spaceID, "content": "q1"})
	require.Equal(t, http.StatusCreated, first.Code)
	var result orchestrator.ProcessMessageResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &result))

	rec := getJSON(t, router, fmt.Sprintf("/v1/messages/%d/history", result.ReplyMessageID))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Data []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 2)
	assert.Equal(t, "q1", payload.Data[0].Content)
	assert.Equal(t, "assistant", payload.Data[1].Role)
}

func TestGetMessageNotFound(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := getJSON(t, router, "/v1/messages/424242")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = getJSON(t, router, "/v1/messages/not-a-number")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
