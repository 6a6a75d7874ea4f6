package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docspace/conversation-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func authRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewAuthenticator(cfg).Middleware())
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserID(c)})
	})
	return router
}

func TestAuthAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKeys = map[string]string{"secret-key": "42"}
	router := authRouter(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"userId":42}`, rec.Body.String())
}

func TestAuthRejectsUnknownKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKeys = map[string]string{"secret-key": "42"}
	router := authRouter(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHeaderIgnoredInProdMode(t *testing.T) {
	cfg := config.DefaultConfig()
	router := authRouter(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserIDHeader, "42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHeaderAcceptedInTestingMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	router := authRouter(&cfg)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(UserIDHeader, "42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"userId":42}`, rec.Body.String())
}

func TestParseMetricsLabels(t *testing.T) {
	labels, err := ParseMetricsLabels("service=conversation-service,env=dev")
	require.NoError(t, err)
	require.Equal(t, "conversation-service", string(labels["service"]))
	require.Equal(t, "dev", string(labels["env"]))

	labels, err = ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)

	_, err = ParseMetricsLabels("not-a-pair")
	require.Error(t, err)

	_, err = ParseMetricsLabels("bad key=value")
	require.Error(t, err)
}
