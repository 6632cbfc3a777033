package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

type validatorStub struct{}

func (validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, nil
	case "participant":
		return &models.JWTClaims{UserID: "user-1", Role: models.RoleParticipant, ParticipantID: "p-1"}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func serve(engine *gin.Engine, method, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWT(validatorStub{}), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "Bearer   ").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "Bearer nope").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", "Bearer participant").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", "bearer admin").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/x", "").Code)
}

type auditRecorder struct {
	logs []models.AuditLog
	err  error
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return a.err
}

func TestAuditRecordsEveryOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &auditRecorder{}
	r := gin.New()
	r.POST("/hook", Audit(repo, "HOOK", "payments", nil), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodPost, "/hook", "")
	serve(r, http.MethodPost, "/hook?fail=1", "")
	repo.err = errors.New("db down")
	w := serve(r, http.MethodPost, "/hook", "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, repo.logs, 3)
	assert.Equal(t, "HOOK", repo.logs[0].Action)
	assert.Equal(t, "payments", repo.logs[0].Resource)
	assert.Contains(t, string(repo.logs[1].NewValues), `"status":401`)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.GET("/seats", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	w := serve(r, http.MethodGet, "/seats", "")
	assert.Equal(t, "HIT", w.Header().Get(CacheHeader))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}
