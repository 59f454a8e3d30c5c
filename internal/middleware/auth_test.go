package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/utils"
)

func newEngine(jwt *utils.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(jwt)
	r := gin.New()
	g := r.Group("/", m.RequireAuth())
	g.GET("/me", func(c *gin.Context) {
		subject, _ := GetSubject(c)
		c.String(http.StatusOK, subject)
	})
	g.GET("/admin", m.RequireRole(utils.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	jwt := utils.NewJWTManager("secret", "emojirades", time.Hour)
	r := newEngine(jwt)
	token, err := jwt.GenerateToken("ops", utils.RoleAdmin)
	require.NoError(t, err)

	w := do(r, "/me")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int64(apperrors.ErrAuthentication), gjson.Get(w.Body.String(), "error.code").Int())
	assert.False(t, gjson.Get(w.Body.String(), "error.stack").Exists())

	w = do(r, "/me", "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int64(apperrors.ErrTokenInvalid), gjson.Get(w.Body.String(), "error.code").Int())

	w = do(r, "/me", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	w = do(r, "/me", "X-Access-Token", token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	jwt := utils.NewJWTManager("secret", "", time.Hour)
	r := newEngine(jwt)

	admin, err := jwt.GenerateToken("ops", utils.RoleAdmin)
	require.NoError(t, err)
	viewer, err := jwt.GenerateToken("guest", "viewer")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Authorization", "Bearer "+admin).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Authorization", "Bearer "+viewer).Code)
}
