package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/utils"
)

// Context keys
const (
	ContextSubject = "subject"
	ContextRole    = "role"
)

// AuthMiddleware JWT bearer authentication
type AuthMiddleware struct {
	jwt *utils.JWTManager
}

// NewAuthMiddleware creates the middleware.
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth rejects requests without a valid token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			Abort(c, apperrors.New(apperrors.ErrAuthentication, "missing bearer token"))
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		Abort(c, apperrors.Newf(apperrors.ErrAuthorization, "role %q", role))
	}
}

// extractToken reads the Authorization bearer token or X-Access-Token.
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.GetHeader("X-Access-Token")
}

// GetSubject returns the authenticated token subject.
func GetSubject(c *gin.Context) (string, bool) {
	subject := c.GetString(ContextSubject)
	return subject, subject != ""
}

// Abort writes err as an error response and stops the chain.
func Abort(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	public := &apperrors.AppError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	status := appErr.HTTPStatus()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, apperrors.NewErrorResponse(public, c.GetHeader("X-Request-ID")))
}
