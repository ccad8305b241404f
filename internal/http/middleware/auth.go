package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/access"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

const authContextKey = "authContext"

// Auth resolves the request's bearer credential into an AuthContext.
type Auth struct {
	Guard *access.Guard
}

// Authenticate rejects requests without a resolvable credential and stores
// the AuthContext for handlers. EventSource cannot set headers, so a
// `token` query parameter is accepted as a fallback carrier.
func (m *Auth) Authenticate(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" {
		raw = strings.TrimSpace(c.Query("token"))
	}

	auth, err := m.Guard.Resolve(c.Request.Context(), raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	c.Set(authContextKey, auth)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetAuthContext exposes the resolved identity to handlers.
func GetAuthContext(c *gin.Context) (domain.AuthContext, bool) {
	value, ok := c.Get(authContextKey)
	if !ok {
		return domain.AuthContext{}, false
	}
	auth, ok := value.(domain.AuthContext)
	return auth, ok
}
