package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/auth"
	"github.com/blockvault/internal/rbac"
)

const principalKey = "principal"

// AuthMiddleware validates the bearer token, resolves the caller's role and
// binds the principal to both the gin and the request context.
func AuthMiddleware(tokens *auth.TokenService, resolver rbac.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			RespondError(c, auth.ErrMissingToken)
			return
		}

		address, err := tokens.Validate(token)
		if err != nil {
			RespondError(c, err)
			return
		}

		p := rbac.Principal{Address: address, Role: resolver.Resolve(address)}
		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(rbac.WithPrincipal(c.Request.Context(), p))

		c.Next()
	}
}

// bearerToken extracts the token of a "Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// PrincipalFrom returns the principal bound by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (rbac.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return rbac.Principal{}, false
	}
	p, ok := v.(rbac.Principal)
	return p, ok
}

// RespondError writes {"error", "code"} with the status of the error's kind
// and aborts the chain. The error is kept on the context for the logger.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.Status(), gin.H{
		"error": apperr.MessageOf(err),
		"code":  string(kind),
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-File-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, Content-Disposition")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// MaxBodyMiddleware caps request bodies at limit bytes.
func MaxBodyMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
