package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yogalab/classhub/internal/domain/user"
)

// RequireRole enforces strict role equality; an admin is not a superset of
// an instructor. A user whose role was never assigned gets role_unset so the
// client can route them to onboarding instead of an error page.
func (m *AuthMiddleware) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}

		if role == user.RoleUnset {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "role_unset",
					"message": "No role has been assigned to this account",
				},
			})
			return
		}

		if role != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": string(required) + " role required",
				},
			})
			return
		}
		c.Next()
	}
}
