package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/multycomm/collection_backend/utils"
	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware guards internal endpoints (outbox inspection, cache
// flush) with a bearer JWT minted out of band (cmd/seed-admin). Session
// tokens do not open these routes.
func ServiceAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validated, err := utils.JwtValidate(auth)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.Role != "service" {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}

		c.Next()
	}
}
