package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/store"
)

// Gin context keys set by the auth middleware.
const (
	ContextUser   = "auth.user"
	ContextTeamID = "auth.team_id"
	ContextRole   = "auth.role"
)

// HashToken hashes a bearer token the way the users table stores it.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Auth resolves the Bearer token against the user table. Tokens are
// stored hashed; the raw token never touches the database.
func Auth(repo store.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortProblem(c, domain.E(domain.CodeUnauthenticated, "missing Authorization header"))
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortProblem(c, domain.E(domain.CodeUnauthenticated, "invalid Authorization header format"))
			return
		}

		user, err := repo.Users().GetByTokenHash(c.Request.Context(), HashToken(parts[1]))
		if err != nil {
			abortProblem(c, domain.E(domain.CodeUnauthenticated, "invalid token"))
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}

// RequireTeam resolves the X-Team-ID header and checks membership. Every
// tenant-scoped route sits behind this.
func RequireTeam(repo store.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		teamID := c.GetHeader("X-Team-ID")
		if teamID == "" {
			abortProblem(c, domain.E(domain.CodeParameterInvalid, "missing X-Team-ID header"))
			return
		}

		user := UserFrom(c)
		if user == nil {
			abortProblem(c, domain.E(domain.CodeUnauthenticated, "not authenticated"))
			return
		}

		role, err := repo.Teams().MemberRole(c.Request.Context(), user.ID, teamID)
		if err != nil {
			abortProblem(c, domain.E(domain.CodeForbidden, "not a member of team %s", teamID))
			return
		}

		c.Set(ContextTeamID, teamID)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// UserFrom reads the authenticated user off the gin context.
func UserFrom(c *gin.Context) *domain.User {
	if v, ok := c.Get(ContextUser); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// TeamIDFrom reads the resolved tenant off the gin context.
func TeamIDFrom(c *gin.Context) string {
	return c.GetString(ContextTeamID)
}
