package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/services"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

const (
	// ContextUserKey holds the resolved *models.User for the request.
	ContextUserKey = "auth.user"
	// ContextSessionKey holds the verified *auth.Session.
	ContextSessionKey = "auth.session"
	// ContextTeamKey holds the resolved *models.Team, which may be nil.
	ContextTeamKey = "auth.team"
)

// RequireAuth verifies the session cookie, resolves the user and the active
// team, and stores all three on the request context. Requests without a
// valid session are rejected before any handler runs.
func RequireAuth(sessions *auth.SessionService, cookies *auth.CookieWriter, authz *services.AuthzService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := cookies.Read(c)

		session, err := sessions.Verify(token)
		if err != nil {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := authz.ResolveUser(c.Request.Context(), session.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		team, err := authz.ResolveActiveTeam(c.Request.Context(), user, session.ActiveTeamID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if team == nil {
			// Fall back to the user's first team when the session carries no
			// usable selection.
			team, err = authz.TeamForUser(c.Request.Context(), user.ID)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextSessionKey, session)
		if team != nil {
			c.Set(ContextTeamKey, team)
		}

		c.Next()
	}
}
