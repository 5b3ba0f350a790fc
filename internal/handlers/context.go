package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/middleware"
	"github.com/verygoodsaas/backoffice/internal/models"
)

func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

func currentSession(c *gin.Context) *auth.Session {
	value, ok := c.Get(middleware.ContextSessionKey)
	if !ok {
		return nil
	}
	session, _ := value.(*auth.Session)
	return session
}

func currentTeam(c *gin.Context) *models.Team {
	value, ok := c.Get(middleware.ContextTeamKey)
	if !ok {
		return nil
	}
	team, _ := value.(*models.Team)
	return team
}

func currentTeamID(c *gin.Context) string {
	if team := currentTeam(c); team != nil {
		return team.ID
	}
	return ""
}
