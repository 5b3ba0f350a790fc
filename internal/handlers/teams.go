package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/models"
	"github.com/verygoodsaas/backoffice/internal/services"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

// TeamHandler exposes team profile, roster and role management endpoints.
type TeamHandler struct {
	teams    *services.TeamService
	authz    *services.AuthzService
	sessions *auth.SessionService
	cookies  *auth.CookieWriter
}

func NewTeamHandler(teams *services.TeamService, authz *services.AuthzService, sessions *auth.SessionService, cookies *auth.CookieWriter) *TeamHandler {
	return &TeamHandler{teams: teams, authz: authz, sessions: sessions, cookies: cookies}
}

// Get returns the active team with its member roster.
func (h *TeamHandler) Get(c *gin.Context) {
	teamID := currentTeamID(c)
	if teamID == "" {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	team, err := h.teams.Get(c.Request.Context(), teamID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// List returns every team the user belongs to.
func (h *TeamHandler) List(c *gin.Context) {
	teams, err := h.authz.AllTeamsForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, teams)
}

type updateTeamNameRequest struct {
	Name string `json:"name" validate:"required,min=4,max=100"`
}

// UpdateName renames the active team.
func (h *TeamHandler) UpdateName(c *gin.Context) {
	var req updateTeamNameRequest
	if !bindAndValidate(c, &req) {
		return
	}

	team, err := h.teams.UpdateName(c.Request.Context(), services.UpdateNameInput{
		TeamID:    currentTeamID(c),
		Name:      req.Name,
		Actor:     currentUser(c),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// RemoveMember removes a membership row from the active team.
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	err := h.teams.RemoveMember(c.Request.Context(), services.RemoveMemberInput{
		TeamID:       currentTeamID(c),
		MembershipID: c.Param("membershipID"),
		Actor:        currentUser(c),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

type switchTeamRequest struct {
	TeamID string `json:"team_id" validate:"required"`
}

// Switch changes the session's active team and re-issues the cookie.
func (h *TeamHandler) Switch(c *gin.Context) {
	var req switchTeamRequest
	if !bindAndValidate(c, &req) {
		return
	}

	team, err := h.teams.Switch(c.Request.Context(), currentUser(c), req.TeamID, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.sessions.SwitchActiveTeam(h.cookies.Read(c), team.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.Write(c, token, h.sessions.TTL())

	response.Success(c, http.StatusOK, team)
}

type updateUserRoleRequest struct {
	Role models.GlobalRole `json:"role" validate:"required"`
}

// UpdateUserRole changes another user's global role.
func (h *TeamHandler) UpdateUserRole(c *gin.Context) {
	var req updateUserRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.teams.UpdateUserRole(c.Request.Context(), currentUser(c), c.Param("userID"), req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

type syncSubscriptionRequest struct {
	StripeCustomerID     string  `json:"stripe_customer_id" validate:"required"`
	StripeSubscriptionID *string `json:"stripe_subscription_id"`
	StripeProductID      *string `json:"stripe_product_id"`
	PlanName             string  `json:"plan_name"`
	SubscriptionStatus   string  `json:"subscription_status"`
}

// SyncSubscription stores billing passthrough fields pushed by the payments
// integration.
func (h *TeamHandler) SyncSubscription(c *gin.Context) {
	var req syncSubscriptionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.teams.SyncSubscription(c.Request.Context(), req.StripeCustomerID, services.SubscriptionUpdate{
		StripeSubscriptionID: req.StripeSubscriptionID,
		StripeProductID:      req.StripeProductID,
		PlanName:             req.PlanName,
		SubscriptionStatus:   req.SubscriptionStatus,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"synced": true})
}
