package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/models"
	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/logger"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

// InvitationHandler exposes the invitation lifecycle endpoints.
type InvitationHandler struct {
	invitations *services.InvitationService
	sessions    *auth.SessionService
	cookies     *auth.CookieWriter
}

func NewInvitationHandler(invitations *services.InvitationService, sessions *auth.SessionService, cookies *auth.CookieWriter) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, sessions: sessions, cookies: cookies}
}

type createInvitationRequest struct {
	Email string          `json:"email" validate:"required,email,max=255"`
	Role  models.TeamRole `json:"role" validate:"required"`
}

// Create invites an email address into the active team.
func (h *InvitationHandler) Create(c *gin.Context) {
	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, err := h.invitations.Create(c.Request.Context(), services.CreateInvitationInput{
		TeamID:    currentTeamID(c),
		Email:     req.Email,
		Role:      req.Role,
		InvitedBy: currentUser(c),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if invitation == nil {
			response.Error(c, err)
			return
		}
		// The invitation is committed; only the email failed. Report success
		// and leave a trace for the operator.
		logger.WithModule("invitations").Error("invitation email delivery failed",
			zap.String("invitation_id", invitation.ID),
			zap.Error(err))
	}

	response.Success(c, http.StatusCreated, invitation)
}

// Get returns one invitation with its team and inviter, for the accept page.
func (h *InvitationHandler) Get(c *gin.Context) {
	invitation, err := h.invitations.Get(c.Request.Context(), c.Param("invitationID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitation)
}

// ListPending returns the open invitations for the active team.
func (h *InvitationHandler) ListPending(c *gin.Context) {
	invitations, err := h.invitations.ListPending(c.Request.Context(), currentTeamID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitations)
}

// Accept joins the signed-in user to the inviting team and makes that team
// the session's active team, the same as redeeming the invitation at sign-in.
func (h *InvitationHandler) Accept(c *gin.Context) {
	invitation, err := h.invitations.Accept(c.Request.Context(), services.AcceptInvitationInput{
		InvitationID: c.Param("invitationID"),
		User:         currentUser(c),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.sessions.SwitchActiveTeam(h.cookies.Read(c), invitation.TeamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.cookies.Write(c, token, h.sessions.TTL())

	response.Success(c, http.StatusOK, invitation)
}

// Approve materialises the membership for an already-registered invitee.
func (h *InvitationHandler) Approve(c *gin.Context) {
	invitation, err := h.invitations.Approve(c.Request.Context(), services.ApproveInvitationInput{
		InvitationID: c.Param("invitationID"),
		TeamID:       currentTeamID(c),
		Actor:        currentUser(c),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitation)
}

// Delete revokes a pending invitation.
func (h *InvitationHandler) Delete(c *gin.Context) {
	err := h.invitations.Delete(c.Request.Context(), services.DeleteInvitationInput{
		InvitationID: c.Param("invitationID"),
		TeamID:       currentTeamID(c),
		Actor:        currentUser(c),
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
