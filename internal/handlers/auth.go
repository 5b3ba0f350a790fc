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

// AuthHandler exposes registration, login and password reset endpoints.
type AuthHandler struct {
	accounts    *services.AccountService
	invitations *services.InvitationService
	sessions    *auth.SessionService
	cookies     *auth.CookieWriter
}

func NewAuthHandler(accounts *services.AccountService, invitations *services.InvitationService, sessions *auth.SessionService, cookies *auth.CookieWriter) *AuthHandler {
	return &AuthHandler{accounts: accounts, invitations: invitations, sessions: sessions, cookies: cookies}
}

type signUpRequest struct {
	Name     string `json:"name" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=100"`
	InviteID string `json:"invite_id" validate:"omitempty"`
	OrgName  string `json:"org_name" validate:"omitempty,min=4,max=100"`
}

// SignUp registers an account and opens a session for it.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.SignUp(c.Request.Context(), services.SignUpInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		InviteID:  req.InviteID,
		OrgName:   req.OrgName,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.openSession(c, result); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	InviteID string `json:"invite_id" validate:"omitempty"`
}

// SignIn authenticates and opens a session. An invite hint is accepted as
// part of the same call: the invitation becomes the session's active team.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.accounts.SignIn(c.Request.Context(), services.SignInInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.InviteID != "" {
		invitation, err := h.invitations.Accept(c.Request.Context(), services.AcceptInvitationInput{
			InvitationID: req.InviteID,
			User:         result.User,
			IPAddress:    c.ClientIP(),
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		if invitation.Team != nil {
			result.Team = invitation.Team
		} else {
			result.Team = &models.Team{BaseModel: models.BaseModel{ID: invitation.TeamID}}
		}
	}

	if err := h.openSession(c, result); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SignOut records the sign-out and clears the cookie. Runs behind auth.
func (h *AuthHandler) SignOut(c *gin.Context) {
	user := currentUser(c)

	if err := h.accounts.SignOut(c.Request.Context(), user, currentTeamID(c), c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"signed_out": true})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset mails a reset link. Always answers 200 so the
// endpoint cannot be used to probe for accounts.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		logger.WithModule("auth").Error("password reset request failed", zap.Error(err))
	}

	response.Success(c, http.StatusOK, gin.H{"requested": true})
}

type passwordResetConfirm struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

// ConfirmPasswordReset consumes a reset token.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirm
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ConfirmPasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

func (h *AuthHandler) openSession(c *gin.Context, result *services.SignUpResult) error {
	teamID := ""
	if result.Team != nil {
		teamID = result.Team.ID
	}

	token, err := h.sessions.Issue(result.User.ID, teamID)
	if err != nil {
		return err
	}

	h.cookies.Write(c, token, h.sessions.TTL())
	return nil
}
