package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

// AccountHandler exposes the signed-in user's profile operations.
type AccountHandler struct {
	accounts *services.AccountService
	cookies  *auth.CookieWriter
}

func NewAccountHandler(accounts *services.AccountService, cookies *auth.CookieWriter) *AccountHandler {
	return &AccountHandler{accounts: accounts, cookies: cookies}
}

// Get returns the current user and their active team.
func (h *AccountHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"user": currentUser(c),
		"team": currentTeam(c),
	})
}

type updateAccountRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=255"`
}

// Update changes the profile name and email.
func (h *AccountHandler) Update(c *gin.Context) {
	var req updateAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user := currentUser(c)
	err := h.accounts.UpdateAccount(c.Request.Context(), user, services.UpdateAccountInput{
		Name:      req.Name,
		Email:     req.Email,
		TeamID:    currentTeamID(c),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=100"`
}

// UpdatePassword rotates the password.
func (h *AccountHandler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.accounts.UpdatePassword(c.Request.Context(),
		currentUser(c), req.CurrentPassword, req.NewPassword, currentTeamID(c), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// Delete soft-deletes the account and ends the session.
func (h *AccountHandler) Delete(c *gin.Context) {
	var req deleteAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.accounts.DeleteAccount(c.Request.Context(), currentUser(c), req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
