package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/services"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

// ActivityHandler exposes the activity log read path.
type ActivityHandler struct {
	activity *services.ActivityService
}

func NewActivityHandler(activity *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List returns the newest activity entries for the active team.
func (h *ActivityHandler) List(c *gin.Context) {
	teamID := currentTeamID(c)
	if teamID == "" {
		response.Error(c, apperrors.ErrForbidden)
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			response.Error(c, apperrors.NewBadRequest("limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	entries, err := h.activity.List(c.Request.Context(), teamID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, entries)
}
