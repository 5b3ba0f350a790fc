package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/response"
	"github.com/verygoodsaas/backoffice/pkg/validator"
)

// bindAndValidate decodes the JSON body into req and runs struct validation.
// On failure it writes the error response and reports false.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperrors.NewBadRequest("Request body is invalid"))
		return false
	}
	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.NewBadRequest(err.Error()))
		return false
	}
	return true
}
