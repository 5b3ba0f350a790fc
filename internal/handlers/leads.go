package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/response"
)

// LeadHandler exposes the team-scoped CRM endpoints.
type LeadHandler struct {
	leads *services.LeadService
}

func NewLeadHandler(leads *services.LeadService) *LeadHandler {
	return &LeadHandler{leads: leads}
}

type leadRequest struct {
	ContactName     string     `json:"contact_name" validate:"required,max=255"`
	EmailAddress    string     `json:"email_address" validate:"omitempty,email,max=255"`
	PhoneNumber     string     `json:"phone_number" validate:"omitempty,max=50"`
	LeadSource      string     `json:"lead_source" validate:"omitempty,max=100"`
	ServiceInterest string     `json:"service_interest" validate:"omitempty,max=100"`
	LeadStatus      string     `json:"lead_status" validate:"omitempty,max=50"`
	PotentialValue  *int       `json:"potential_value" validate:"omitempty,min=0"`
	DateReceived    *time.Time `json:"date_received"`
	FollowUpDate    *time.Time `json:"follow_up_date"`
	Notes           string     `json:"notes"`
}

func (r leadRequest) toInput() services.LeadInput {
	return services.LeadInput{
		ContactName:     r.ContactName,
		EmailAddress:    r.EmailAddress,
		PhoneNumber:     r.PhoneNumber,
		LeadSource:      r.LeadSource,
		ServiceInterest: r.ServiceInterest,
		LeadStatus:      r.LeadStatus,
		PotentialValue:  r.PotentialValue,
		DateReceived:    r.DateReceived,
		FollowUpDate:    r.FollowUpDate,
		Notes:           r.Notes,
	}
}

// Create stores a new lead for the active team.
func (h *LeadHandler) Create(c *gin.Context) {
	var req leadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lead, err := h.leads.Create(c.Request.Context(), currentTeamID(c), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, lead)
}

// List returns the active team's leads.
func (h *LeadHandler) List(c *gin.Context) {
	leads, err := h.leads.List(c.Request.Context(), currentTeamID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, leads)
}

// Get returns one lead.
func (h *LeadHandler) Get(c *gin.Context) {
	lead, err := h.leads.Get(c.Request.Context(), currentTeamID(c), c.Param("leadID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, lead)
}

// Update rewrites a lead's fields.
func (h *LeadHandler) Update(c *gin.Context) {
	var req leadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lead, err := h.leads.Update(c.Request.Context(), currentTeamID(c), c.Param("leadID"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, lead)
}

// Delete removes a lead.
func (h *LeadHandler) Delete(c *gin.Context) {
	if err := h.leads.Delete(c.Request.Context(), currentTeamID(c), c.Param("leadID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
