package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/models"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
)

// LeadService is the team-scoped CRM store. Every operation takes the
// resolved team id; a lead is never visible outside its team.
type LeadService struct {
	db *gorm.DB

	// Clock is injectable for tests.
	Clock func() time.Time
}

func NewLeadService(db *gorm.DB) (*LeadService, error) {
	if db == nil {
		return nil, errors.New("lead service requires database handle")
	}
	return &LeadService{db: db, Clock: time.Now}, nil
}

// LeadInput carries the editable lead fields.
type LeadInput struct {
	ContactName     string
	EmailAddress    string
	PhoneNumber     string
	LeadSource      string
	ServiceInterest string
	LeadStatus      string
	PotentialValue  *int
	DateReceived    *time.Time
	FollowUpDate    *time.Time
	Notes           string
}

// Create stores a new lead for the team.
func (s *LeadService) Create(ctx context.Context, teamID string, input LeadInput) (*models.Lead, error) {
	ctx = ensureContext(ctx)

	if teamID == "" {
		return nil, apperrors.ErrForbidden
	}

	contactName := strings.TrimSpace(input.ContactName)
	if contactName == "" {
		return nil, apperrors.NewBadRequest("Contact name is required")
	}

	lead := &models.Lead{
		TeamID:          teamID,
		ContactName:     contactName,
		EmailAddress:    strings.TrimSpace(input.EmailAddress),
		PhoneNumber:     strings.TrimSpace(input.PhoneNumber),
		LeadSource:      input.LeadSource,
		ServiceInterest: input.ServiceInterest,
		LeadStatus:      input.LeadStatus,
		PotentialValue:  input.PotentialValue,
		FollowUpDate:    input.FollowUpDate,
		Notes:           input.Notes,
	}
	if lead.LeadStatus == "" {
		lead.LeadStatus = "New"
	}
	if input.DateReceived != nil {
		lead.DateReceived = *input.DateReceived
	} else {
		lead.DateReceived = s.now()
	}

	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, fmt.Errorf("lead: create: %w", err)
	}
	return lead, nil
}

// List returns the team's leads, newest first.
func (s *LeadService) List(ctx context.Context, teamID string) ([]models.Lead, error) {
	ctx = ensureContext(ctx)

	if teamID == "" {
		return nil, apperrors.ErrForbidden
	}

	var leads []models.Lead
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("date_received DESC").
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("lead: list: %w", err)
	}
	return leads, nil
}

// Get loads a single lead, scoped to the team.
func (s *LeadService) Get(ctx context.Context, teamID, leadID string) (*models.Lead, error) {
	ctx = ensureContext(ctx)

	if teamID == "" {
		return nil, apperrors.ErrForbidden
	}

	var lead models.Lead
	err := s.db.WithContext(ctx).
		First(&lead, "id = ? AND team_id = ?", leadID, teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lead: get: %w", err)
	}
	return &lead, nil
}

// Update rewrites the editable fields of a lead.
func (s *LeadService) Update(ctx context.Context, teamID, leadID string, input LeadInput) (*models.Lead, error) {
	ctx = ensureContext(ctx)

	lead, err := s.Get(ctx, teamID, leadID)
	if err != nil {
		return nil, err
	}

	contactName := strings.TrimSpace(input.ContactName)
	if contactName == "" {
		return nil, apperrors.NewBadRequest("Contact name is required")
	}

	lead.ContactName = contactName
	lead.EmailAddress = strings.TrimSpace(input.EmailAddress)
	lead.PhoneNumber = strings.TrimSpace(input.PhoneNumber)
	lead.LeadSource = input.LeadSource
	lead.ServiceInterest = input.ServiceInterest
	if input.LeadStatus != "" {
		lead.LeadStatus = input.LeadStatus
	}
	lead.PotentialValue = input.PotentialValue
	lead.FollowUpDate = input.FollowUpDate
	lead.Notes = input.Notes
	if input.DateReceived != nil {
		lead.DateReceived = *input.DateReceived
	}

	if err := s.db.WithContext(ctx).Save(lead).Error; err != nil {
		return nil, fmt.Errorf("lead: update: %w", err)
	}
	return lead, nil
}

// Delete removes a lead from the team.
func (s *LeadService) Delete(ctx context.Context, teamID, leadID string) error {
	ctx = ensureContext(ctx)

	if teamID == "" {
		return apperrors.ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND team_id = ?", leadID, teamID).
		Delete(&models.Lead{})
	if result.Error != nil {
		return fmt.Errorf("lead: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *LeadService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
