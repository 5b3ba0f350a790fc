package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/models"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
)

// TeamService owns team profile changes, rosters and role management.
type TeamService struct {
	db       *gorm.DB
	activity *ActivityService
	authz    *AuthzService
}

func NewTeamService(db *gorm.DB, activity *ActivityService, authz *AuthzService) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service requires database handle")
	}
	if activity == nil || authz == nil {
		return nil, errors.New("team service requires activity and authz services")
	}
	return &TeamService{db: db, activity: activity, authz: authz}, nil
}

// Get loads a team with its member roster.
func (s *TeamService) Get(ctx context.Context, teamID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).
		Preload("Members.User").
		First(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team: get: %w", err)
	}
	return &team, nil
}

// UpdateNameInput renames the organisation.
type UpdateNameInput struct {
	TeamID    string
	Name      string
	Actor     *models.User
	IPAddress string
}

// UpdateName renames the team. Only team owners may rename, and the new name
// must be unique across organisations.
func (s *TeamService) UpdateName(ctx context.Context, input UpdateNameInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	if input.Actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if err := s.authz.RequireTeamOwner(ctx, input.Actor, input.TeamID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if err := validateTeamName(name); err != nil {
		return nil, err
	}

	var team models.Team
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&team, "id = ?", input.TeamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("team: load: %w", err)
		}

		var count int64
		err = tx.Model(&models.Team{}).
			Where("name = ? AND id <> ?", name, input.TeamID).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("team: check name: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("An organisation with this name already exists")
		}

		err = tx.Model(&models.Team{}).
			Where("id = ?", input.TeamID).
			Update("name", name).Error
		if err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("An organisation with this name already exists")
			}
			return fmt.Errorf("team: rename: %w", err)
		}
		team.Name = name

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    input.TeamID,
			UserID:    input.Actor.ID,
			Action:    models.ActivityUpdateOrgName,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"name": name},
		})
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// RemoveMemberInput removes one membership row from a team.
type RemoveMemberInput struct {
	TeamID       string
	MembershipID string
	Actor        *models.User
	IPAddress    string
}

// RemoveMember removes a member from the team roster. Only team owners may
// remove members. The user account itself is untouched.
func (s *TeamService) RemoveMember(ctx context.Context, input RemoveMemberInput) error {
	ctx = ensureContext(ctx)

	if input.Actor == nil {
		return apperrors.ErrUnauthorized
	}
	if err := s.authz.RequireTeamOwner(ctx, input.Actor, input.TeamID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership models.TeamMembership
		err := tx.First(&membership, "id = ? AND team_id = ?", input.MembershipID, input.TeamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("team: load membership: %w", err)
		}

		if err := tx.Delete(&membership).Error; err != nil {
			return fmt.Errorf("team: remove member: %w", err)
		}

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    input.TeamID,
			UserID:    input.Actor.ID,
			Action:    models.ActivityRemoveTeamMember,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"removed_user_id": membership.UserID},
		})
	})
}

// Switch resolves the requested team as the new active scope. An unbacked
// selection is a hard failure here, unlike passive resolution.
func (s *TeamService) Switch(ctx context.Context, user *models.User, teamID, ipAddress string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	team, err := s.authz.ResolveActiveTeam(ctx, user, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, apperrors.ErrForbidden
	}

	s.activity.RecordBestEffort(ctx, ActivityEntry{
		TeamID:    team.ID,
		UserID:    user.ID,
		Action:    models.ActivitySwitchTeam,
		IPAddress: ipAddress,
	})
	return team, nil
}

// UpdateUserRole changes a user's global role, subject to the management
// matrix. Only super admins may grant the super admin role.
func (s *TeamService) UpdateUserRole(ctx context.Context, actor *models.User, targetUserID string, role models.GlobalRole) error {
	ctx = ensureContext(ctx)

	if actor == nil {
		return apperrors.ErrUnauthorized
	}
	if !role.Valid() {
		return apperrors.NewBadRequest("Unknown role")
	}
	if role == models.GlobalRoleSuperAdmin && actor.Role != models.GlobalRoleSuperAdmin {
		return apperrors.ErrForbidden
	}

	var target models.User
	err := s.db.WithContext(ctx).First(&target, "id = ?", targetUserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("team: load user: %w", err)
	}

	if !s.authz.CanManageRoles(actor, &target) {
		return apperrors.ErrForbidden
	}

	err = s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", target.ID).
		Update("role", role).Error
	if err != nil {
		return fmt.Errorf("team: update role: %w", err)
	}
	return nil
}

// SubscriptionUpdate carries the opaque billing fields pushed by the
// payments integration.
type SubscriptionUpdate struct {
	StripeSubscriptionID *string
	StripeProductID      *string
	PlanName             string
	SubscriptionStatus   string
}

// SyncSubscription stores billing passthrough fields for the team identified
// by its billing customer id. The core never interprets these values.
func (s *TeamService) SyncSubscription(ctx context.Context, stripeCustomerID string, update SubscriptionUpdate) error {
	ctx = ensureContext(ctx)

	if stripeCustomerID == "" {
		return apperrors.NewBadRequest("Customer id is required")
	}

	result := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("stripe_customer_id = ?", stripeCustomerID).
		Updates(map[string]any{
			"stripe_subscription_id": update.StripeSubscriptionID,
			"stripe_product_id":      update.StripeProductID,
			"plan_name":              update.PlanName,
			"subscription_status":    update.SubscriptionStatus,
		})
	if result.Error != nil {
		return fmt.Errorf("team: sync subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
