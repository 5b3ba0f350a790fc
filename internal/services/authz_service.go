package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/models"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/metrics"
)

// AuthzService resolves identities and team scope for every request.
type AuthzService struct {
	db *gorm.DB
}

func NewAuthzService(db *gorm.DB) (*AuthzService, error) {
	if db == nil {
		return nil, errors.New("authz service requires database handle")
	}
	return &AuthzService{db: db}, nil
}

// ResolveUser loads the account for a verified session. Soft-deleted users
// resolve to nothing: a valid token for a deleted account is still rejected.
func (s *AuthzService) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("authz: resolve user: %w", err)
	}
	return &user, nil
}

// ResolveActiveTeam maps a session's active team selection to a team the
// user may act in. It returns (nil, nil) both when no team is selected and
// when the selection is not backed by a membership; callers decide whether
// an absent team is an error for their operation. Elevated global roles
// bypass the membership requirement.
func (s *AuthzService) ResolveActiveTeam(ctx context.Context, user *models.User, activeTeamID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if activeTeamID == "" {
		return nil, nil
	}

	if user.Role.Elevated() {
		var team models.Team
		err := s.db.WithContext(ctx).First(&team, "id = ?", activeTeamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.TeamAccessChecks.WithLabelValues("denied").Inc()
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("authz: resolve team: %w", err)
		}
		metrics.TeamAccessChecks.WithLabelValues("bypass").Inc()
		return &team, nil
	}

	var membership models.TeamMembership
	err := s.db.WithContext(ctx).
		Preload("Team").
		Where("user_id = ? AND team_id = ?", user.ID, activeTeamID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.TeamAccessChecks.WithLabelValues("denied").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authz: resolve membership: %w", err)
	}

	metrics.TeamAccessChecks.WithLabelValues("allowed").Inc()
	return membership.Team, nil
}

// TeamForUser returns the user's first team by join date, used as the
// fallback scope when the session carries no active team.
func (s *AuthzService) TeamForUser(ctx context.Context, userID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var membership models.TeamMembership
	err := s.db.WithContext(ctx).
		Preload("Team").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authz: team for user: %w", err)
	}
	return membership.Team, nil
}

// AllTeamsForUser lists every team the user belongs to. Elevated global
// roles see all teams.
func (s *AuthzService) AllTeamsForUser(ctx context.Context, user *models.User) ([]models.Team, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, apperrors.ErrUnauthorized
	}

	if user.Role.Elevated() {
		var teams []models.Team
		if err := s.db.WithContext(ctx).Order("name ASC").Find(&teams).Error; err != nil {
			return nil, fmt.Errorf("authz: list teams: %w", err)
		}
		return teams, nil
	}

	var memberships []models.TeamMembership
	err := s.db.WithContext(ctx).
		Preload("Team").
		Where("user_id = ?", user.ID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("authz: list memberships: %w", err)
	}

	teams := make([]models.Team, 0, len(memberships))
	for _, m := range memberships {
		if m.Team != nil {
			teams = append(teams, *m.Team)
		}
	}
	return teams, nil
}

// EffectiveRole reports the user's role within a team. Elevated global
// roles act as team owners everywhere.
func (s *AuthzService) EffectiveRole(ctx context.Context, user *models.User, teamID string) (models.TeamRole, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return "", apperrors.ErrUnauthorized
	}
	if user.Role.Elevated() {
		return models.TeamRoleOwner, nil
	}

	var membership models.TeamMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ?", user.ID, teamID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.ErrForbidden
	}
	if err != nil {
		return "", fmt.Errorf("authz: effective role: %w", err)
	}
	return membership.Role, nil
}

// CanManageRoles applies the global role management matrix: a super admin
// manages anyone, an admin manages anyone except super admins, and everyone
// else manages no one.
func (s *AuthzService) CanManageRoles(actor, target *models.User) bool {
	if actor == nil || target == nil {
		return false
	}

	switch actor.Role {
	case models.GlobalRoleSuperAdmin:
		return true
	case models.GlobalRoleAdmin:
		return target.Role != models.GlobalRoleSuperAdmin
	default:
		return false
	}
}

// RequireTeamOwner verifies the user holds the owner role in the team.
func (s *AuthzService) RequireTeamOwner(ctx context.Context, user *models.User, teamID string) error {
	role, err := s.EffectiveRole(ctx, user, teamID)
	if err != nil {
		return err
	}
	if role != models.TeamRoleOwner {
		return apperrors.ErrForbidden
	}
	return nil
}
