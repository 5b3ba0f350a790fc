package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verygoodsaas/backoffice/internal/models"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/mail"
	"github.com/verygoodsaas/backoffice/pkg/metrics"
)

// InvitationService owns the invitation lifecycle: created pending, accepted
// exactly once, deletable only while pending.
type InvitationService struct {
	db       *gorm.DB
	activity *ActivityService
	authz    *AuthzService
	mailer   mail.Mailer
	baseURL  string
}

func NewInvitationService(db *gorm.DB, activity *ActivityService, authz *AuthzService, mailer mail.Mailer, baseURL string) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service requires database handle")
	}
	if activity == nil || authz == nil {
		return nil, errors.New("invitation service requires activity and authz services")
	}
	return &InvitationService{
		db:       db,
		activity: activity,
		authz:    authz,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// CreateInvitationInput carries everything needed to invite an email address
// into a team.
type CreateInvitationInput struct {
	TeamID    string
	Email     string
	Role      models.TeamRole
	InvitedBy *models.User
	IPAddress string
}

// Create records a pending invitation and sends the invitation email. The
// email goes out after the row is committed; a delivery failure is reported
// to the caller but does not undo the invitation.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	if input.InvitedBy == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if input.TeamID == "" {
		return nil, apperrors.ErrBadRequest
	}
	if err := s.authz.RequireTeamOwner(ctx, input.InvitedBy, input.TeamID); err != nil {
		return nil, err
	}
	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("Email address is required")
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewBadRequest("Role must be member or owner")
	}

	invitation := &models.Invitation{
		TeamID:      input.TeamID,
		Email:       email,
		Role:        input.Role,
		InvitedByID: input.InvitedBy.ID,
		Status:      models.InvitationPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var memberCount int64
		err := tx.Model(&models.TeamMembership{}).
			Joins("JOIN users ON users.id = team_memberships.user_id").
			Where("team_memberships.team_id = ? AND LOWER(users.email) = ? AND users.deleted_at IS NULL", input.TeamID, email).
			Count(&memberCount).Error
		if err != nil {
			return fmt.Errorf("invitation: check membership: %w", err)
		}
		if memberCount > 0 {
			return apperrors.NewConflict("User is already a member of this team")
		}

		var pendingCount int64
		err = tx.Model(&models.Invitation{}).
			Where("team_id = ? AND LOWER(email) = ? AND status = ?", input.TeamID, email, models.InvitationPending).
			Count(&pendingCount).Error
		if err != nil {
			return fmt.Errorf("invitation: check pending: %w", err)
		}
		if pendingCount > 0 {
			return apperrors.NewConflict("An invitation for this email is already pending")
		}

		if err := tx.Create(invitation).Error; err != nil {
			return fmt.Errorf("invitation: create: %w", err)
		}

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    input.TeamID,
			UserID:    input.InvitedBy.ID,
			Action:    models.ActivityInviteTeamMember,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"email": email, "role": string(input.Role)},
		})
	})
	if err != nil {
		metrics.InvitationTransitions.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}

	metrics.InvitationTransitions.WithLabelValues("create", "ok").Inc()

	if err := s.sendInvitationEmail(ctx, invitation, input.InvitedBy); err != nil {
		return invitation, err
	}

	return invitation, nil
}

// Get loads an invitation with its team and inviter, for the accept page.
func (s *InvitationService) Get(ctx context.Context, id string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		Preload("Team").
		Preload("InvitedBy").
		First(&invitation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation: get: %w", err)
	}
	return &invitation, nil
}

// ListPending returns the pending invitations for a team, newest first.
func (s *InvitationService) ListPending(ctx context.Context, teamID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitations []models.Invitation
	err := s.db.WithContext(ctx).
		Preload("InvitedBy").
		Where("team_id = ? AND status = ?", teamID, models.InvitationPending).
		Order("invited_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("invitation: list pending: %w", err)
	}
	return invitations, nil
}

// AcceptInvitationInput identifies the invitation and the registered user
// accepting it.
type AcceptInvitationInput struct {
	InvitationID string
	User         *models.User
	IPAddress    string
}

// Accept transitions a pending invitation to accepted and creates the
// membership. A repeat accept by the same user is a no-op success; the
// membership unique constraint resolves concurrent accepts to one row.
func (s *InvitationService) Accept(ctx context.Context, input AcceptInvitationInput) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	if input.User == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&invitation, "id = ?", input.InvitationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("invitation: load: %w", err)
		}

		if !strings.EqualFold(invitation.Email, input.User.Email) {
			return apperrors.ErrForbidden
		}

		alreadyMember, err := s.membershipExists(tx, input.User.ID, invitation.TeamID)
		if err != nil {
			return err
		}

		if invitation.Status == models.InvitationAccepted {
			if alreadyMember {
				return nil
			}
			return apperrors.NewConflict("Invitation has already been accepted")
		}

		// A concurrent accept may have inserted the membership already.
		// DO NOTHING keeps the losing transaction usable; postgres aborts
		// the whole transaction on a raised constraint error.
		membership := models.TeamMembership{
			UserID: input.User.ID,
			TeamID: invitation.TeamID,
			Role:   invitation.Role,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "team_id"}},
			DoNothing: true,
		}).Create(&membership).Error
		if err != nil {
			return fmt.Errorf("invitation: create membership: %w", err)
		}

		err = tx.Model(&models.Invitation{}).
			Where("id = ?", invitation.ID).
			Update("status", models.InvitationAccepted).Error
		if err != nil {
			return fmt.Errorf("invitation: mark accepted: %w", err)
		}
		invitation.Status = models.InvitationAccepted

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    invitation.TeamID,
			UserID:    input.User.ID,
			Action:    models.ActivityAcceptInvitation,
			IPAddress: input.IPAddress,
		})
	})
	if err != nil {
		metrics.InvitationTransitions.WithLabelValues("accept", "rejected").Inc()
		return nil, err
	}

	metrics.InvitationTransitions.WithLabelValues("accept", "ok").Inc()
	return &invitation, nil
}

// ApproveInvitationInput identifies the invitation a team owner is
// approving on behalf of the invited user.
type ApproveInvitationInput struct {
	InvitationID string
	TeamID       string
	Actor        *models.User
	IPAddress    string
}

// Approve materialises the membership without waiting for the invited user
// to click the link. The invited email must already belong to a registered
// account; approval never creates accounts. Approving an already-accepted
// invitation is a no-op success, which lets concurrent approvals both
// report success with a single membership row.
func (s *InvitationService) Approve(ctx context.Context, input ApproveInvitationInput) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	if input.Actor == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if err := s.authz.RequireTeamOwner(ctx, input.Actor, input.TeamID); err != nil {
		return nil, err
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&invitation, "id = ? AND team_id = ?", input.InvitationID, input.TeamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("invitation: load: %w", err)
		}

		var invited models.User
		err = tx.Where("LOWER(email) = ?", normaliseEmail(invitation.Email)).First(&invited).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewConflict("Invited user has not registered yet")
		}
		if err != nil {
			return fmt.Errorf("invitation: find invited user: %w", err)
		}

		if invitation.Status == models.InvitationAccepted {
			return nil
		}

		// The invited user may have joined through another path already;
		// DO NOTHING keeps a concurrent approval from poisoning the
		// transaction on postgres.
		membership := models.TeamMembership{
			UserID: invited.ID,
			TeamID: invitation.TeamID,
			Role:   invitation.Role,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "team_id"}},
			DoNothing: true,
		}).Create(&membership).Error
		if err != nil {
			return fmt.Errorf("invitation: create membership: %w", err)
		}

		err = tx.Model(&models.Invitation{}).
			Where("id = ?", invitation.ID).
			Update("status", models.InvitationAccepted).Error
		if err != nil {
			return fmt.Errorf("invitation: mark accepted: %w", err)
		}
		invitation.Status = models.InvitationAccepted

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    invitation.TeamID,
			UserID:    input.Actor.ID,
			Action:    models.ActivityAcceptInvitation,
			IPAddress: input.IPAddress,
			Metadata:  map[string]any{"approved_user_id": invited.ID},
		})
	})
	if err != nil {
		metrics.InvitationTransitions.WithLabelValues("approve", "rejected").Inc()
		return nil, err
	}

	metrics.InvitationTransitions.WithLabelValues("approve", "ok").Inc()
	return &invitation, nil
}

// DeleteInvitationInput identifies the pending invitation to revoke.
type DeleteInvitationInput struct {
	InvitationID string
	TeamID       string
	Actor        *models.User
	IPAddress    string
}

// Delete revokes a pending invitation. Accepted invitations are history and
// cannot be deleted.
func (s *InvitationService) Delete(ctx context.Context, input DeleteInvitationInput) error {
	ctx = ensureContext(ctx)

	if input.Actor == nil {
		return apperrors.ErrUnauthorized
	}
	if err := s.authz.RequireTeamOwner(ctx, input.Actor, input.TeamID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation models.Invitation
		err := tx.First(&invitation, "id = ? AND team_id = ?", input.InvitationID, input.TeamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("invitation: load: %w", err)
		}

		if invitation.Status != models.InvitationPending {
			return apperrors.NewConflict("Only pending invitations can be deleted")
		}

		if err := tx.Delete(&invitation).Error; err != nil {
			return fmt.Errorf("invitation: delete: %w", err)
		}

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    input.TeamID,
			UserID:    input.Actor.ID,
			Action:    models.ActivityDeleteInvitation,
			IPAddress: input.IPAddress,
		})
	})
	if err != nil {
		metrics.InvitationTransitions.WithLabelValues("delete", "rejected").Inc()
		return err
	}

	metrics.InvitationTransitions.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (s *InvitationService) membershipExists(tx *gorm.DB, userID, teamID string) (bool, error) {
	var count int64
	err := tx.Model(&models.TeamMembership{}).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("invitation: check membership: %w", err)
	}
	return count > 0, nil
}

func (s *InvitationService) sendInvitationEmail(ctx context.Context, invitation *models.Invitation, invitedBy *models.User) error {
	if s.mailer == nil {
		return fmt.Errorf("invitation: send email: %w", mail.ErrSMTPNotConfigured)
	}

	inviterName := invitedBy.Name
	if inviterName == "" {
		inviterName = invitedBy.Email
	}

	link := fmt.Sprintf("%s/accept-invitation?inviteId=%s", s.baseURL, invitation.ID)
	msg := mail.Message{
		To:      invitation.Email,
		Subject: "You have been invited to join a team",
		HTML: fmt.Sprintf(
			"<p>%s has invited you to join their team as a %s.</p><p><a href=%q>Accept the invitation</a></p><p>This invitation was sent on %s.</p>",
			inviterName, invitation.Role, link, invitation.InvitedAt.Format(time.RFC1123)),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("invitation: send email: %w", err)
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
