package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/models"
	"github.com/verygoodsaas/backoffice/pkg/crypto"
	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/mail"
	"github.com/verygoodsaas/backoffice/pkg/metrics"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 100
	teamNameMinLength = 4
	teamNameMaxLength = 100

	resetTokenBytes = 32
	resetTokenTTL   = time.Hour
)

// AccountService owns credentials and the account lifecycle.
type AccountService struct {
	db       *gorm.DB
	activity *ActivityService
	authz    *AuthzService
	mailer   mail.Mailer
	baseURL  string

	// Clock is injectable for tests.
	Clock func() time.Time
}

func NewAccountService(db *gorm.DB, activity *ActivityService, authz *AuthzService, mailer mail.Mailer, baseURL string) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service requires database handle")
	}
	if activity == nil || authz == nil {
		return nil, errors.New("account service requires activity and authz services")
	}
	return &AccountService{
		db:       db,
		activity: activity,
		authz:    authz,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		Clock:    time.Now,
	}, nil
}

// SignUpInput registers a new account. Either InviteID or an organisation is
// created: with an invitation the user joins the inviting team, without one
// a fresh team is created and the user becomes its owner.
type SignUpInput struct {
	Name      string
	Email     string
	Password  string
	InviteID  string
	OrgName   string
	IPAddress string
}

// SignUpResult is the registered user together with the team they landed in.
type SignUpResult struct {
	User *models.User
	Team *models.Team
}

func (s *AccountService) SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("Email address is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	result := &SignUpResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("account: check email: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("An account with this email already exists")
		}

		user := &models.User{
			Name:         strings.TrimSpace(input.Name),
			Email:        email,
			PasswordHash: hash,
			Role:         models.GlobalRoleMember,
		}

		if input.InviteID != "" {
			return s.signUpWithInvitation(tx, user, input, result)
		}
		return s.signUpWithNewTeam(tx, user, input, result)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *AccountService) signUpWithInvitation(tx *gorm.DB, user *models.User, input SignUpInput, result *SignUpResult) error {
	var invitation models.Invitation
	err := tx.Preload("Team").
		Where("id = ? AND LOWER(email) = ? AND status = ?", input.InviteID, user.Email, models.InvitationPending).
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewBadRequest("Invitation is invalid or has expired")
	}
	if err != nil {
		return fmt.Errorf("account: load invitation: %w", err)
	}

	user.Role = models.GlobalRole(invitation.Role)
	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewConflict("An account with this email already exists")
		}
		return fmt.Errorf("account: create user: %w", err)
	}

	membership := models.TeamMembership{
		UserID: user.ID,
		TeamID: invitation.TeamID,
		Role:   invitation.Role,
	}
	if err := tx.Create(&membership).Error; err != nil {
		return fmt.Errorf("account: create membership: %w", err)
	}

	err = tx.Model(&models.Invitation{}).
		Where("id = ?", invitation.ID).
		Update("status", models.InvitationAccepted).Error
	if err != nil {
		return fmt.Errorf("account: mark invitation accepted: %w", err)
	}

	entries := []ActivityEntry{
		{TeamID: invitation.TeamID, UserID: user.ID, Action: models.ActivityAcceptInvitation, IPAddress: input.IPAddress},
		{TeamID: invitation.TeamID, UserID: user.ID, Action: models.ActivitySignUp, IPAddress: input.IPAddress},
	}
	for _, entry := range entries {
		if err := s.activity.recordInTx(tx, entry); err != nil {
			return err
		}
	}

	result.User = user
	result.Team = invitation.Team
	return nil
}

func (s *AccountService) signUpWithNewTeam(tx *gorm.DB, user *models.User, input SignUpInput, result *SignUpResult) error {
	orgName := strings.TrimSpace(input.OrgName)
	if orgName == "" {
		orgName = fmt.Sprintf("%s's Team", user.Email)
	}
	if err := validateTeamName(orgName); err != nil {
		return err
	}

	user.Role = models.GlobalRoleOwner
	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewConflict("An account with this email already exists")
		}
		return fmt.Errorf("account: create user: %w", err)
	}

	team := &models.Team{Name: orgName}
	if err := tx.Create(team).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.NewConflict("An organisation with this name already exists")
		}
		return fmt.Errorf("account: create team: %w", err)
	}

	membership := models.TeamMembership{
		UserID: user.ID,
		TeamID: team.ID,
		Role:   models.TeamRoleOwner,
	}
	if err := tx.Create(&membership).Error; err != nil {
		return fmt.Errorf("account: create membership: %w", err)
	}

	entries := []ActivityEntry{
		{TeamID: team.ID, UserID: user.ID, Action: models.ActivityCreateTeam, IPAddress: input.IPAddress},
		{TeamID: team.ID, UserID: user.ID, Action: models.ActivitySignUp, IPAddress: input.IPAddress},
	}
	for _, entry := range entries {
		if err := s.activity.recordInTx(tx, entry); err != nil {
			return err
		}
	}

	result.User = user
	result.Team = team
	return nil
}

// SignInInput authenticates by email and password.
type SignInInput struct {
	Email     string
	Password  string
	IPAddress string
}

// SignIn verifies credentials against live accounts only. Soft-deleted users
// and unknown emails fail identically to a wrong password.
func (s *AccountService) SignIn(ctx context.Context, input SignInInput) (*SignUpResult, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	team, err := s.authz.TeamForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if team != nil {
		s.activity.RecordBestEffort(ctx, ActivityEntry{
			TeamID:    team.ID,
			UserID:    user.ID,
			Action:    models.ActivitySignIn,
			IPAddress: input.IPAddress,
		})
	}

	metrics.AuthAttempts.WithLabelValues("succeeded").Inc()
	return &SignUpResult{User: &user, Team: team}, nil
}

// SignOut records the sign-out for the team the session was scoped to.
func (s *AccountService) SignOut(ctx context.Context, user *models.User, teamID, ipAddress string) error {
	if user == nil {
		return apperrors.ErrUnauthorized
	}

	s.activity.RecordBestEffort(ensureContext(ctx), ActivityEntry{
		TeamID:    teamID,
		UserID:    user.ID,
		Action:    models.ActivitySignOut,
		IPAddress: ipAddress,
	})
	return nil
}

// UpdatePassword rotates the password after verifying the current one.
func (s *AccountService) UpdatePassword(ctx context.Context, user *models.User, currentPassword, newPassword, teamID, ipAddress string) error {
	ctx = ensureContext(ctx)

	if user == nil {
		return apperrors.ErrUnauthorized
	}
	if !crypto.VerifyPassword(user.PasswordHash, currentPassword) {
		return apperrors.NewBadRequest("Current password is incorrect")
	}
	if currentPassword == newPassword {
		return apperrors.NewBadRequest("New password must be different from the current password")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("password_hash", hash).Error
		if err != nil {
			return fmt.Errorf("account: update password: %w", err)
		}
		user.PasswordHash = hash

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    teamID,
			UserID:    user.ID,
			Action:    models.ActivityUpdatePassword,
			IPAddress: ipAddress,
		})
	})
}

// UpdateAccountInput changes the account profile fields.
type UpdateAccountInput struct {
	Name      string
	Email     string
	TeamID    string
	IPAddress string
}

// UpdateAccount changes name and email. Email collisions with another live
// account are conflicts.
func (s *AccountService) UpdateAccount(ctx context.Context, user *models.User, input UpdateAccountInput) error {
	ctx = ensureContext(ctx)

	if user == nil {
		return apperrors.ErrUnauthorized
	}

	name := strings.TrimSpace(input.Name)
	email := normaliseEmail(input.Email)
	if name == "" || email == "" {
		return apperrors.NewBadRequest("Name and email are required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.User{}).
			Where("LOWER(email) = ? AND id <> ?", email, user.ID).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("account: check email: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("An account with this email already exists")
		}

		err = tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{"name": name, "email": email}).Error
		if err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewConflict("An account with this email already exists")
			}
			return fmt.Errorf("account: update: %w", err)
		}
		user.Name = name
		user.Email = email

		return s.activity.recordInTx(tx, ActivityEntry{
			TeamID:    input.TeamID,
			UserID:    user.ID,
			Action:    models.ActivityUpdateAccount,
			IPAddress: input.IPAddress,
		})
	})
}

// DeleteAccount soft-deletes the account after verifying the password. The
// email is suffixed with the user id so the unique index frees up for future
// registrations, and memberships are removed so the user vanishes from team
// rosters.
func (s *AccountService) DeleteAccount(ctx context.Context, user *models.User, password, ipAddress string) error {
	ctx = ensureContext(ctx)

	if user == nil {
		return apperrors.ErrUnauthorized
	}
	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return apperrors.NewBadRequest("Password is incorrect")
	}

	team, err := s.authz.TeamForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if team != nil {
			entry := ActivityEntry{
				TeamID:    team.ID,
				UserID:    user.ID,
				Action:    models.ActivityDeleteAccount,
				IPAddress: ipAddress,
			}
			if err := s.activity.recordInTx(tx, entry); err != nil {
				return err
			}
		}

		mangled := fmt.Sprintf("%s-%s-deleted", user.Email, user.ID)
		err := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("email", mangled).Error
		if err != nil {
			return fmt.Errorf("account: release email: %w", err)
		}

		err = tx.Where("user_id = ?", user.ID).Delete(&models.TeamMembership{}).Error
		if err != nil {
			return fmt.Errorf("account: remove memberships: %w", err)
		}

		if err := tx.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("account: delete user: %w", err)
		}
		return nil
	})
}

// RequestPasswordReset issues a one-time reset token and mails the reset
// link. Unknown emails succeed silently so the endpoint does not reveal
// which addresses have accounts.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return apperrors.NewBadRequest("Email address is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("account: find user: %w", err)
	}

	token, err := crypto.GenerateToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("account: generate reset token: %w", err)
	}

	reset := models.PasswordResetToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: s.now().Add(resetTokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return fmt.Errorf("account: store reset token: %w", err)
	}

	if s.mailer == nil {
		return fmt.Errorf("account: send reset email: %w", mail.ErrSMTPNotConfigured)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	msg := mail.Message{
		To:      user.Email,
		Subject: "Reset your password",
		HTML: fmt.Sprintf(
			"<p>A password reset was requested for your account.</p><p><a href=%q>Choose a new password</a></p><p>The link expires in one hour. If you did not request this, ignore this email.</p>",
			link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("account: send reset email: %w", err)
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)

	if token == "" {
		return apperrors.NewBadRequest("Reset token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordResetToken
		err := tx.Where("token = ?", token).First(&reset).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewBadRequest("Reset token is invalid or has expired")
		}
		if err != nil {
			return fmt.Errorf("account: load reset token: %w", err)
		}

		if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
			return apperrors.NewBadRequest("Reset token is invalid or has expired")
		}

		err = tx.Model(&models.User{}).
			Where("id = ?", reset.UserID).
			Update("password_hash", hash).Error
		if err != nil {
			return fmt.Errorf("account: update password: %w", err)
		}

		err = tx.Model(&models.PasswordResetToken{}).
			Where("id = ?", reset.ID).
			Update("used_at", now).Error
		if err != nil {
			return fmt.Errorf("account: consume reset token: %w", err)
		}
		return nil
	})
}

// PruneExpiredResetTokens removes used and expired reset tokens.
func (s *AccountService) PruneExpiredResetTokens(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("account: prune reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *AccountService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func validatePassword(password string) error {
	if len(password) < passwordMinLength {
		return apperrors.NewBadRequest(fmt.Sprintf("Password must be at least %d characters", passwordMinLength))
	}
	if len(password) > passwordMaxLength {
		return apperrors.NewBadRequest(fmt.Sprintf("Password must be at most %d characters", passwordMaxLength))
	}
	return nil
}

func validateTeamName(name string) error {
	if len(name) < teamNameMinLength || len(name) > teamNameMaxLength {
		return apperrors.NewBadRequest(fmt.Sprintf("Organisation name must be between %d and %d characters", teamNameMinLength, teamNameMaxLength))
	}
	return nil
}
