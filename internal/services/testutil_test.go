package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/verygoodsaas/backoffice/internal/database"
	"github.com/verygoodsaas/backoffice/internal/models"
	"github.com/verygoodsaas/backoffice/pkg/crypto"
	"github.com/verygoodsaas/backoffice/pkg/mail"
)

const testBaseURL = "https://backoffice.test"

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.GlobalRole) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("correct-horse-battery")
	require.NoError(t, err)

	user := &models.User{
		Name:         "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestTeam(t *testing.T, db *gorm.DB, name string) *models.Team {
	t.Helper()

	team := &models.Team{Name: name}
	require.NoError(t, db.Create(team).Error)
	return team
}

func addMembership(t *testing.T, db *gorm.DB, user *models.User, team *models.Team, role models.TeamRole) *models.TeamMembership {
	t.Helper()

	membership := &models.TeamMembership{
		UserID: user.ID,
		TeamID: team.ID,
		Role:   role,
	}
	require.NoError(t, db.Create(membership).Error)
	return membership
}

func newTestActivityService(t *testing.T, db *gorm.DB) *ActivityService {
	t.Helper()

	svc, err := NewActivityService(db)
	require.NoError(t, err)
	return svc
}

func newTestAuthzService(t *testing.T, db *gorm.DB) *AuthzService {
	t.Helper()

	svc, err := NewAuthzService(db)
	require.NoError(t, err)
	return svc
}

func activityActions(t *testing.T, db *gorm.DB, teamID string) []models.ActivityType {
	t.Helper()

	var rows []models.ActivityLog
	require.NoError(t, db.Where("team_id = ?", teamID).Order("timestamp ASC, id ASC").Find(&rows).Error)

	actions := make([]models.ActivityType, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, row.Action)
	}
	return actions
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
