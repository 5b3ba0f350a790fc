package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
)

func newTestLeadService(t *testing.T, db *gorm.DB) *LeadService {
	t.Helper()

	svc, err := NewLeadService(db)
	require.NoError(t, err)
	return svc
}

func TestLeadCreateDefaults(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	team := createTestTeam(t, db, "CRM Co")

	lead, err := svc.Create(context.Background(), team.ID, LeadInput{
		ContactName:  "  Grace Hopper  ",
		EmailAddress: "grace@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", lead.ContactName)
	require.Equal(t, "New", lead.LeadStatus)
	require.False(t, lead.DateReceived.IsZero())
}

func TestLeadCreateRequiresContactName(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	team := createTestTeam(t, db, "CRM Co")

	_, err := svc.Create(context.Background(), team.ID, LeadInput{})
	require.Error(t, err)
	require.Equal(t, "VALIDATION_FAILED", apperrors.FromError(err).Code)
}

func TestLeadCreateRequiresTeamScope(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	_, err := svc.Create(context.Background(), "", LeadInput{ContactName: "Nobody"})
	require.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestLeadsAreTeamScoped(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	teamA := createTestTeam(t, db, "A Co")
	teamB := createTestTeam(t, db, "B Co")

	lead, err := svc.Create(context.Background(), teamA.ID, LeadInput{ContactName: "Private"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), teamB.ID, lead.ID)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = svc.Delete(context.Background(), teamB.ID, lead.ID)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	leads, err := svc.List(context.Background(), teamB.ID)
	require.NoError(t, err)
	require.Empty(t, leads)

	leads, err = svc.List(context.Background(), teamA.ID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
}

func TestLeadUpdate(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	team := createTestTeam(t, db, "CRM Co")

	lead, err := svc.Create(context.Background(), team.ID, LeadInput{ContactName: "Initial"})
	require.NoError(t, err)

	value := 5000
	followUp := time.Now().Add(72 * time.Hour)
	updated, err := svc.Update(context.Background(), team.ID, lead.ID, LeadInput{
		ContactName:    "Updated",
		LeadStatus:     "Qualified",
		PotentialValue: &value,
		FollowUpDate:   &followUp,
		Notes:          "Called twice",
	})
	require.NoError(t, err)
	require.Equal(t, "Updated", updated.ContactName)
	require.Equal(t, "Qualified", updated.LeadStatus)
	require.NotNil(t, updated.PotentialValue)
	require.Equal(t, 5000, *updated.PotentialValue)
	require.Equal(t, "Called twice", updated.Notes)
}

func TestLeadDelete(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	team := createTestTeam(t, db, "CRM Co")

	lead, err := svc.Create(context.Background(), team.ID, LeadInput{ContactName: "Ephemeral"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), team.ID, lead.ID))

	_, err = svc.Get(context.Background(), team.ID, lead.ID)
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLeadListOrdersNewestFirst(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newTestLeadService(t, db)

	team := createTestTeam(t, db, "CRM Co")

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now().Add(-time.Hour)

	_, err := svc.Create(context.Background(), team.ID, LeadInput{ContactName: "Older", DateReceived: &older})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), team.ID, LeadInput{ContactName: "Newer", DateReceived: &newer})
	require.NoError(t, err)

	leads, err := svc.List(context.Background(), team.ID)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	require.Equal(t, "Newer", leads[0].ContactName)
	require.Equal(t, "Older", leads[1].ContactName)
}
