package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/verygoodsaas/backoffice/internal/models"
	"github.com/verygoodsaas/backoffice/pkg/logger"
)

// ActivityEntry describes one security-relevant action to record.
type ActivityEntry struct {
	TeamID    string
	UserID    string
	Action    models.ActivityType
	IPAddress string
	Metadata  map[string]any
}

// ActivityService is the append-only activity log sink.
type ActivityService struct {
	db *gorm.DB

	// Clock is injectable for tests.
	Clock func() time.Time
}

func NewActivityService(db *gorm.DB) (*ActivityService, error) {
	if db == nil {
		return nil, errors.New("activity service requires database handle")
	}
	return &ActivityService{db: db, Clock: time.Now}, nil
}

// Record appends one entry. A missing team scope makes the call a silent
// no-op rather than an error: callers in account flows do not always have a
// team yet.
func (s *ActivityService) Record(ctx context.Context, entry ActivityEntry) error {
	ctx = ensureContext(ctx)

	if entry.TeamID == "" {
		return nil
	}
	if entry.Action == "" {
		return errors.New("activity: action is required")
	}

	row := models.ActivityLog{
		TeamID:    entry.TeamID,
		Action:    entry.Action,
		Timestamp: s.now(),
		IPAddress: entry.IPAddress,
	}
	if entry.UserID != "" {
		userID := entry.UserID
		row.UserID = &userID
	}
	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("activity: encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(payload)
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("activity: record %s: %w", entry.Action, err)
	}
	return nil
}

// recordInTx is the transactional variant used by services that append log
// entries as part of a larger unit of work.
func (s *ActivityService) recordInTx(tx *gorm.DB, entry ActivityEntry) error {
	if entry.TeamID == "" {
		return nil
	}

	row := models.ActivityLog{
		TeamID:    entry.TeamID,
		Action:    entry.Action,
		Timestamp: s.now(),
		IPAddress: entry.IPAddress,
	}
	if entry.UserID != "" {
		userID := entry.UserID
		row.UserID = &userID
	}
	if len(entry.Metadata) > 0 {
		payload, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("activity: encode metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(payload)
	}

	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("activity: record %s: %w", entry.Action, err)
	}
	return nil
}

// RecordBestEffort records the entry and logs rather than returns a failure.
// Used where the surrounding operation already succeeded and must not be
// unwound by a log write failure.
func (s *ActivityService) RecordBestEffort(ctx context.Context, entry ActivityEntry) {
	if err := s.Record(ctx, entry); err != nil {
		logger.WithModule("activity").Warn("failed to record activity",
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// List returns the newest entries for a team, newest first.
func (s *ActivityService) List(ctx context.Context, teamID string, limit int) ([]models.ActivityLog, error) {
	ctx = ensureContext(ctx)

	if teamID == "" {
		return nil, errors.New("activity: team id is required")
	}
	if limit <= 0 {
		limit = 10
	}

	var rows []models.ActivityLog
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("timestamp DESC").
		Limit(limit).
		Preload("User").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("activity: list: %w", err)
	}
	return rows, nil
}

// PruneOlderThan deletes entries with a timestamp before the cutoff and
// returns how many rows were removed.
func (s *ActivityService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.ActivityLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("activity: prune: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *ActivityService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
