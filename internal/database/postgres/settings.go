package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facemark/facemark/internal/database"
)

// SettingsRepository implements database.SettingsStore.
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a settings repository.
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetSettings returns the stored settings of a user, or the defaults
// when the user never saved any.
func (r *SettingsRepository) GetSettings(ctx context.Context, userID string) (*database.Settings, error) {
	var s database.Settings
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, camera_type, ip_camera_url, resolution,
		       work_start_time, late_cutoff_time, work_end_time,
		       matching_threshold, updated_at
		FROM settings
		WHERE user_id = $1
	`, userID).Scan(
		&s.UserID, &s.CameraType, &s.IPCameraURL, &s.Resolution,
		&s.WorkStartTime, &s.LateCutoffTime, &s.WorkEndTime,
		&s.MatchingThreshold, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		def := database.DefaultSettings(userID)
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts a user's settings row.
func (r *SettingsRepository) SaveSettings(ctx context.Context, s *database.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings
			(user_id, camera_type, ip_camera_url, resolution,
			 work_start_time, late_cutoff_time, work_end_time,
			 matching_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			camera_type = EXCLUDED.camera_type,
			ip_camera_url = EXCLUDED.ip_camera_url,
			resolution = EXCLUDED.resolution,
			work_start_time = EXCLUDED.work_start_time,
			late_cutoff_time = EXCLUDED.late_cutoff_time,
			work_end_time = EXCLUDED.work_end_time,
			matching_threshold = EXCLUDED.matching_threshold,
			updated_at = NOW()
	`,
		s.UserID, s.CameraType, s.IPCameraURL, s.Resolution,
		s.WorkStartTime, s.LateCutoffTime, s.WorkEndTime,
		s.MatchingThreshold)
	if isPQError(err, codeForeignKeyViolation) {
		return database.ErrMissingIdentity
	}
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
