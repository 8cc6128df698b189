package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fairway-data/launch.report/internal/capture"
)

// AppendShot records a completed shot. Shots are immutable once appended;
// there is no update path.
func (s *Store) AppendShot(ctx context.Context, shot capture.Shot) error {
	if shot.ID == "" {
		shot.ID = uuid.NewString()
	}

	trajectory, err := json.Marshal(shot.Trajectory)
	if err != nil {
		return fmt.Errorf("failed to encode trajectory: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shots (
			id, profile_id, club, captured_at, ball_speed_mph,
			launch_angle_deg, direction, magnitude_db, truncated, trajectory
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		shot.ID, shot.ProfileID, shot.Club, shot.CapturedAt.UTC(), shot.BallSpeedMph,
		shot.LaunchAngleDeg, shot.Direction, shot.MagnitudeDB, shot.Truncated, string(trajectory))
	if err != nil {
		return fmt.Errorf("failed to append shot %s: %w", shot.ID, err)
	}
	return nil
}

// ShotsByProfile returns a profile's shots, newest first.
func (s *Store) ShotsByProfile(ctx context.Context, profileID string, limit int) ([]capture.Shot, error) {
	return s.queryShots(ctx, `
		SELECT id, profile_id, club, captured_at, ball_speed_mph,
			launch_angle_deg, direction, magnitude_db, truncated, trajectory
		FROM shots WHERE profile_id = ? ORDER BY captured_at DESC LIMIT ?`,
		profileID, clampLimit(limit))
}

// RecentShots returns the newest shots across all profiles.
func (s *Store) RecentShots(ctx context.Context, limit int) ([]capture.Shot, error) {
	return s.queryShots(ctx, `
		SELECT id, profile_id, club, captured_at, ball_speed_mph,
			launch_angle_deg, direction, magnitude_db, truncated, trajectory
		FROM shots ORDER BY captured_at DESC LIMIT ?`,
		clampLimit(limit))
}

// GetShot returns one shot by id.
func (s *Store) GetShot(ctx context.Context, id string) (*capture.Shot, error) {
	shots, err := s.queryShots(ctx, `
		SELECT id, profile_id, club, captured_at, ball_speed_mph,
			launch_angle_deg, direction, magnitude_db, truncated, trajectory
		FROM shots WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(shots) == 0 {
		return nil, fmt.Errorf("shot %s: %w", id, ErrNotFound)
	}
	return &shots[0], nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 500
	}
	return limit
}

func (s *Store) queryShots(ctx context.Context, query string, args ...interface{}) ([]capture.Shot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shots: %w", err)
	}
	defer rows.Close()

	var out []capture.Shot
	for rows.Next() {
		var shot capture.Shot
		var trajectory string
		if err := rows.Scan(
			&shot.ID, &shot.ProfileID, &shot.Club, &shot.CapturedAt, &shot.BallSpeedMph,
			&shot.LaunchAngleDeg, &shot.Direction, &shot.MagnitudeDB, &shot.Truncated, &trajectory,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(trajectory), &shot.Trajectory); err != nil {
			return nil, fmt.Errorf("failed to decode trajectory for shot %s: %w", shot.ID, err)
		}
		out = append(out, shot)
	}
	return out, rows.Err()
}
