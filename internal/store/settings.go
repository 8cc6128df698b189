package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Settings keys the pipeline consumes.
const (
	// KeyActiveProfile is the profile id new shots record under.
	KeyActiveProfile = "active_profile"
	// KeyActiveClub is the club name new shots record under.
	KeyActiveClub = "active_club"
	// KeyDisplayUnits is the GUI's speed unit preference.
	KeyDisplayUnits = "display_units"
)

// GetString reads a setting. ok is false when the key has never been set;
// the caller supplies its own default.
func (s *Store) GetString(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetString writes a setting, replacing any prior value.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// GetFloat64 reads a numeric setting.
func (s *Store) GetFloat64(ctx context.Context, key string) (float64, bool, error) {
	raw, ok, err := s.GetString(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("setting %q is not a number: %w", key, err)
	}
	return v, true, nil
}

// SetFloat64 writes a numeric setting.
func (s *Store) SetFloat64(ctx context.Context, key string, value float64) error {
	return s.SetString(ctx, key, strconv.FormatFloat(value, 'g', -1, 64))
}

// GetInt reads an integer setting.
func (s *Store) GetInt(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := s.GetString(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("setting %q is not an integer: %w", key, err)
	}
	return v, true, nil
}

// SetInt writes an integer setting.
func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.SetString(ctx, key, strconv.Itoa(value))
}

// GetBool reads a boolean setting.
func (s *Store) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := s.GetString(ctx, key)
	if err != nil || !ok {
		return false, ok, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("setting %q is not a boolean: %w", key, err)
	}
	return v, true, nil
}

// SetBool writes a boolean setting.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.SetString(ctx, key, strconv.FormatBool(value))
}

// ActiveProfile implements capture.ProfileResolver over the settings
// table. Unset keys yield empty strings: the shot records unattributed.
func (s *Store) ActiveProfile(ctx context.Context) (profileID, club string) {
	profileID, _, _ = s.GetString(ctx, KeyActiveProfile)
	club, _, _ = s.GetString(ctx, KeyActiveClub)
	return profileID, club
}
