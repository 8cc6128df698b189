package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

// Club is one bag entry in a profile.
type Club struct {
	Name    string  `json:"name"`
	LoftDeg float64 `json:"loft_deg"`
}

// Profile is a named equipment bag.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Clubs     []Club    `json:"clubs"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveProfile inserts or updates a profile. A profile with no ID gets one.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	clubs, err := json.Marshal(p.Clubs)
	if err != nil {
		return fmt.Errorf("failed to encode clubs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, clubs, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, clubs = excluded.clubs`,
		p.ID, p.Name, string(clubs), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save profile %q: %w", p.Name, err)
	}
	return nil
}

// GetProfile returns a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, clubs, created_at FROM profiles WHERE id = ?", id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListProfiles returns all profiles, newest first.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, clubs, created_at FROM profiles ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile. Its shots keep their profile_id so
// history queries still group them.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var clubs string
	if err := row.Scan(&p.ID, &p.Name, &clubs, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(clubs), &p.Clubs); err != nil {
		return nil, fmt.Errorf("failed to decode clubs for profile %s: %w", p.ID, err)
	}
	return &p, nil
}
