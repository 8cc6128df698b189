package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.report/internal/capture"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := testStore(t)

	// All three tables exist and are queryable.
	for _, q := range []string{
		"SELECT COUNT(*) FROM settings",
		"SELECT COUNT(*) FROM profiles",
		"SELECT COUNT(*) FROM shots",
	} {
		var n int
		require.NoError(t, s.db.QueryRow(q).Scan(&n), q)
		assert.Equal(t, 0, n)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening an already-migrated database must not fail.
	s2, err := Open(path)
	require.NoError(t, err)
	s2.Close()
}

func TestSettingsTypedRoundTrips(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	t.Run("missing key reports not ok", func(t *testing.T) {
		_, ok, err := s.GetString(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("string", func(t *testing.T) {
		require.NoError(t, s.SetString(ctx, KeyDisplayUnits, "mph"))
		v, ok, err := s.GetString(ctx, KeyDisplayUnits)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "mph", v)
	})

	t.Run("float64", func(t *testing.T) {
		require.NoError(t, s.SetFloat64(ctx, "min_trigger_speed_mph", 17.5))
		v, ok, err := s.GetFloat64(ctx, "min_trigger_speed_mph")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 17.5, v)
	})

	t.Run("int", func(t *testing.T) {
		require.NoError(t, s.SetInt(ctx, "burst_frames", 24))
		v, ok, err := s.GetInt(ctx, "burst_frames")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 24, v)
	})

	t.Run("bool", func(t *testing.T) {
		require.NoError(t, s.SetBool(ctx, "sound_enabled", true))
		v, ok, err := s.GetBool(ctx, "sound_enabled")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.SetString(ctx, KeyDisplayUnits, "kph"))
		v, _, err := s.GetString(ctx, KeyDisplayUnits)
		require.NoError(t, err)
		assert.Equal(t, "kph", v)
	})

	t.Run("type mismatch errors", func(t *testing.T) {
		require.NoError(t, s.SetString(ctx, "junk", "not-a-number"))
		_, _, err := s.GetFloat64(ctx, "junk")
		assert.Error(t, err)
	})
}

func TestProfileCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &Profile{
		Name: "weekend bag",
		Clubs: []Club{
			{Name: "driver", LoftDeg: 10.5},
			{Name: "7 iron", LoftDeg: 34},
		},
	}
	require.NoError(t, s.SaveProfile(ctx, p))
	require.NotEmpty(t, p.ID, "save assigns an id")

	got, err := s.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	if diff := cmp.Diff(p.Clubs, got.Clubs); diff != "" {
		t.Errorf("clubs mismatch (-want +got):\n%s", diff)
	}

	// Update in place.
	p.Clubs = append(p.Clubs, Club{Name: "putter"})
	require.NoError(t, s.SaveProfile(ctx, p))
	got, err = s.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Clubs, 3)

	list, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteProfile(ctx, p.ID))
	_, err = s.GetProfile(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteProfile(ctx, p.ID), ErrNotFound)
}

func TestProfileRequiresName(t *testing.T) {
	s := testStore(t)
	assert.Error(t, s.SaveProfile(context.Background(), &Profile{}))
}

func testShot(profileID string, capturedAt time.Time, speed float64) capture.Shot {
	return capture.Shot{
		ProfileID:      profileID,
		Club:           "driver",
		CapturedAt:     capturedAt,
		BallSpeedMph:   speed,
		LaunchAngleDeg: 12.5,
		Direction:      "approaching",
		MagnitudeDB:    70,
		Trajectory: []capture.TrajectoryPoint{
			{X: 320, Y: 384, Radius: 26, Confidence: 0.95},
			{X: 360, Y: 364, Radius: 25, Confidence: 0.9},
		},
	}
}

func TestShotsAppendAndQueryNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendShot(ctx, testShot("p-1", base.Add(time.Duration(i)*time.Minute), 100+float64(i))))
	}
	require.NoError(t, s.AppendShot(ctx, testShot("p-2", base.Add(time.Hour), 140)))

	byProfile, err := s.ShotsByProfile(ctx, "p-1", 10)
	require.NoError(t, err)
	require.Len(t, byProfile, 3)
	assert.Equal(t, 102.0, byProfile[0].BallSpeedMph, "newest first")
	assert.Equal(t, 100.0, byProfile[2].BallSpeedMph)
	assert.Len(t, byProfile[0].Trajectory, 2, "trajectory round-trips")

	recent, err := s.RecentShots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 140.0, recent[0].BallSpeedMph)

	got, err := s.GetShot(ctx, byProfile[0].ID)
	require.NoError(t, err)
	assert.Equal(t, byProfile[0].ID, got.ID)
	assert.True(t, got.Trajectory[0].Confidence == 0.95)

	_, err = s.GetShot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveProfileResolver(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, club := s.ActiveProfile(ctx)
	assert.Empty(t, id)
	assert.Empty(t, club)

	require.NoError(t, s.SetString(ctx, KeyActiveProfile, "p-9"))
	require.NoError(t, s.SetString(ctx, KeyActiveClub, "5 iron"))

	id, club = s.ActiveProfile(ctx)
	assert.Equal(t, "p-9", id)
	assert.Equal(t, "5 iron", club)
}

func TestAdminRoutesRegistered(t *testing.T) {
	s := testStore(t)

	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.NotEqual(t, http.StatusNotFound, rr.Code, "tailsql route registered")

	req = httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, "backup works on a fresh database")
}
