package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.report/internal/capture"
	"github.com/fairway-data/launch.report/internal/config"
	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/store"
	"github.com/fairway-data/launch.report/internal/vision"
)

func testServer(t *testing.T) (*Server, *store.Store, *events.Bus, *vision.SnapshotHolder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(16)
	holder := vision.NewSnapshotHolder()
	srv := NewServer(bus, st, holder, config.Empty())
	return srv, st, bus, holder
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestStatusEndpoint(t *testing.T) {
	srv, _, _, holder := testServer(t)
	srv.AddStatusField("radar_trigger", func() interface{} { return "idle" })
	srv.AddStatusField("missed_captures", func() interface{} { return 2 })
	holder.Store(vision.TrackSnapshot{State: vision.StateLocked, X: 320, Y: 384, Confidence: 0.9})

	rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "idle", status["radar_trigger"])
	assert.Equal(t, 2.0, status["missed_captures"])
	track := status["track"].(map[string]interface{})
	assert.Equal(t, "locked", track["state"])
	assert.Contains(t, status["version"], "launchmon")
}

func TestStatusRejectsPost(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rr := doJSON(t, srv.ServeMux(), http.MethodPost, "/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestShotsEndpoint(t *testing.T) {
	srv, st, _, _ := testServer(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.AppendShot(ctx, capture.Shot{
			ProfileID:    "p-1",
			CapturedAt:   base.Add(time.Duration(i) * time.Minute),
			BallSpeedMph: 100 + float64(i),
		}))
	}

	t.Run("all shots newest first", func(t *testing.T) {
		rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/shots", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp struct {
			Shots []capture.Shot `json:"shots"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Shots, 3)
		assert.Equal(t, 102.0, resp.Shots[0].BallSpeedMph)
	})

	t.Run("limit", func(t *testing.T) {
		rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/shots?limit=1", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp struct {
			Shots []capture.Shot `json:"shots"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Len(t, resp.Shots, 1)
	})

	t.Run("unknown profile is empty not error", func(t *testing.T) {
		rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/shots?profile=ghost", nil)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("bad limit rejected", func(t *testing.T) {
		rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/shots?limit=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestProfileEndpoints(t *testing.T) {
	srv, _, _, _ := testServer(t)
	mux := srv.ServeMux()

	rr := doJSON(t, mux, http.MethodPost, "/api/profiles", store.Profile{
		Name:  "range bag",
		Clubs: []store.Club{{Name: "driver", LoftDeg: 9.5}},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var created store.Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rr = doJSON(t, mux, http.MethodGet, "/api/profiles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "range bag")

	rr = doJSON(t, mux, http.MethodGet, "/api/profiles/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, mux, http.MethodDelete, "/api/profiles/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, mux, http.MethodGet, "/api/profiles/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, mux, http.MethodPost, "/api/profiles", map[string]int{"bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "profile without a name rejected")
}

func TestSettingsEndpoints(t *testing.T) {
	srv, _, _, _ := testServer(t)
	mux := srv.ServeMux()

	rr := doJSON(t, mux, http.MethodGet, "/api/settings/display_units", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "unset key is 404")

	rr = doJSON(t, mux, http.MethodPut, "/api/settings/display_units", map[string]string{"value": "mph"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, mux, http.MethodGet, "/api/settings/display_units", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"value":"mph"`)

	rr = doJSON(t, mux, http.MethodGet, "/api/settings/", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfigEndpoint(t *testing.T) {
	srv, _, _, _ := testServer(t)
	rr := doJSON(t, srv.ServeMux(), http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestEventsStream(t *testing.T) {
	srv, _, bus, _ := testServer(t)

	ts := httptest.NewServer(srv.ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe, then publish.
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	bus.Emit(events.KindSwingTrigger, map[string]float64{"speed_mph": 20.8})

	buf := make([]byte, 4096)
	deadline := time.Now().Add(time.Second)
	var got strings.Builder
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
			if strings.Contains(got.String(), "swing.trigger") {
				break
			}
		}
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), "event: swing.trigger")
	assert.Contains(t, got.String(), "speed_mph")
}
