package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fairway-data/launch.report/internal/store"
	"github.com/fairway-data/launch.report/internal/version"
)

// handleStatus reports the live pipeline state: version, tracker snapshot,
// event-bus health, and whatever status fields the components registered.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := map[string]interface{}{
		"version":            version.String(),
		"track":              s.holder.Load(),
		"events_subscribers": s.bus.SubscriberCount(),
		"events_dropped":     s.bus.Dropped(),
	}
	for name, f := range s.statusFuncs {
		status[name] = f()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleEvents streams bus events as Server-Sent Events, one JSON object
// per event. Slow consumers lose events rather than stalling the pipeline.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleShots lists shot history, newest first. ?profile= filters to one
// profile; ?limit= caps the result.
func (s *Server) handleShots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	var err error
	var shots interface{}
	if profileID := r.URL.Query().Get("profile"); profileID != "" {
		shots, err = s.store.ShotsByProfile(r.Context(), profileID, limit)
	} else {
		shots, err = s.store.RecentShots(r.Context(), limit)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shots": shots})
}

// handleProfiles lists (GET) or creates/updates (POST) profiles.
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles, err := s.store.ListProfiles(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles})

	case http.MethodPost:
		var p store.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid profile JSON")
			return
		}
		if err := s.store.SaveProfile(r.Context(), &p); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleProfileByID gets or deletes one profile.
func (s *Server) handleProfileByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/profiles/")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing profile id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.store.GetProfile(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "profile not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		err := s.store.DeleteProfile(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "profile not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSetting gets or puts one typed setting by key. Values travel as
// strings; the consumers parse them through the store's typed accessors.
func (s *Server) handleSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings/")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "missing setting key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, ok, err := s.store.GetString(r.Context(), key)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeJSONError(w, http.StatusNotFound, "setting not set")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})

	case http.MethodPut:
		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid setting JSON")
			return
		}
		if err := s.store.SetString(r.Context(), key, body.Value); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleConfig reports the effective pipeline configuration.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.config)
}
