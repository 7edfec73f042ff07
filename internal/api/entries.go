package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/creality-bridge/internal/entity"
	"github.com/nerrad567/creality-bridge/internal/integration"
	"github.com/nerrad567/creality-bridge/internal/printer"
)

// entryResponse is an entry with its live connection state, when loaded.
type entryResponse struct {
	integration.Entry
	URL       string `json:"url"`
	Loaded    bool   `json:"loaded"`
	Status    string `json:"connection_status,omitempty"`
	Connected bool   `json:"connected"`
}

// createEntryRequest is the body of POST /entries.
type createEntryRequest struct {
	IP       string `json:"ip"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
}

// stateResponse is the body of GET /entries/{id}/state.
type stateResponse struct {
	EntryID string         `json:"entry_id"`
	Version uint64         `json:"version"`
	Status  string         `json:"connection_status"`
	State   map[string]any `json:"state"`
}

// statsResponse is the body of GET /entries/{id}/stats.
type statsResponse struct {
	integration.RuntimeStatus
	FramesReceived   uint64                    `json:"frames_received"`
	FramesDropped    uint64                    `json:"frames_dropped"`
	DecodeErrors     uint64                    `json:"decode_errors"`
	Connects         uint64                    `json:"connects"`
	ConnectionErrors uint64                    `json:"connection_errors"`
	LastConnected    time.Time                 `json:"last_connected,omitzero"`
	Published        uint64                    `json:"updates_published"`
	Dropped          uint64                    `json:"updates_dropped"`
	Observers        []printer.SubscriberStats `json:"observers"`
}

// cameraResponse is the body of GET /entries/{id}/camera.
type cameraResponse struct {
	UniqueID     string `json:"unique_id"`
	Name         string `json:"name"`
	StreamSource string `json:"stream_source"`
}

func (s *Server) describeEntry(e integration.Entry) entryResponse {
	resp := entryResponse{Entry: e, URL: e.URL()}
	if rt, ok := s.manager.Runtime(e.ID); ok {
		resp.Loaded = true
		resp.Status = rt.Store.Status()
		resp.Connected = rt.Client.IsConnected()
	}
	return resp
}

// handleListEntries returns every persisted entry.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.manager.Entries(r.Context())
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.describeEntry(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

// handleCreateEntry adds a printer and starts its connection.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.manager.AddEntry(r.Context(), integration.Entry{
		IP:       req.IP,
		Port:     req.Port,
		Password: req.Password,
		Name:     req.Name,
		Source:   integration.SourceAPI,
	})
	switch {
	case err == nil:
	case errors.Is(err, integration.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, integration.ErrAlreadyConfigured):
		writeConflict(w, err.Error())
		return
	case created != nil:
		// Persisted but not running; the entry is retried on next start.
		s.logger.Warn("entry created but not set up", "entry_id", created.ID, "error", err)
	default:
		s.logger.Error("failed to create entry", "error", err)
		writeInternalError(w, "failed to create entry")
		return
	}

	s.logger.Info("entry created via API",
		"entry_id", created.ID,
		"ip", created.IP,
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusCreated, s.describeEntry(*created))
}

// handleGetEntry returns one entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.describeEntry(*e))
}

// handleDeleteEntry unloads and removes an entry.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.RemoveEntry(r.Context(), id); err != nil {
		if errors.Is(err, integration.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.logger.Error("failed to remove entry", "entry_id", id, "error", err)
		writeInternalError(w, "failed to remove entry")
		return
	}

	s.logger.Info("entry removed via API", "entry_id", id, "subject", r.Context().Value(ctxKeySubject))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetEntryState returns the latest snapshot of the printer's data.
func (s *Server) handleGetEntryState(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	snapshot, version := rt.Store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		EntryID: rt.Entry.ID,
		Version: version,
		Status:  rt.Store.Status(),
		State:   snapshot,
	})
}

// handleGetEntryStats returns connection and delivery counters.
func (s *Server) handleGetEntryStats(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	cs := rt.Client.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		RuntimeStatus:    rt.Status(),
		FramesReceived:   cs.FramesReceived,
		FramesDropped:    cs.FramesDropped,
		DecodeErrors:     cs.DecodeErrors,
		Connects:         cs.Connects,
		ConnectionErrors: cs.ConnectionErrors,
		LastConnected:    cs.LastConnected,
		Published:        rt.Bus.Published(),
		Dropped:          rt.Bus.Dropped(),
		Observers:        rt.Bus.Subscribers(),
	})
}

// handleListEntities returns the entities the printer currently exposes.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	entities := rt.Platform.Entities()
	views := make([]entity.View, 0, len(entities))
	for _, e := range entities {
		views = append(views, entity.Describe(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": views,
		"count":    len(views),
	})
}

// handleGetEntity returns one entity by store key or unique id.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	e, err := rt.Platform.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, entity.Describe(e))
}

// handleGetCamera returns the camera stream source when the printer has one.
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	cam, ok := rt.Platform.Camera()
	if !ok {
		writeNotFound(w, "printer has no camera")
		return
	}
	writeJSON(w, http.StatusOK, cameraResponse{
		UniqueID:     cam.UniqueID(),
		Name:         cam.Name(),
		StreamSource: cam.StreamSource(),
	})
}

// handleCameraSnapshot reports that still images are unavailable.
func (s *Server) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.lookupRuntime(w, r)
	if !ok {
		return
	}
	cam, ok := rt.Platform.Camera()
	if !ok {
		writeNotFound(w, "printer has no camera")
		return
	}
	if _, err := cam.Snapshot(r.Context()); err != nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, err.Error())
		return
	}
	writeInternalError(w, "unexpected snapshot result")
}

// lookupEntry loads the entry named by the {id} URL parameter, writing a
// 404 or 500 when it cannot.
func (s *Server) lookupEntry(w http.ResponseWriter, r *http.Request) (*integration.Entry, bool) {
	id := chi.URLParam(r, "id")
	e, err := s.manager.Entry(r.Context(), id)
	if err != nil {
		if errors.Is(err, integration.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return nil, false
		}
		s.logger.Error("failed to get entry", "entry_id", id, "error", err)
		writeInternalError(w, "failed to get entry")
		return nil, false
	}
	return e, true
}

// lookupRuntime returns the running runtime for {id}. A persisted entry
// that is not running yields 503.
func (s *Server) lookupRuntime(w http.ResponseWriter, r *http.Request) (*integration.Runtime, bool) {
	id := chi.URLParam(r, "id")
	if rt, ok := s.manager.Runtime(id); ok {
		return rt, true
	}
	if _, ok := s.lookupEntry(w, r); !ok {
		return nil, false
	}
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "entry is not loaded")
	return nil, false
}
