package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/internal/metrics"
	"github.com/mkarpov/mapwatch/pkg/models"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"isReady": s.messenger.IsReady()})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr := s.messenger.QRCode()
	if qr == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"qr": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"qr": qr})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.messenger.Groups(r.Context())
	if err != nil {
		s.logger.Error("failed to list groups", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

type groupSettingsPayload struct {
	GroupID         string   `json:"groupId"`
	GroupName       string   `json:"groupName"`
	IntervalMinutes int      `json:"intervalMinutes"`
	Enabled         bool     `json:"enabled"`
	ReactOnMessage  string   `json:"reactOnMessage"`
	ShouldAlert     bool     `json:"shouldAlert"`
	ZoneIDs         []string `json:"zoneIds"`
}

func (s *Server) handleGetGroupSettings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	setting, err := s.store.GetGroupSetting(r.Context(), groupID)
	if errors.Is(err, database.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, map[string]any{"settings": nil})
		return
	}
	if err != nil {
		s.logger.Error("failed to get group settings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"settings": setting})
}

// handleSaveGroupSettings creates or overwrites a group's settings. The
// delivery job is stopped first and restarted only when enabled, so the
// timer registry always tracks the persisted state.
func (s *Server) handleSaveGroupSettings(w http.ResponseWriter, r *http.Request) {
	var p groupSettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.GroupID == "" {
		s.writeError(w, http.StatusBadRequest, "groupId is required")
		return
	}
	s.saveGroupSettings(w, r, &p)
}

func (s *Server) handleUpdateGroupSettings(w http.ResponseWriter, r *http.Request) {
	var p groupSettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	p.GroupID = chi.URLParam(r, "groupID")
	s.saveGroupSettings(w, r, &p)
}

func (s *Server) saveGroupSettings(w http.ResponseWriter, r *http.Request, p *groupSettingsPayload) {
	if !models.IntervalAllowed(p.IntervalMinutes) {
		s.writeError(w, http.StatusBadRequest, "intervalMinutes must be one of 1, 5, 10, 15, 30, 60")
		return
	}

	s.jobs.StopJob(p.GroupID)

	setting := &models.GroupSetting{
		GroupID:         p.GroupID,
		GroupName:       p.GroupName,
		IntervalMinutes: p.IntervalMinutes,
		Enabled:         p.Enabled,
		ReactOnMessage:  p.ReactOnMessage,
		ShouldAlert:     p.ShouldAlert,
		ZoneIDs:         p.ZoneIDs,
	}
	if err := s.store.UpsertGroupSetting(r.Context(), setting); err != nil {
		s.logger.Error("failed to save group settings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if setting.Enabled {
		s.jobs.StartJob(r.Context(), setting.GroupID)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"settings": setting})
}

func (s *Server) handleDeleteGroupSettings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	// Stop the timer before the row disappears
	s.jobs.StopJob(groupID)

	err := s.store.DeleteGroupSetting(r.Context(), groupID)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "settings not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete group settings", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete settings")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type sendMessagePayload struct {
	GroupIDs []string `json:"groupIds"`
	Message  string   `json:"message"`
}

type sendResult struct {
	GroupID string `json:"groupId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleSendMessage fans the current artifact out to the requested groups.
// Per-group failures are collected, never aborting sibling deliveries.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var p sendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.GroupIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "groupIds is required")
		return
	}

	shot, err := s.damba.LastScreenshot()
	if err != nil || shot == nil {
		s.writeError(w, http.StatusConflict, "no screenshot available")
		return
	}
	png, err := os.ReadFile(shot.Path)
	if err != nil {
		s.logger.Error("failed to read screenshot", "file", shot.Path, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read screenshot")
		return
	}

	results := make([]sendResult, 0, len(p.GroupIDs))
	for _, groupID := range p.GroupIDs {
		if err := s.messenger.SendImage(r.Context(), groupID, png, p.Message); err != nil {
			s.logger.Error("manual send failed", "group", groupID, "error", err)
			metrics.DeliveriesTotal.WithLabelValues("manual", "error").Inc()
			results = append(results, sendResult{GroupID: groupID, Success: false, Error: err.Error()})
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("manual", "ok").Inc()
		results = append(results, sendResult{GroupID: groupID, Success: true})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
