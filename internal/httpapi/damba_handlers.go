package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/pkg/models"
)

type screenshotResponse struct {
	Filename        string    `json:"filename"`
	URL             string    `json:"url"`
	CreatedAt       time.Time `json:"createdAt"`
	IsAuthenticated bool      `json:"isAuthenticated"`
}

func (s *Server) handleGetScreenshot(w http.ResponseWriter, r *http.Request) {
	isAuth := s.damba.IsAuthenticated(r.Context())

	shot, err := s.damba.LastScreenshot()
	if err != nil {
		s.logger.Error("failed to read last screenshot", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read screenshot")
		return
	}
	if shot == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"screenshot":      nil,
			"isAuthenticated": isAuth,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"screenshot": screenshotResponse{
			Filename:        shot.Filename,
			URL:             fmt.Sprintf("%s/screenshots/%s", strings.TrimRight(s.publicBaseURL, "/"), shot.Filename),
			CreatedAt:       shot.CreatedAt,
			IsAuthenticated: isAuth,
		},
	})
}

type saveTokenPayload struct {
	Token string `json:"token"`
}

func (s *Server) handleSaveToken(w http.ResponseWriter, r *http.Request) {
	var p saveTokenPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || strings.TrimSpace(p.Token) == "" {
		s.writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.damba.SaveCredential(r.Context(), strings.TrimSpace(p.Token)); err != nil {
		s.logger.Error("failed to save credential", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Token saved successfully"})
}

type saveMapCenterPayload struct {
	Coordinates [2]float64 `json:"coordinates"` // [lat, lng]
}

func (s *Server) handleSaveMapCenter(w http.ResponseWriter, r *http.Request) {
	var p saveMapCenterPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad payload")
		return
	}

	coord, _ := json.Marshal(p.Coordinates)
	if err := s.store.SaveMapCenter(r.Context(), string(coord)); err != nil {
		s.logger.Error("failed to save map center", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save map center")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := s.store.GetAllZones(r.Context())
	if err != nil {
		s.logger.Error("failed to list zones", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list zones")
		return
	}
	if zones == nil {
		zones = []*models.Zone{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

type zonePayload struct {
	ZoneID string `json:"zoneId"`
	Name   string `json:"name"`
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var p zonePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ZoneID == "" || p.Name == "" {
		s.writeError(w, http.StatusBadRequest, "zoneId and name are required")
		return
	}

	zone := &models.Zone{ZoneID: p.ZoneID, Name: p.Name}
	if err := s.store.CreateZone(r.Context(), zone); err != nil {
		s.logger.Error("failed to create zone", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create zone")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{"zone": zone})
}

func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid zone id")
		return
	}

	var p zonePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ZoneID == "" || p.Name == "" {
		s.writeError(w, http.StatusBadRequest, "zoneId and name are required")
		return
	}

	zone, err := s.store.UpdateZone(r.Context(), id, p.ZoneID, p.Name)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update zone", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update zone")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"zone": zone})
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid zone id")
		return
	}

	err = s.store.DeleteZone(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to delete zone", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete zone")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
