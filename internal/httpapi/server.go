package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// DambaService is the slice of the map-service engine the API exposes
type DambaService interface {
	IsAuthenticated(ctx context.Context) bool
	SaveCredential(ctx context.Context, token string) error
	LastScreenshot() (*models.Screenshot, error)
}

// Store is the persistence surface the API consumes
type Store interface {
	SaveMapCenter(ctx context.Context, coord string) error
	GetAllZones(ctx context.Context) ([]*models.Zone, error)
	CreateZone(ctx context.Context, zone *models.Zone) error
	UpdateZone(ctx context.Context, id int64, zoneID, name string) (*models.Zone, error)
	DeleteZone(ctx context.Context, id int64) error
	GetGroupSetting(ctx context.Context, groupID string) (*models.GroupSetting, error)
	UpsertGroupSetting(ctx context.Context, setting *models.GroupSetting) error
	DeleteGroupSetting(ctx context.Context, groupID string) error
}

// Messenger is the slice of the WhatsApp client the API exposes
type Messenger interface {
	IsReady() bool
	QRCode() string
	Groups(ctx context.Context) ([]models.Group, error)
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
}

// JobControl starts and stops per-group delivery jobs
type JobControl interface {
	StartJob(ctx context.Context, groupID string)
	StopJob(groupID string)
}

// Server is the operator HTTP API
type Server struct {
	logger         *slog.Logger
	damba          DambaService
	store          Store
	messenger      Messenger
	jobs           JobControl
	screenshotsDir string
	publicBaseURL  string
}

// NewServer creates the API server
func NewServer(logger *slog.Logger, damba DambaService, store Store, messenger Messenger, jobs JobControl, screenshotsDir, publicBaseURL string) *Server {
	return &Server{
		logger:         logger.With("component", "httpapi"),
		damba:          damba,
		store:          store,
		messenger:      messenger,
		jobs:           jobs,
		screenshotsDir: screenshotsDir,
		publicBaseURL:  publicBaseURL,
	}
}

// Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/damba", func(r chi.Router) {
		r.Get("/screenshot", s.handleGetScreenshot)
		r.Post("/token", s.handleSaveToken)
		r.Post("/map-center", s.handleSaveMapCenter)
		r.Get("/zones", s.handleListZones)
		r.Post("/zones", s.handleCreateZone)
		r.Put("/zones/{id}", s.handleUpdateZone)
		r.Delete("/zones/{id}", s.handleDeleteZone)
	})

	r.Route("/whatsapp", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/qr", s.handleQR)
		r.Get("/groups", s.handleListGroups)
		r.Post("/groups/settings", s.handleSaveGroupSettings)
		r.Get("/groups/{groupID}/settings", s.handleGetGroupSettings)
		r.Put("/groups/{groupID}/settings", s.handleUpdateGroupSettings)
		r.Delete("/groups/{groupID}/settings", s.handleDeleteGroupSettings)
		r.Post("/send-message", s.handleSendMessage)
	})

	fileServer := http.FileServer(http.Dir(s.screenshotsDir))
	r.Handle("/screenshots/*", http.StripPrefix("/screenshots/", fileServer))

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
