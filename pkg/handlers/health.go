package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthResponse reports whether a catalog is loaded.
type HealthResponse struct {
	Status          string     `json:"status"`
	CatalogVersion  string     `json:"catalog_version,omitempty"`
	CatalogLoadedAt *time.Time `json:"catalog_loaded_at,omitempty"`
}

// CatalogStatus exposes the loaded catalog. *catalog.Holder implements it.
type CatalogStatus interface {
	Current() *catalog.Catalog
	LoadedAt() time.Time
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg      *config.Config
	catalogs CatalogStatus
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Config, catalogs CatalogStatus, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, catalogs: catalogs, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It returns 503 until a catalog is loaded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	var cat *catalog.Catalog
	if h.catalogs != nil {
		cat = h.catalogs.Current()
	}
	if cat == nil {
		if err := WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "catalog_unavailable"}); err != nil {
			h.logger.Error("Failed to encode health response", zap.Error(err))
		}
		return
	}

	loadedAt := h.catalogs.LoadedAt()
	response := HealthResponse{
		Status:          "ok",
		CatalogVersion:  cat.Version(),
		CatalogLoadedAt: &loadedAt,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "intentgate",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
