package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/logging"
	"github.com/ekaya-inc/intentgate/pkg/services"
)

// CatalogReloader serves and refreshes the catalog. *catalog.Holder
// implements it.
type CatalogReloader interface {
	CatalogStatus
	Reload(ctx context.Context) (*catalog.Catalog, error)
}

// ReloadResponse reports the outcome of a catalog reload.
type ReloadResponse struct {
	PreviousVersion string    `json:"previous_version,omitempty"`
	Version         string    `json:"version"`
	LoadedAt        time.Time `json:"loaded_at"`
}

// CatalogHandler exposes the loaded catalog.
type CatalogHandler struct {
	catalogs CatalogReloader
	logger   *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalogs CatalogReloader, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalogs: catalogs, logger: logger}
}

// RegisterRoutes registers the catalog handler's routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.Get)
	mux.HandleFunc("POST /api/catalog/reload", h.Reload)
}

// Get handles GET /api/catalog.
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	cat := h.catalogs.Current()
	if cat == nil {
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "catalog_unavailable", "No catalog is loaded"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{Success: true, Data: services.SummarizeCatalog(cat)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reload handles POST /api/catalog/reload. A failed reload keeps the
// previous catalog in service.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	var previous string
	if cat := h.catalogs.Current(); cat != nil {
		previous = cat.Version()
	}

	cat, err := h.catalogs.Reload(r.Context())
	if err != nil {
		h.logger.Warn("Catalog reload request failed",
			zap.String("previous_version", previous),
			zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusBadGateway, "catalog_reload_failed", logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{
		Success: true,
		Data: ReloadResponse{
			PreviousVersion: previous,
			Version:         cat.Version(),
			LoadedAt:        h.catalogs.LoadedAt(),
		},
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
