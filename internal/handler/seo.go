// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the SEO check API:
//
//   - POST /api/dr-check        -> DomainRating
//   - POST /api/traffic-check   -> Traffic
//   - POST /api/backlink-check  -> Backlinks
//   - POST /api/backlink-export -> ExportBacklinks
//   - GET  /api/checks          -> RecentChecks
//
// Every check consumes from the caller's quota before touching the data
// provider, so a denial here never costs an upstream API call.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ranklens-io/ranklens/internal/auth"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/service"
)

// SEOHandler handles SEO check HTTP requests.
type SEOHandler struct {
	seoService service.SEOService
	logger     *slog.Logger
}

// NewSEOHandler creates a new SEOHandler.
func NewSEOHandler(seoService service.SEOService, logger *slog.Logger) *SEOHandler {
	return &SEOHandler{
		seoService: seoService,
		logger:     logger,
	}
}

// =============================================================================
// Request/Response Types
// =============================================================================

// CheckRequest is the body for all check endpoints.
type CheckRequest struct {
	Domain string `json:"domain"`
	Limit  int    `json:"limit,omitempty"`  // backlink endpoints only
	Format string `json:"format,omitempty"` // export only: "csv" or "json"
}

// CheckHistoryEntry is the wire form of a check-history row.
type CheckHistoryEntry struct {
	ID           string    `json:"id"`
	CheckType    string    `json:"checkType"`
	TargetDomain string    `json:"targetDomain"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"createdAt"`
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers SEO check routes on the provided mux.
func (h *SEOHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/dr-check", h.DomainRating)
	mux.HandleFunc("POST /api/traffic-check", h.Traffic)
	mux.HandleFunc("POST /api/backlink-check", h.Backlinks)
	mux.HandleFunc("POST /api/backlink-export", h.ExportBacklinks)
	mux.HandleFunc("GET /api/checks", h.RecentChecks)
}

// =============================================================================
// Handlers
// =============================================================================

// DomainRating runs an authority check for a domain.
func (h *SEOHandler) DomainRating(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics, err := h.seoService.DomainRating(r.Context(), auth.QuotaUserID(r.Context()), req.Domain)
	if err != nil {
		h.respondError(w, r, domain.QuotaTypeDRCheck, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}

// Traffic runs an organic traffic estimate for a domain.
func (h *SEOHandler) Traffic(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	estimate, err := h.seoService.Traffic(r.Context(), auth.QuotaUserID(r.Context()), req.Domain)
	if err != nil {
		h.respondError(w, r, domain.QuotaTypeTrafficCheck, err)
		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

// Backlinks fetches backlinks for a domain.
func (h *SEOHandler) Backlinks(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	backlinks, err := h.seoService.Backlinks(r.Context(), auth.QuotaUserID(r.Context()), req.Domain, req.Limit)
	if err != nil {
		h.respondError(w, r, domain.QuotaTypeBacklinkCheck, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(backlinks),
		"backlinks": backlinks,
	})
}

// ExportBacklinks renders a backlink export file and returns its download URL.
func (h *SEOHandler) ExportBacklinks(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.seoService.ExportBacklinks(r.Context(), auth.QuotaUserID(r.Context()), req.Domain, req.Format, req.Limit)
	if err != nil {
		h.respondError(w, r, domain.QuotaTypeBacklinkView, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RecentChecks returns the caller's recent check history.
func (h *SEOHandler) RecentChecks(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	records, err := h.seoService.RecentChecks(r.Context(), user.ID, 0)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	entries := make([]CheckHistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, CheckHistoryEntry{
			ID:           rec.ID.String(),
			CheckType:    string(rec.CheckType),
			TargetDomain: rec.TargetDomain,
			Summary:      rec.Summary,
			CreatedAt:    rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"checks": entries})
}

// respondError maps quota denials to 429 with the snapshot body and hands
// everything else to the standard error writer.
func (h *SEOHandler) respondError(w http.ResponseWriter, r *http.Request, quotaType domain.QuotaType, err error) {
	var denied *domain.QuotaDeniedError
	if errors.As(err, &denied) {
		h.logger.Info("quota denied", "quota_type", quotaType, "reason", denied.Reason, "path", r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, QuotaDeniedResponse{
			Error:         denied.Reason,
			QuotaSnapshot: snapshotFromResult(quotaType, &denied.Snapshot),
		})
		return
	}
	ErrorResponse(w, r, h.logger, err)
}
