// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the server-rendered pages:
//
//   - GET /{$}       -> Home (public landing)
//   - GET /dashboard -> Dashboard (requires sign-in)
//
// Pages are rendered from templates embedded at build time.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/ranklens-io/ranklens/internal/auth"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// DashboardHandler renders the HTML pages.
type DashboardHandler struct {
	quotaService service.QuotaService
	seoService   service.SEOService
	templates    *template.Template
	logger       *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler, parsing the embedded
// templates. Returns an error if any template fails to parse.
func NewDashboardHandler(quotaService service.QuotaService, seoService service.SEOService, logger *slog.Logger) (*DashboardHandler, error) {
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &DashboardHandler{
		quotaService: quotaService,
		seoService:   seoService,
		templates:    tmpl,
		logger:       logger,
	}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"pct": func(used, limit int32) int {
			if limit <= 0 {
				return 0
			}
			p := int(used * 100 / limit)
			if p > 100 {
				p = 100
			}
			return p
		},
	}
}

// =============================================================================
// Page Data Types
// =============================================================================

// DashboardData is the template data for the dashboard page.
type DashboardData struct {
	User    *domain.User
	Quotas  []QuotaSnapshot
	Checks  []CheckHistoryEntry
	IsAdmin bool
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers page routes on the provided mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /dashboard", h.Dashboard)
}

// =============================================================================
// Handlers
// =============================================================================

// Home renders the public landing page.
func (h *DashboardHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, "home.html", map[string]interface{}{
		"User": auth.GetUser(r.Context()),
	})
}

// Dashboard renders the signed-in overview: quota usage per category and
// recent check history.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	userID := user.ID.String()
	quotas := make([]QuotaSnapshot, 0, len(domain.QuotaTypes))
	for _, quotaType := range domain.QuotaTypes {
		res, err := h.quotaService.Check(r.Context(), userID, quotaType)
		if err != nil {
			InternalErrorResponse(w, r, h.logger, err)
			return
		}
		quotas = append(quotas, snapshotFromResult(quotaType, res))
	}

	records, err := h.seoService.RecentChecks(r.Context(), user.ID, 10)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	checks := make([]CheckHistoryEntry, 0, len(records))
	for _, rec := range records {
		checks = append(checks, CheckHistoryEntry{
			ID:           rec.ID.String(),
			CheckType:    string(rec.CheckType),
			TargetDomain: rec.TargetDomain,
			Summary:      rec.Summary,
			CreatedAt:    rec.CreatedAt,
		})
	}

	h.render(w, "dashboard.html", DashboardData{
		User:    user,
		Quotas:  quotas,
		Checks:  checks,
		IsAdmin: user.Role.IsAdmin(),
	})
}

// render executes a template, falling back to a plain 500 on failure.
func (h *DashboardHandler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
