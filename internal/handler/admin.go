// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the admin API:
//
//   - GET /api/admin/users/{id}/role   -> GetUserRole
//   - PUT /api/admin/users/{id}/role   -> SetUserRole
//   - GET /api/admin/users/{id}/quotas -> GetUserQuotas
//
// These routes are gated by RequireAdmin middleware. A role change here
// does NOT reset the target user's quota ledger; usage carries over until
// the next billing event or window rollover.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/repository"
	"github.com/ranklens-io/ranklens/internal/service"
)

// QuotaLedgerStore reads raw ledger rows for admin inspection.
type QuotaLedgerStore interface {
	ListUserQuotas(ctx context.Context, userID uuid.UUID) ([]repository.UserQuota, error)
}

// AdminHandler handles administrative HTTP requests.
type AdminHandler struct {
	userService service.UserService
	roleService service.RoleService
	ledger      QuotaLedgerStore
	logger      *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(userService service.UserService, roleService service.RoleService, ledger QuotaLedgerStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		userService: userService,
		roleService: roleService,
		ledger:      ledger,
		logger:      logger,
	}
}

// =============================================================================
// Request/Response Types
// =============================================================================

// SetRoleRequest is the body for PUT /api/admin/users/{id}/role.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// RoleResponse is the wire form of a user's role.
type RoleResponse struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	PlanType string `json:"planType"`
}

// LedgerRowResponse is the wire form of a raw quota ledger row. Usage and
// reset timestamps are reported as stored, without applying rollover.
type LedgerRowResponse struct {
	QuotaType      string    `json:"quotaType"`
	PlanType       string    `json:"planType"`
	MonthlyUsed    int32     `json:"monthlyUsed"`
	MonthlyLimit   int32     `json:"monthlyLimit"`
	DailyUsed      int32     `json:"dailyUsed"`
	DailyLimit     int32     `json:"dailyLimit"`
	ResetMonthlyAt time.Time `json:"resetMonthlyAt"`
	ResetDailyAt   time.Time `json:"resetDailyAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LedgerResponse wraps a user's ledger rows.
type LedgerResponse struct {
	UserID string              `json:"userId"`
	Quotas []LedgerRowResponse `json:"quotas"`
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers admin routes on the provided mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/users/{id}/role", h.GetUserRole)
	mux.HandleFunc("PUT /api/admin/users/{id}/role", h.SetUserRole)
	mux.HandleFunc("GET /api/admin/users/{id}/quotas", h.GetUserQuotas)
}

// =============================================================================
// Handlers
// =============================================================================

// GetUserRole returns the target user's active role.
func (h *AdminHandler) GetUserRole(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.GetUserRole"

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid user ID"))
		return
	}

	// Verify the user exists before resolving (resolution would lazily
	// create a free assignment for any UUID)
	if _, err := h.userService.GetByID(r.Context(), userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	role := h.roleService.Resolve(r.Context(), userID)

	writeJSON(w, http.StatusOK, RoleResponse{
		UserID:   userID.String(),
		Role:     string(role),
		PlanType: string(role.PlanType()),
	})
}

// SetUserRole replaces the target user's active role assignment.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.SetUserRole"

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid user ID"))
		return
	}

	var req SetRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown role"))
		return
	}

	if _, err := h.userService.GetByID(r.Context(), userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.roleService.Assign(r.Context(), userID, role); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("role changed by admin", "user_id", userID, "role", role)

	writeJSON(w, http.StatusOK, RoleResponse{
		UserID:   userID.String(),
		Role:     string(role),
		PlanType: string(role.PlanType()),
	})
}

// GetUserQuotas returns the target user's ledger rows as stored. Reading
// through this endpoint never creates rows or triggers a window rollover,
// so stale reset timestamps are visible here.
func (h *AdminHandler) GetUserQuotas(w http.ResponseWriter, r *http.Request) {
	const op = "AdminHandler.GetUserQuotas"

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid user ID"))
		return
	}

	if _, err := h.userService.GetByID(r.Context(), userID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rows, err := h.ledger.ListUserQuotas(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to load quota ledger"))
		return
	}

	resp := LedgerResponse{
		UserID: userID.String(),
		Quotas: make([]LedgerRowResponse, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Quotas = append(resp.Quotas, LedgerRowResponse{
			QuotaType:      row.QuotaType,
			PlanType:       row.PlanType,
			MonthlyUsed:    row.MonthlyUsed,
			MonthlyLimit:   row.MonthlyLimit,
			DailyUsed:      row.DailyUsed,
			DailyLimit:     row.DailyLimit,
			ResetMonthlyAt: row.ResetMonthlyAt,
			ResetDailyAt:   row.ResetDailyAt,
			UpdatedAt:      row.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
