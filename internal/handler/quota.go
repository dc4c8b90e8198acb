// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the quota API:
//
//   - POST /api/check-quota   -> CheckQuota
//   - POST /api/consume-quota -> ConsumeQuota
//   - GET  /api/quotas        -> ListQuotas
//
// These routes run behind WithUser so a signed-in caller is identified by
// their session; anonymous callers fall back to the guest sentinel.
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

// QuotaHandler handles quota accounting HTTP requests.
type QuotaHandler struct {
	quotaService service.QuotaService
	logger       *slog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quotaService service.QuotaService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{
		quotaService: quotaService,
		logger:       logger,
	}
}

// =============================================================================
// Request/Response Types
// =============================================================================

// QuotaRequest is the body for check and consume calls.
//
// UserID is part of the wire contract but the acting identity always comes
// from the session: signed-in callers are themselves, anonymous callers
// are the guest sentinel. A body naming someone else must not let an
// anonymous caller read or spend that user's quota.
type QuotaRequest struct {
	QuotaType string `json:"quotaType"`
	UserID    string `json:"userId,omitempty"`
	Amount    int32  `json:"amount,omitempty"` // consume only; defaults to 1
}

// QuotaSnapshot is the wire form of a quota check result.
type QuotaSnapshot struct {
	QuotaType      string    `json:"quotaType"`
	CanUse         bool      `json:"canUse"`
	MonthlyUsed    int32     `json:"monthlyUsed"`
	MonthlyLimit   int32     `json:"monthlyLimit"`
	DailyUsed      int32     `json:"dailyUsed"`
	DailyLimit     int32     `json:"dailyLimit"`
	PlanType       string    `json:"planType"`
	ResetMonthlyAt time.Time `json:"resetMonthlyAt"`
	ResetDailyAt   time.Time `json:"resetDailyAt"`
	IsGuest        bool      `json:"isGuest,omitempty"`
	IsAdmin        bool      `json:"isAdmin,omitempty"`
}

// ConsumeResponse is the wire form of a successful consume call.
type ConsumeResponse struct {
	Consumed         int32  `json:"consumed"`
	MonthlyUsed      int32  `json:"monthlyUsed"`
	MonthlyLimit     int32  `json:"monthlyLimit"`
	DailyUsed        int32  `json:"dailyUsed"`
	DailyLimit       int32  `json:"dailyLimit"`
	RemainingMonthly int32  `json:"remainingMonthly"`
	RemainingDaily   int32  `json:"remainingDaily"`
	PlanType         string `json:"planType"`
	IsGuest          bool   `json:"isGuest,omitempty"`
	IsAdmin          bool   `json:"isAdmin,omitempty"`
}

// QuotaDeniedResponse is the 429 body for quota denials: the denial reason
// plus the flattened checker snapshot.
type QuotaDeniedResponse struct {
	Error string `json:"error"`
	QuotaSnapshot
}

func snapshotFromResult(quotaType domain.QuotaType, res *domain.CheckResult) QuotaSnapshot {
	return QuotaSnapshot{
		QuotaType:      string(quotaType),
		CanUse:         res.CanUse,
		MonthlyUsed:    res.MonthlyUsed,
		MonthlyLimit:   res.MonthlyLimit,
		DailyUsed:      res.DailyUsed,
		DailyLimit:     res.DailyLimit,
		PlanType:       string(res.PlanType),
		ResetMonthlyAt: res.ResetMonthlyAt,
		ResetDailyAt:   res.ResetDailyAt,
		IsGuest:        res.IsGuest,
		IsAdmin:        res.IsAdmin,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers quota routes on the provided mux.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/check-quota", h.CheckQuota)
	mux.HandleFunc("POST /api/consume-quota", h.ConsumeQuota)
	mux.HandleFunc("GET /api/quotas", h.ListQuotas)
}

// =============================================================================
// Handlers
// =============================================================================

// CheckQuota reports whether the caller has headroom for a quota category.
// Checking never mutates usage counters, only rollover bookkeeping.
func (h *QuotaHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	var req QuotaRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	quotaType, ok := domain.ParseQuotaType(req.QuotaType)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid("QuotaHandler.CheckQuota", "Unknown quota type"))
		return
	}

	res, err := h.quotaService.Check(r.Context(), auth.QuotaUserID(r.Context()), quotaType)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotFromResult(quotaType, res))
}

// ConsumeQuota decrements the caller's headroom by the requested amount.
// Denials return 429 with the checker snapshot so clients can render
// remaining quota without a second call.
func (h *QuotaHandler) ConsumeQuota(w http.ResponseWriter, r *http.Request) {
	var req QuotaRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	quotaType, ok := domain.ParseQuotaType(req.QuotaType)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid("QuotaHandler.ConsumeQuota", "Unknown quota type"))
		return
	}

	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	res, err := h.quotaService.Consume(r.Context(), auth.QuotaUserID(r.Context()), quotaType, amount)
	if err != nil {
		var denied *domain.QuotaDeniedError
		if errors.As(err, &denied) {
			h.logger.Info("quota denied",
				"quota_type", quotaType,
				"reason", denied.Reason,
				"path", r.URL.Path,
			)
			writeJSON(w, http.StatusTooManyRequests, QuotaDeniedResponse{
				Error:         denied.Reason,
				QuotaSnapshot: snapshotFromResult(quotaType, &denied.Snapshot),
			})
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ConsumeResponse{
		Consumed:         res.Consumed,
		MonthlyUsed:      res.MonthlyUsed,
		MonthlyLimit:     res.MonthlyLimit,
		DailyUsed:        res.DailyUsed,
		DailyLimit:       res.DailyLimit,
		RemainingMonthly: res.RemainingMonthly,
		RemainingDaily:   res.RemainingDaily,
		PlanType:         string(res.PlanType),
		IsGuest:          res.IsGuest,
		IsAdmin:          res.IsAdmin,
	})
}

// ListQuotas returns the caller's snapshot for every quota category.
func (h *QuotaHandler) ListQuotas(w http.ResponseWriter, r *http.Request) {
	userID := auth.QuotaUserID(r.Context())

	snapshots := make([]QuotaSnapshot, 0, len(domain.QuotaTypes))
	for _, quotaType := range domain.QuotaTypes {
		res, err := h.quotaService.Check(r.Context(), userID, quotaType)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		snapshots = append(snapshots, snapshotFromResult(quotaType, res))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"quotas": snapshots})
}
