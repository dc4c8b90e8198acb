// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the billing API:
//
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> CreatePortal
//   - POST /api/billing/cancel   -> CancelSubscription
//
// These routes require an authenticated user. Plan changes themselves land
// through the Stripe webhook, not here.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/ranklens-io/ranklens/internal/auth"
	"github.com/ranklens-io/ranklens/internal/billing"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/service"
)

// BillingHandler handles billing HTTP requests.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	logger      *slog.Logger
	baseURL     string
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured.
func NewBillingHandler(billingService billing.Service, userService service.UserService, logger *slog.Logger, baseURL string) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		logger:      logger,
		baseURL:     baseURL,
	}
}

// =============================================================================
// Request/Response Types
// =============================================================================

// CheckoutRequest is the body for POST /api/billing/checkout.
type CheckoutRequest struct {
	PriceID string `json:"priceId"`
}

// RedirectResponse carries a URL the client should navigate to.
type RedirectResponse struct {
	URL string `json:"url"`
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/billing/checkout", h.CreateCheckout)
	mux.HandleFunc("POST /api/billing/portal", h.CreatePortal)
	mux.HandleFunc("POST /api/billing/cancel", h.CancelSubscription)
}

// =============================================================================
// Handlers
// =============================================================================

// CreateCheckout starts a Stripe Checkout session for a plan price.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "BillingHandler.CreateCheckout"

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Billing is not configured"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if _, ok := h.billing.RoleForPriceID(req.PriceID); !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown price"))
		return
	}

	// Lazily create the Stripe customer on first checkout
	customerID := user.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create billing customer"))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	url, err := h.billing.CreateCheckoutSession(
		customerID,
		req.PriceID,
		h.baseURL+"/dashboard?checkout=success",
		h.baseURL+"/dashboard?checkout=cancelled",
	)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// CreatePortal starts a Stripe Customer Portal session.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	const op = "BillingHandler.CreatePortal"

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Billing is not configured"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account yet"))
		return
	}

	url, err := h.billing.CreatePortalSession(user.StripeCustomerID, h.baseURL+"/dashboard")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create portal session"))
		return
	}

	writeJSON(w, http.StatusOK, RedirectResponse{URL: url})
}

// CancelSubscription flags the user's subscription to end at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "BillingHandler.CancelSubscription"

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Billing is not configured"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if user.SubscriptionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No active subscription"))
		return
	}

	if err := h.billing.CancelSubscription(user.SubscriptionID); err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to cancel subscription"))
		return
	}

	h.logger.Info("subscription cancellation scheduled", "user_id", user.ID)

	w.WriteHeader(http.StatusNoContent)
}
