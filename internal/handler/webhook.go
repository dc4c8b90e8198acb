// Package handler contains HTTP handlers for the RankLens application.
//
// This file implements the Stripe webhook handler for processing billing
// events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it
// directly. Authentication is via the Stripe webhook signature.
//
// Billing events are the only path that resets a user's quota ledger: a
// plan change or a paid renewal overwrites every ledger row with the
// plan's fresh allotment.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/ranklens-io/ranklens/internal/billing"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing      billing.Service
	userService  service.UserService
	roleService  service.RoleService
	quotaService service.QuotaService
	logger       *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(
	billingService billing.Service,
	userService service.UserService,
	roleService service.RoleService,
	quotaService service.QuotaService,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		billing:      billingService,
		userService:  userService,
		roleService:  roleService,
		quotaService: quotaService,
		logger:       logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r, event)
	case "customer.subscription.created":
		h.processSubscriptionEvent(r, event, "created")
	case "customer.subscription.updated":
		h.processSubscriptionEvent(r, event, "updated")
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(r, event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(r, event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(r, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if sess.Customer == nil || sess.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", sess.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(r.Context(), sess.Customer.ID)
	if err != nil {
		// The subscription.created event carries the price and will land
		// shortly after
		h.logger.Info("user not found by customer ID, deferring to subscription event",
			"customer_id", sess.Customer.ID, "subscription_id", sess.Subscription.ID)
		return
	}

	if err := h.userService.UpdateSubscription(r.Context(), user.ID, domain.SubscriptionStatusActive, sess.Subscription.ID); err != nil {
		h.logger.Error("failed to update subscription on checkout", "error", err, "user_id", user.ID)
	}
}

// processSubscriptionEvent applies a created/updated subscription: status,
// granted role, and a fresh quota ledger for the new plan.
func (h *WebhookHandler) processSubscriptionEvent(r *http.Request, event stripe.Event, action string) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err, "action", action)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID, "action", action)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(r.Context(), sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID, "action", action)
		return
	}

	status := domain.SubscriptionStatus(sub.Status)
	if err := h.userService.UpdateSubscription(r.Context(), user.ID, status, sub.ID); err != nil {
		h.logger.Error("failed to update subscription", "error", err, "user_id", user.ID, "action", action)
		return
	}

	// Map the price to a role; unknown prices leave the role untouched
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if role, ok := h.billing.RoleForPriceID(sub.Items.Data[0].Price.ID); ok {
			h.applyPlanChange(r, user.ID, role, action)
		} else {
			h.logger.Warn("subscription price not mapped to a role",
				"price_id", sub.Items.Data[0].Price.ID, "user_id", user.ID)
		}
	}

	h.logger.Info("subscription event processed",
		"user_id", user.ID, "action", action, "status", status)
}

func (h *WebhookHandler) handleSubscriptionDeleted(r *http.Request, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(r.Context(), sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription deletion", "customer_id", sub.Customer.ID)
		return
	}

	if err := h.userService.UpdateSubscription(r.Context(), user.ID, domain.SubscriptionStatusInactive, ""); err != nil {
		h.logger.Error("failed to deactivate subscription", "error", err, "user_id", user.ID)
		return
	}

	// Downgrade to free and reset the ledger to the free allotment
	h.applyPlanChange(r, user.ID, domain.RoleFree, "deleted")

	h.logger.Info("subscription deleted", "user_id", user.ID, "subscription_id", sub.ID)
}

func (h *WebhookHandler) handlePaymentSucceeded(r *http.Request, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	user, err := h.userService.GetByStripeCustomerID(r.Context(), invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("user not found for payment succeeded", "customer_id", invoice.Customer.ID)
		return
	}

	// Recovery from past_due
	if user.SubscriptionStatus != domain.SubscriptionStatusActive {
		if err := h.userService.UpdateSubscription(r.Context(), user.ID, domain.SubscriptionStatusActive, user.SubscriptionID); err != nil {
			h.logger.Error("failed to reactivate on payment success", "error", err, "user_id", user.ID)
		}
	}

	// A paid invoice starts a fresh billing cycle, so the ledger gets the
	// current plan's full allotment. The plan comes from the active role,
	// not the invoice; renewals carry no price change.
	role := h.roleService.Resolve(r.Context(), user.ID)
	if err := h.quotaService.ResetForPlan(r.Context(), user.ID, role.PlanType()); err != nil {
		h.logger.Error("failed to reset quotas on renewal",
			"error", err, "user_id", user.ID, "plan", role.PlanType())
		return
	}

	h.logger.Info("renewal processed", "user_id", user.ID, "plan", role.PlanType())
}

func (h *WebhookHandler) handlePaymentFailed(r *http.Request, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	user, err := h.userService.GetByStripeCustomerID(r.Context(), invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("user not found for payment failed", "customer_id", invoice.Customer.ID)
		return
	}

	if err := h.userService.UpdateSubscription(r.Context(), user.ID, domain.SubscriptionStatusPastDue, user.SubscriptionID); err != nil {
		h.logger.Error("failed to set past_due on payment failure", "error", err, "user_id", user.ID)
	}

	h.logger.Warn("payment failed", "user_id", user.ID, "customer_id", invoice.Customer.ID)
}

// applyPlanChange grants the role and resets the quota ledger for its plan.
// The two writes are not transactional; role resolution fails open to free
// and the next billing event re-applies both, so partial failure is
// recoverable.
func (h *WebhookHandler) applyPlanChange(r *http.Request, userID uuid.UUID, role domain.Role, action string) {
	if err := h.roleService.Assign(r.Context(), userID, role); err != nil {
		h.logger.Error("failed to assign role from billing event",
			"error", err, "user_id", userID, "role", role, "action", action)
		return
	}

	if err := h.quotaService.ResetForPlan(r.Context(), userID, role.PlanType()); err != nil {
		h.logger.Error("failed to reset quotas for plan change",
			"error", err, "user_id", userID, "plan", role.PlanType(), "action", action)
		return
	}

	h.logger.Info("plan change applied", "user_id", userID, "role", role, "plan", role.PlanType())
}
