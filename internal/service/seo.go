package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/export"
	"github.com/ranklens-io/ranklens/internal/repository"
	"github.com/ranklens-io/ranklens/internal/seodata"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// DefaultBacklinkLimit is how many backlinks a check returns when the
	// caller doesn't specify a limit.
	DefaultBacklinkLimit = 100

	// MaxBacklinkLimit caps a single backlink request.
	MaxBacklinkLimit = 1000
)

// =============================================================================
// Interface Definition
// =============================================================================

// SEOService orchestrates SEO checks: quota consumption, provider calls,
// and check history. userID may be the guest sentinel, in which case no
// history is recorded.
type SEOService interface {
	// DomainRating runs an authority check against the provider.
	DomainRating(ctx context.Context, userID, rawDomain string) (*seodata.DomainMetrics, error)

	// Traffic runs an organic traffic estimate against the provider.
	Traffic(ctx context.Context, userID, rawDomain string) (*seodata.TrafficEstimate, error)

	// Backlinks fetches up to limit backlinks for a domain.
	Backlinks(ctx context.Context, userID, rawDomain string, limit int) ([]seodata.Backlink, error)

	// ExportBacklinks fetches backlinks and renders them into a
	// downloadable file. Not available to guests.
	ExportBacklinks(ctx context.Context, userID, rawDomain, format string, limit int) (*export.Result, error)

	// RecentChecks returns the user's most recent check history entries.
	RecentChecks(ctx context.Context, userID uuid.UUID, limit int32) ([]domain.CheckRecord, error)
}

// CheckStore is the subset of repository queries used for check history.
type CheckStore interface {
	CreateCheckRecord(ctx context.Context, arg repository.CreateCheckRecordParams) (repository.CheckRecord, error)
	ListRecentChecks(ctx context.Context, arg repository.ListRecentChecksParams) ([]repository.CheckRecord, error)
}

// =============================================================================
// Implementation
// =============================================================================

type seoService struct {
	provider seodata.Provider
	quotas   QuotaService
	exports  *export.Service
	store    CheckStore
	logger   *slog.Logger
}

// NewSEOService creates a new SEOService.
func NewSEOService(provider seodata.Provider, quotas QuotaService, exports *export.Service, store CheckStore, logger *slog.Logger) SEOService {
	return &seoService{
		provider: provider,
		quotas:   quotas,
		exports:  exports,
		store:    store,
		logger:   logger,
	}
}

// DomainRating runs an authority check for a domain.
func (s *seoService) DomainRating(ctx context.Context, userID, rawDomain string) (*seodata.DomainMetrics, error) {
	const op = "SEOService.DomainRating"

	target, err := seodata.NormalizeDomain(rawDomain)
	if err != nil {
		return nil, domain.Invalid(op, "Invalid domain")
	}

	if _, err := s.quotas.Consume(ctx, userID, domain.QuotaTypeDRCheck, 1); err != nil {
		return nil, err
	}

	metrics, err := s.provider.DomainRating(ctx, target)
	if err != nil {
		return nil, mapProviderError(op, target, err)
	}

	s.recordCheck(ctx, userID, domain.QuotaTypeDRCheck, target,
		fmt.Sprintf("DR %.1f, %d referring domains", metrics.DomainRating, metrics.ReferringDomains))

	return metrics, nil
}

// Traffic runs an organic traffic estimate for a domain.
func (s *seoService) Traffic(ctx context.Context, userID, rawDomain string) (*seodata.TrafficEstimate, error) {
	const op = "SEOService.Traffic"

	target, err := seodata.NormalizeDomain(rawDomain)
	if err != nil {
		return nil, domain.Invalid(op, "Invalid domain")
	}

	if _, err := s.quotas.Consume(ctx, userID, domain.QuotaTypeTrafficCheck, 1); err != nil {
		return nil, err
	}

	estimate, err := s.provider.Traffic(ctx, target)
	if err != nil {
		return nil, mapProviderError(op, target, err)
	}

	s.recordCheck(ctx, userID, domain.QuotaTypeTrafficCheck, target,
		fmt.Sprintf("%d monthly visits, %d organic keywords", estimate.MonthlyVisits, estimate.OrganicKeywords))

	return estimate, nil
}

// Backlinks fetches backlinks for a domain.
func (s *seoService) Backlinks(ctx context.Context, userID, rawDomain string, limit int) ([]seodata.Backlink, error) {
	const op = "SEOService.Backlinks"

	target, err := seodata.NormalizeDomain(rawDomain)
	if err != nil {
		return nil, domain.Invalid(op, "Invalid domain")
	}

	limit = clampBacklinkLimit(limit)

	if _, err := s.quotas.Consume(ctx, userID, domain.QuotaTypeBacklinkCheck, 1); err != nil {
		return nil, err
	}

	backlinks, err := s.provider.Backlinks(ctx, target, limit)
	if err != nil {
		return nil, mapProviderError(op, target, err)
	}

	s.recordCheck(ctx, userID, domain.QuotaTypeBacklinkCheck, target,
		fmt.Sprintf("%d backlinks fetched", len(backlinks)))

	return backlinks, nil
}

// ExportBacklinks fetches backlinks and renders them into a download file.
// The export path consumes from the backlink view allotment.
func (s *seoService) ExportBacklinks(ctx context.Context, userID, rawDomain, format string, limit int) (*export.Result, error) {
	const op = "SEOService.ExportBacklinks"

	// Exports are stored per user, so the guest sentinel has no home for
	// them.
	if userID == domain.GuestUserID {
		return nil, domain.Unauthorized(op, "Sign in to export backlinks")
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.Invalid(op, "invalid user ID")
	}

	target, err := seodata.NormalizeDomain(rawDomain)
	if err != nil {
		return nil, domain.Invalid(op, "Invalid domain")
	}

	limit = clampBacklinkLimit(limit)

	if _, err := s.quotas.Consume(ctx, userID, domain.QuotaTypeBacklinkView, 1); err != nil {
		return nil, err
	}

	backlinks, err := s.provider.Backlinks(ctx, target, limit)
	if err != nil {
		return nil, mapProviderError(op, target, err)
	}

	result, err := s.exports.Generate(ctx, uid, target, format, backlinks)
	if err != nil {
		return nil, err
	}

	s.recordCheck(ctx, userID, domain.QuotaTypeBacklinkView, target,
		fmt.Sprintf("%d backlinks exported as %s", result.Count, result.Format))

	return result, nil
}

// RecentChecks returns the user's most recent check history entries.
func (s *seoService) RecentChecks(ctx context.Context, userID uuid.UUID, limit int32) ([]domain.CheckRecord, error) {
	const op = "SEOService.RecentChecks"

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.store.ListRecentChecks(ctx, repository.ListRecentChecksParams{
		UserID: userID,
		Limit:  limit,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list check history")
	}

	records := make([]domain.CheckRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.CheckRecord{
			ID:           row.ID,
			UserID:       row.UserID,
			CheckType:    domain.QuotaType(row.CheckType),
			TargetDomain: row.TargetDomain,
			Summary:      row.Summary,
			CreatedAt:    row.CreatedAt,
		})
	}

	return records, nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

// recordCheck appends a check-history row. Guest checks are never recorded,
// and history failures never fail the check itself.
func (s *seoService) recordCheck(ctx context.Context, userID string, checkType domain.QuotaType, target, summary string) {
	if userID == domain.GuestUserID {
		return
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return
	}

	_, err = s.store.CreateCheckRecord(ctx, repository.CreateCheckRecordParams{
		ID:           uuid.New(),
		UserID:       uid,
		CheckType:    string(checkType),
		TargetDomain: target,
		Summary:      summary,
	})
	if err != nil {
		s.logger.Warn("failed to record check history",
			"user_id", userID,
			"check_type", checkType,
			"error", err,
		)
	}
}

// mapProviderError translates provider failures to domain errors.
func mapProviderError(op, target string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, seodata.ErrDomainNotFound) {
		return domain.NotFound(op, "domain", target)
	}

	if seodata.IsRetryable(err) {
		return domain.Internal(err, op, "SEO data provider is temporarily unavailable")
	}

	return domain.Internal(err, op, "SEO data request failed")
}

func clampBacklinkLimit(limit int) int {
	if limit <= 0 {
		return DefaultBacklinkLimit
	}
	if limit > MaxBacklinkLimit {
		return MaxBacklinkLimit
	}
	return limit
}
