// Package seodata defines the interface to hosted SEO metrics APIs.
//
// The quota subsystem gates access to these calls; the providers themselves
// are thin proxies with retry/backoff. Implementations live in the seorank
// (HTTP) and mock subpackages.
package seodata

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Provider defines the SEO data operations behind the check endpoints.
type Provider interface {
	// DomainRating returns authority metrics for a domain.
	DomainRating(ctx context.Context, domain string) (*DomainMetrics, error)

	// Traffic returns an organic traffic estimate for a domain.
	Traffic(ctx context.Context, domain string) (*TrafficEstimate, error)

	// Backlinks returns up to limit backlinks pointing at a domain.
	Backlinks(ctx context.Context, domain string, limit int) ([]Backlink, error)
}

// DomainMetrics contains authority metrics for a domain.
type DomainMetrics struct {
	Domain           string  `json:"domain"`
	DomainRating     float64 `json:"domainRating"`
	ReferringDomains int64   `json:"referringDomains"`
	TotalBacklinks   int64   `json:"totalBacklinks"`
}

// TrafficEstimate contains an organic traffic estimate for a domain.
type TrafficEstimate struct {
	Domain          string `json:"domain"`
	MonthlyVisits   int64  `json:"monthlyVisits"`
	OrganicKeywords int64  `json:"organicKeywords"`
	TopCountry      string `json:"topCountry"`
}

// Backlink is a single inbound link.
type Backlink struct {
	SourceURL    string    `json:"sourceUrl"`
	TargetURL    string    `json:"targetUrl"`
	AnchorText   string    `json:"anchorText"`
	DomainRating float64   `json:"domainRating"`
	NoFollow     bool      `json:"noFollow"`
	FirstSeen    time.Time `json:"firstSeen"`
}

// Transient provider failures, retried with backoff by implementations.
var (
	ErrRateLimited = errors.New("seo provider rate limit exceeded")
	ErrUnavailable = errors.New("seo provider unavailable")
	ErrTimeout     = errors.New("seo provider request timed out")
)

// ErrDomainNotFound means the provider has no data for the domain.
// Not retried.
var ErrDomainNotFound = errors.New("domain not found in seo index")

// IsRetryable reports whether the error is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// domainPattern accepts bare hostnames like "example.com" or "sub.example.co.uk".
var domainPattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// NormalizeDomain lowercases a target domain and strips scheme, path and
// www prefix. Returns an error for anything that is not a plausible
// hostname.
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	d = strings.TrimSuffix(d, ".")
	if !domainPattern.MatchString(d) {
		return "", fmt.Errorf("invalid domain %q", raw)
	}
	return d, nil
}
