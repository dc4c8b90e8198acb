// Package mock provides a deterministic seodata.Provider for development
// and tests.
package mock

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/ranklens-io/ranklens/internal/seodata"
)

// Provider is a mock SEO data provider. Responses are derived from the
// target domain so repeated calls are stable.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	DomainRatingResponse *seodata.DomainMetrics
	DomainRatingError    error
	TrafficResponse      *seodata.TrafficEstimate
	TrafficError         error
	BacklinksResponse    []seodata.Backlink
	BacklinksError       error

	// Call tracking for testing
	DomainRatingCalls int
	TrafficCalls      int
	BacklinksCalls    int
}

// New creates a new mock SEO data provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// DomainRating returns a stable synthetic rating for the domain.
func (p *Provider) DomainRating(ctx context.Context, domain string) (*seodata.DomainMetrics, error) {
	p.DomainRatingCalls++

	if p.DomainRatingError != nil {
		return nil, p.DomainRatingError
	}
	if p.DomainRatingResponse != nil {
		return p.DomainRatingResponse, nil
	}

	seed := domainSeed(domain)
	return &seodata.DomainMetrics{
		Domain:           domain,
		DomainRating:     float64(seed % 101),
		ReferringDomains: int64(seed%9000 + 100),
		TotalBacklinks:   int64(seed%90000 + 1000),
	}, nil
}

// Traffic returns a stable synthetic traffic estimate.
func (p *Provider) Traffic(ctx context.Context, domain string) (*seodata.TrafficEstimate, error) {
	p.TrafficCalls++

	if p.TrafficError != nil {
		return nil, p.TrafficError
	}
	if p.TrafficResponse != nil {
		return p.TrafficResponse, nil
	}

	seed := domainSeed(domain)
	return &seodata.TrafficEstimate{
		Domain:          domain,
		MonthlyVisits:   int64(seed%500000 + 500),
		OrganicKeywords: int64(seed%20000 + 50),
		TopCountry:      "US",
	}, nil
}

// Backlinks returns a small synthetic backlink list.
func (p *Provider) Backlinks(ctx context.Context, domain string, limit int) ([]seodata.Backlink, error) {
	p.BacklinksCalls++

	if p.BacklinksError != nil {
		return nil, p.BacklinksError
	}
	if p.BacklinksResponse != nil {
		return p.BacklinksResponse, nil
	}

	if limit <= 0 || limit > 25 {
		limit = 25
	}
	seed := domainSeed(domain)
	firstSeen := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	links := make([]seodata.Backlink, 0, limit)
	for i := 0; i < limit; i++ {
		links = append(links, seodata.Backlink{
			SourceURL:    "https://blog.example.net/posts/" + domain,
			TargetURL:    "https://" + domain + "/",
			AnchorText:   domain,
			DomainRating: float64((seed + uint32(i)*7) % 101),
			NoFollow:     i%3 == 0,
			FirstSeen:    firstSeen.AddDate(0, 0, i),
		})
	}
	return links, nil
}

func domainSeed(domain string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(domain))
	return h.Sum32()
}
