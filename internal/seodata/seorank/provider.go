// Package seorank implements the seodata.Provider interface against the
// SeoRank metrics API.
package seorank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ranklens-io/ranklens/internal/metrics"
	"github.com/ranklens-io/ranklens/internal/seodata"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultBaseURL is the hosted SeoRank API endpoint.
	DefaultBaseURL = "https://api.seorank.io/v1"

	// maxBacklinksPerRequest caps a single backlinks page.
	maxBacklinksPerRequest = 1000
)

// Config contains configuration for the SeoRank provider.
type Config struct {
	APIKey         string
	BaseURL        string
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Provider implements seodata.Provider using the SeoRank REST API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new SeoRank provider.
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("seorank API key is required")
	}

	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// DomainRating fetches authority metrics for a domain.
func (p *Provider) DomainRating(ctx context.Context, domain string) (*seodata.DomainMetrics, error) {
	var out seodata.DomainMetrics
	err := p.getJSON(ctx, "domain-rating", url.Values{"target": {domain}}, &out)
	if err != nil {
		return nil, err
	}
	out.Domain = domain
	return &out, nil
}

// Traffic fetches an organic traffic estimate for a domain.
func (p *Provider) Traffic(ctx context.Context, domain string) (*seodata.TrafficEstimate, error) {
	var out seodata.TrafficEstimate
	err := p.getJSON(ctx, "traffic", url.Values{"target": {domain}}, &out)
	if err != nil {
		return nil, err
	}
	out.Domain = domain
	return &out, nil
}

// Backlinks fetches up to limit backlinks for a domain.
func (p *Provider) Backlinks(ctx context.Context, domain string, limit int) ([]seodata.Backlink, error) {
	if limit <= 0 || limit > maxBacklinksPerRequest {
		limit = maxBacklinksPerRequest
	}
	var out struct {
		Backlinks []seodata.Backlink `json:"backlinks"`
	}
	err := p.getJSON(ctx, "backlinks", url.Values{
		"target": {domain},
		"limit":  {strconv.Itoa(limit)},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Backlinks, nil
}

// getJSON performs a GET against the API with exponential backoff on
// transient failures. Quota enforcement happens before this layer; the
// proxy itself retries, the quota subsystem never does.
func (p *Provider) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	target := fmt.Sprintf("%s/%s?%s", p.config.BaseURL, endpoint, params.Encode())

	backoff := retry.WithMaxRetries(uint64(p.config.MaxRetries),
		retry.NewExponential(p.config.RetryBaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.doRequest(ctx, endpoint, target, out)
		if err != nil && seodata.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p *Provider) doRequest(ctx context.Context, endpoint, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.SEOAPICalls.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %v", seodata.ErrTimeout, err)
	}
	defer resp.Body.Close()

	metrics.SEOAPICalls.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return seodata.ErrDomainNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return seodata.ErrRateLimited
	case resp.StatusCode >= 500:
		return seodata.ErrUnavailable
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("seorank %s returned %d: %s", endpoint, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
