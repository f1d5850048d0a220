// Package ndc provides a client for the NDC package directory, the
// upstream service that knows which package configurations exist for a
// given drug code. Lookups run behind a circuit breaker so a directory
// outage degrades a calculation instead of failing it.
package ndc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
	"github.com/drfirst/go-sigcalc/internal/observability/metrics"
	"github.com/drfirst/go-sigcalc/pkg/circuitbreaker"
)

var (
	// ErrNotFound indicates the directory has no entry for the NDC
	ErrNotFound = errors.New("ndc not found in directory")
	// ErrUpstream indicates the directory returned an unexpected response
	ErrUpstream = errors.New("ndc directory upstream error")
)

// Config holds directory client configuration
type Config struct {
	// BaseURL is the directory service root, e.g. https://directory.local
	BaseURL string
	// APIKey authenticates against the directory (optional)
	APIKey string
	// Timeout bounds a single lookup
	Timeout time.Duration
}

// Client looks up package configurations by NDC
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// packageRecord is the directory's wire format. Package sizes come back
// as strings and are not guaranteed to be numeric.
type packageRecord struct {
	NDC          string `json:"ndc"`
	Description  string `json:"description"`
	Unit         string `json:"unit"`
	PackageSize  string `json:"package_size"`
	MarketStatus string `json:"market_status"`
}

type lookupResponse struct {
	Packages []packageRecord `json:"packages"`
}

// NewClient creates a directory client. A nil breaker disables the
// circuit and calls the directory directly; m may be nil (tests).
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("ndc-directory"),
	}
}

// IsConfigured reports whether the client has an upstream to talk to
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// LookupPackages fetches the package configurations for an NDC. When
// the circuit is open, it degrades to an empty list so the calculation
// can still produce a quantity and a PACKAGE_MISMATCH-free parse.
func (c *Client) LookupPackages(ctx context.Context, ndcCode string) ([]dispense.Package, error) {
	ctx, span := c.tracer.Start(ctx, "ndc_lookup_packages",
		trace.WithAttributes(attribute.String("ndc", ndcCode)))
	defer span.End()

	ndcCode = strings.TrimSpace(ndcCode)
	if ndcCode == "" {
		return nil, fmt.Errorf("%w: empty ndc", ErrUpstream)
	}

	if c.metrics != nil {
		c.metrics.DirectoryLookups.Inc()
	}

	fetch := func() (interface{}, error) {
		return c.fetch(ctx, ndcCode)
	}

	var result interface{}
	var err error
	if c.breaker != nil {
		result, err = c.breaker.ExecuteWithFallback(ctx, fetch, func(cause error) (interface{}, error) {
			c.logger.Warn("directory unavailable, returning no packages",
				zap.String("ndc", ndcCode),
				zap.Error(cause))
			return []dispense.Package{}, nil
		})
	} else {
		result, err = fetch()
	}
	c.observeBreaker()
	if err != nil {
		if c.metrics != nil {
			c.metrics.DirectoryLookupErrors.Inc()
		}
		span.RecordError(err)
		return nil, err
	}

	packages := result.([]dispense.Package)
	span.SetAttributes(attribute.Int("package_count", len(packages)))
	return packages, nil
}

// observeBreaker mirrors the breaker state into the Prometheus gauge
func (c *Client) observeBreaker() {
	if c.metrics == nil || c.breaker == nil {
		return
	}
	var state float64
	switch c.breaker.GetState() {
	case circuitbreaker.StateOpen:
		state = 1
	case circuitbreaker.StateHalfOpen:
		state = 2
	}
	c.metrics.CircuitBreakerState.WithLabelValues("ndc-directory").Set(state)
}

func (c *Client) fetch(ctx context.Context, ndcCode string) ([]dispense.Package, error) {
	lookupURL := fmt.Sprintf("%s/v1/ndc/%s/packages", c.baseURL, url.PathEscape(ndcCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// ok
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: status=%d", ErrUpstream, resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrUpstream, err)
	}

	packages := make([]dispense.Package, 0, len(out.Packages))
	for _, rec := range out.Packages {
		packages = append(packages, c.toPackage(rec))
	}
	return packages, nil
}

// toPackage converts a wire record to a domain package. Unparseable
// package sizes become 0, which the selector treats as ineligible
// rather than an error.
func (c *Client) toPackage(rec packageRecord) dispense.Package {
	size, err := strconv.Atoi(strings.TrimSpace(rec.PackageSize))
	if err != nil {
		c.logger.Debug("non-numeric package size from directory",
			zap.String("ndc", rec.NDC),
			zap.String("package_size", rec.PackageSize))
		size = 0
	}

	return dispense.Package{
		NDC:                rec.NDC,
		Description:        rec.Description,
		Unit:               rec.Unit,
		QuantityPerPackage: size,
		Active:             !strings.EqualFold(rec.MarketStatus, "inactive"),
	}
}
