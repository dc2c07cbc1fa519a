// Package catalog is the HTTP client for the remote trading-card catalog API.
// It exposes the lookup tables (rarities, printings, conditions) and the two
// paginated collections (card sets and products with their SKUs).
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tcg-catalog-sync/pkg/logging"
)

// Prometheus metrics for catalog client operations.
var (
	catalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})
)

// Endpoint labels used for logs and metrics.
const (
	endpointRarities   = "rarities"
	endpointPrintings  = "printings"
	endpointConditions = "conditions"
	endpointSets       = "groups"
	endpointProducts   = "products"
)

// maxResponseBytes caps a single response body.
const maxResponseBytes = 32 << 20

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.tcgplayer.com".
	BaseURL string

	// CategoryID selects the game whose catalog is synced.
	CategoryID int

	// ProductTypes filters products (default "Cards").
	ProductTypes string

	// UserAgent identifies the application to the API.
	UserAgent string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for the given API root.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:      baseURL,
		CategoryID:   2,
		ProductTypes: "Cards",
		UserAgent:    userAgent,
		Timeout:      30 * time.Second,
	}
}

// Client talks to the remote catalog API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.CategoryID <= 0 {
		return nil, fmt.Errorf("category id must be > 0 (got %d)", cfg.CategoryID)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.ProductTypes == "" {
		cfg.ProductTypes = "Cards"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		config:     cfg,
		logger:     logging.NewLogger("catalog-client"),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Rarities fetches every card rarity of the configured category.
func (c *Client) Rarities(ctx context.Context) ([]Rarity, error) {
	var env envelope[Rarity]
	if err := c.get(ctx, endpointRarities, c.categoryPath("rarities"), nil, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// Printings fetches every printing of the configured category.
func (c *Client) Printings(ctx context.Context) ([]Printing, error) {
	var env envelope[Printing]
	if err := c.get(ctx, endpointPrintings, c.categoryPath("printings"), nil, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// Conditions fetches every card condition of the configured category.
func (c *Client) Conditions(ctx context.Context) ([]Condition, error) {
	var env envelope[Condition]
	if err := c.get(ctx, endpointConditions, c.categoryPath("conditions"), nil, &env); err != nil {
		return nil, err
	}
	return env.Results, nil
}

// Sets fetches one page of card sets.
func (c *Client) Sets(ctx context.Context, offset, limit int) (*Page[CardSet], error) {
	var env envelope[CardSet]
	if err := c.get(ctx, endpointSets, c.categoryPath("groups"), pageQuery(offset, limit), &env); err != nil {
		return nil, err
	}
	return &Page[CardSet]{Items: env.Results, TotalCount: env.TotalItems}, nil
}

// Products fetches one page of products including extended data and SKUs.
func (c *Client) Products(ctx context.Context, offset, limit int) (*Page[Product], error) {
	query := pageQuery(offset, limit)
	query.Set("categoryId", strconv.Itoa(c.config.CategoryID))
	query.Set("productTypes", c.config.ProductTypes)
	query.Set("getExtendedFields", "true")
	query.Set("includeSkus", "true")

	var env envelope[Product]
	if err := c.get(ctx, endpointProducts, "/catalog/products", query, &env); err != nil {
		return nil, err
	}
	return &Page[Product]{Items: env.Results, TotalCount: env.TotalItems}, nil
}

func (c *Client) categoryPath(resource string) string {
	return fmt.Sprintf("/catalog/categories/%d/%s", c.config.CategoryID, resource)
}

func pageQuery(offset, limit int) url.Values {
	return url.Values{
		"offset": []string{strconv.Itoa(offset)},
		"limit":  []string{strconv.Itoa(limit)},
	}
}

// get performs a GET request and decodes the response envelope into out.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", u.RawQuery).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return &APIError{Endpoint: endpoint, ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	catalogRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		catalogErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Catalog request error")
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		catalogErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response",
			Err:        err,
		}
	}

	if s, ok := out.(interface{ failure() (bool, []string) }); ok {
		if failed, errs := s.failure(); failed {
			catalogErrorsTotal.WithLabelValues(string(ErrorClassAPI)).Inc()
			return &APIError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassAPI,
				Message:    envelopeMessage(errs),
			}
		}
	}

	return nil
}

// IsClass reports whether err is an *APIError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorClass == class
}
