package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://services.leadconnectorhq.com"

type Options struct {
	BaseURL    string
	APIVersion string
	// RateLimitRPS throttles lookups; 0 disables the limiter.
	RateLimitRPS float64
	HTTPClient   *http.Client
}

// Client searches one CRM location's contacts by phone number.
type Client struct {
	apiKey     string
	locationID string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(apiKey, locationID string, opts Options, logger *zap.Logger) *Client {
	c := &Client{
		apiKey:     apiKey,
		locationID: locationID,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiVersion: opts.APIVersion,
		httpClient: opts.HTTPClient,
		logger:     logging.OrNop(logger),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if opts.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return c
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("Version", c.apiVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

// SearchByPhone issues exactly one search request and returns the first
// contact, or nil when there are none.
func (c *Client) SearchByPhone(ctx context.Context, phone string) (*Contact, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	query := url.Values{}
	query.Set("locationId", c.locationID)
	query.Set("query", phone)
	endpoint := c.baseURL + "/contacts/search?" + query.Encode()

	body, err := c.sendRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(result.Contacts) == 0 {
		return nil, nil
	}
	return &result.Contacts[0], nil
}

// Lookup is SearchByPhone with failures logged and reported as not found.
func (c *Client) Lookup(ctx context.Context, phone string) *Contact {
	contact, err := c.SearchByPhone(ctx, phone)
	switch {
	case err != nil:
		metrics.LookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("contact lookup failed", zap.String("phone", phone), zap.Error(err))
		return nil
	case contact == nil:
		metrics.LookupsTotal.WithLabelValues("not_found").Inc()
		c.logger.Debug("no contact for phone", zap.String("phone", phone))
	default:
		metrics.LookupsTotal.WithLabelValues("found").Inc()
	}
	return contact
}
