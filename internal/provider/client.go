package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/common/middleware"
)

// apiClient is the shared transport under the typed provider clients. Each
// provider gets its own rate limiter, circuit breaker and response cache.
type apiClient struct {
	name    string
	baseURL string
	apiKey  string

	httpClient *http.Client
	cache      *gocache.Cache
	limiter    middleware.RateLimiter
	breaker    *middleware.CircuitBreaker
	maxRetries int
	log        logger.Logger
}

func newAPIClient(name string, ep config.ProviderEndpoint, maxRetries int, log logger.Logger) *apiClient {
	timeout := time.Duration(ep.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perHour := int64(ep.RateLimitPerHour)
	if perHour <= 0 {
		perHour = 1000
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &apiClient{
		name:       name,
		baseURL:    ep.BaseURL,
		apiKey:     ep.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      gocache.New(30*time.Minute, time.Hour),
		limiter:    middleware.NewTokenBucket(perHour, perHour/3600+1),
		breaker:    middleware.NewCircuitBreaker(name, 5, 30*time.Second),
		maxRetries: maxRetries,
		log:        log,
	}
}

// getJSON fetches url into out, going through the cache, rate limiter and
// circuit breaker. Transient failures (5xx, transport errors) are retried
// with capped exponential backoff.
func (c *apiClient) getJSON(ctx context.Context, cacheKey, url string, out interface{}) error {
	if c == nil {
		return fmt.Errorf("client not initialized")
	}
	if cached, ok := c.cache.Get(cacheKey); ok {
		return json.Unmarshal(cached.([]byte), out)
	}
	if !c.limiter.Allow(ctx) {
		return fmt.Errorf("%s: rate limit exhausted", c.name)
	}

	var body []byte
	err := c.breaker.Call(ctx, func() error {
		var err error
		body, err = c.fetchWithRetry(ctx, url)
		return err
	})
	if err != nil {
		return err
	}

	c.cache.Set(cacheKey, body, gocache.DefaultExpiration)
	return json.Unmarshal(body, out)
}

func (c *apiClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 8*time.Second {
				backoff = 8 * time.Second
			}
		}

		body, retryable, err := c.fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.log.Warnf("%s request failed (attempt %d/%d): %v", c.name, attempt+1, c.maxRetries+1, err)
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", c.name, lastErr)
}

func (c *apiClient) fetch(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%s: status %d", c.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("%s: status %d", c.name, resp.StatusCode)
	}
	return body, false, nil
}

// DecodeResult is the VIN decoder response.
type DecodeResult struct {
	VIN                string  `json:"vin"`
	Make               string  `json:"make"`
	Model              string  `json:"model"`
	Year               int     `json:"year"`
	Trim               string  `json:"trim"`
	BodyStyle          string  `json:"body_style"`
	Engine             string  `json:"engine"`
	Transmission       string  `json:"transmission"`
	Drivetrain         string  `json:"drivetrain"`
	FuelType           string  `json:"fuel_type"`
	Displacement       float64 `json:"displacement"`
	Cylinders          int     `json:"cylinders"`
	ManufactureCountry string  `json:"manufacture_country"`
	ManufacturePlant   string  `json:"manufacture_plant"`
}

// VINDecoderClient resolves a VIN to its build attributes.
type VINDecoderClient struct {
	*apiClient
}

func NewVINDecoderClient(ep config.ProviderEndpoint, maxRetries int, log logger.Logger) *VINDecoderClient {
	return &VINDecoderClient{newAPIClient("vin_decoder", ep, maxRetries, log)}
}

func (c *VINDecoderClient) Decode(ctx context.Context, vin string) (*DecodeResult, error) {
	var out DecodeResult
	url := fmt.Sprintf("%s/api/v1/decode/%s", c.baseURL, vin)
	if err := c.getJSON(ctx, "decode:"+vin, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DMVTitleRecord is one title/odometer row from the DMV feed.
type DMVTitleRecord struct {
	EventType   string `json:"event_type"`
	EventDate   string `json:"event_date"`
	TitleStatus string `json:"title_status"`
	State       string `json:"state"`
	TitleNumber string `json:"title_number"`
	Odometer    int    `json:"odometer"`
}

// DMVClient fetches title history and registration odometer readings.
type DMVClient struct {
	*apiClient
}

func NewDMVClient(ep config.ProviderEndpoint, maxRetries int, log logger.Logger) *DMVClient {
	return &DMVClient{newAPIClient("dmv", ep, maxRetries, log)}
}

func (c *DMVClient) TitleHistory(ctx context.Context, vin string) ([]DMVTitleRecord, error) {
	var out struct {
		Records []DMVTitleRecord `json:"records"`
	}
	url := fmt.Sprintf("%s/api/v1/titles/%s", c.baseURL, vin)
	if err := c.getJSON(ctx, "titles:"+vin, url, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// TheftLookupResult is the NCIB response for one VIN.
type TheftLookupResult struct {
	VIN        string `json:"vin"`
	IsStolen   bool   `json:"is_stolen"`
	Status     string `json:"status"`
	ReportDate string `json:"report_date"`
	Agency     string `json:"agency"`
	CaseNumber string `json:"case_number"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// TheftClient queries the NCIB stolen-vehicle database.
type TheftClient struct {
	*apiClient
}

func NewTheftClient(ep config.ProviderEndpoint, maxRetries int, log logger.Logger) *TheftClient {
	return &TheftClient{newAPIClient("ncib", ep, maxRetries, log)}
}

func (c *TheftClient) Lookup(ctx context.Context, vin string) (*TheftLookupResult, error) {
	var out TheftLookupResult
	url := fmt.Sprintf("%s/api/v1/theft/%s", c.baseURL, vin)
	if err := c.getJSON(ctx, "theft:"+vin, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
