package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketplace_quotes_backend/internal/quoting/domain"
	"marketplace_quotes_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// ClientConfig tunes the HTTP directory client.
type ClientConfig struct {
	JobServiceURL      string
	ProviderServiceURL string
	Timeout            time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
}

// Client talks JSON over HTTP to the job and provider services. Transport
// failures and 5xx responses are retried with exponential backoff; 4xx
// responses are returned immediately.
type Client struct {
	httpClient  *http.Client
	jobURL      string
	providerURL string
	maxAttempts int
	backoffBase time.Duration
	log         *logger.Logger
}

// NewClient creates a directory client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxAttempts
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		jobURL:      cfg.JobServiceURL,
		providerURL: cfg.ProviderServiceURL,
		maxAttempts: attempts,
		backoffBase: base,
		log:         log,
	}
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, jobID uuid.UUID) (Job, error) {
	var api apiJob
	reqURL := fmt.Sprintf("%s/jobs/%s", c.jobURL, url.PathEscape(jobID.String()))
	if err := c.getJSON(ctx, "job service", reqURL, &api); err != nil {
		if errors.Is(err, errNotFound) {
			return Job{}, domain.NotFound("job", jobID)
		}
		return Job{}, err
	}
	return api.toJob(), nil
}

// GetProvider fetches a provider profile by id.
func (c *Client) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.ProviderProfile, error) {
	var api apiProvider
	reqURL := fmt.Sprintf("%s/providers/%s", c.providerURL, url.PathEscape(providerID.String()))
	if err := c.getJSON(ctx, "provider service", reqURL, &api); err != nil {
		if errors.Is(err, errNotFound) {
			return domain.ProviderProfile{}, domain.NotFound("provider", providerID)
		}
		return domain.ProviderProfile{}, err
	}
	return api.toProfile(), nil
}

// FindCandidates queries providers by category and radius.
func (c *Client) FindCandidates(ctx context.Context, category string, anchor domain.GeoPoint, radiusKm float64) ([]domain.ProviderProfile, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("lat", strconv.FormatFloat(anchor.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(anchor.Longitude, 'f', -1, 64))
	params.Set("radiusKm", strconv.FormatFloat(radiusKm, 'f', -1, 64))

	var api []apiProvider
	reqURL := fmt.Sprintf("%s/providers/candidates?%s", c.providerURL, params.Encode())
	if err := c.getJSON(ctx, "provider service", reqURL, &api); err != nil {
		if errors.Is(err, errNotFound) {
			return []domain.ProviderProfile{}, nil
		}
		return nil, err
	}

	out := make([]domain.ProviderProfile, 0, len(api))
	for _, p := range api {
		out = append(out, p.toProfile())
	}
	return out, nil
}

var errNotFound = errors.New("not found")

func (c *Client) getJSON(ctx context.Context, service, reqURL string, dst any) error {
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoffBase))
	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.doRequest(ctx, reqURL, dst)
		var re *retryableError
		if errors.As(err, &re) {
			c.log.UpstreamFailure(service, attempt, re.err)
			return retry.RetryableError(re.err)
		}
		return err
	})
	if err == nil || errors.Is(err, errNotFound) {
		return err
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return err
	}
	return domain.UpstreamUnavailable(service, err)
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }

type permanentError struct{ status int }

func (e *permanentError) Error() string { return fmt.Sprintf("upstream rejected request: status %d", e.status) }

func (c *Client) doRequest(ctx context.Context, reqURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Success - continue to decode
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return &retryableError{err: fmt.Errorf("upstream error: status %d", resp.StatusCode)}
	default:
		c.log.Error("directory request rejected", "status", resp.StatusCode, "url", reqURL)
		return &permanentError{status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type apiLocation struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Address   string  `json:"address"`
}

func (l apiLocation) toGeoPoint() domain.GeoPoint {
	return domain.GeoPoint{Latitude: l.Latitude, Longitude: l.Longitude, Address: l.Address}
}

type apiJob struct {
	ID         uuid.UUID   `json:"id"`
	CustomerID uuid.UUID   `json:"customerId"`
	Category   string      `json:"category"`
	Location   apiLocation `json:"location"`
	BudgetMin  *int64      `json:"budgetMin"`
	BudgetMax  *int64      `json:"budgetMax"`
}

func (a apiJob) toJob() Job {
	return Job{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		Category:   a.Category,
		Location:   a.Location.toGeoPoint(),
		BudgetMin:  a.BudgetMin,
		BudgetMax:  a.BudgetMax,
	}
}

type apiProvider struct {
	ID          uuid.UUID   `json:"id"`
	Email       string      `json:"email"`
	Category    string      `json:"category"`
	Categories  []string    `json:"categories"`
	Rating      float64     `json:"rating"`
	DistanceKm  float64     `json:"distanceKm"`
	Location    apiLocation `json:"location"`
	Available   bool        `json:"available"`
	HasTools    bool        `json:"hasTools"`
	EcoFriendly bool        `json:"ecoFriendly"`
}

func (a apiProvider) toProfile() domain.ProviderProfile {
	return domain.ProviderProfile{
		ID:          a.ID,
		Email:       a.Email,
		Category:    a.Category,
		Categories:  a.Categories,
		Rating:      a.Rating,
		DistanceKm:  a.DistanceKm,
		Location:    a.Location.toGeoPoint(),
		Available:   a.Available,
		HasTools:    a.HasTools,
		EcoFriendly: a.EcoFriendly,
	}
}

var (
	_ JobDirectory      = (*Client)(nil)
	_ ProviderDirectory = (*Client)(nil)
)
