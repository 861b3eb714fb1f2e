// ABOUTME: HTTP client for the upstream job-tracking API
// ABOUTME: Lists modified jobs, fetches job detail, and fetches requested/worked geometry per account
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harperreed/fieldwatch/models"
)

// Client is the consumed surface of the upstream job-tracking API.
type Client interface {
	// ListModifiedJobs returns the jobs modified since the given instant,
	// including soft-deleted jobs when includeDeleted is set.
	ListModifiedJobs(ctx context.Context, accountID string, since time.Time, includeDeleted bool) ([]models.JobSummary, error)

	// GetJobDetail fetches the full record for a single job.
	GetJobDetail(ctx context.Context, accountID, jobID string) (*models.JobDetail, error)

	// GetRequestedGeometry fetches the requested-work geometry for a job.
	GetRequestedGeometry(ctx context.Context, accountID, jobID string) (*geojson.FeatureCollection, error)

	// GetWorkedGeometry fetches as-worked geometry; detailed selects the
	// per-pass representation.
	GetWorkedGeometry(ctx context.Context, accountID, jobID string, detailed bool) (*geojson.FeatureCollection, error)
}

const (
	requestTimeout = 30 * time.Second

	// The cache exists to be rate-limit friendly; the client itself is
	// throttled so a burst of detail fetches cannot trip upstream's limiter.
	defaultRPS   = 5
	defaultBurst = 10
)

// HTTPClient implements Client against the upstream REST API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewHTTPClient creates an upstream client for the given base URL and bearer
// token.
func NewHTTPClient(baseURL, token string, log *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRPS), defaultBurst),
		log:     log.Named("upstream"),
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "GET %s", path), ErrUnreachable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.log.Debug("upstream error response",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return errors.Mark(errors.Newf("GET %s: status %d", path, resp.StatusCode), classifyStatus(resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode response for GET %s", path)
	}
	return nil
}

func (c *HTTPClient) ListModifiedJobs(ctx context.Context, accountID string, since time.Time, includeDeleted bool) ([]models.JobSummary, error) {
	query := url.Values{
		"since":          {strconv.FormatInt(since.Unix(), 10)},
		"includeDeleted": {strconv.FormatBool(includeDeleted)},
	}

	var jobs []models.JobSummary
	path := fmt.Sprintf("/v1/accounts/%s/jobs", url.PathEscape(accountID))
	if err := c.get(ctx, path, query, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *HTTPClient) GetJobDetail(ctx context.Context, accountID, jobID string) (*models.JobDetail, error) {
	var detail models.JobDetail
	path := fmt.Sprintf("/v1/accounts/%s/jobs/%s", url.PathEscape(accountID), url.PathEscape(jobID))
	if err := c.get(ctx, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *HTTPClient) GetRequestedGeometry(ctx context.Context, accountID, jobID string) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	path := fmt.Sprintf("/v1/accounts/%s/jobs/%s/geometry/requested", url.PathEscape(accountID), url.PathEscape(jobID))
	if err := c.get(ctx, path, nil, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (c *HTTPClient) GetWorkedGeometry(ctx context.Context, accountID, jobID string, detailed bool) (*geojson.FeatureCollection, error) {
	var query url.Values
	if detailed {
		query = url.Values{"detailed": {"true"}}
	}

	var fc geojson.FeatureCollection
	path := fmt.Sprintf("/v1/accounts/%s/jobs/%s/geometry/worked", url.PathEscape(accountID), url.PathEscape(jobID))
	if err := c.get(ctx, path, query, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}
