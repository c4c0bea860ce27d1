package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/buildtrace/buildtrace/pkg/buildtrace"
	"github.com/buildtrace/buildtrace/pkg/logger"
)

const (
	// DefaultAPIURL is the public GitHub REST API.
	DefaultAPIURL = "https://api.github.com"
	// APIVersion is the REST API version requested.
	APIVersion = "2022-11-28"

	userAgent = "buildtrace"
)

// Job filters accepted by the list jobs endpoint.
const (
	FilterLatest = "latest"
	FilterAll    = "all"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL      string
	Repository   string
	Token        string
	PerPage      int
	Filter       string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is the maximum number of requests per second; 0 disables
	// limiting.
	RateLimit float64
	Logger    logger.Logger
}

// Run is the subset of a workflow run resource buildtrace needs.
type Run struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HTMLURL    string `json:"html_url"`
	RunAttempt int    `json:"run_attempt"`
}

// JobsPage is one page of the list jobs response.
type JobsPage struct {
	TotalCount int              `json:"total_count"`
	Jobs       []buildtrace.Job `json:"jobs"`
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github api %s %s: %d %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github api %s %s: %d", e.Method, e.URL, e.StatusCode)
}

type errorBody struct {
	Message string `json:"message"`
}

// Client is a rate limited, retrying GitHub Actions API client.
type Client struct {
	resty      *resty.Client
	limiter    *rate.Limiter
	repository string
	perPage    int
	filter     string
	log        logger.Logger
}

// NewClient creates a client for the repository in cfg.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = cfg.RetryWaitMax
	}
	retryClient.Logger = log.With("component", "github-client")
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", APIVersion).
		SetHeader("User-Agent", userAgent)
	if cfg.Timeout > 0 {
		restyClient.SetTimeout(cfg.Timeout)
	}
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	filter := cfg.Filter
	if filter == "" {
		filter = FilterLatest
	}

	return &Client{
		resty:      restyClient,
		limiter:    rate.NewLimiter(limit, 1),
		repository: cfg.Repository,
		perPage:    perPage,
		filter:     filter,
		log:        log,
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.resty.R().
		SetContext(ctx).
		SetPathParam("repo", c.repository).
		SetError(&errorBody{}), nil
}

// GetRun fetches the workflow run runID.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	var run Run
	resp, err := req.
		SetPathParam("run", runID).
		SetResult(&run).
		Get("/repos/{repo}/actions/runs/{run}")
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if err := checkResponse(resp, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListJobs fetches every job of runID, following pagination until the
// reported total has been collected.
func (c *Client) ListJobs(ctx context.Context, runID string) ([]buildtrace.Job, error) {
	var jobs []buildtrace.Job
	for page := 1; ; page++ {
		req, err := c.request(ctx)
		if err != nil {
			return nil, err
		}

		var body JobsPage
		resp, err := req.
			SetPathParam("run", runID).
			SetQueryParams(map[string]string{
				"per_page": strconv.Itoa(c.perPage),
				"page":     strconv.Itoa(page),
				"filter":   c.filter,
			}).
			SetResult(&body).
			Get("/repos/{repo}/actions/runs/{run}/jobs")
		if err != nil {
			return nil, fmt.Errorf("list jobs of run %s: %w", runID, err)
		}
		if err := checkResponse(resp, runID); err != nil {
			return nil, err
		}

		jobs = append(jobs, body.Jobs...)
		c.log.Debug("fetched jobs page",
			"run_id", runID,
			"page", page,
			"jobs", len(body.Jobs),
			"total", body.TotalCount,
		)
		if len(body.Jobs) == 0 || len(jobs) >= body.TotalCount {
			return jobs, nil
		}
	}
}

func checkResponse(resp *resty.Response, runID string) error {
	if resp.IsSuccess() {
		return nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
	}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Message
	}
	if resp.StatusCode() == http.StatusNotFound {
		return &buildtrace.MissingDataError{RunID: runID, Cause: apiErr}
	}
	return apiErr
}
