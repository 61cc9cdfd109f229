package police

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the public Police API origin.
	BaseURL = "https://data.police.uk/api/"

	DefaultMaxRequestsPerSecond = 15
	DefaultMaxRequestRetries    = 5
	DefaultTimeout              = 10 * time.Second
)

const (
	forcesEndpoint          = "forces"
	availableDatesEndpoint  = "crimes-street-dates"
	stopsForceEndpoint      = "stops-force"
	stopsNoLocationEndpoint = "stops-no-location"
)

// maxErrorBody caps how much of a failed response is kept on HTTPError.
const maxErrorBody = 512

// Config tunes the client. Zero values fall back to the defaults above,
// except MaxRequestRetries where zero disables retrying.
type Config struct {
	BaseURL              string
	MaxRequestsPerSecond int
	MaxRequestRetries    int
	Timeout              time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = BaseURL
	}
	if c.MaxRequestsPerSecond == 0 {
		c.MaxRequestsPerSecond = DefaultMaxRequestsPerSecond
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client is a rate limited, retrying client for the Police API. One Client
// should be shared by every caller in the process so that all requests draw
// from the same limiter.
type Client struct {
	baseURL *url.URL
	limiter *rate.Limiter
	http    *retryablehttp.Client
	log     logrus.FieldLogger
	retries int
}

// NewClient creates a new Police API client.
func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.MaxRequestsPerSecond < 0 || cfg.MaxRequestRetries < 0 || cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: limits and timeout must not be negative", ErrInvalidConfig)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	// Endpoints are resolved relative to the base, which needs a trailing slash.
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "police_client")

	// Burst equal to the rate lets a full second's worth through at once,
	// so any one second window sees at most twice the configured rate.
	limiter := rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond)

	c := &Client{
		baseURL: base,
		limiter: limiter,
		log:     log,
		retries: cfg.MaxRequestRetries,
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: &limitedTransport{limiter: limiter, transport: newTransport(cfg.Timeout), timeout: cfg.Timeout},
	}
	rc.RetryMax = cfg.MaxRequestRetries
	rc.RetryWaitMin = 0
	rc.RetryWaitMax = 0
	rc.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration { return 0 }
	rc.CheckRetry = c.checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log: log}
	c.http = rc

	return c, nil
}

// checkRetry retries throttled and timed out requests only.
func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		if isTimeout(err) {
			c.log.WithError(err).Warn("The API caused a read time out. Retrying...")
			return true, nil
		}
		return false, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.WithField("max_retries", c.retries).Warn("The rate limit on the API has been exceeded. Retrying...")
		return true, nil
	}
	return false, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FetchForces returns all forces, or only those in forceIDs when it is not nil.
func (c *Client) FetchForces(ctx context.Context, forceIDs []string) ([]bronze.Force, error) {
	raw, err := c.getArray(ctx, forcesEndpoint, nil, "Failed to fetch forces from Police API")
	if err != nil {
		return nil, err
	}
	forces := mapValidate[forceRecord, bronze.Force](c.log, "Force", forceValidator, raw, nil)
	if forceIDs == nil {
		return forces, nil
	}

	wanted := make(map[string]struct{}, len(forceIDs))
	for _, id := range forceIDs {
		wanted[id] = struct{}{}
	}
	filtered := make([]bronze.Force, 0, len(forceIDs))
	for _, f := range forces {
		if _, ok := wanted[f.ID]; ok {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// FetchAvailableDates returns the months in the inclusive range [from, to]
// that have stop and search data, with the forces that published it.
func (c *Client) FetchAvailableDates(ctx context.Context, from, to time.Time) ([]bronze.AvailableDateWithForceIDs, error) {
	raw, err := c.getArray(ctx, availableDatesEndpoint, nil, "Failed to fetch available dates from Police API")
	if err != nil {
		return nil, err
	}
	dates := mapValidate[availableDateRecord, bronze.AvailableDateWithForceIDs](c.log, "AvailableDateWithForceIDs", availableDateValidator, raw, nil)

	fromYM, toYM := bronze.YearMonthOf(from), bronze.YearMonthOf(to)
	inRange := make([]bronze.AvailableDateWithForceIDs, 0, len(dates))
	for _, d := range dates {
		if d.YearMonth.Within(fromYM, toYM) {
			inRange = append(inRange, d)
		}
	}
	return inRange, nil
}

// FetchStopAndSearches returns one force's stop and searches for a month.
// withLocation selects between the located and unlocated endpoints.
func (c *Client) FetchStopAndSearches(ctx context.Context, yearMonth bronze.YearMonth, forceID string, withLocation bool) ([]bronze.StopAndSearch, error) {
	endpoint, variant := stopsNoLocationEndpoint, "without"
	if withLocation {
		endpoint, variant = stopsForceEndpoint, "with"
	}
	params := url.Values{}
	params.Set("force", forceID)
	params.Set("date", yearMonth.String())

	msg := fmt.Sprintf(
		"Failed to fetch stop and searches %s location from Police API for force with id '%s' on date '%s'",
		variant, forceID, yearMonth,
	)
	raw, err := c.getArray(ctx, endpoint, params, msg)
	if err != nil {
		return nil, err
	}

	// The API leaves the force out of each record.
	stamp := func(obj map[string]interface{}) { obj["force_id"] = forceID }
	return mapValidate[stopAndSearchRecord, bronze.StopAndSearch](c.log, "StopAndSearch", stopAndSearchValidator, raw, stamp), nil
}

// getArray performs a rate limited GET and returns the elements of the JSON
// array body. Failures are logged with failMsg before being returned.
func (c *Client) getArray(ctx context.Context, endpoint string, params url.Values, failMsg string) ([]json.RawMessage, error) {
	ref := &url.URL{Path: endpoint}
	if len(params) > 0 {
		ref.RawQuery = params.Encode()
	}
	fullURL := c.baseURL.ResolveReference(ref)

	logFields := map[string]string{}
	for k := range params {
		logFields[k] = params.Get(k)
	}
	logRequest(c.log, endpoint, logFields)
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fullURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Error(failMsg)
		return nil, fmt.Errorf("police api %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			c.log.WithField("max_retries", c.retries).
				Error("The rate limit on the API has been exceeded. The max limit of retries has been exceeded, giving up.")
		}
		c.log.WithError(httpErr).WithField("endpoint", endpoint).Error(failMsg)
		return nil, httpErr
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Error(failMsg)
		return nil, fmt.Errorf("decode police api %s: %w", endpoint, err)
	}

	logResponse(c.log, endpoint, resp.StatusCode, time.Since(start), len(items))
	return items, nil
}

// mapValidate decodes every element independently. Elements that fail are
// logged with their index and the target type name and left out.
func mapValidate[R interface{ toModel() (M, error) }, M any](
	log logrus.FieldLogger,
	typeName string,
	schema *jsonschema.Schema,
	raw []json.RawMessage,
	stamp func(map[string]interface{}),
) []M {
	out := make([]M, 0, len(raw))
	for i, item := range raw {
		m, err := decodeElement[R, M](schema, item, stamp)
		if err != nil {
			vErr := &ValidationError{Index: i, Type: typeName, Err: err}
			log.WithFields(logrus.Fields{"index": i, "type": typeName}).Error(vErr.Error())
			continue
		}
		out = append(out, m)
	}
	return out
}
