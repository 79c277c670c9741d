package ratingclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/bookrate/internal/config"
	"github.com/Clark-Hu/bookrate/internal/domain"
)

const (
	maxAckBody    = 64 << 10 // 64 KiB
	maxMarkupBody = 4 << 20  // 4 MiB
	maxErrorBody  = 512
)

// ErrRequestFailed is the single failure class of the Rating Service: a
// transport error or a non-2xx response.
var ErrRequestFailed = errors.New("ratingclient: request failed")

// StatusError reports a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	// Body is the beginning of the response text.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ratingclient: %s: upstream returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap makes every StatusError match ErrRequestFailed.
func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client defines the contract for talking to the Rating Service.
type Client interface {
	Rate(ctx context.Context, book domain.BookID, rating int) (domain.Ack, error)
	Remove(ctx context.Context, book domain.BookID) (domain.Ack, error)
	Search(ctx context.Context, query string) (string, error)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL                string
	CSRFToken              string
	SearchEndpoint         string
	RateEndpointTemplate   string
	RemoveEndpointTemplate string
	// Timeout bounds each request; zero leaves requests untimed.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// OptionsFromConfig maps the loaded configuration onto client options.
func OptionsFromConfig(cfg config.Config, logger zerolog.Logger) Options {
	return Options{
		BaseURL:                cfg.BaseURL,
		CSRFToken:              cfg.CSRFToken,
		SearchEndpoint:         cfg.SearchEndpoint,
		RateEndpointTemplate:   cfg.RateEndpointTemplate,
		RemoveEndpointTemplate: cfg.RemoveEndpointTemplate,
		Timeout:                cfg.Timeout,
		Logger:                 logger,
	}
}

// HTTPClient implements Client over form-encoded HTTP, the way the site's
// jQuery calls did.
type HTTPClient struct {
	baseURL *url.URL
	opts    Options
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient constructs a new HTTP-backed Rating Service client. The
// client keeps a cookie jar so session and CSRF cookies picked up while
// fetching a page are sent back with the rating calls.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse rating service url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("rating service url %q must be absolute", opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ExpectContinueTimeout: 1 * time.Second,
	}
	dialer := &net.Dialer{KeepAlive: 30 * time.Second}
	if opts.Timeout > 0 {
		dialer.Timeout = opts.Timeout
		transport.TLSHandshakeTimeout = opts.Timeout
		transport.ResponseHeaderTimeout = opts.Timeout
	}
	transport.DialContext = dialer.DialContext

	return &HTTPClient{
		baseURL: parsed,
		opts:    opts,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		logger: opts.Logger,
	}, nil
}

// SetCSRFToken replaces the token sent with rate and remove requests.
func (c *HTTPClient) SetCSRFToken(token string) {
	c.opts.CSRFToken = token
}

// SetSearchEndpoint replaces the search endpoint, e.g. with the page's own
// searchUrl.
func (c *HTTPClient) SetSearchEndpoint(endpoint string) {
	c.opts.SearchEndpoint = endpoint
}

// Rate stores rating for book.
func (c *HTTPClient) Rate(ctx context.Context, book domain.BookID, rating int) (domain.Ack, error) {
	form := url.Values{}
	form.Set("csrfmiddlewaretoken", c.opts.CSRFToken)
	form.Set("rating", strconv.Itoa(rating))
	return c.postForm(ctx, "rate", expand(c.opts.RateEndpointTemplate, book), form)
}

// Remove deletes the rating of book.
func (c *HTTPClient) Remove(ctx context.Context, book domain.BookID) (domain.Ack, error) {
	form := url.Values{}
	form.Set("csrfmiddlewaretoken", c.opts.CSRFToken)
	return c.postForm(ctx, "remove", expand(c.opts.RemoveEndpointTemplate, book), form)
}

// Search runs query against the search endpoint and returns the rendered
// results fragment verbatim.
func (c *HTTPClient) Search(ctx context.Context, query string) (string, error) {
	endpoint, err := c.resolve(c.opts.SearchEndpoint)
	if err != nil {
		return "", err
	}
	q := endpoint.Query()
	q.Set("q", query)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	body, _, err := c.do(req, "search", maxMarkupBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetPage fetches a server-rendered page. Cookies set by the response are
// kept for later calls.
func (c *HTTPClient) GetPage(ctx context.Context, path string) ([]byte, error) {
	endpoint, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	body, _, err := c.do(req, "page", maxMarkupBody)
	return body, err
}

func (c *HTTPClient) postForm(ctx context.Context, op, path string, form url.Values) (domain.Ack, error) {
	endpoint, err := c.resolve(path)
	if err != nil {
		return domain.Ack{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRFToken", c.opts.CSRFToken)
	req.Header.Set("Referer", c.baseURL.String()+"/")

	body, status, err := c.do(req, op, maxAckBody)
	if err != nil {
		return domain.Ack{}, err
	}
	return decodeAck(body, status), nil
}

func (c *HTTPClient) do(req *http.Request, op string, limit int64) ([]byte, int, error) {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Debug().Str("op", op).Str("request_id", requestID).Str("url", req.URL.String()).Msg("rating service request")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrRequestFailed, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: read body: %w", ErrRequestFailed, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().Str("op", op).Str("request_id", requestID).Int("status", resp.StatusCode).Msg("rating service rejected request")
		return nil, resp.StatusCode, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
	return body, resp.StatusCode, nil
}

func (c *HTTPClient) resolve(path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(rel), nil
}

type ackPayload struct {
	Message string `json:"message"`
}

// decodeAck accepts a JSON {"message": ...} body and falls back to the raw
// text for anything else.
func decodeAck(body []byte, status int) domain.Ack {
	var payload ackPayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return domain.Ack{Message: payload.Message, Status: status}
	}
	return domain.Ack{Message: strings.TrimSpace(string(body)), Status: status}
}

func expand(template string, book domain.BookID) string {
	return strings.ReplaceAll(template, config.BookIDPlaceholder, url.PathEscape(string(book)))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
