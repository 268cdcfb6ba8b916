// Package gateway mediates every call to the activity backend: it attaches the credential,
// detects invalidation, enforces the call timeout and maps failures onto the domain error taxonomy.
//
// Call metrics register on the default prometheus registry and are only recorded here.
// Exporting them is up to the embedding process; fitnessctl writes them with --metrics-file.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/fitnessclient/internal/credential"
	"example.com/fitnessclient/internal/domain"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 10 * time.Second

const (
	opListActivities    = "list_activities"
	opCreateActivity    = "create_activity"
	opGetRecommendation = "get_recommendation"

	maxErrorBody = 4 << 10
)

// Client exposes the three typed backend operations.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Entry
}

type clientOptions struct {
	timeout        time.Duration
	transport      http.RoundTripper
	invalidator    Invalidator
	navigator      Navigator
	entryPoint     string
	logger         *logrus.Entry
	requestStages  []RequestStage
	responseStages []ResponseStage
}

// Option customises the Client.
type Option func(*clientOptions)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		if rt != nil {
			o.transport = rt
		}
	}
}

// WithInvalidator sets who is told when the backend rejects the credential.
func WithInvalidator(inv Invalidator) Option {
	return func(o *clientOptions) {
		o.invalidator = inv
	}
}

// WithNavigator sets where the application is sent after an invalidation.
func WithNavigator(nav Navigator, entryPoint string) Option {
	return func(o *clientOptions) {
		o.navigator = nav
		o.entryPoint = entryPoint
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRequestStages appends stages that run after the built-in request stages.
func WithRequestStages(stages ...RequestStage) Option {
	return func(o *clientOptions) {
		o.requestStages = append(o.requestStages, stages...)
	}
}

// WithResponseStages appends stages that run after the built-in response stages.
func WithResponseStages(stages ...ResponseStage) Option {
	return func(o *clientOptions) {
		o.responseStages = append(o.responseStages, stages...)
	}
}

// NewClient builds a Client rooted at baseURL, e.g. http://localhost:8080/api.
func NewClient(baseURL string, store credential.Store, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base url %q", baseURL)
	}
	if store == nil {
		return nil, errors.New("gateway: credential store is required")
	}

	o := clientOptions{
		timeout:    DefaultTimeout,
		transport:  http.DefaultTransport,
		entryPoint: "/",
		logger:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithField("component", "gateway")

	before := append([]RequestStage{StampRequest, AttachCredential(store, logger)}, o.requestStages...)
	after := append([]ResponseStage{RejectUnauthorized(store, o.invalidator, o.navigator, o.entryPoint, logger)}, o.responseStages...)

	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http: &http.Client{
			Timeout:   o.timeout,
			Transport: &pipeline{next: o.transport, before: before, after: after},
		},
		logger: logger,
	}, nil
}

// ListActivities fetches GET /activities.
func (c *Client) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	var raw json.RawMessage
	if err := c.do(ctx, opListActivities, http.MethodGet, "/activities", nil, &raw, nil); err != nil {
		return nil, err
	}
	activities, err := decodeActivityList(raw)
	if err != nil {
		return nil, fmt.Errorf("list activities: decode: %w", err)
	}
	return activities, nil
}

// CreateActivity posts a new activity after validating it locally.
func (c *Client) CreateActivity(ctx context.Context, in domain.CreateActivityInput) (*domain.Activity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var created domain.Activity
	if err := c.do(ctx, opCreateActivity, http.MethodPost, "/activities", in, &created, nil); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetActivityRecommendation fetches GET /recommendations/activity/{id}.
func (c *Client) GetActivityRecommendation(ctx context.Context, id string) (*domain.Activity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.MissingField("id")
	}
	notFound := &domain.NotFoundError{Resource: "recommendation", ID: id}
	var detail domain.Activity
	if err := c.do(ctx, opGetRecommendation, http.MethodGet, "/recommendations/activity/"+url.PathEscape(id), nil, &detail, notFound); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = id
	}
	return &detail, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, notFound *domain.NotFoundError) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}

	started := time.Now()
	entry := c.logger.WithFields(logrus.Fields{"operation": op, "method": method, "path": path})

	resp, err := c.http.Do(req)
	if err != nil {
		classified := classifyTransportError(method+" "+path, err)
		outcome := string(domain.KindOf(classified))
		recordRequest(op, outcome, time.Since(started))
		entry.WithError(err).WithField("outcome", outcome).Warn("backend call failed")
		return classified
	}
	defer resp.Body.Close()

	entry = entry.WithFields(logrus.Fields{"status": resp.StatusCode, "request_id": resp.Request.Header.Get(HeaderRequestID)})
	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := classifyStatus(resp, notFound)
		recordRequest(op, string(domain.KindOf(statusErr)), time.Since(started))
		entry.WithError(statusErr).Warn("backend returned an error status")
		return statusErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if isTimeout(err) {
				recordRequest(op, string(domain.KindTimeout), time.Since(started))
				return &domain.NetworkError{Kind: domain.KindTimeout, Op: method + " " + path, Err: err}
			}
			recordRequest(op, "decode_error", time.Since(started))
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	recordRequest(op, "success", time.Since(started))
	entry.WithField("elapsed", time.Since(started)).Debug("backend call succeeded")
	return nil
}

func classifyTransportError(op string, err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if isTimeout(err) {
		return &domain.NetworkError{Kind: domain.KindTimeout, Op: op, Err: err}
	}
	return &domain.NetworkError{Kind: domain.KindConnectionFailed, Op: op, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func classifyStatus(resp *http.Response, notFound *domain.NotFoundError) error {
	detail := readErrorDetail(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		if notFound != nil {
			copied := *notFound
			return &copied
		}
		return &domain.NotFoundError{Resource: strings.TrimPrefix(resp.Request.URL.Path, "/")}
	}
	return &domain.ServerError{Status: resp.StatusCode, Body: detail}
}

// readErrorDetail extracts the "detail" of an error envelope, falling back to the raw body.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		if envelope.Detail != "" {
			return envelope.Detail
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// decodeActivityList accepts a bare array or a paged envelope ({"items": [...]} or {"content": [...]}).
func decodeActivityList(raw json.RawMessage) ([]domain.Activity, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.Activity{}, nil
	}
	if trimmed[0] == '[' {
		var list []domain.Activity
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var envelope struct {
		Items   []domain.Activity `json:"items"`
		Content []domain.Activity `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Items != nil {
		return envelope.Items, nil
	}
	if envelope.Content != nil {
		return envelope.Content, nil
	}
	return []domain.Activity{}, nil
}
