package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"NewsletterChat/internal/session"
)

const instrumentationName = "NewsletterChat/internal/backend"

// Client talks to the newsletter builder REST API
type Client struct {
	http        *resty.Client
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	duration    metric.Float64Histogram
	createPaths []string
}

type Option func(*Client)

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout bounds every request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithTracer overrides the global tracer provider
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMeter overrides the global meter provider
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) {
		c.meter = meter
	}
}

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

// New creates a Client for the backend at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("backend: invalid base URL %q", baseURL)
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		logger:      slog.Default(),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
		createPaths: []string{"/session/start", "/session"},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.duration, err = c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Backend request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("backend: failed to create duration histogram: %w", err)
	}
	return c, nil
}

// BaseURL returns the backend address requests are sent to
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// CreateSession asks the backend for a new session id. Backends that only
// expose POST /session are handled by falling through to it when
// /session/start is missing.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var lastErr error
	for _, path := range c.createPaths {
		var out createSessionResponse
		err := c.do(ctx, "create_session", http.MethodPost, path, nil, nil, &out)
		if err != nil {
			lastErr = err
			var be *Error
			if errors.As(err, &be) && (be.Kind == KindNotFound || be.StatusCode == http.StatusMethodNotAllowed) {
				continue
			}
			return "", err
		}
		if out.SessionID == "" {
			return "", &Error{Kind: KindMalformed, Op: "create_session", Err: errors.New("missing session_id")}
		}
		return out.SessionID, nil
	}
	return "", lastErr
}

// FetchSession returns a session with its full history
func (c *Client) FetchSession(ctx context.Context, id string) (session.Session, error) {
	var out sessionResponse
	if err := c.do(ctx, "fetch_session", http.MethodGet, "/session/{id}", pathID(id), nil, &out); err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:       id,
		Title:    out.Title,
		Messages: toMessages(out.history()),
	}
	if created, ok := session.ParseTimestamp(out.CreatedAt); ok {
		sess.CreatedAt = created
	}
	return sess, nil
}

// ListSessions returns summaries of every session, newest first. The body
// may be either {"sessions": [...]} or a bare array.
func (c *Client) ListSessions(ctx context.Context) ([]session.Summary, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list_sessions", http.MethodGet, "/sessions", nil, nil, &raw); err != nil {
		return nil, err
	}

	entries, err := decodeSessionList(raw)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: "list_sessions", Err: err}
	}

	summaries := make([]session.Summary, 0, len(entries))
	for _, e := range entries {
		id := e.SessionID
		if id == "" {
			id = e.ID
		}
		if id == "" {
			continue
		}
		sum := session.Summary{ID: id, Title: e.Title, Preview: e.Preview}
		if sum.Preview == "" {
			history := e.Messages
			if len(history) == 0 {
				history = e.ChatHistory
			}
			sum.Preview = session.Preview(toMessages(history))
		}
		if created, ok := session.ParseTimestamp(e.CreatedAt); ok {
			sum.CreatedAt = created
		}
		summaries = append(summaries, sum)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// RenameSession sets the user-visible title of a session
func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	return c.do(ctx, "rename_session", http.MethodPatch, "/session/{id}", pathID(id), renameRequest{Title: title}, nil)
}

// DeleteSession removes a session on the backend
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, "/session/{id}", pathID(id), nil, nil)
}

// SendMessage posts a user message and returns the generated reply
func (c *Client) SendMessage(ctx context.Context, sessionID string, msg session.Message) (session.Message, error) {
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	req := wireMessage{
		SessionID: sessionID,
		Speaker:   string(msg.Speaker),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		Metadata:  metadata,
	}

	var out wireMessage
	if err := c.do(ctx, "send_message", http.MethodPost, "/message", nil, req, &out); err != nil {
		return session.Message{}, err
	}
	if out.Content == "" && out.Speaker == "" {
		return session.Message{}, &Error{Kind: KindMalformed, Op: "send_message", Err: errors.New("reply has no speaker or content")}
	}
	return toMessage(out), nil
}

// Health reads one of the health endpoints, e.g. "/health" or "/health/openai"
func (c *Client) Health(ctx context.Context, path string) (HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, "health", http.MethodGet, path, nil, nil, &out); err != nil {
		return HealthStatus{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, params map[string]string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	requestID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.template", path),
		attribute.String("request.id", requestID),
	)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID)
	if params != nil {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("op", op)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn("backend request failed", "op", op, "request_id", requestID, "error", err)
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	c.logger.Debug("backend request", "op", op, "status", status, "request_id", requestID, "duration_ms", elapsed.Milliseconds())

	if status < 200 || status >= 300 {
		span.SetStatus(codes.Error, resp.Status())
		kind := KindStatus
		if status == http.StatusNotFound {
			kind = KindNotFound
		}
		return &Error{Kind: kind, Op: op, StatusCode: status, Detail: errorDetail(resp.Body())}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response")
		return &Error{Kind: KindMalformed, Op: op, StatusCode: status, Err: err}
	}
	return nil
}

func pathID(id string) map[string]string {
	return map[string]string{"id": id}
}

func decodeSessionList(raw json.RawMessage) ([]sessionListEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return nil, nil
	case trimmed[0] == '[':
		var entries []sessionListEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case trimmed[0] == '{':
		var wrapped sessionListResponse
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Sessions, nil
	}
	return nil, fmt.Errorf("unexpected session list payload starting with %q", trimmed[0])
}

func toMessage(w wireMessage) session.Message {
	speaker := session.Speaker(w.Speaker)
	if speaker == "" {
		speaker = session.SpeakerAssistant
	}
	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return session.Message{
		Speaker:   speaker,
		Content:   w.Content,
		Timestamp: w.Timestamp,
		Metadata:  metadata,
	}
}

func toMessages(ws []wireMessage) []session.Message {
	msgs := make([]session.Message, 0, len(ws))
	for _, w := range ws {
		msgs = append(msgs, toMessage(w))
	}
	return msgs
}

func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var env errorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Detail != nil {
		if s, ok := env.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(env.Detail); err == nil {
			return string(b)
		}
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return strings.TrimSpace(string(body))
}
