// Package chat owns the conversation on screen: which session is current,
// its message history, and the exchanges that grow it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"NewsletterChat/internal/backend"
	"NewsletterChat/internal/session"
	"NewsletterChat/internal/store"
)

// MetadataClientID carries the client-generated id of a user message
const MetadataClientID = "client_message_id"

// Backend is the subset of the REST API the controller needs
type Backend interface {
	CreateSession(ctx context.Context) (string, error)
	FetchSession(ctx context.Context, id string) (session.Session, error)
	ListSessions(ctx context.Context) ([]session.Summary, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	SendMessage(ctx context.Context, sessionID string, msg session.Message) (session.Message, error)
}

// Controller coordinates the current session with the backend
type Controller struct {
	backend Backend
	store   store.StateStore
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	state      session.State
	lastErr    *ErrorState
	generation uint64

	sendMu   sync.Mutex
	inFlight atomic.Int32
}

type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a Controller. Call Initialize before use.
func NewController(b Backend, st store.StateStore, opts ...Option) (*Controller, error) {
	if b == nil {
		return nil, errors.New("chat: backend must not be nil")
	}
	if st == nil {
		return nil, errors.New("chat: state store must not be nil")
	}
	c := &Controller{
		backend: b,
		store:   st,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize restores the stored session, or creates a new one when
// nothing is stored or the stored session cannot be loaded.
func (c *Controller) Initialize(ctx context.Context) error {
	gen := c.begin()

	stored, err := c.store.CurrentSessionID(ctx)
	if err != nil {
		c.logger.Warn("failed to read stored session", "error", err)
		stored = ""
	}

	if stored != "" {
		sess, err := c.backend.FetchSession(ctx, stored)
		if err == nil {
			if !c.apply(gen, session.Loaded{SessionID: stored, Messages: sess.Messages}) {
				return ErrStale
			}
			c.persist(ctx, stored)
			c.logger.Info("restored session", "session_id", stored, "message_count", len(sess.Messages))
			return nil
		}
		c.logger.Warn("failed to restore session, creating new one", "session_id", stored, "error", err)
	}

	return c.create(ctx, gen)
}

// CreateSession starts a new, empty session and makes it current
func (c *Controller) CreateSession(ctx context.Context) error {
	return c.create(ctx, c.begin())
}

// SwitchSession loads id and makes it current. If another load started
// while this one was in flight, the result is discarded and ErrStale
// returned.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoSession
	}
	gen := c.begin()

	sess, err := c.backend.FetchSession(ctx, id)
	if err != nil {
		if c.isLatest(gen) {
			c.fail("Failed to load session", err)
		}
		return fmt.Errorf("failed to switch session: %w", err)
	}

	if !c.apply(gen, session.Loaded{SessionID: id, Messages: sess.Messages}) {
		c.logger.Debug("discarding stale session load", "session_id", id)
		return ErrStale
	}
	c.persist(ctx, id)
	c.logger.Info("switched session", "session_id", id, "message_count", len(sess.Messages))
	return nil
}

// RenameSession sets the title of a session. The current session is unaffected.
func (c *Controller) RenameSession(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if err := c.backend.RenameSession(ctx, id, title); err != nil {
		c.fail("Failed to rename session", err)
		return fmt.Errorf("failed to rename session: %w", err)
	}
	c.logger.Info("renamed session", "session_id", id)
	return nil
}

// DeleteSession removes a session. Deleting the current session moves the
// user to a fresh one.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		c.fail("Failed to delete session", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	c.logger.Info("deleted session", "session_id", id)

	if id != c.SessionID() {
		return nil
	}
	err := c.CreateSession(ctx)
	if err == nil || errors.Is(err, ErrStale) {
		return nil
	}
	// the deleted id must not stay current
	c.apply(c.begin(), session.Reset{SessionID: ""})
	c.persist(ctx, "")
	return fmt.Errorf("deleted session %s but failed to start a new one: %w", id, err)
}

// SendMessage appends the user's message immediately, submits it and
// appends the reply. On failure a synthetic assistant message describing
// the error is appended instead. Concurrent calls are queued so replies
// always follow their own message.
func (c *Controller) SendMessage(ctx context.Context, text string) (session.Message, error) {
	if strings.TrimSpace(text) == "" {
		return session.Message{}, ErrEmptyMessage
	}

	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	sid := c.SessionID()
	if sid == "" {
		return session.Message{}, ErrNoSession
	}

	msg := session.Message{
		Speaker:   session.SpeakerUser,
		Content:   text,
		Timestamp: c.timestamp(),
		Metadata:  map[string]any{MetadataClientID: uuid.NewString()},
	}
	c.dispatch(session.UserSent{SessionID: sid, Message: msg})

	reply, err := c.backend.SendMessage(ctx, sid, msg)
	if err != nil {
		c.dispatch(session.ReplyFailed{SessionID: sid, Err: err, Timestamp: c.timestamp()})
		c.fail("Failed to send message", err)
		return session.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	if reply.Speaker == "" {
		reply.Speaker = session.SpeakerAssistant
	}
	if reply.Timestamp == "" {
		reply.Timestamp = c.timestamp()
	}
	c.dispatch(session.ReplyReceived{SessionID: sid, Message: reply})
	return reply, nil
}

// ListSessions returns summaries of previous sessions. A body the backend
// got wrong yields an empty list rather than an error.
func (c *Controller) ListSessions(ctx context.Context) ([]session.Summary, error) {
	list, err := c.backend.ListSessions(ctx)
	if err != nil {
		if backend.IsMalformed(err) {
			c.logger.Warn("ignoring malformed session list", "error", err)
			return []session.Summary{}, nil
		}
		c.fail("Failed to load previous sessions", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if list == nil {
		list = []session.Summary{}
	}
	return list, nil
}

// SessionID returns the current session id
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID
}

// Messages returns a copy of the current message list
func (c *Controller) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]session.Message, len(c.state.Messages))
	copy(msgs, c.state.Messages)
	return msgs
}

// Busy reports whether a message exchange is in flight
func (c *Controller) Busy() bool {
	return c.inFlight.Load() > 0
}

// Err returns the current error banner, or nil
func (c *Controller) Err() *ErrorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return nil
	}
	e := *c.lastErr
	return &e
}

// DismissError clears the error banner
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *Controller) create(ctx context.Context, gen uint64) error {
	id, err := c.backend.CreateSession(ctx)
	if err != nil {
		c.fail("Failed to start a new session", err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !c.apply(gen, session.Reset{SessionID: id}) {
		return ErrStale
	}
	c.persist(ctx, id)
	c.logger.Info("created new session", "session_id", id)
	return nil
}

// begin starts a session load and returns its generation
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

func (c *Controller) isLatest(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

// apply reduces a only if gen is still the latest session load
func (c *Controller) apply(gen uint64, a session.Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.state = session.Reduce(c.state, a)
	return true
}

func (c *Controller) dispatch(a session.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = session.Reduce(c.state, a)
}

func (c *Controller) persist(ctx context.Context, id string) {
	if err := c.store.SetCurrentSessionID(ctx, id); err != nil {
		c.logger.Warn("failed to persist current session", "session_id", id, "error", err)
	}
}

func (c *Controller) fail(what string, err error) {
	c.logger.Error(strings.ToLower(what), "error", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = &ErrorState{Message: fmt.Sprintf("%s: %v", what, err), At: c.now()}
}

func (c *Controller) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
