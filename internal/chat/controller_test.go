package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"NewsletterChat/internal/backend"
	"NewsletterChat/internal/session"
	"NewsletterChat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend is a scriptable Backend that counts calls
type fakeBackend struct {
	mu      sync.Mutex
	creates int
	fetches int
	sends   int
	nextID  int

	createErr error
	fetchFn   func(ctx context.Context, id string) (session.Session, error)
	sendFn    func(ctx context.Context, sid string, msg session.Message) (session.Message, error)
	listFn    func(ctx context.Context) ([]session.Summary, error)
	renameErr error
	deleteErr error
	deleted   []string
}

func (f *fakeBackend) CreateSession(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	return fmt.Sprintf("new-%d", f.nextID), nil
}

func (f *fakeBackend) FetchSession(ctx context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	f.fetches++
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return session.Session{ID: id}, nil
	}
	return fn(ctx, id)
}

func (f *fakeBackend) ListSessions(ctx context.Context) ([]session.Summary, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx)
}

func (f *fakeBackend) RenameSession(context.Context, string, string) error {
	return f.renameErr
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, sid string, msg session.Message) (session.Message, error) {
	f.mu.Lock()
	f.sends++
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return session.Message{Speaker: session.SpeakerAssistant, Content: "echo: " + msg.Content, Timestamp: "2024-05-01T10:00:00"}, nil
	}
	return fn(ctx, sid, msg)
}

func (f *fakeBackend) counts() (creates, fetches, sends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.fetches, f.sends
}

var notFound = &backend.Error{Kind: backend.KindNotFound, Op: "fetch_session", StatusCode: 404}

func newController(t *testing.T, b Backend, st store.StateStore) *Controller {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewController(b, st, WithLogger(logger), WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return c
}

// ---------------------------------------------------------------------------
// NewController
// ---------------------------------------------------------------------------

func TestNewController_NilDependencies(t *testing.T) {
	_, err := NewController(nil, store.NewMemory(""))
	require.Error(t, err)
	_, err = NewController(&fakeBackend{}, nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Initialize
// ---------------------------------------------------------------------------

func TestInitialize_NoStoredSessionCreates(t *testing.T) {
	fb := &fakeBackend{}
	st := store.NewMemory("")
	c := newController(t, fb, st)

	require.NoError(t, c.Initialize(context.Background()))

	creates, fetches, _ := fb.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, fetches)
	assert.Equal(t, "new-1", c.SessionID())
	assert.Empty(t, c.Messages())

	stored, _ := st.CurrentSessionID(context.Background())
	assert.Equal(t, "new-1", stored)
}

func TestInitialize_RestoresStoredSession(t *testing.T) {
	fb := &fakeBackend{fetchFn: func(_ context.Context, id string) (session.Session, error) {
		return session.Session{ID: id, Messages: []session.Message{
			{Speaker: session.SpeakerUser, Content: "Hello"},
			{Speaker: session.SpeakerAssistant, Content: "Hi"},
		}}, nil
	}}
	c := newController(t, fb, store.NewMemory("s-1"))

	require.NoError(t, c.Initialize(context.Background()))

	creates, fetches, _ := fb.counts()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, "s-1", c.SessionID())
	assert.Len(t, c.Messages(), 2)
}

func TestInitialize_FetchFailureFallsBackToCreate(t *testing.T) {
	for name, fetchErr := range map[string]error{
		"not found": notFound,
		"transport": &backend.Error{Kind: backend.KindTransport, Op: "fetch_session", Err: errors.New("connection refused")},
	} {
		t.Run(name, func(t *testing.T) {
			fb := &fakeBackend{fetchFn: func(context.Context, string) (session.Session, error) {
				return session.Session{}, fetchErr
			}}
			st := store.NewMemory("stale")
			c := newController(t, fb, st)

			require.NoError(t, c.Initialize(context.Background()))

			creates, fetches, _ := fb.counts()
			assert.Equal(t, 1, fetches)
			assert.Equal(t, 1, creates)
			assert.Equal(t, "new-1", c.SessionID())
			assert.Nil(t, c.Err(), "restore failure is recovered silently")

			stored, _ := st.CurrentSessionID(context.Background())
			assert.Equal(t, "new-1", stored)
		})
	}
}

func TestInitialize_CreateFailureSurfacesError(t *testing.T) {
	fb := &fakeBackend{createErr: errors.New("backend down")}
	c := newController(t, fb, store.NewMemory(""))

	err := c.Initialize(context.Background())
	require.Error(t, err)
	require.NotNil(t, c.Err())
	assert.Contains(t, c.Err().Message, "backend down")
	assert.Empty(t, c.SessionID())

	c.DismissError()
	assert.Nil(t, c.Err())
}

// ---------------------------------------------------------------------------
// SendMessage
// ---------------------------------------------------------------------------

func TestSendMessage_RejectsBlankInput(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.SendMessage(context.Background(), text)
		require.ErrorIs(t, err, ErrEmptyMessage)
	}

	_, _, sends := fb.counts()
	assert.Equal(t, 0, sends)
	assert.Empty(t, c.Messages())
}

func TestSendMessage_AppendsUserThenReply(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	reply, err := c.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello", reply.Content)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.SpeakerUser, msgs[0].Speaker)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "2024-05-01T10:00:00Z", msgs[0].Timestamp)
	assert.NotEmpty(t, msgs[0].Metadata[MetadataClientID])
	assert.Equal(t, session.SpeakerAssistant, msgs[1].Speaker)
	assert.Equal(t, "echo: Hello", msgs[1].Content)
	assert.NotNil(t, msgs[1].Metadata)
}

func TestSendMessage_DefaultsMissingReplyFields(t *testing.T) {
	fb := &fakeBackend{sendFn: func(context.Context, string, session.Message) (session.Message, error) {
		return session.Message{Content: "bare"}, nil
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)

	last := c.Messages()[1]
	assert.Equal(t, session.SpeakerAssistant, last.Speaker)
	assert.Equal(t, "2024-05-01T10:00:00Z", last.Timestamp)
	assert.Equal(t, map[string]any{}, last.Metadata)
}

func TestSendMessage_FailureKeepsUserEntry(t *testing.T) {
	fb := &fakeBackend{sendFn: func(context.Context, string, session.Message) (session.Message, error) {
		return session.Message{}, errors.New("timeout")
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.SendMessage(context.Background(), "Hello")
	require.Error(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.True(t, msgs[1].IsError())
	assert.Equal(t, session.SpeakerAssistant, msgs[1].Speaker)
	require.NotNil(t, c.Err())
	assert.Contains(t, c.Err().Message, "timeout")
}

func TestSendMessage_NoSession(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(""))
	_, err := c.SendMessage(context.Background(), "Hello")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSendMessage_ConcurrentSendsStayPaired(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.SendMessage(context.Background(), fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs := c.Messages()
	require.Len(t, msgs, 10)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, session.SpeakerUser, msgs[i].Speaker)
		assert.Equal(t, "echo: "+msgs[i].Content, msgs[i+1].Content)
	}
	assert.False(t, c.Busy())
}

func TestSendMessage_BusyWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fb := &fakeBackend{sendFn: func(context.Context, string, session.Message) (session.Message, error) {
		close(started)
		<-release
		return session.Message{Speaker: session.SpeakerAssistant, Content: "ok"}, nil
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SendMessage(context.Background(), "Hello")
	}()

	<-started
	assert.True(t, c.Busy())
	assert.Len(t, c.Messages(), 1, "user entry is visible before the reply arrives")
	close(release)
	<-done
	assert.False(t, c.Busy())
	assert.Len(t, c.Messages(), 2)
}

func TestSendMessage_ReplyForLeftSessionIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fb := &fakeBackend{sendFn: func(context.Context, string, session.Message) (session.Message, error) {
		close(started)
		<-release
		return session.Message{Speaker: session.SpeakerAssistant, Content: "late"}, nil
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SendMessage(context.Background(), "Hello")
	}()
	<-started

	require.NoError(t, c.SwitchSession(context.Background(), "other"))
	close(release)
	<-done

	assert.Equal(t, "other", c.SessionID())
	assert.Empty(t, c.Messages())
}

// ---------------------------------------------------------------------------
// SwitchSession
// ---------------------------------------------------------------------------

func TestSwitchSession(t *testing.T) {
	fb := &fakeBackend{fetchFn: func(_ context.Context, id string) (session.Session, error) {
		return session.Session{ID: id, Messages: []session.Message{{Speaker: session.SpeakerUser, Content: id}}}, nil
	}}
	st := store.NewMemory("")
	c := newController(t, fb, st)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.SwitchSession(context.Background(), "s-2"))
	assert.Equal(t, "s-2", c.SessionID())
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, "s-2", c.Messages()[0].Content)

	stored, _ := st.CurrentSessionID(context.Background())
	assert.Equal(t, "s-2", stored)
}

func TestSwitchSession_StaleResponseDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	slowStarted := make(chan struct{})
	fb := &fakeBackend{fetchFn: func(_ context.Context, id string) (session.Session, error) {
		if id == "slow" {
			close(slowStarted)
			<-slowRelease
		}
		return session.Session{ID: id, Messages: []session.Message{{Content: id}}}, nil
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	slowErr := make(chan error, 1)
	go func() {
		slowErr <- c.SwitchSession(context.Background(), "slow")
	}()
	<-slowStarted

	require.NoError(t, c.SwitchSession(context.Background(), "fast"))
	close(slowRelease)

	require.ErrorIs(t, <-slowErr, ErrStale)
	assert.Equal(t, "fast", c.SessionID())
	assert.Equal(t, "fast", c.Messages()[0].Content)
}

func TestSwitchSession_FailureLeavesStateAlone(t *testing.T) {
	fb := &fakeBackend{fetchFn: func(context.Context, string) (session.Session, error) {
		return session.Session{}, notFound
	}}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))
	_, err := c.SendMessage(context.Background(), "keep me")
	require.NoError(t, err)

	err = c.SwitchSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, backend.IsNotFound(err))
	assert.Equal(t, "new-1", c.SessionID())
	assert.Len(t, c.Messages(), 2)
	assert.NotNil(t, c.Err())
}

func TestSwitchSession_BlankID(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(""))
	require.ErrorIs(t, c.SwitchSession(context.Background(), " "), ErrNoSession)
}

// ---------------------------------------------------------------------------
// CreateSession / RenameSession / DeleteSession
// ---------------------------------------------------------------------------

func TestCreateSession_ClearsMessages(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))
	_, err := c.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)

	require.NoError(t, c.CreateSession(context.Background()))
	assert.Equal(t, "new-2", c.SessionID())
	assert.Empty(t, c.Messages())
}

func TestRenameSession(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	require.ErrorIs(t, c.RenameSession(context.Background(), "new-1", "  "), ErrEmptyTitle)
	require.NoError(t, c.RenameSession(context.Background(), "new-1", "Q2 letter"))

	fb.renameErr = errors.New("forbidden")
	require.Error(t, c.RenameSession(context.Background(), "new-1", "Q3 letter"))
	assert.Equal(t, "new-1", c.SessionID())
	require.NotNil(t, c.Err())
	assert.Contains(t, c.Err().Message, "Failed to rename session")
}

func TestDeleteSession_OtherSession(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.DeleteSession(context.Background(), "old"))
	assert.Equal(t, []string{"old"}, fb.deleted)
	assert.Equal(t, "new-1", c.SessionID())
}

func TestDeleteSession_CurrentSessionStartsFresh(t *testing.T) {
	fb := &fakeBackend{}
	st := store.NewMemory("")
	c := newController(t, fb, st)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.DeleteSession(context.Background(), "new-1"))
	assert.Equal(t, "new-2", c.SessionID())
	stored, _ := st.CurrentSessionID(context.Background())
	assert.Equal(t, "new-2", stored)
}

func TestDeleteSession_CurrentThenCreateFails(t *testing.T) {
	fb := &fakeBackend{}
	st := store.NewMemory("")
	c := newController(t, fb, st)
	require.NoError(t, c.Initialize(context.Background()))

	fb.mu.Lock()
	fb.createErr = errors.New("backend down")
	fb.mu.Unlock()

	err := c.DeleteSession(context.Background(), "new-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleted session new-1")
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, []string{"new-1"}, fb.deleted)

	assert.Empty(t, c.SessionID(), "deleted session is no longer current")
	assert.Empty(t, c.Messages())
	stored, _ := st.CurrentSessionID(context.Background())
	assert.Empty(t, stored)
	require.NotNil(t, c.Err())

	_, err = c.SendMessage(context.Background(), "Hello")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestDeleteSession_FailureLeavesCurrent(t *testing.T) {
	fb := &fakeBackend{deleteErr: errors.New("nope")}
	c := newController(t, fb, store.NewMemory(""))
	require.NoError(t, c.Initialize(context.Background()))

	require.Error(t, c.DeleteSession(context.Background(), "new-1"))
	assert.Equal(t, "new-1", c.SessionID())
	assert.NotNil(t, c.Err())
}

// ---------------------------------------------------------------------------
// ListSessions
// ---------------------------------------------------------------------------

func TestListSessions(t *testing.T) {
	want := []session.Summary{{ID: "a"}, {ID: "b"}}
	fb := &fakeBackend{listFn: func(context.Context) ([]session.Summary, error) { return want, nil }}
	c := newController(t, fb, store.NewMemory(""))

	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestListSessions_NilIsEmpty(t *testing.T) {
	c := newController(t, &fakeBackend{}, store.NewMemory(""))
	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListSessions_MalformedIsEmptyState(t *testing.T) {
	fb := &fakeBackend{listFn: func(context.Context) ([]session.Summary, error) {
		return nil, &backend.Error{Kind: backend.KindMalformed, Op: "list_sessions", Err: errors.New("bad json")}
	}}
	c := newController(t, fb, store.NewMemory(""))

	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, c.Err())
}

func TestListSessions_TransportFailure(t *testing.T) {
	fb := &fakeBackend{listFn: func(context.Context) ([]session.Summary, error) {
		return nil, &backend.Error{Kind: backend.KindTransport, Op: "list_sessions", Err: errors.New("refused")}
	}}
	c := newController(t, fb, store.NewMemory(""))

	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	require.NotNil(t, c.Err())
	assert.Contains(t, c.Err().Message, "Failed to load previous sessions")
}
