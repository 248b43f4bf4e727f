package transport

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-sync/internal/config"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/observability"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(context.Context) (string, bool) { return s.token, s.token != "" }

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.frames:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.TextMessage {
		f.writes = append(f.writes, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	fail  bool
}

func (d *fakeDialer) DialContext(_ context.Context, u string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, u)
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	fn      func()
	delay   time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: f, delay: d}
	s.timers = append(s.timers, t)
	return t
}

// fireNext runs the oldest timer that has not been stopped.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped {
			next = t
			break
		}
	}
	if next != nil {
		next.stopped = true
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.fn()
	return true
}

func (s *fakeScheduler) all() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTimer(nil), s.timers...)
}

func newTestClient(t *testing.T, token string) (*Client, *fakeDialer, *fakeScheduler, *observability.Metrics) {
	t.Helper()
	dialer := &fakeDialer{}
	sched := &fakeScheduler{}
	metrics := observability.NewMetrics()
	cfg := config.RealtimeConfig{
		Endpoint:              "wss://rt.example.edu/prod",
		MaxReconnectAttempts:  DefaultMaxReconnectAttempts,
		ReconnectDelaySeconds: 3,
	}
	c := NewClient(cfg, staticTokens{token: token}, nil, nil, metrics,
		WithDialer(dialer), WithScheduler(sched))
	t.Cleanup(c.Disconnect)
	return c, dialer, sched, metrics
}

func TestClient_ConnectBuildsTokenURL(t *testing.T) {
	c, dialer, _, _ := newTestClient(t, "a b/c")

	c.Connect(context.Background())
	c.Connect(context.Background())

	require.Equal(t, 1, dialer.dials())
	u, err := url.Parse(dialer.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "a b/c", u.Query().Get("token"))
	assert.Equal(t, "/prod", u.Path)
	assert.True(t, c.IsConnected())
	assert.Equal(t, StateOpen, c.State())
}

func TestClient_ConnectWithoutTokenIsSilent(t *testing.T) {
	c, dialer, sched, _ := newTestClient(t, "")

	c.Connect(context.Background())

	assert.Equal(t, 0, dialer.dials())
	assert.Empty(t, sched.all())
	assert.Equal(t, StateIdle, c.State())
}

func TestClient_ReconnectBound(t *testing.T) {
	c, dialer, sched, metrics := newTestClient(t, "tok")
	dialer.fail = true

	c.Connect(context.Background())
	for sched.fireNext() {
	}

	assert.Equal(t, 6, dialer.dials())
	assert.Len(t, sched.all(), 5)
	assert.Equal(t, int64(5), metrics.Count(observability.ReconnectAttempts))
	for _, timer := range sched.all() {
		assert.Equal(t, 3*time.Second, timer.delay)
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_OpenResetsAttempts(t *testing.T) {
	c, dialer, sched, _ := newTestClient(t, "tok")
	dialer.fail = true
	c.Connect(context.Background())
	require.True(t, sched.fireNext())
	require.Equal(t, 2, c.Attempts())

	dialer.mu.Lock()
	dialer.fail = false
	dialer.mu.Unlock()
	require.True(t, sched.fireNext())
	assert.True(t, c.IsConnected())
	assert.Equal(t, 0, c.Attempts())
}

func TestClient_DisconnectCancelsPendingReconnect(t *testing.T) {
	c, dialer, sched, _ := newTestClient(t, "tok")
	dialer.fail = true
	c.Connect(context.Background())
	timers := sched.all()
	require.Len(t, timers, 1)

	c.Disconnect()
	assert.True(t, timers[0].stopped)

	// the timer already fired before Stop took effect
	timers[0].fn()
	assert.Equal(t, 1, dialer.dials())
	assert.Equal(t, StateClosed, c.State())

	c.Connect(context.Background())
	assert.Equal(t, 1, dialer.dials())
}

func TestClient_SendWhileClosedIsSilent(t *testing.T) {
	c, dialer, _, _ := newTestClient(t, "tok")

	assert.NotPanics(t, func() {
		assert.NoError(t, c.Send(map[string]string{"action": "SolvedIncident"}))
	})
	assert.Equal(t, 0, dialer.dials())

	c.Connect(context.Background())
	conn := dialer.last()
	require.NoError(t, c.Send(map[string]string{"action": "SolvedIncident"}))
	require.Len(t, conn.written(), 1)
	assert.JSONEq(t, `{"action":"SolvedIncident"}`, string(conn.written()[0]))

	c.Disconnect()
	require.NoError(t, c.Send(map[string]string{"action": "SolvedIncident"}))
	assert.Len(t, conn.written(), 1)
}

func TestClient_DispatchesFramesInOrder(t *testing.T) {
	c, dialer, _, metrics := newTestClient(t, "tok")

	var mu sync.Mutex
	var got []string
	record := func(prefix string) events.Handler {
		return events.NewHandler(func(_ context.Context, evt events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, prefix+":"+string(evt.Payload))
			return nil
		})
	}
	solved := record("solved")
	c.On(events.EventSolvedIncident, solved)
	c.On(events.EventSolvedIncident, solved)
	c.On(events.EventMessage, record("message"))
	c.On(events.EventNewIncident, events.NewHandler(func(context.Context, events.Event) error {
		panic("view crashed")
	}))

	c.Connect(context.Background())
	conn := dialer.last()
	conn.frames <- []byte(`{"action":"SolvedIncident","data":{"UUID":"1"}}`)
	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`{"action":"NewIncident","UUID":"2"}`)
	conn.frames <- []byte(`{"hello":"world"}`)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		`solved:{"UUID":"1"}`,
		`message:{"action":"SolvedIncident","data":{"UUID":"1"}}`,
		`message:{"action":"NewIncident","UUID":"2"}`,
		`message:{"hello":"world"}`,
	}, got)
	assert.Equal(t, int64(1), metrics.Count(observability.FramesDropped))
	assert.Equal(t, int64(1), metrics.Count(observability.HandlerPanics))
}

func TestClient_ServerCloseSchedulesReconnect(t *testing.T) {
	c, dialer, sched, _ := newTestClient(t, "tok")
	c.Connect(context.Background())
	first := dialer.last()

	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, c.Attempts())

	require.True(t, sched.fireNext())
	assert.True(t, c.IsConnected())
	assert.Equal(t, 2, dialer.dials())
}

func TestClient_DisconnectClearsSubscribers(t *testing.T) {
	c, _, _, _ := newTestClient(t, "tok")
	called := false
	c.On(events.EventNewIncident, events.NewHandler(func(context.Context, events.Event) error {
		called = true
		return nil
	}))
	c.Connect(context.Background())

	c.Disconnect()
	require.NoError(t, c.Events().Publish(context.Background(), events.Event{Type: events.EventNewIncident}))
	assert.False(t, called)
}
