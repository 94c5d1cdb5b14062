// Package realtimetest provides in-memory transport and scheduler fakes for
// driving a realtime.Manager in tests.
package realtimetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/realtime"
)

var (
	ErrRefused = errors.New("connection refused")
	ErrClosed  = errors.New("use of closed connection")
)

type timer struct {
	s       *Scheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Scheduler never fires on its own. Tests advance it with FireNext.
type Scheduler struct {
	mu     sync.Mutex
	timers []*timer
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) realtime.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &timer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Delays lists the delay of every timer ever scheduled, in order.
func (s *Scheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.d)
	}
	return out
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// FireNext runs the oldest pending timer on the calling goroutine and
// reports whether there was one.
func (s *Scheduler) FireNext() bool {
	s.mu.Lock()
	var next *timer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next == nil {
		s.mu.Unlock()
		return false
	}
	next.fired = true
	s.mu.Unlock()

	next.f()
	return true
}

// Result is one queued Dial outcome.
type Result struct {
	Conn *Conn
	Err  error
}

// Dialer hands out queued results and refuses once the queue is empty.
type Dialer struct {
	mu      sync.Mutex
	results []Result
	tokens  []string
}

func (d *Dialer) Queue(results ...Result) {
	d.mu.Lock()
	d.results = append(d.results, results...)
	d.mu.Unlock()
}

func (d *Dialer) Dial(_ context.Context, _ string, token string) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if len(d.results) == 0 {
		return nil, ErrRefused
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Conn, nil
}

func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Tokens lists the token passed to every Dial call.
func (d *Dialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// Conn is an in-memory duplex channel. Push feeds inbound frames; Close
// makes the pending read fail as a dropped socket would.
type Conn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []string
}

func NewConn() *Conn {
	return &Conn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *Conn) Push(frame string) { c.in <- []byte(frame) }

func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *Conn) WriteMessage(frame []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, string(frame))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Frames returns every frame written so far.
func (c *Conn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Env bundles a manager with the fakes behind it.
type Env struct {
	Manager   *realtime.Manager
	Dialer    *Dialer
	Scheduler *Scheduler
}

// New builds a manager on fakes. The manager is disconnected on cleanup.
func New(t testing.TB) *Env {
	t.Helper()
	env := &Env{Dialer: &Dialer{}, Scheduler: &Scheduler{}}
	env.Manager = realtime.NewManager(realtime.Options{
		URL:       "ws://backend.test/ws",
		Dialer:    env.Dialer,
		Scheduler: env.Scheduler,
	})
	t.Cleanup(env.Manager.Disconnect)
	return env
}

// Connected builds a manager that already holds a live Conn.
func Connected(t testing.TB) (*Env, *Conn) {
	t.Helper()
	env := New(t)
	conn := NewConn()
	env.Dialer.Queue(Result{Conn: conn})
	if err := env.Manager.Connect("test-token"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	env.Scheduler.FireNext()
	if env.Manager.State() != domain.StateConnected {
		t.Fatalf("manager state %q after first attempt", env.Manager.State())
	}
	return env, conn
}
