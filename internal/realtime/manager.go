package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"merrygit_go/internal/domain"
	"merrygit_go/internal/logger"
)

const (
	DefaultMaxAttempts    = 5
	DefaultBaseDelay      = time.Second
	DefaultMaxDelay       = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

type Options struct {
	URL            string
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration

	Dialer    Dialer
	Scheduler Scheduler
	Logger    *zap.Logger
}

func (o *Options) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = DefaultMaxDelay
		if o.MaxDelay < o.BaseDelay {
			o.MaxDelay = o.BaseDelay
		}
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Dialer == nil {
		o.Dialer = NewWebsocketDialer(o.ConnectTimeout)
	}
	if o.Scheduler == nil {
		o.Scheduler = WallScheduler{}
	}
}

// Handler receives one inbound event.
type Handler func(InboundEvent)

// Subscription identifies a registered handler. The zero value is inert.
type Subscription struct {
	name EventName
	id   uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

type LifecycleKind string

const (
	LifecycleConnected          LifecycleKind = "connected"
	LifecycleDisconnected       LifecycleKind = "disconnected"
	LifecycleConnectError       LifecycleKind = "connect_error"
	LifecycleReconnectExhausted LifecycleKind = "reconnect_exhausted"
	LifecycleServerError        LifecycleKind = "server_error"
)

// LifecycleEvent reports a connection state change. Attempt is the failed
// attempt count for connect_error and reconnect_exhausted.
type LifecycleEvent struct {
	Kind    LifecycleKind
	Attempt int
	Err     error
}

// Manager owns the single duplex connection of a session.
//
// Reconnection is a small state machine: every attempt is one tick scheduled
// on the Scheduler, and every tick carries the generation it was scheduled
// for. Disconnect bumps the generation, so ticks and read loops started
// before it become no-ops.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu        sync.Mutex
	state     domain.ConnectionState
	token     string
	conn      Conn
	gen       uint64
	attempts  int
	timer     Timer
	backoff   *backoff.ExponentialBackOff
	subs      map[EventName][]subscriber
	nextSubID uint64
	lifecycle []func(LifecycleEvent)

	writeMu    sync.Mutex
	dispatchMu sync.Mutex
}

func NewManager(opts Options) *Manager {
	opts.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BaseDelay
	b.MaxInterval = opts.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Manager{
		opts:    opts,
		log:     logger.OrNop(opts.Logger).Named("realtime"),
		state:   domain.StateDisconnected,
		backoff: b,
		subs:    make(map[EventName][]subscriber),
	}
}

// Connect starts connecting with token and returns without waiting for the
// first attempt. Progress is reported through OnLifecycle.
func (m *Manager) Connect(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != domain.StateDisconnected {
		return domain.ErrAlreadyConnected
	}

	m.gen++
	m.token = token
	m.state = domain.StateConnecting
	m.attempts = 0
	m.backoff.Reset()
	m.scheduleLocked(m.gen, 0)
	return nil
}

// Disconnect tears the connection down from any state. It is safe to call
// repeatedly and on a manager that never connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.token = ""
	m.state = domain.StateDisconnected
	m.attempts = 0
	m.backoff.Reset()
	m.subs = make(map[EventName][]subscriber)
	listeners := m.listenersLocked()
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if prev != domain.StateDisconnected {
		m.log.Info("disconnected", zap.String("from", string(prev)))
		notify(listeners, LifecycleEvent{Kind: LifecycleDisconnected})
	}
}

func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of consecutive failed attempts.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// OnLifecycle registers an observer of connection state changes. Observers
// survive Disconnect.
func (m *Manager) OnLifecycle(fn func(LifecycleEvent)) {
	m.mu.Lock()
	m.lifecycle = append(m.lifecycle, fn)
	m.mu.Unlock()
}

// Emit writes ev when connected. Otherwise the event is dropped and
// ErrNotConnected is returned.
func (m *Manager) Emit(ev OutboundEvent) error {
	frame, err := EncodeOutbound(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}

	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != domain.StateConnected || conn == nil {
		m.log.Warn("emit dropped, not connected",
			zap.String("event", string(ev.EventName())),
			zap.String("state", string(state)))
		return domain.ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(frame); err != nil {
		m.log.Warn("emit failed", zap.String("event", string(ev.EventName())), zap.Error(err))
		return fmt.Errorf("emit %s: %w", ev.EventName(), err)
	}
	return nil
}

func (m *Manager) Subscribe(name EventName, h Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	m.subs[name] = append(m.subs[name], subscriber{id: m.nextSubID, fn: h})
	return Subscription{name: name, id: m.nextSubID}
}

func (m *Manager) Unsubscribe(s Subscription) {
	if s.id == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.subs[s.name]
	for i := range list {
		if list[i].id == s.id {
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(m.subs, s.name)
			} else {
				m.subs[s.name] = next
			}
			return
		}
	}
}

// UnsubscribeAll removes every handler registered for name.
func (m *Manager) UnsubscribeAll(name EventName) {
	m.mu.Lock()
	delete(m.subs, name)
	m.mu.Unlock()
}

func (m *Manager) SubscriberCount(name EventName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[name])
}

// On subscribes fn to the event type T.
func On[T InboundEvent](m *Manager, fn func(T)) Subscription {
	var zero T
	return m.Subscribe(zero.EventName(), func(ev InboundEvent) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}

func (m *Manager) scheduleLocked(gen uint64, d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = m.opts.Scheduler.AfterFunc(d, func() { m.tick(gen) })
}

// tick performs one connection attempt.
func (m *Manager) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != domain.StateConnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	token := m.token
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	conn, err := m.opts.Dialer.Dial(ctx, m.opts.URL, token)
	if err == nil && ctx.Err() != nil {
		_ = conn.Close()
		conn, err = nil, ctx.Err()
	}
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.state != domain.StateConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		m.attempts++
		attempt := m.attempts
		listeners := m.listenersLocked()
		exhausted := attempt >= m.opts.MaxAttempts
		if exhausted {
			m.state = domain.StateDisconnected
		} else {
			m.scheduleLocked(gen, m.backoff.NextBackOff())
		}
		m.mu.Unlock()

		m.log.Error("connect error", zap.Int("attempt", attempt), zap.Error(err))
		notify(listeners, LifecycleEvent{Kind: LifecycleConnectError, Attempt: attempt, Err: err})
		if exhausted {
			m.log.Error("max reconnection attempts reached", zap.Int("attempts", attempt))
			notify(listeners, LifecycleEvent{Kind: LifecycleReconnectExhausted, Attempt: attempt, Err: err})
		}
		return
	}

	m.conn = conn
	m.state = domain.StateConnected
	m.attempts = 0
	m.backoff.Reset()
	listeners := m.listenersLocked()
	m.mu.Unlock()

	m.log.Info("connected", zap.String("url", m.opts.URL))
	notify(listeners, LifecycleEvent{Kind: LifecycleConnected})
	go m.readLoop(gen, conn)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			m.dropped(gen, conn, err)
			return
		}
		m.dispatch(gen, frame)
	}
}

// dropped handles the loss of a connection that nobody asked to close.
func (m *Manager) dropped(gen uint64, conn Conn, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = domain.StateConnecting
	m.scheduleLocked(gen, m.backoff.NextBackOff())
	listeners := m.listenersLocked()
	m.mu.Unlock()

	_ = conn.Close()
	m.log.Warn("connection lost, reconnecting", zap.Error(cause))
	notify(listeners, LifecycleEvent{Kind: LifecycleDisconnected, Err: cause})
}

func (m *Manager) dispatch(gen uint64, frame []byte) {
	ev, err := DecodeInbound(frame)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			m.log.Debug("ignoring inbound event", zap.Error(err))
		} else {
			m.log.Warn("ignoring inbound event", zap.Error(err))
		}
		return
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	handlers := append([]subscriber(nil), m.subs[ev.EventName()]...)
	var listeners []func(LifecycleEvent)
	if _, ok := ev.(ServerError); ok {
		listeners = m.listenersLocked()
	}
	m.mu.Unlock()

	if se, ok := ev.(ServerError); ok {
		m.log.Error("server error", zap.String("message", se.Message))
		notify(listeners, LifecycleEvent{Kind: LifecycleServerError, Err: errors.New(se.Message)})
	}
	for _, h := range handlers {
		h.fn(ev)
	}
}

func (m *Manager) listenersLocked() []func(LifecycleEvent) {
	out := make([]func(LifecycleEvent), len(m.lifecycle))
	copy(out, m.lifecycle)
	return out
}

func notify(listeners []func(LifecycleEvent), ev LifecycleEvent) {
	for _, fn := range listeners {
		fn(ev)
	}
}
