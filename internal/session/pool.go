package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Idle       int
	Leased     int
	Destroying int
	Waiting    int
	Created    int64
	Destroyed  int64
	Timeouts   int64
}

// Total is the number of live sessions: Leased + Idle + Destroying.
func (s Stats) Total() int {
	return s.Idle + s.Leased + s.Destroying
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger. The default discards everything.
func WithLogger(logger tablekit.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source used for idle accounting.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool lends at most MaxSessions sessions to callers.
//
// A slot of the weighted semaphore is held by every Leased session and by
// every session being destroyed, so Leased + Idle + Destroying never exceeds
// MaxSessions. Only slot holders take idle sessions or create new ones,
// which makes the semaphore's FIFO waiter queue the pool's fairness order.
type Pool struct {
	transport tablekit.Transport
	config    tablekit.PoolConfig
	logger    tablekit.Logger
	now       func() time.Time

	slots *semaphore.Weighted

	mu         sync.Mutex
	idle       []*Session
	leased     map[string]*Session
	destroying int
	closed     bool

	closeCtx    context.Context
	closeCancel context.CancelFunc
	wg          sync.WaitGroup

	waiting   atomic.Int64
	created   atomic.Int64
	destroyed atomic.Int64
	timeouts  atomic.Int64
}

// NewPool validates config and starts the idle evictor.
func NewPool(transport tablekit.Transport, config tablekit.PoolConfig, opts ...Option) (*Pool, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required: %w", tablekit.ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	closeCtx, closeCancel := context.WithCancel(context.Background())
	p := &Pool{
		transport:   transport,
		config:      config,
		logger:      logging.NewNullLogger(),
		now:         time.Now,
		slots:       semaphore.NewWeighted(int64(config.MaxSessions)),
		leased:      make(map[string]*Session),
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	if config.IdleEvictionAge > 0 {
		p.wg.Add(1)
		go p.evictLoop(config.IdleEvictionAge)
	}
	return p, nil
}

// Acquire leases a session, reusing an idle one when available and creating
// one while under MaxSessions. Otherwise it waits in FIFO order until a
// session is released, timeout elapses (ErrTimeout), ctx is cancelled
// (ErrCancelled) or the pool shuts down (ErrClosed).
//
// A non-positive timeout means the configured AcquireTimeout; when that is
// zero too, Acquire waits until ctx is done.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Session, error) {
	if p.isClosed() {
		return nil, tablekit.ErrClosed
	}
	if timeout <= 0 {
		timeout = p.config.AcquireTimeout
	}

	var (
		waitCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	p.waiting.Add(1)
	err := p.slots.Acquire(waitCtx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return nil, p.acquireError(ctx, timeout)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.slots.Release(1)
		return nil, tablekit.ErrClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		s.setState(StateLeased)
		p.leased[s.id] = s
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := p.create(ctx)
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.destroying++
		p.mu.Unlock()
		p.destroy(s)
		p.slots.Release(1)
		return nil, tablekit.ErrClosed
	}
	p.leased[s.id] = s
	p.mu.Unlock()
	return s, nil
}

func (p *Pool) acquireError(ctx context.Context, timeout time.Duration) error {
	if p.isClosed() {
		return tablekit.ErrClosed
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("acquire session: %w", tablekit.ErrCancelled)
	}
	p.timeouts.Add(1)
	return fmt.Errorf("no session available within %v: %w", timeout, tablekit.ErrTimeout)
}

func (p *Pool) create(ctx context.Context) (*Session, error) {
	if p.config.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.CreateTimeout)
		defer cancel()
	}
	id, err := p.transport.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tablekit.ErrCreateFailed, err)
	}
	p.created.Add(1)
	p.logger.Verbose("Created session %s", id)
	return newSession(id, p.transport, p.config.CallTimeout, p.now), nil
}

// Release returns a leased session. A healthy session becomes Idle and is
// handed to the longest waiter; an unhealthy one is destroyed before its slot
// is freed. A session that still has an active transaction is treated as
// unhealthy. Releasing a session the pool did not lease is ignored.
func (p *Pool) Release(s *Session, healthy bool) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.leased[s.id]; !ok {
		p.mu.Unlock()
		p.logger.Verbose("Ignoring release of session %s: not leased from this pool", s.id)
		return
	}
	delete(p.leased, s.id)

	if healthy && s.HasActiveTransaction() {
		p.logger.Verbose("Session %s released with an active transaction, destroying", s.id)
		healthy = false
	}

	if p.closed {
		s.setState(StateBroken)
		p.destroying++
		p.mu.Unlock()
		p.destroy(s)
		p.slots.Release(1)
		return
	}

	if !healthy {
		s.setState(StateBroken)
		p.destroying++
		// Added under the lock so a concurrent Shutdown waits for it.
		p.wg.Add(1)
		p.mu.Unlock()
		go func() {
			defer p.wg.Done()
			p.destroy(s)
			p.slots.Release(1)
		}()
		return
	}

	s.setState(StateIdle)
	p.idle = append(p.idle, s)
	p.mu.Unlock()
	p.slots.Release(1)
}

// destroy deletes the server-side session. Callers that counted the session
// in p.destroying get the counter decremented here.
func (p *Pool) destroy(s *Session) {
	ctx := context.Background()
	if p.config.DeleteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.DeleteTimeout)
		defer cancel()
	}
	if err := p.transport.DeleteSession(ctx, s.id); err != nil {
		p.logger.Verbose("Failed to delete session %s: %v", s.id, err)
	}
	s.setState(StateClosed)
	p.destroyed.Add(1)

	p.mu.Lock()
	if p.destroying > 0 {
		p.destroying--
	}
	p.mu.Unlock()
}

func (p *Pool) evictLoop(age time.Duration) {
	defer p.wg.Done()

	interval := age / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCtx.Done():
			return
		case <-ticker.C:
			p.evictIdle(age)
		}
	}
}

// evictIdle destroys sessions idle for longer than age. Each eviction takes a
// slot for the duration of the delete; with waiters queued nothing is evicted.
func (p *Pool) evictIdle(age time.Duration) {
	now := p.now()
	for {
		if !p.slots.TryAcquire(1) {
			return
		}

		p.mu.Lock()
		victim := -1
		for i, s := range p.idle {
			if s.idleSince(now) > age {
				victim = i
				break
			}
		}
		if victim < 0 || p.closed {
			p.mu.Unlock()
			p.slots.Release(1)
			return
		}
		s := p.idle[victim]
		p.idle = append(p.idle[:victim], p.idle[victim+1:]...)
		s.setState(StateBroken)
		p.destroying++
		p.mu.Unlock()

		p.logger.Verbose("Evicting session %s idle since %s", s.id, s.LastUsed().Format(time.RFC3339))
		p.destroy(s)
		p.slots.Release(1)
	}
}

// Shutdown rejects new acquires, wakes waiters with ErrClosed and destroys
// idle sessions. Leased sessions are destroyed when released. Shutdown waits
// for in-flight destroys until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.destroying += len(idle)
	p.mu.Unlock()

	p.closeCancel()

	for _, s := range idle {
		s.setState(StateBroken)
		p.destroy(s)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Verbose("Session pool shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session pool shutdown: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:       len(p.idle),
		Leased:     len(p.leased),
		Destroying: p.destroying,
		Waiting:    int(p.waiting.Load()),
		Created:    p.created.Load(),
		Destroyed:  p.destroyed.Load(),
		Timeouts:   p.timeouts.Load(),
	}
}

// MaxSessions returns the configured pool capacity.
func (p *Pool) MaxSessions() int {
	return p.config.MaxSessions
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
