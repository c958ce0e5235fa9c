// Package clipboard watches the local clipboard for changes and applies
// text received from the peer without echoing it back.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 500 * time.Millisecond

var ErrAlreadyRunning = errors.New("clipboard monitoring already running")

// Clipboard is the platform clipboard as seen by the Monitor.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Snapshot is the last clipboard value the Monitor knows about.
type Snapshot struct {
	Content    string
	ObservedAt time.Time
}

// Change is emitted once per detected local clipboard change.
type Change struct {
	Content    string
	ObservedAt time.Time
}

type MonitorOptions struct {
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Monitor polls a Clipboard and reports local changes. The snapshot is the
// single point of coordination between polling and SetClipboardExternal:
// both hold mu while touching the clipboard, so a value written for the
// peer is already the known content by the time the next poll reads it.
type Monitor struct {
	board    Clipboard
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	last      Snapshot
	primed    bool
	remote    string
	hasRemote bool
	onChange  func(Change)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(board Clipboard, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		board:    board,
		interval: opts.Interval,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// SetOnChange registers the callback for local changes. It runs on the
// polling goroutine, so it must not block for long.
func (m *Monitor) SetOnChange(callback func(Change)) {
	m.mu.Lock()
	m.onChange = callback
	m.mu.Unlock()
}

// GetClipboard reads the current content, wrapping failures in AccessError.
// It does not touch the snapshot.
func (m *Monitor) GetClipboard() (string, error) {
	content, err := m.board.ReadAll()
	if err != nil {
		return "", &AccessError{Op: "read", Err: err}
	}
	return content, nil
}

// Snapshot returns the last known clipboard value.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// SetClipboardExternal writes content received from the peer. The content
// is recorded as known before the write so the next poll does not report it
// as a local change. A failed write restores the previous state.
func (m *Monitor) SetClipboardExternal(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevLast, prevPrimed := m.last, m.primed
	prevRemote, prevHasRemote := m.remote, m.hasRemote

	m.last = Snapshot{Content: content, ObservedAt: m.now()}
	m.primed = true
	m.remote, m.hasRemote = content, true

	if err := m.board.WriteAll(content); err != nil {
		m.last, m.primed = prevLast, prevPrimed
		m.remote, m.hasRemote = prevRemote, prevHasRemote
		return &AccessError{Op: "write", Err: err}
	}
	return nil
}

// Start moves the Monitor from idle to polling. The first poll runs before
// Start returns. Polling stops when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info("starting clipboard monitoring", "interval", m.interval)
	m.Poll()
	go m.run(ctx, m.done)
	return nil
}

// Stop returns the Monitor to idle and waits for an in-progress poll.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel, m.done = nil, nil
	m.logger.Info("clipboard monitoring stopped")
}

func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.done != nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// A timer re-armed after each poll keeps ticks from overlapping: a slow
	// poll delays the next one instead of queueing it.
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.Poll()
			timer.Reset(m.interval)
		}
	}
}

// Poll performs one tick: read the clipboard, compare with the snapshot
// and emit a Change when the content is new. The first successful read
// only primes the snapshot.
func (m *Monitor) Poll() (Change, bool) {
	m.mu.Lock()
	content, err := m.GetClipboard()
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("clipboard read failed", "error", err)
		return Change{}, false
	}
	now := m.now()
	emit := m.observe(content, now)
	callback := m.onChange
	m.mu.Unlock()

	if !emit {
		return Change{}, false
	}

	change := Change{Content: content, ObservedAt: now}
	m.logger.Debug("clipboard changed",
		"length", len(content),
		"fingerprint", Fingerprint(content),
	)
	if callback != nil {
		callback(change)
	}
	return change, true
}

// observe updates the snapshot and reports whether content is a local
// change worth emitting. Caller holds mu.
func (m *Monitor) observe(content string, now time.Time) bool {
	if !m.primed {
		m.primed = true
		m.last = Snapshot{Content: content, ObservedAt: now}
		return false
	}
	if content == m.last.Content {
		m.last.ObservedAt = now
		return false
	}

	m.last = Snapshot{Content: content, ObservedAt: now}
	if m.hasRemote && content == m.remote {
		return false
	}
	m.remote, m.hasRemote = "", false

	return content != ""
}

// AccessError wraps a platform clipboard failure.
type AccessError struct {
	Op  string
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("clipboard %s: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }
