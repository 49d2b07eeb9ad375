// Package session keeps the table of live terminal sessions and routes
// caller operations to them by id.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remote-agent-terminal/ptyhost/internal/metrics"
	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/pty"
)

// EventSink records session lifecycle events.
type EventSink interface {
	Append(ctx context.Context, event *model.SessionEvent) error
}

// Config holds configuration for the session table.
type Config struct {
	DefaultShell  string
	Dimensions    model.Dimensions
	BufferSize    int
	ReadChunkSize int
	PollInterval  time.Duration
	RecordDir     string
	Env           map[string]string

	// MaxSessions limits how many sessions the table holds. Zero means unlimited.
	MaxSessions int
}

// CreateRequest describes a session to create.
type CreateRequest struct {
	ID    string
	Shell string
	Rows  uint16
	Cols  uint16
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithEvents records lifecycle events to sink.
func WithEvents(sink EventSink) Option {
	return func(t *Table) {
		t.events = sink
	}
}

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) {
		t.metrics = m
	}
}

// Table owns every live session.
type Table struct {
	cfg       Config
	publisher pty.Publisher
	events    EventSink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*pty.Session
	closed   bool

	// exits counts sessions whose exit has not been recorded yet.
	exits       sync.WaitGroup
	exitTimeout time.Duration
}

// NewTable creates an empty table whose sessions publish through publisher.
func NewTable(cfg Config, publisher pty.Publisher, opts ...Option) *Table {
	t := &Table{
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:         time.Now,
		sessions:    make(map[string]*pty.Session),
		exitTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.publisher = &countingPublisher{next: publisher, metrics: t.metrics}
	return t
}

// Create starts a new session, or returns the existing one when req.ID is
// already in the table. The bool result reports whether a shell was spawned.
//
// The table lock is held across the spawn so concurrent creates of the same
// id never start two processes. Audit events are recorded after the lock
// is released.
func (t *Table) Create(ctx context.Context, req CreateRequest) (*pty.Session, bool, error) {
	s, created, event, err := t.create(ctx, req)
	if event != nil {
		t.record(ctx, event)
	}
	return s, created, err
}

func (t *Table) create(ctx context.Context, req CreateRequest) (*pty.Session, bool, *model.SessionEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.SessionCreateFailed(metrics.ReasonClosed)
		return nil, false, nil, model.ErrTableClosed
	}

	if req.ID != "" {
		if s, ok := t.sessions[req.ID]; ok {
			return s, false, nil, nil
		}
	}

	if t.cfg.MaxSessions > 0 && len(t.sessions) >= t.cfg.MaxSessions {
		t.metrics.SessionCreateFailed(metrics.ReasonLimit)
		return nil, false, nil, fmt.Errorf("%w: %d sessions", model.ErrSessionLimit, t.cfg.MaxSessions)
	}

	if err := ctx.Err(); err != nil {
		return nil, false, nil, err
	}

	id := req.ID
	if id == "" {
		id = t.nextID()
	}

	dims := t.cfg.Dimensions
	if req.Rows > 0 {
		dims.Rows = req.Rows
	}
	if req.Cols > 0 {
		dims.Cols = req.Cols
	}

	t.exits.Add(1)
	s, err := pty.Start(pty.StartOptions{
		ID:            id,
		Shell:         req.Shell,
		DefaultShell:  t.cfg.DefaultShell,
		Dimensions:    dims,
		Env:           t.cfg.Env,
		BufferSize:    t.cfg.BufferSize,
		ReadChunkSize: t.cfg.ReadChunkSize,
		PollInterval:  t.cfg.PollInterval,
		RecordDir:     t.cfg.RecordDir,
		Publisher:     t.publisher,
		Logger:        t.logger.Named("pty"),
		OnOutput:      t.metrics.AddOutputBytes,
		OnExit: func(exitCode int, _ error) {
			defer t.exits.Done()
			t.record(context.Background(), &model.SessionEvent{
				SessionID: id,
				Kind:      model.EventExited,
				ExitCode:  &exitCode,
			})
		},
	})
	if err != nil {
		t.exits.Done()
		t.metrics.SessionCreateFailed(failureReason(err))
		t.logger.Warn("Failed to create session", zap.String("session_id", id), zap.Error(err))
		return nil, false, &model.SessionEvent{
			SessionID: id,
			Kind:      model.EventCreateFailed,
			Shell:     pty.ResolveShell(req.Shell, t.cfg.DefaultShell),
			Detail:    err.Error(),
		}, err
	}

	t.sessions[id] = s
	t.metrics.SessionCreated()
	t.metrics.SetActiveSessions(len(t.sessions))

	pid := s.PID()
	return s, true, &model.SessionEvent{
		SessionID: id,
		Kind:      model.EventCreated,
		PID:       &pid,
		Shell:     s.Shell,
	}, nil
}

// nextID returns "term-<unix seconds>", suffixed with -2, -3, ... while
// that id is taken. Callers hold t.mu.
func (t *Table) nextID() string {
	base := "term-" + strconv.FormatInt(t.now().Unix(), 10)
	id := base
	for n := 2; ; n++ {
		if _, taken := t.sessions[id]; !taken {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

func failureReason(err error) string {
	var deviceErr *model.DeviceAllocationError
	var spawnErr *model.SpawnError
	switch {
	case errors.As(err, &deviceErr):
		return metrics.ReasonDevice
	case errors.As(err, &spawnErr):
		return metrics.ReasonSpawn
	default:
		return metrics.ReasonOther
	}
}

// Get returns the session with id.
func (t *Table) Get(id string) (*pty.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	return s, ok
}

// Snapshot returns the reported state of the session with id.
func (t *Table) Snapshot(id string) (model.SessionSnapshot, bool) {
	s, ok := t.Get(id)
	if !ok {
		return model.SessionSnapshot{}, false
	}
	return s.Snapshot(), true
}

// List returns a snapshot of every session, oldest first.
func (t *Table) List() []model.SessionSnapshot {
	t.mu.RLock()
	snaps := make([]model.SessionSnapshot, 0, len(t.sessions))
	for _, s := range t.sessions {
		snaps = append(snaps, s.Snapshot())
	}
	t.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// Len returns the number of sessions in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.sessions)
}

// Remove closes the session and deletes it from the table. It reports
// whether the id was present.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	if ok {
		s.Close()
		delete(t.sessions, id)
		t.metrics.SetActiveSessions(len(t.sessions))
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	t.record(context.Background(), &model.SessionEvent{
		SessionID: id,
		Kind:      model.EventRemoved,
		Shell:     s.Shell,
	})
	return true
}

// Write sends input to the session. It reports whether the id was present.
func (t *Table) Write(id string, data []byte) bool {
	return t.with(id, func(s *pty.Session) { s.Write(data) })
}

// Resize changes the window size of the session.
func (t *Table) Resize(id string, rows, cols uint16) bool {
	return t.with(id, func(s *pty.Session) { s.Resize(rows, cols) })
}

// Subscribe starts forwarding the session's output to the publisher.
func (t *Table) Subscribe(id string) bool {
	return t.with(id, (*pty.Session).Subscribe)
}

// Unsubscribe stops forwarding the session's output.
func (t *Table) Unsubscribe(id string) bool {
	return t.with(id, (*pty.Session).Unsubscribe)
}

// SetTitle stores a title on the session.
func (t *Table) SetTitle(id, title string) bool {
	return t.with(id, func(s *pty.Session) { s.SetTitle(title) })
}

// PushBuffer publishes the session's whole retained output on its topic.
func (t *Table) PushBuffer(id string) bool {
	return t.with(id, (*pty.Session).PushOutput)
}

// Buffer returns the session's retained output.
func (t *Table) Buffer(id string) (pty.Output, bool) {
	s, ok := t.Get(id)
	if !ok {
		return pty.Output{}, false
	}
	return s.Output(), true
}

func (t *Table) with(id string, fn func(*pty.Session)) bool {
	s, ok := t.Get(id)
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Close closes every session and empties the table, then waits up to five
// seconds for the killed shells' exits to be recorded. Creates after Close
// fail with model.ErrTableClosed. Close is idempotent.
func (t *Table) Close() {
	t.mu.Lock()
	t.closed = true
	sessions := t.sessions
	t.sessions = make(map[string]*pty.Session)
	t.metrics.SetActiveSessions(0)
	t.mu.Unlock()

	for id, s := range sessions {
		s.Close()
		t.record(context.Background(), &model.SessionEvent{
			SessionID: id,
			Kind:      model.EventRemoved,
			Shell:     s.Shell,
			Detail:    "shutdown",
		})
	}

	if len(sessions) > 0 {
		t.logger.Info("Closed all sessions", zap.Int("count", len(sessions)))
	}

	if !t.waitExits(t.exitTimeout) {
		t.logger.Warn("Timed out waiting for shells to exit", zap.Duration("timeout", t.exitTimeout))
	}
}

// waitExits waits for every started shell's exit to be recorded. It
// reports false on timeout.
func (t *Table) waitExits(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.exits.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *Table) record(ctx context.Context, event *model.SessionEvent) {
	if t.events == nil {
		return
	}
	if err := t.events.Append(ctx, event); err != nil {
		t.logger.Warn("Failed to record session event",
			zap.String("session_id", event.SessionID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// countingPublisher counts publish calls before handing them on.
type countingPublisher struct {
	next    pty.Publisher
	metrics *metrics.Metrics
}

func (p *countingPublisher) Publish(topic string, payload []byte) {
	p.metrics.ChunkPublished()
	if p.next != nil {
		p.next.Publish(topic, payload)
	}
}
