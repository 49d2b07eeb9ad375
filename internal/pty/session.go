package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/remote-agent-terminal/ptyhost/internal/buffer"
	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/recorder"
)

// Session is one shell running on a pseudo-terminal.
type Session struct {
	ID        string
	Shell     string
	CreatedAt time.Time

	cmd      *exec.Cmd
	master   *os.File
	output   *buffer.RingBuffer
	recorder *recorder.Recorder
	logger   *zap.Logger

	topic     string
	publisher Publisher
	onOutput  func(n int)
	onExit    func(exitCode int, err error)

	readChunk    int
	pollInterval time.Duration

	writeMu sync.Mutex

	mu       sync.RWMutex
	state    model.SessionState
	dims     model.Dimensions
	title    *string
	exitCode *int

	subscribed atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
	exited    chan struct{}
	pumpDone  chan struct{}
}

// Start allocates a PTY pair, spawns the shell on its slave side and starts
// the output pump and exit watcher.
//
// A *model.DeviceAllocationError is returned when the OS cannot provide a
// PTY, and a *model.SpawnError when the shell cannot be executed. No
// resources are held after a failed Start.
func Start(opts StartOptions) (*Session, error) {
	if opts.ID == "" {
		return nil, errors.New("session id is required")
	}

	dims := opts.Dimensions
	if dims.Rows == 0 {
		dims.Rows = model.DefaultDimensions.Rows
	}
	if dims.Cols == 0 {
		dims.Cols = model.DefaultDimensions.Cols
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", opts.ID))

	master, slave, err := pty.Open()
	if err != nil {
		return nil, &model.DeviceAllocationError{Err: err}
	}

	if err := pty.Setsize(master, &pty.Winsize{Rows: dims.Rows, Cols: dims.Cols}); err != nil {
		master.Close()
		slave.Close()
		return nil, &model.DeviceAllocationError{Err: fmt.Errorf("set window size: %w", err)}
	}

	shell := ResolveShell(opts.Shell, opts.DefaultShell)
	home, name := invokingUser()

	cmd := exec.Command(shell)
	cmd.Dir = home
	cmd.Env = childEnv(shell, home, name, opts.Env)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, &model.SpawnError{Shell: shell, Err: err}
	}

	// The child holds its own copy of the slave.
	slave.Close()

	s := &Session{
		ID:           opts.ID,
		Shell:        shell,
		CreatedAt:    time.Now(),
		cmd:          cmd,
		master:       master,
		output:       buffer.NewRingBuffer(orDefault(opts.BufferSize, DefaultBufferSize)),
		logger:       logger,
		topic:        model.OutputTopic(opts.ID),
		publisher:    opts.Publisher,
		onOutput:     opts.OnOutput,
		onExit:       opts.OnExit,
		readChunk:    orDefault(opts.ReadChunkSize, DefaultReadChunkSize),
		pollInterval: opts.PollInterval,
		state:        model.SessionStateRunning,
		dims:         dims,
		closed:       make(chan struct{}),
		exited:       make(chan struct{}),
		pumpDone:     make(chan struct{}),
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}

	if opts.RecordDir != "" {
		rec, err := recorder.Open(opts.RecordDir, opts.ID, int(dims.Cols), int(dims.Rows), map[string]string{
			"TERM":  TermType,
			"SHELL": shell,
		})
		if err != nil {
			logger.Warn("Recording disabled", zap.Error(err))
		} else {
			s.recorder = rec
		}
	}

	go s.wait()
	go s.pump()

	logger.Info("Session started",
		zap.String("shell", shell),
		zap.Int("pid", cmd.Process.Pid),
		zap.Uint16("rows", dims.Rows),
		zap.Uint16("cols", dims.Cols),
	)

	return s, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// PID returns the process id of the shell.
func (s *Session) PID() int {
	return s.cmd.Process.Pid
}

// Write forwards input bytes to the shell. Writes to a closed session and
// write errors are dropped.
func (s *Session) Write(data []byte) {
	if len(data) == 0 || !s.running() {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.master.Write(data); err != nil {
		s.logger.Debug("Dropped terminal input", zap.Error(err))
		return
	}
	if s.recorder != nil {
		s.recorder.WriteInput(data)
	}
}

// Resize changes the terminal window size. Zero dimensions and resizes of a
// closed session are ignored.
func (s *Session) Resize(rows, cols uint16) {
	if rows == 0 || cols == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.SessionStateRunning {
		return
	}
	if err := pty.Setsize(s.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		s.logger.Debug("Dropped resize", zap.Error(err))
		return
	}
	s.dims = model.Dimensions{Rows: rows, Cols: cols}
	if s.recorder != nil {
		s.recorder.WriteResize(int(cols), int(rows))
	}
}

// WindowSize reads the window size back from the terminal device.
func (s *Session) WindowSize() (rows, cols uint16, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != model.SessionStateRunning {
		return 0, 0, ErrClosed
	}
	r, c, err := pty.Getsize(s.master)
	if err != nil {
		return 0, 0, err
	}
	return uint16(r), uint16(c), nil
}

// CurrentOutput returns everything the shell printed that is still retained.
func (s *Session) CurrentOutput() string {
	return s.output.Text()
}

// Output is a copy of the retained output and the buffer's accounting.
type Output struct {
	Text      string
	Limit     int
	Discarded int64
}

// Output returns the retained output together with the buffer limit and the
// number of bytes already pushed out of it.
func (s *Session) Output() Output {
	return Output{
		Text:      s.output.Text(),
		Limit:     s.output.Cap(),
		Discarded: s.output.Discarded(),
	}
}

// PushOutput publishes the retained output on the session topic, regardless
// of the subscription flag.
func (s *Session) PushOutput() {
	s.publish(s.output.Text())
}

// Subscribe enables forwarding of new output to the publisher.
func (s *Session) Subscribe() {
	s.subscribed.Store(true)
}

// Unsubscribe stops forwarding output. Output keeps accumulating in the buffer.
func (s *Session) Unsubscribe() {
	s.subscribed.Store(false)
}

// Subscribed reports whether output is being forwarded.
func (s *Session) Subscribed() bool {
	return s.subscribed.Load()
}

// SetTitle stores a caller supplied title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.title = &title
}

// Exited is closed once the child process has been reaped.
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// PumpDone is closed once the output pump has stopped.
func (s *Session) PumpDone() <-chan struct{} {
	return s.pumpDone
}

// Snapshot returns the externally reported state of the session.
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pid := s.cmd.Process.Pid
	snap := model.SessionSnapshot{
		ID:          s.ID,
		PID:         &pid,
		IsStarted:   true,
		IsCompleted: s.state == model.SessionStateClosed || s.exitCode != nil,
		State:       s.state,
		Shell:       s.Shell,
		Rows:        s.dims.Rows,
		Cols:        s.dims.Cols,
		CreatedAt:   s.CreatedAt,
	}
	if s.title != nil {
		title := *s.title
		snap.Title = &title
	}
	if s.exitCode != nil {
		code := *s.exitCode
		snap.ExitCode = &code
	}
	return snap
}

// Close kills the shell's process group and releases the master. It is
// idempotent and does not wait for the output pump.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = model.SessionStateClosed
		s.mu.Unlock()

		close(s.closed)
		s.kill()

		if err := s.master.Close(); err != nil {
			s.logger.Debug("Failed to close pty master", zap.Error(err))
		}
		if s.recorder != nil {
			s.recorder.Close()
		}

		s.logger.Info("Session closed")
	})
}

func (s *Session) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == model.SessionStateRunning
}

func (s *Session) kill() {
	select {
	case <-s.exited:
		return
	default:
	}

	pid := s.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		s.logger.Debug("Failed to kill process group, killing process", zap.Error(err))
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("Failed to kill shell", zap.Error(err))
		}
	}
}

// wait reaps the child and records its exit code.
func (s *Session) wait() {
	err := s.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	s.exitCode = &code
	s.mu.Unlock()
	close(s.exited)

	s.logger.Info("Shell exited", zap.Int("exit_code", code))

	if s.onExit != nil {
		s.onExit(code, err)
	}
}

func (s *Session) publish(payload string) {
	if payload == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Publisher panicked", zap.Any("panic", r))
		}
	}()
	s.publisher.Publish(s.topic, []byte(payload))
}
