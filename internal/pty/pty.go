// Package pty runs shells attached to pseudo-terminals.
//
// A Session owns one PTY master and one child process. A background output
// pump drains the master into a bounded buffer and, while the session is
// subscribed, forwards each decoded chunk to a Publisher under the topic
// "terminal_output#<id>".
//
// Write and Resize are best-effort: failures against a dead or closed
// terminal are dropped. Snapshot reports the session as completed.
package pty

import (
	"errors"
	"os"
	"os/user"
	"time"

	"go.uber.org/zap"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
)

const (
	// DefaultBufferSize is the default size of the per-session output buffer (1MB).
	DefaultBufferSize = 1024 * 1024

	// DefaultReadChunkSize is the largest read taken from the master at once.
	DefaultReadChunkSize = 4096

	// DefaultPollInterval bounds how long the pump waits for output before
	// re-checking whether the session was closed or the child exited.
	DefaultPollInterval = 100 * time.Millisecond

	// FallbackShell is used when neither the caller nor the environment names a shell.
	FallbackShell = "/bin/sh"

	// TermType is exported to every child as TERM.
	TermType = "xterm-256color"
)

// ErrClosed is returned when inspecting the device of a closed session.
var ErrClosed = errors.New("session closed")

// Publisher delivers a payload to whoever listens on topic.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(topic string, payload []byte)

// Publish calls f(topic, payload).
func (f PublisherFunc) Publish(topic string, payload []byte) {
	f(topic, payload)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, []byte) {}

// StartOptions contains options for starting a session.
type StartOptions struct {
	// ID identifies the session. Required.
	ID string

	// Shell is the executable to run. Empty means $SHELL, then DefaultShell.
	Shell string

	// DefaultShell is the operator configured fallback shell.
	DefaultShell string

	// Dimensions is the initial window size. Zero fields use 24x80.
	Dimensions model.Dimensions

	// Env holds extra variables appended to the minimal child environment.
	Env map[string]string

	// BufferSize caps the retained output. Zero uses DefaultBufferSize.
	BufferSize int

	// ReadChunkSize caps a single read. Zero uses DefaultReadChunkSize.
	ReadChunkSize int

	// PollInterval bounds each readiness wait. Zero uses DefaultPollInterval.
	PollInterval time.Duration

	// RecordDir enables asciicast recording into this directory when set.
	RecordDir string

	// Publisher receives output while the session is subscribed.
	Publisher Publisher

	// Logger is used for pump and lifecycle diagnostics.
	Logger *zap.Logger

	// OnOutput is called by the pump with the size of every decoded chunk.
	OnOutput func(n int)

	// OnExit is called once when the child process has been reaped.
	OnExit func(exitCode int, err error)
}

// ResolveShell picks the shell to run: the requested one, then $SHELL,
// then the configured fallback, then FallbackShell.
func ResolveShell(requested, configured string) string {
	if requested != "" {
		return requested
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if configured != "" {
		return configured
	}
	return FallbackShell
}

// invokingUser returns the home directory and login name of the user
// running this process.
func invokingUser() (home, name string) {
	if u, err := user.Current(); err == nil {
		home, name = u.HomeDir, u.Username
	}
	if home == "" {
		home = os.Getenv("HOME")
	}
	if name == "" {
		name = os.Getenv("USER")
	}
	if home == "" {
		home = "/"
	}
	if info, err := os.Stat(home); err != nil || !info.IsDir() {
		home = "/"
	}
	return home, name
}

// childEnv builds the environment handed to the shell. PATH is inherited so
// commands typed at the prompt resolve; nothing else leaks from the host.
func childEnv(shell, home, name string, extra map[string]string) []string {
	env := []string{
		"TERM=" + TermType,
		"HOME=" + home,
		"USER=" + name,
		"PWD=" + home,
		"SHELL=" + shell,
	}
	if path := os.Getenv("PATH"); path != "" {
		env = append(env, "PATH="+path)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
