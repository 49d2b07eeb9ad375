// Package recorder writes terminal sessions to disk in asciicast v2 format.
package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Header is the first line of an asciicast v2 recording.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Kind is the event code of an asciicast line.
type Kind string

const (
	KindOutput Kind = "o"
	KindInput  Kind = "i"
	KindResize Kind = "r"
)

// Event is one recording line, encoded as [seconds, kind, data].
type Event struct {
	At   float64
	Kind Kind
	Data string
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.At, e.Kind, e.Data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 3 {
		return fmt.Errorf("asciicast event has %d fields, want 3", len(parts))
	}

	var ev Event
	if err := json.Unmarshal(parts[0], &ev.At); err != nil {
		return fmt.Errorf("asciicast event time: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ev.Kind); err != nil {
		return fmt.Errorf("asciicast event kind: %w", err)
	}
	if err := json.Unmarshal(parts[2], &ev.Data); err != nil {
		return fmt.Errorf("asciicast event data: %w", err)
	}
	*e = ev
	return nil
}

// Recorder appends session events to an asciicast stream. Its methods are
// safe for concurrent use; writes after Close are ignored.
type Recorder struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	start  time.Time
	done   bool
}

// Open creates <dir>/<sessionID>.cast and writes its header.
func Open(dir, sessionID string, cols, rows int, env map[string]string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, sessionID+".cast"))
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := New(f)
	r.closer = f
	if err := r.WriteHeader(Header{Width: cols, Height: rows, Title: sessionID, Env: env}); err != nil {
		return nil, errors.Join(err, f.Close())
	}
	return r, nil
}

// New returns a Recorder writing to w. Call WriteHeader before any event.
func New(w io.Writer) *Recorder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Recorder{enc: enc, start: time.Now()}
}

// WriteHeader writes h with Version and Timestamp filled in.
func (r *Recorder) WriteHeader(h Header) error {
	h.Version = 2
	h.Timestamp = r.start.Unix()
	return r.encode(h, "header")
}

// WriteOutput records terminal output.
func (r *Recorder) WriteOutput(data string) error {
	return r.event(KindOutput, data)
}

// WriteInput records bytes typed into the terminal.
func (r *Recorder) WriteInput(data []byte) error {
	return r.event(KindInput, string(data))
}

// WriteResize records a window size change as "COLSxROWS".
func (r *Recorder) WriteResize(cols, rows int) error {
	return r.event(KindResize, strconv.Itoa(cols)+"x"+strconv.Itoa(rows))
}

func (r *Recorder) event(kind Kind, data string) error {
	return r.encode(Event{At: time.Since(r.start).Seconds(), Kind: kind, Data: data}, "event")
}

func (r *Recorder) encode(v any, what string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return nil
	}
	if err := r.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
	return nil
}

// Close closes the file opened by Open. It is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return nil
	}
	r.done = true

	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
