package pty

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pump drains the master until the session is closed, the child exits
// with nothing left to read, or the device reports an error.
func (s *Session) pump() {
	defer close(s.pumpDone)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Output pump panicked", zap.Any("panic", r))
		}
	}()

	rc, err := s.master.SyscallConn()
	if err != nil {
		s.logger.Warn("Output pump could not access pty", zap.Error(err))
		return
	}

	dec := newDecoder()
	defer func() {
		s.handleOutput(dec.flush())
	}()

	buf := make([]byte, s.readChunk)
	timeout := int(s.pollInterval / time.Millisecond)
	if timeout <= 0 {
		timeout = 1
	}

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		ready, err := waitReadable(rc, timeout)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("Output pump stopped", zap.Error(err))
			}
			return
		}
		if !ready {
			select {
			case <-s.exited:
				return
			default:
				continue
			}
		}

		n, err := s.master.Read(buf)
		if n > 0 {
			s.handleOutput(dec.decode(buf[:n]))
		}
		if err != nil {
			// EIO is how Linux reports a master whose slave side is gone.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("Output pump read failed", zap.Error(err))
			}
			return
		}
	}
}

// waitReadable polls the master for input for at most timeoutMs. The poll
// runs inside RawConn.Control so the descriptor cannot be closed and reused
// underneath it.
func waitReadable(rc syscall.RawConn, timeoutMs int) (bool, error) {
	var (
		n       int
		revents int16
		perr    error
	)
	err := rc.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, perr = unix.Poll(fds, timeoutMs)
			if perr != unix.EINTR {
				break
			}
		}
		revents = fds[0].Revents
	})
	if err != nil {
		return false, err
	}
	if perr != nil {
		return false, perr
	}
	if n == 0 {
		return false, nil
	}
	if revents&unix.POLLNVAL != 0 {
		return false, os.ErrClosed
	}
	// POLLHUP and POLLERR are surfaced by the following read.
	return true, nil
}

// handleOutput appends decoded text to the buffer and forwards it when subscribed.
func (s *Session) handleOutput(text string) {
	if text == "" {
		return
	}

	s.output.WriteString(text)
	if s.recorder != nil {
		s.recorder.WriteOutput(text)
	}
	if s.onOutput != nil {
		s.onOutput(len(text))
	}
	if s.subscribed.Load() {
		s.publish(text)
	}
}
