package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is reported for requests naming an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTableClosed is returned when a session is created after shutdown began.
	ErrTableClosed = errors.New("session table is closed")

	// ErrSessionLimit is returned when the maximum number of concurrent sessions is reached.
	ErrSessionLimit = errors.New("concurrent session limit exceeded")

	// ErrInvalidListing is returned when a listing page cannot be used.
	ErrInvalidListing = errors.New("invalid listing")
)

// DeviceAllocationError reports that the OS could not provide a PTY pair.
type DeviceAllocationError struct {
	Err error
}

func (e *DeviceAllocationError) Error() string {
	return fmt.Sprintf("failed to allocate pty: %v", e.Err)
}

func (e *DeviceAllocationError) Unwrap() error {
	return e.Err
}

// SpawnError reports that the shell could not be started.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
