package rak811

import (
	"errors"
	"fmt"

	"i4.energy/across/loragw/at"
)

var (
	// ErrNoDialer is returned when a session is constructed without a
	// Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order
	// to establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a
	// session that has not been successfully initialized.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrAlreadyClosed is returned when Close is called on a session that
	// has already been closed.
	ErrAlreadyClosed = errors.New("module already closed")

	// ErrLoopRunning is returned when Loop is started twice.
	ErrLoopRunning = errors.New("loop already running")

	// ErrBusy is returned when a command is issued while another
	// command's reply, or its asynchronous follow-up, is still pending.
	// The protocol is strictly half-duplex and carries no request IDs, so
	// interleaving would pair replies with the wrong command.
	ErrBusy = errors.New("command already in flight")

	// ErrTimeout is returned when the module does not produce the
	// expected reply or event within the deadline.
	ErrTimeout = errors.New("timeout waiting for module")

	// ErrNoResetter is returned by HardReset when no Resetter was
	// configured. Driving the module's reset line is hardware specific
	// and is supplied by the caller.
	ErrNoResetter = errors.New("no resetter configured")
)

// ModuleError is an ERROR reply from the module. The raw code is kept
// verbatim; the description is a best-effort mapping from the firmware's
// documented table.
type ModuleError struct {
	Code at.ErrorCode
	// Raw is the text following the ERROR token, preserved for codes the
	// table does not cover.
	Raw string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module error %d: %s", e.Code, e.Code)
}

// EventError is an asynchronous event reporting a failure, e.g. a failed
// join or a tx timeout.
type EventError struct {
	Code at.EventCode
}

func (e *EventError) Error() string {
	return fmt.Sprintf("module event %d: %s", e.Code, e.Code)
}
