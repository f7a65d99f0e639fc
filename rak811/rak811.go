package rak811

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"i4.energy/across/loragw/at"
)

// JoinStatus tracks the LoRaWAN network join state of the session.
type JoinStatus int

const (
	NotJoined JoinStatus = iota
	Joining
	Joined
	JoinFailed
)

func (s JoinStatus) String() string {
	switch s {
	case NotJoined:
		return "not joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case JoinFailed:
		return "join failed"
	}
	return "unknown"
}

// Lora represents a RAK811 LoRa module driven over an AT command serial
// link. All transport I/O goes through a centralized event loop; the
// protocol is strictly half-duplex, so operations are rejected with
// ErrBusy while another command's reply or asynchronous follow-up is
// outstanding.
type Lora struct {
	// transport provides the physical connection to the module
	transport Transport
	// config contains the session configuration settings
	config Config
	// closed indicates if the session has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool
	// version is the firmware version reported during initialization
	version string

	// op enforces the single-in-flight-command invariant across facade
	// operations, including their asynchronous event waits
	op sync.Mutex

	// mu guards the session state below
	mu sync.Mutex
	// mode is the tracked module mode, updated after a successful
	// mode-set command
	mode at.Mode
	// joinStatus is updated by join commands and their completion events
	joinStatus JoinStatus
	// lastDataRate is the last data rate read from or written to the
	// module, -1 until known
	lastDataRate int
	// downlinks queues received messages until the caller claims them
	downlinks []at.Downlink

	// Communication channels for Loop coordination
	// events receives asynchronous event lines from the module
	events chan eventLine
	// commands queues AT command requests for the Loop to process
	commands chan *commandRequest

	// Loop control
	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// commandRequest represents an AT command request to be executed by the
// Loop.
type commandRequest struct {
	// wire is the exact bytes to put on the line
	wire []byte
	// expectReply is false for raw writes that produce no terminal reply
	// (the wake character)
	expectReply bool
	// respChan receives the command response from the Loop
	respChan chan commandResponse
	// ctx provides timeout and cancellation control for the command
	ctx context.Context
}

// commandResponse contains the result of an AT command execution.
type commandResponse struct {
	// payload is the text following the OK token on the terminal line
	payload string
	// data holds the intermediate lines preceding the terminal line
	// (batch configuration output)
	data []string
	// err contains any error that occurred during command execution
	err error
}

// eventLine is an asynchronous line routed to the operation awaiting it:
// either a decoded event, or the error that aborts the wait (module ERROR,
// malformed line, transport failure).
type eventLine struct {
	event at.Event
	err   error
}

// New creates a new session with the given configuration. It establishes
// the transport connection and probes the module with a version query.
//
// Returns an error if the transport connection or the probe fails.
func New(ctx context.Context, config Config) (*Lora, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()
	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	l := &Lora{
		transport:    transport,
		config:       config,
		lastDataRate: -1,
		events:       make(chan eventLine, 32), // Buffered so the Loop never stalls on events
		// No queue for commands
		commands: make(chan *commandRequest),
	}

	// Prepare context for Loop (but don't start it yet)
	l.loopCtx, l.loopCancel = context.WithCancel(ctx)

	initCtx := ctx
	if config.initTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, config.initTimeout)
		defer cancel()
	}

	if err := l.init(initCtx); err != nil {
		if l.transport != nil {
			transport.Close()
		}
		return nil, fmt.Errorf("initialize module: %w", err)
	}

	return l, nil
}

// init probes the module directly on the transport, before the Loop owns
// it. A module that cannot report its version is unusable.
func (l *Lora) init(ctx context.Context) error {
	version, err := l.execDirect(ctx, at.CmdVersion)
	if err != nil {
		return fmt.Errorf("module not responding: %w", err)
	}
	l.version = version
	return nil
}

// Version returns the firmware version reported by the module at
// initialization.
func (l *Lora) Version() string {
	return l.version
}

// Loop is the main event loop that handles all transport I/O operations.
// It must be called exactly once after New() and before any other
// operation. The Loop coordinates all communication with the module:
//
// 1. Processes command requests from exec() calls
// 2. Writes AT commands to the transport
// 3. Reads and classifies response lines from the transport
// 4. Queues downlinks and dispatches events to the awaiting operation
// 5. Returns command responses to waiting exec() calls
//
// The Loop runs until the provided context is cancelled. It is the ONLY
// goroutine that reads from the transport, so events are never lost and
// replies are never paired with the wrong command.
//
// Usage:
//
//	lora, err := rak811.New(ctx, config)
//	if err != nil { return err }
//
//	go lora.Loop(ctx)
//
//	err = lora.JoinOTAA(ctx)
func (l *Lora) Loop(ctx context.Context) error {
	if l.loopRunning {
		return ErrLoopRunning
	}
	l.loopRunning = true
	defer func() {
		l.loopRunning = false
	}()
	scanner := bufio.NewScanner(l.transport)
	scanner.Split(at.Splitter)

	// Channels for tokens and errors from the scanner goroutine
	tokens := make(chan string, 10)
	scanErrs := make(chan error, 1)

	// Start goroutine to read tokens from transport
	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token != "" {
				select {
				case tokens <- token:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	// Current command being processed
	var currentCmd *commandRequest
	var currentData []string

	for {
		select {
		case <-ctx.Done():
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: ctx.Err()}
			}
			return ctx.Err()

		case req := <-l.commands:
			currentCmd = req
			currentData = nil

			if _, err := l.transport.Write(req.wire); err != nil {
				req.respChan <- commandResponse{err: fmt.Errorf("write command %q: %w", req.wire, err)}
				currentCmd = nil
				continue
			}
			if !req.expectReply {
				req.respChan <- commandResponse{}
				currentCmd = nil
			}

		case token, ok := <-tokens:
			if !ok {
				// Token channel closed - scanner stopped
				if currentCmd != nil {
					currentCmd.respChan <- commandResponse{err: io.EOF}
					currentCmd = nil
				}
				l.dispatchEvent(eventLine{err: io.EOF})
				return io.EOF
			}

			l.config.logger.Debug("line received", "line", token)

			switch at.Classify(token) {
			case at.TypeEvent:
				l.handleEvent(token)

			case at.TypeFinal:
				if payload, isOK := at.CutOK(token); isOK {
					if currentCmd != nil {
						currentCmd.respChan <- commandResponse{payload: payload, data: currentData}
						currentCmd = nil
						currentData = nil
					} else {
						l.config.logger.Debug("orphan OK reply", "line", token)
					}
					break
				}
				code, raw, _ := at.CutError(token)
				err := &ModuleError{Code: code, Raw: raw}
				if currentCmd != nil {
					currentCmd.respChan <- commandResponse{err: err}
					currentCmd = nil
					currentData = nil
				} else {
					// ERROR with no command pending aborts whatever
					// asynchronous wait is in progress.
					l.dispatchEvent(eventLine{err: err})
				}

			case at.TypeData:
				if currentCmd != nil {
					currentData = append(currentData, token)
				} else {
					// A line matching no documented shape is surfaced,
					// never dropped: silently ignoring it risks pairing a
					// later line with the wrong command.
					l.dispatchEvent(eventLine{err: &at.ParseError{Line: token, Reason: "unexpected line"}})
				}
			}

			// Check if current command has timed out
			if currentCmd != nil {
				select {
				case <-currentCmd.ctx.Done():
					currentCmd.respChan <- commandResponse{err: fmt.Errorf("command timeout: %w", currentCmd.ctx.Err())}
					currentCmd = nil
					currentData = nil
				default:
				}
			}

		case err := <-scanErrs:
			if currentCmd != nil {
				currentCmd.respChan <- commandResponse{err: fmt.Errorf("read error: %w", err)}
				currentCmd = nil
			}
			l.dispatchEvent(eventLine{err: fmt.Errorf("read error: %w", err)})
			return fmt.Errorf("scanner error: %w", err)
		}
	}
}

// handleEvent decodes an at+recv= line. Downlinks are queued immediately,
// even when unsolicited (class C), so they survive until a caller claims
// them; every event is also forwarded to the operation awaiting it.
func (l *Lora) handleEvent(token string) {
	ev, err := at.ParseEvent(token)
	if err != nil {
		l.dispatchEvent(eventLine{err: err})
		return
	}
	if ev.Code == at.EventRecvData {
		dl, err := ev.Downlink()
		if err != nil {
			l.dispatchEvent(eventLine{err: err})
			return
		}
		l.mu.Lock()
		l.downlinks = append(l.downlinks, dl)
		l.mu.Unlock()
	}
	l.dispatchEvent(eventLine{event: ev})
}

// dispatchEvent forwards a line to the event channel without blocking the
// Loop. The channel is buffered; when full, the oldest entries have long
// been abandoned by their operation, so dropping is safe.
func (l *Lora) dispatchEvent(line eventLine) {
	select {
	case l.events <- line:
	default:
		l.config.logger.Warn("event channel full, dropping line")
	}
}

// acquire takes the single-flight lock. A concurrent operation is a
// programming error on the caller's side and is rejected rather than
// queued: the module multiplexes all output onto one line stream with no
// request IDs.
func (l *Lora) acquire() error {
	if l.closed {
		return ErrAlreadyClosed
	}
	if !l.op.TryLock() {
		return ErrBusy
	}
	return nil
}

func (l *Lora) release() {
	l.op.Unlock()
}

// exec sends an AT command and waits for the terminal OK/ERROR reply.
// This method coordinates with Loop() and must only be called between
// acquire() and release(). The Loop() must be running.
func (l *Lora) exec(ctx context.Context, cmd string) (commandResponse, error) {
	return l.submit(ctx, &commandRequest{
		wire:        at.Wire(cmd),
		expectReply: true,
		respChan:    make(chan commandResponse, 1), // Buffered to prevent blocking
	})
}

// execRaw writes bytes with no framing and no expected reply (the wake
// character).
func (l *Lora) execRaw(ctx context.Context, raw string) error {
	_, err := l.submit(ctx, &commandRequest{
		wire:     []byte(raw),
		respChan: make(chan commandResponse, 1),
	})
	return err
}

func (l *Lora) submit(ctx context.Context, req *commandRequest) (commandResponse, error) {
	if l.closed {
		return commandResponse{}, ErrAlreadyClosed
	}
	if l.transport == nil {
		return commandResponse{}, ErrNotInitialized
	}

	// Apply the per-command timeout when the context has no deadline
	if _, ok := ctx.Deadline(); !ok && l.config.responseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.responseTimeout)
		defer cancel()
	}
	req.ctx = ctx

	select {
	case l.commands <- req:
	case <-ctx.Done():
		return commandResponse{}, fmt.Errorf("command cancelled before sending: %w", timeoutErr(ctx))
	}

	select {
	case resp := <-req.respChan:
		return resp, resp.err
	case <-ctx.Done():
		return commandResponse{}, timeoutErr(ctx)
	}
}

// timeoutErr maps a deadline expiry onto ErrTimeout; plain cancellation is
// passed through.
func timeoutErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}

// drainEvents discards event lines left over from previous operations.
// Queued downlinks are not affected; they were extracted by the Loop
// already.
func (l *Lora) drainEvents() {
	for {
		select {
		case <-l.events:
		default:
			return
		}
	}
}

// collectEvents waits for the module's next event burst. It blocks until
// the first event line arrives (or the deadline passes), then keeps
// draining until the line stays quiet for the settle interval, mirroring
// the module's habit of emitting related events back to back.
//
// An ERROR or malformed line terminates the wait immediately with its
// error, never with a timeout.
func (l *Lora) collectEvents(ctx context.Context) ([]at.Event, error) {
	var events []at.Event

	select {
	case <-ctx.Done():
		return nil, timeoutErr(ctx)
	case line := <-l.events:
		if line.err != nil {
			return nil, line.err
		}
		events = append(events, line.event)
	}

	settle := time.NewTimer(l.config.eventSettle)
	defer settle.Stop()
	for {
		select {
		case <-ctx.Done():
			return events, nil
		case line := <-l.events:
			if line.err != nil {
				return events, line.err
			}
			events = append(events, line.event)
			if !settle.Stop() {
				<-settle.C
			}
			settle.Reset(l.config.eventSettle)
		case <-settle.C:
			return events, nil
		}
	}
}

// eventCtx derives a deadline for an asynchronous wait when the caller
// supplied none.
func (l *Lora) eventCtx(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || fallback <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, fallback)
}

// execDirect executes an AT command directly on the transport without the
// channel mechanism, handling the complete request-response cycle. It is
// used during initialization, before the Loop owns the transport.
func (l *Lora) execDirect(ctx context.Context, cmd string) (string, error) {
	if l.closed {
		return "", ErrAlreadyClosed
	}
	if l.transport == nil {
		return "", ErrNotInitialized
	}

	if _, ok := ctx.Deadline(); !ok && l.config.responseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.responseTimeout)
		defer cancel()
	}

	if _, err := l.transport.Write(at.Wire(cmd)); err != nil {
		return "", fmt.Errorf("write command %q: %w", cmd, err)
	}

	scanner := bufio.NewScanner(l.transport)
	scanner.Split(at.Splitter)

	for {
		select {
		case <-ctx.Done():
			return "", timeoutErr(ctx)
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read error: %w", err)
			}
			return "", io.EOF
		}

		token := scanner.Text()
		if token == "" {
			continue
		}

		switch at.Classify(token) {
		case at.TypeFinal:
			if payload, isOK := at.CutOK(token); isOK {
				return payload, nil
			}
			code, raw, _ := at.CutError(token)
			return "", &ModuleError{Code: code, Raw: raw}
		case at.TypeEvent, at.TypeData:
			// Ignore stray lines during the probe; the module may still
			// be flushing boot output.
			continue
		}
	}
}

// Close shuts down the session and releases all resources. It stops the
// event loop, closes the transport connection, and marks the session as
// closed. After calling Close(), the session cannot be reused.
func (l *Lora) Close() error {
	if l.closed {
		return ErrAlreadyClosed
	}
	l.closed = true

	if l.loopCancel != nil {
		l.loopCancel()
	}
	if l.transport != nil {
		return l.transport.Close()
	}
	return nil
}

// CurrentMode returns the tracked module mode. It reflects the last
// successful mode command of this session, not a fresh query.
func (l *Lora) CurrentMode() at.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// JoinState returns the tracked join status.
func (l *Lora) JoinState() JoinStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.joinStatus
}

// LastDataRate returns the last data rate observed by this session, or -1
// when none was read or written yet.
func (l *Lora) LastDataRate() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDataRate
}

func (l *Lora) setMode(m at.Mode) {
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
}

func (l *Lora) setJoinStatus(s JoinStatus) {
	l.mu.Lock()
	l.joinStatus = s
	l.mu.Unlock()
}

func (l *Lora) setDataRate(dr int) {
	l.mu.Lock()
	l.lastDataRate = dr
	l.mu.Unlock()
}

// Downlinks returns the number of received messages waiting in the queue.
func (l *Lora) Downlinks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.downlinks)
}

// NextDownlink removes and returns the oldest queued downlink, or nil when
// the queue is empty. Ownership transfers to the caller.
func (l *Lora) NextDownlink() *at.Downlink {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.downlinks) == 0 {
		return nil
	}
	dl := l.downlinks[0]
	l.downlinks = l.downlinks[1:]
	return &dl
}

// firstEventErr returns the error for the first event that is not in the
// accepted set, preserving the original firmware contract that any
// unexpected event aborts the operation.
func firstEventErr(events []at.Event, accepted ...at.EventCode) error {
	for _, ev := range events {
		ok := false
		for _, code := range accepted {
			if ev.Code == code {
				ok = true
				break
			}
		}
		if !ok {
			return &EventError{Code: ev.Code}
		}
	}
	return nil
}

// hasEvent reports whether the burst contains the given event code.
func hasEvent(events []at.Event, code at.EventCode) bool {
	for _, ev := range events {
		if ev.Code == code {
			return true
		}
	}
	return false
}
