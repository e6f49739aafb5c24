package pjlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var (
	// ErrConnect marks a failure to open a usable connection.
	ErrConnect = errors.New("connect failed")
	// ErrComms marks a failure on an established connection: a read
	// timeout, a peer close, or an undecodable response.
	ErrComms = errors.New("communication failed")
)

// Session owns the single TCP connection to one projector. The protocol is
// strictly request/response with no pipelining, so commands through one
// session are serialized. The connection is opened lazily and rebuilt after
// a fault; a faulted command is retried exactly once on a fresh connection.
type Session struct {
	device DeviceDescriptor
	cfg    *options

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	// last best-known state per verb, updated optimistically on sets and
	// authoritatively on queries
	state map[Verb]StateValue
}

// NewSession creates a session for one projector. No connection is opened
// until the first Send.
func NewSession(device DeviceDescriptor, opts ...Option) (*Session, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return newSession(device, cfg), nil
}

func newSession(device DeviceDescriptor, cfg *options) *Session {
	if device.Port == 0 {
		device.Port = DefaultPort
	}
	return &Session{
		device: device,
		cfg:    cfg,
		state:  make(map[Verb]StateValue),
	}
}

// Device returns the descriptor this session talks to.
func (s *Session) Device() DeviceDescriptor { return s.device }

// Close drops the connection if one is open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropConn()
}

// LastKnown returns the cached state for a verb, if any. A set command
// updates it optimistically; a query always overrides it with the
// projector's answer.
func (s *Session) LastKnown(verb Verb) (StateValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[verb]
	return v, ok
}

// Send executes one command and returns its typed result. Toggle actions
// are synthesized locally as a query followed by the inverse set; if the
// query fails the set is never attempted.
func (s *Session) Send(ctx context.Context, req CommandRequest) (StateValue, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Action == ActionToggle {
		return s.toggle(ctx, req.Verb)
	}

	raw, err := s.roundTrip(ctx, req.Verb, req.arg())
	if err != nil {
		return nil, err
	}

	var value StateValue
	if req.Action == ActionQuery {
		value, err = parseQueryValue(req.Verb, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrComms, err)
		}
	} else {
		value = stateForSet(req.Verb, req.arg())
	}
	s.state[req.Verb] = value
	return value, nil
}

// toggle queries the current state and issues the complementary set. The
// two round trips fail independently; a failed query aborts the toggle.
func (s *Session) toggle(ctx context.Context, verb Verb) (StateValue, error) {
	raw, err := s.roundTrip(ctx, verb, "?")
	if err != nil {
		return nil, err
	}
	current, err := parseQueryValue(verb, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComms, err)
	}
	s.state[verb] = current

	arg := inverseArg(verb, current)
	if _, err := s.roundTrip(ctx, verb, arg); err != nil {
		return nil, err
	}
	value := stateForSet(verb, arg)
	s.state[verb] = value
	return value, nil
}

// inverseArg returns the set argument that flips the given state. A
// projector that is cooling or warming counts as off, matching how the
// front panel behaves.
func inverseArg(verb Verb, current StateValue) string {
	switch verb {
	case VerbPower:
		if current == PowerOn {
			return "0"
		}
		return "1"
	case VerbMute:
		if current == MuteMuted {
			return "30"
		}
		return "31"
	case VerbFreeze:
		if current == FreezeFrozen {
			return "0"
		}
		return "1"
	}
	return "?"
}

// roundTrip performs one command/response exchange, retrying once on a
// connection fault. Protocol-level rejections are returned as-is: the
// projector gave a definitive answer and retrying will not change it.
func (s *Session) roundTrip(ctx context.Context, verb Verb, arg string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		value, err := s.attempt(ctx, verb, arg)
		if err == nil {
			return value, nil
		}
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return "", err
		}
		// Connect and comms faults poison the connection: discard it and
		// try once more from scratch.
		s.dropConn()
		lastErr = err
		if attempt == 0 && s.cfg.logger != nil {
			s.cfg.logger.Warn("retrying after fault",
				"device", s.device.Nickname, "verb", verb, "error", err)
		}
	}
	return "", lastErr
}

func (s *Session) attempt(ctx context.Context, verb Verb, arg string) (string, error) {
	if err := s.ensureConn(ctx); err != nil {
		return "", err
	}

	line := EncodeCommand(verb, arg)
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.readTimeout)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrComms, err)
	}
	if _, err := s.conn.Write(line); err != nil {
		return "", fmt.Errorf("%w: write: %w", ErrComms, err)
	}
	if s.cfg.logger != nil {
		s.cfg.logger.Debug("command sent", "device", s.device.Nickname, "verb", verb, "arg", arg)
	}

	resp, err := s.readLine()
	if err != nil {
		return "", fmt.Errorf("%w: read: %w", ErrComms, err)
	}

	value, err := ParseResponse(verb, resp)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return "", err
		}
		// A frame that fails to decode means the connection is
		// desynchronized and cannot be trusted for further reads.
		return "", fmt.Errorf("%w: %w", ErrComms, err)
	}
	if s.cfg.logger != nil {
		s.cfg.logger.Debug("response received", "device", s.device.Nickname, "verb", verb, "value", value)
	}
	return value, nil
}

// ensureConn dials the projector if no connection is open and consumes the
// PJLink greeting line.
func (s *Session) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.connectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", s.device.Addr())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)

	// Projectors announce themselves on accept: "PJLINK 0" for open
	// access, "PJLINK 1 <seed>" when authentication is required.
	greeting, err := s.readLine()
	if err != nil {
		s.dropConn()
		return fmt.Errorf("%w: greeting: %w", ErrConnect, err)
	}
	if err := ParseGreeting(greeting); err != nil {
		s.dropConn()
		return err
	}

	if s.cfg.logger != nil {
		s.cfg.logger.Debug("connected", "device", s.device.Nickname, "addr", s.device.Addr())
	}
	return nil
}

// readLine reads up to and including the CR terminator, tolerating a
// trailing LF left over from the previous line.
func (s *Session) readLine() (string, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.readTimeout)); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString(Terminator)
	if err != nil {
		return line, err
	}
	// Some devices terminate the greeting with CR LF; skip an already
	// buffered LF so it does not prefix the next response.
	if s.reader.Buffered() > 0 {
		if b, err := s.reader.Peek(1); err == nil && b[0] == '\n' {
			s.reader.Discard(1)
		}
	}
	return line, nil
}

func (s *Session) dropConn() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}
