// Package pjlinktest provides an in-process PJLink projector emulator for
// testing the client without hardware. Each Server is one projector: it
// listens on its own port, keeps mutable power/mute/freeze/lamp/input/error
// state, and answers with the same wire grammar a real device uses. Tests
// seed and inspect state through SetState and Snapshot, bypassing the
// protocol, and can inject faults to exercise the client's error paths.
package pjlinktest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/BenVanZee/sony-projector-control/pkg/pjlink"
)

// State is the mutable condition of one emulated projector.
type State struct {
	Power       pjlink.PowerState
	Mute        pjlink.MuteState
	Freeze      pjlink.FreezeState
	LampHours   int
	Input       string
	ErrorStatus string
}

// DefaultState returns a powered-off, unmuted, unfrozen projector.
func DefaultState() State {
	return State{
		Power:       pjlink.PowerOff,
		Mute:        pjlink.MuteUnmuted,
		Freeze:      pjlink.FreezeNormal,
		LampHours:   1234,
		Input:       "31",
		ErrorStatus: "000000",
	}
}

// Fault selects a deliberate misbehavior for replies.
type Fault int

const (
	FaultNone Fault = iota
	// FaultUndefinedCommand..FaultDeviceFailure reply with the matching
	// ERRn code instead of a real answer.
	FaultUndefinedCommand
	FaultOutOfParameter
	FaultUnavailable
	FaultDeviceFailure
	// FaultDropTerminator omits the trailing carriage return.
	FaultDropTerminator
	// FaultWrongVerb answers with a different verb than was asked.
	FaultWrongVerb
)

// Server emulates a single projector. Multiple servers on distinct ports
// emulate a fleet.
type Server struct {
	ln       net.Listener
	wg       sync.WaitGroup
	closeErr error
	closed   bool

	mu           sync.Mutex
	state        State
	fault        Fault
	faultOnce    bool
	authGreeting bool
	commands     int
}

// NewServer returns an unstarted server with default state.
func NewServer() *Server {
	return &Server{state: DefaultState()}
}

// Start listens on an ephemeral localhost port and serves until Close.
// It returns the dial address.
func (s *Server) Start() (string, error) {
	return s.StartOn("127.0.0.1:0")
}

// StartOn listens on a specific address, for standalone mock fleets on
// fixed ports.
func (s *Server) StartOn(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.serve()
	return ln.Addr().String(), nil
}

// Addr returns the listen address. Valid after Start.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// HostPort splits the listen address into host and numeric port.
func (s *Server) HostPort() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.Addr())
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// Close stops accepting and waits for in-flight connections to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.closeErr
	}
	s.closed = true
	s.mu.Unlock()
	s.closeErr = s.ln.Close()
	s.wg.Wait()
	return s.closeErr
}

// SetState replaces the projector state. Backdoor for test setup.
func (s *Server) SetState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Snapshot returns the current state. Backdoor for test inspection.
func (s *Server) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetFault makes every subsequent reply misbehave in the given way.
func (s *Server) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
	s.faultOnce = false
}

// SetFaultOnce makes exactly one subsequent reply misbehave.
func (s *Server) SetFaultOnce(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
	s.faultOnce = true
}

// UseAuthGreeting makes the server greet with "PJLINK 1 <seed>", i.e.
// demand the authentication handshake the client does not support.
func (s *Server) UseAuthGreeting(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authGreeting = on
}

// Commands returns how many command lines the server has received.
func (s *Server) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	auth := s.authGreeting
	s.mu.Unlock()
	if auth {
		fmt.Fprintf(conn, "PJLINK 1 498e4a67\r")
		return
	}
	fmt.Fprintf(conn, "PJLINK 0\r")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString(pjlink.Terminator)
		if err != nil {
			return
		}
		reply := s.process(strings.TrimSuffix(line, string(pjlink.Terminator)))
		if reply == "" {
			continue
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// process applies one command line and builds the reply. The state
// mutation and the reply are decided under one lock acquisition so no
// other connection can observe a half-applied change.
func (s *Server) process(line string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands++

	// %<class><VERB> <arg>
	if len(line) < 6 || line[0] != '%' {
		return ""
	}
	class := line[1]
	verb := strings.ToUpper(line[2:6])
	arg := strings.TrimSpace(line[6:])

	fault := s.fault
	if s.faultOnce {
		s.fault = FaultNone
		s.faultOnce = false
	}
	switch fault {
	case FaultUndefinedCommand, FaultOutOfParameter, FaultUnavailable, FaultDeviceFailure:
		return s.reply(class, verb, fmt.Sprintf("ERR%d", fault), FaultNone)
	}

	value := s.apply(class, verb, arg)
	return s.reply(class, verb, value, fault)
}

// apply mutates state for set commands and returns the reply body.
func (s *Server) apply(class byte, verb, arg string) string {
	switch {
	case class == '1' && verb == "POWR":
		switch arg {
		case "?":
			switch s.state.Power {
			case pjlink.PowerOn:
				return "1"
			case pjlink.PowerCooling:
				return "2"
			case pjlink.PowerWarming:
				return "3"
			default:
				return "0"
			}
		case "1":
			s.state.Power = pjlink.PowerOn
			return "OK"
		case "0":
			s.state.Power = pjlink.PowerOff
			return "OK"
		}
		return "ERR2"

	case class == '1' && verb == "AVMT":
		switch arg {
		case "?":
			if s.state.Mute == pjlink.MuteMuted {
				return "31"
			}
			return "30"
		case "31":
			s.state.Mute = pjlink.MuteMuted
			return "OK"
		case "30":
			s.state.Mute = pjlink.MuteUnmuted
			return "OK"
		}
		return "ERR2"

	case class == '2' && verb == "FREZ":
		switch arg {
		case "?":
			if s.state.Freeze == pjlink.FreezeFrozen {
				return "1"
			}
			return "0"
		case "1":
			s.state.Freeze = pjlink.FreezeFrozen
			return "OK"
		case "0":
			s.state.Freeze = pjlink.FreezeNormal
			return "OK"
		}
		return "ERR2"

	case class == '1' && verb == "LAMP":
		if arg == "?" {
			on := 0
			if s.state.Power == pjlink.PowerOn {
				on = 1
			}
			return fmt.Sprintf("%d %d", s.state.LampHours, on)
		}
		return "ERR1"

	case class == '1' && verb == "INPT":
		if arg == "?" {
			return s.state.Input
		}
		return "ERR2"

	case class == '1' && verb == "ERST":
		if arg == "?" {
			return s.state.ErrorStatus
		}
		return "ERR1"
	}
	return "ERR1"
}

func (s *Server) reply(class byte, verb, value string, fault Fault) string {
	if fault == FaultWrongVerb {
		verb = "NAME"
	}
	line := fmt.Sprintf("%%%c%s=%s", class, verb, value)
	if fault != FaultDropTerminator {
		line += string(pjlink.Terminator)
	}
	return line
}
