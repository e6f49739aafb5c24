package pjlink

import (
	"errors"
	"fmt"
	"strings"
)

// Constants defined in the PJLink Class 1 specification (with FREZ from Class 2).
const (
	// DefaultPort is the standard PJLink TCP port.
	DefaultPort = 4352

	// Terminator ends every command and response line. PJLink uses a bare
	// carriage return; there is no line feed.
	Terminator = '\r'
)

// Verb is a PJLink 4-character command mnemonic.
type Verb string

const (
	VerbPower  Verb = "POWR"
	VerbMute   Verb = "AVMT"
	VerbFreeze Verb = "FREZ"
	VerbLamp   Verb = "LAMP"
	VerbInput  Verb = "INPT"
	VerbError  Verb = "ERST"
)

// Class returns the protocol revision digit the verb belongs to.
// FREZ was introduced in Class 2; everything else here is Class 1.
func (v Verb) Class() byte {
	if v == VerbFreeze {
		return '2'
	}
	return '1'
}

var (
	ErrMissingPrefix     = errors.New("response missing % prefix")
	ErrMissingTerminator = errors.New("response missing carriage return terminator")
	ErrVerbMismatch      = errors.New("response verb does not match request")
	ErrMalformedResponse = errors.New("malformed response")
)

// ProtocolError is a well-formed rejection from the projector (an ERRn
// response body). It is terminal for the command: retrying will not change
// the projector's answer.
type ProtocolError struct {
	Code string
}

func (e *ProtocolError) Error() string {
	switch e.Code {
	case "ERR1":
		return "ERR1: undefined command"
	case "ERR2":
		return "ERR2: out of parameter"
	case "ERR3":
		return "ERR3: unavailable at this time"
	case "ERR4":
		return "ERR4: projector failure"
	}
	return e.Code
}

// ErrAuthRequired is reported when a projector's greeting demands the
// optional PJLink authentication handshake, which this client does not speak.
var ErrAuthRequired = &ProtocolError{Code: "authentication required"}

// EncodeCommand builds the wire line for a verb and argument. The argument
// is "?" for a query or a verb-specific instruction code for a set.
func EncodeCommand(verb Verb, arg string) []byte {
	return []byte(fmt.Sprintf("%%%c%s %s%c", verb.Class(), verb, arg, Terminator))
}

// ParseResponse validates a raw response line, including its terminator,
// against the verb that was sent and returns the value following '='.
//
// ErrMissingPrefix, ErrMissingTerminator and ErrVerbMismatch indicate a
// desynchronized connection: the caller must discard the connection rather
// than attempt another read on it.
func ParseResponse(verb Verb, line string) (string, error) {
	if len(line) == 0 || line[len(line)-1] != Terminator {
		return "", fmt.Errorf("%w: %q", ErrMissingTerminator, line)
	}
	line = line[:len(line)-1]
	if len(line) == 0 || line[0] != '%' {
		return "", fmt.Errorf("%w: %q", ErrMissingPrefix, line)
	}
	// %<class><verb>=<value>
	if len(line) < 7 || line[6] != '=' {
		return "", fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	if line[1] != verb.Class() || !strings.EqualFold(line[2:6], string(verb)) {
		return "", fmt.Errorf("%w: sent %s, got %q", ErrVerbMismatch, verb, line)
	}
	value := line[7:]
	if len(value) == 4 && strings.HasPrefix(value, "ERR") && value[3] >= '1' && value[3] <= '4' {
		return "", &ProtocolError{Code: value}
	}
	return value, nil
}

// ParseGreeting interprets the banner a projector sends on accept.
// "PJLINK 0" means no authentication; "PJLINK 1 <seed>" means the device
// requires the authentication handshake, which is reported as a
// ProtocolError. Anything else is tolerated.
func ParseGreeting(line string) error {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 || !strings.EqualFold(fields[0], "PJLINK") {
		return nil
	}
	if fields[1] == "1" {
		return ErrAuthRequired
	}
	return nil
}
