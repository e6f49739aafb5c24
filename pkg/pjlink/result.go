package pjlink

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action selects what a command does with its verb.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionQuery  Action = "query"
	ActionToggle Action = "toggle"
)

// CommandRequest is one logical command against one or more projectors.
type CommandRequest struct {
	Verb   Verb
	Action Action
}

func Power(a Action) CommandRequest  { return CommandRequest{Verb: VerbPower, Action: a} }
func Mute(a Action) CommandRequest   { return CommandRequest{Verb: VerbMute, Action: a} }
func Freeze(a Action) CommandRequest { return CommandRequest{Verb: VerbFreeze, Action: a} }
func LampQuery() CommandRequest      { return CommandRequest{Verb: VerbLamp, Action: ActionQuery} }
func InputQuery() CommandRequest     { return CommandRequest{Verb: VerbInput, Action: ActionQuery} }
func ErrorQuery() CommandRequest     { return CommandRequest{Verb: VerbError, Action: ActionQuery} }

var ErrInvalidCommand = errors.New("invalid command")

// Validate checks that the action is applicable to the verb. Lamp hours,
// input and error status are read-only.
func (c CommandRequest) Validate() error {
	switch c.Verb {
	case VerbPower, VerbMute, VerbFreeze:
		switch c.Action {
		case ActionOn, ActionOff, ActionQuery, ActionToggle:
			return nil
		}
	case VerbLamp, VerbInput, VerbError:
		if c.Action == ActionQuery {
			return nil
		}
		return fmt.Errorf("%w: %s is query-only", ErrInvalidCommand, c.Verb)
	}
	return fmt.Errorf("%w: %s %s", ErrInvalidCommand, c.Verb, c.Action)
}

// arg returns the wire argument for a non-toggle action.
func (c CommandRequest) arg() string {
	if c.Action == ActionQuery {
		return "?"
	}
	switch c.Verb {
	case VerbMute:
		if c.Action == ActionOn {
			return "31"
		}
		return "30"
	default:
		if c.Action == ActionOn {
			return "1"
		}
		return "0"
	}
}

func (c CommandRequest) String() string {
	name := map[Verb]string{
		VerbPower:  "power",
		VerbMute:   "mute",
		VerbFreeze: "freeze",
		VerbLamp:   "lamp",
		VerbInput:  "input",
		VerbError:  "error-status",
	}[c.Verb]
	return name + " " + string(c.Action)
}

// StateValue is the decoded payload of a successful command.
type StateValue interface {
	String() string
}

// PowerState per POWR: OFF, ON, COOLING (shutting down), WARMING (starting up).
type PowerState string

const (
	PowerOff     PowerState = "OFF"
	PowerOn      PowerState = "ON"
	PowerCooling PowerState = "COOLING"
	PowerWarming PowerState = "WARMING"
)

func (s PowerState) String() string { return string(s) }

// MuteState per AVMT.
type MuteState string

const (
	MuteMuted   MuteState = "MUTED"
	MuteUnmuted MuteState = "UNMUTED"
)

func (s MuteState) String() string { return string(s) }

// FreezeState per FREZ.
type FreezeState string

const (
	FreezeFrozen FreezeState = "FROZEN"
	FreezeNormal FreezeState = "NORMAL"
)

func (s FreezeState) String() string { return string(s) }

// InputSource is the opaque input code reported by INPT (e.g. "31" for HDMI 1).
type InputSource string

func (s InputSource) String() string { return string(s) }

// LampStatus is the first lamp reported by LAMP. Raw preserves the full
// response body for multi-lamp models.
type LampStatus struct {
	Hours int
	On    bool
	Raw   string
}

func (l LampStatus) String() string { return fmt.Sprintf("%dh", l.Hours) }

// ErrorStatus is the six ERST digits. Each is 0 (ok), 1 (warning) or 2 (error).
type ErrorStatus struct {
	Fan         int
	Lamp        int
	Temperature int
	Cover       int
	Filter      int
	Other       int
	Raw         string
}

// OK reports whether every subsystem digit is zero.
func (e ErrorStatus) OK() bool {
	return e.Fan == 0 && e.Lamp == 0 && e.Temperature == 0 && e.Cover == 0 && e.Filter == 0 && e.Other == 0
}

func (e ErrorStatus) String() string {
	if e.OK() {
		return "no errors"
	}
	sev := [3]string{"", "warning", "error"}
	var parts []string
	for _, p := range []struct {
		name string
		v    int
	}{
		{"fan", e.Fan}, {"lamp", e.Lamp}, {"temperature", e.Temperature},
		{"cover", e.Cover}, {"filter", e.Filter}, {"other", e.Other},
	} {
		if p.v > 0 && p.v <= 2 {
			parts = append(parts, p.name+":"+sev[p.v])
		}
	}
	return strings.Join(parts, " ")
}

func parsePowerState(value string) (PowerState, error) {
	switch value {
	case "0":
		return PowerOff, nil
	case "1":
		return PowerOn, nil
	case "2":
		return PowerCooling, nil
	case "3":
		return PowerWarming, nil
	}
	return "", fmt.Errorf("%w: unexpected POWR value %q", ErrMalformedResponse, value)
}

func parseMuteState(value string) (MuteState, error) {
	switch value {
	case "31":
		return MuteMuted, nil
	case "30":
		return MuteUnmuted, nil
	}
	return "", fmt.Errorf("%w: unexpected AVMT value %q", ErrMalformedResponse, value)
}

func parseFreezeState(value string) (FreezeState, error) {
	switch value {
	case "1":
		return FreezeFrozen, nil
	case "0":
		return FreezeNormal, nil
	}
	return "", fmt.Errorf("%w: unexpected FREZ value %q", ErrMalformedResponse, value)
}

func parseLampStatus(value string) (LampStatus, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return LampStatus{}, fmt.Errorf("%w: empty LAMP value", ErrMalformedResponse)
	}
	hours, err := strconv.Atoi(fields[0])
	if err != nil || hours < 0 {
		return LampStatus{}, fmt.Errorf("%w: bad LAMP hours %q", ErrMalformedResponse, fields[0])
	}
	on := len(fields) > 1 && fields[1] == "1"
	return LampStatus{Hours: hours, On: on, Raw: value}, nil
}

func parseErrorStatus(value string) (ErrorStatus, error) {
	if len(value) != 6 {
		return ErrorStatus{}, fmt.Errorf("%w: ERST value %q is not 6 digits", ErrMalformedResponse, value)
	}
	var digits [6]int
	for i := 0; i < 6; i++ {
		d := int(value[i] - '0')
		if d < 0 || d > 2 {
			return ErrorStatus{}, fmt.Errorf("%w: bad ERST digit %q", ErrMalformedResponse, value)
		}
		digits[i] = d
	}
	return ErrorStatus{
		Fan:         digits[0],
		Lamp:        digits[1],
		Temperature: digits[2],
		Cover:       digits[3],
		Filter:      digits[4],
		Other:       digits[5],
		Raw:         value,
	}, nil
}

// parseQueryValue decodes a query response body into its typed state.
func parseQueryValue(verb Verb, value string) (StateValue, error) {
	switch verb {
	case VerbPower:
		v, err := parsePowerState(value)
		return v, err
	case VerbMute:
		v, err := parseMuteState(value)
		return v, err
	case VerbFreeze:
		v, err := parseFreezeState(value)
		return v, err
	case VerbLamp:
		v, err := parseLampStatus(value)
		return v, err
	case VerbInput:
		return InputSource(value), nil
	case VerbError:
		v, err := parseErrorStatus(value)
		return v, err
	}
	return nil, fmt.Errorf("%w: unknown verb %q", ErrMalformedResponse, verb)
}

// stateForSet returns the state a successful set command left the projector in.
func stateForSet(verb Verb, arg string) StateValue {
	switch verb {
	case VerbPower:
		if arg == "1" {
			return PowerOn
		}
		return PowerOff
	case VerbMute:
		if arg == "31" {
			return MuteMuted
		}
		return MuteUnmuted
	case VerbFreeze:
		if arg == "1" {
			return FreezeFrozen
		}
		return FreezeNormal
	}
	return nil
}

// FaultKind classifies the failure carried by a DeviceResult.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultConnect
	FaultComms
	FaultProtocol
	FaultResolution
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultConnect:
		return "connect"
	case FaultComms:
		return "comms"
	case FaultProtocol:
		return "protocol"
	case FaultResolution:
		return "resolution"
	}
	return "unknown"
}

func classifyFault(err error) FaultKind {
	if err == nil {
		return FaultNone
	}
	var perr *ProtocolError
	switch {
	case errors.As(err, &perr):
		return FaultProtocol
	case errors.Is(err, ErrConnect):
		return FaultConnect
	case errors.Is(err, ErrComms):
		return FaultComms
	case errors.Is(err, ErrUnknownDevice), errors.Is(err, ErrUnknownGroup), errors.Is(err, ErrEmptyTarget):
		return FaultResolution
	}
	return FaultComms
}

// DeviceResult is the outcome of one command against one projector.
type DeviceResult struct {
	Device string
	Value  StateValue
	Err    error
	Kind   FaultKind
}

func (r DeviceResult) OK() bool { return r.Err == nil }

// GroupReport aggregates the per-device outcomes of one dispatch. It is
// built once and never mutated.
type GroupReport struct {
	Command CommandRequest
	results map[string]DeviceResult
	order   []string
}

func newGroupReport(cmd CommandRequest, results []DeviceResult) *GroupReport {
	r := &GroupReport{
		Command: cmd,
		results: make(map[string]DeviceResult, len(results)),
	}
	for _, res := range results {
		r.results[res.Device] = res
		r.order = append(r.order, res.Device)
	}
	sort.Strings(r.order)
	return r
}

// Devices returns the targeted device identifiers in sorted order.
func (r *GroupReport) Devices() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Result returns the outcome for one device.
func (r *GroupReport) Result(device string) (DeviceResult, bool) {
	res, ok := r.results[device]
	return res, ok
}

// Results returns every outcome in device order.
func (r *GroupReport) Results() []DeviceResult {
	out := make([]DeviceResult, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, r.results[d])
	}
	return out
}

// OK reports whether every device succeeded.
func (r *GroupReport) OK() bool {
	for _, res := range r.results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failures returns the failed outcomes in device order.
func (r *GroupReport) Failures() []DeviceResult {
	var out []DeviceResult
	for _, d := range r.order {
		if res := r.results[d]; !res.OK() {
			out = append(out, res)
		}
	}
	return out
}
