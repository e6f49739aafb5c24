package pjlink

import (
	"context"
	"fmt"
	"sync"
)

// Fleet dispatches commands to groups of projectors. One Session is kept
// per projector so commands to the same device stay serialized while
// different devices are driven concurrently.
type Fleet struct {
	registry *Registry
	cfg      *options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewFleet creates a fleet controller over a registry.
func NewFleet(registry *Registry, opts ...Option) (*Fleet, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return &Fleet{
		registry: registry,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}, nil
}

// Registry returns the registry the fleet resolves targets against.
func (f *Fleet) Registry() *Registry { return f.registry }

// Close drops every open connection.
func (f *Fleet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for _, s := range f.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Fleet) session(d DeviceDescriptor) *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[d.Nickname]; ok {
		return s
	}
	s := newSession(d, f.cfg)
	f.sessions[d.Nickname] = s
	return s
}

// Dispatch executes one command against every projector the target
// resolves to and aggregates the outcomes. Devices are attempted
// concurrently and independently: one projector's fault never cancels the
// others, and a report in which every device failed is still a report, not
// an error. Dispatch itself only fails for an unresolvable target or an
// invalid command.
func (f *Fleet) Dispatch(ctx context.Context, req CommandRequest, target Target) (*GroupReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	devices, err := f.registry.ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	resCh := make(chan DeviceResult, len(devices))
	var wg sync.WaitGroup
	for _, d := range devices {
		wg.Add(1)
		go func(d DeviceDescriptor) {
			defer wg.Done()
			value, err := f.session(d).Send(ctx, req)
			resCh <- DeviceResult{
				Device: d.Nickname,
				Value:  value,
				Err:    err,
				Kind:   classifyFault(err),
			}
		}(d)
	}
	wg.Wait()
	close(resCh)

	results := make([]DeviceResult, 0, len(devices))
	for res := range resCh {
		results = append(results, res)
	}

	report := newGroupReport(req, results)
	if f.cfg.logger != nil {
		f.cfg.logger.Info("dispatch complete",
			"command", req.String(), "devices", len(results), "ok", report.OK())
	}
	return report, nil
}

// DeviceStatus is the aggregate health snapshot of one projector.
type DeviceStatus struct {
	Device string
	Online bool
	Power  PowerState
	Mute   MuteState
	Freeze FreezeState
	Lamp   LampStatus
	Err    error
}

// Status queries power, mute, freeze and lamp hours per projector.
// A projector counts as online when the power query answers; the remaining
// queries are best effort since older models do not implement every verb.
func (f *Fleet) Status(ctx context.Context, target Target) ([]DeviceStatus, error) {
	devices, err := f.registry.ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceStatus, len(devices))
	var wg sync.WaitGroup
	for i, d := range devices {
		wg.Add(1)
		go func(i int, d DeviceDescriptor) {
			defer wg.Done()
			sess := f.session(d)
			st := DeviceStatus{Device: d.Nickname}

			value, err := sess.Send(ctx, Power(ActionQuery))
			if err != nil {
				st.Err = err
				out[i] = st
				return
			}
			st.Online = true
			st.Power, _ = value.(PowerState)

			if v, err := sess.Send(ctx, Mute(ActionQuery)); err == nil {
				st.Mute, _ = v.(MuteState)
			}
			if v, err := sess.Send(ctx, Freeze(ActionQuery)); err == nil {
				st.Freeze, _ = v.(FreezeState)
			}
			if v, err := sess.Send(ctx, LampQuery()); err == nil {
				st.Lamp, _ = v.(LampStatus)
			}
			out[i] = st
		}(i, d)
	}
	wg.Wait()
	return out, nil
}
