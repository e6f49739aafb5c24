package pjlink

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// DeviceDescriptor describes one projector known to the registry.
// Descriptors are immutable after the registry is built.
type DeviceDescriptor struct {
	// Nickname is the canonical identifier.
	Nickname string
	// Name is the human-readable display name.
	Name string
	// Host and Port locate the PJLink endpoint.
	Host string
	Port int
	// Location is free-form descriptive text.
	Location string
	// Groups are the tags this projector belongs to.
	Groups []string
	// Aliases are additional lookup names, typically single letters.
	Aliases []string
}

// Addr returns the host:port dial address.
func (d DeviceDescriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// DisplayName returns "Name (nickname)" or just the nickname.
func (d DeviceDescriptor) DisplayName() string {
	if d.Name != "" && !strings.EqualFold(d.Name, d.Nickname) {
		return fmt.Sprintf("%s (%s)", d.Name, d.Nickname)
	}
	return d.Nickname
}

var (
	ErrUnknownDevice = errors.New("unknown projector")
	ErrUnknownGroup  = errors.New("unknown group")
	ErrEmptyTarget   = errors.New("no projectors targeted")

	ErrDuplicateNickname = errors.New("duplicate nickname")
	ErrAliasConflict     = errors.New("alias maps to multiple nicknames")
	ErrBadDescriptor     = errors.New("invalid projector definition")
)

// Registry is the immutable set of known projectors. Lookups by nickname or
// alias are case-insensitive. The group "all" is implicit and always
// resolves to every registered projector.
type Registry struct {
	devices []DeviceDescriptor
	byName  map[string]int
	groups  map[string][]int
}

// NewRegistry builds a registry from descriptors, validating them once.
// Conflicting alias definitions are a configuration error here, not a
// lookup-time surprise.
func NewRegistry(devices []DeviceDescriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]int),
		groups: make(map[string][]int),
	}
	for _, d := range devices {
		if d.Nickname == "" {
			return nil, fmt.Errorf("%w: missing nickname", ErrBadDescriptor)
		}
		if d.Host == "" {
			return nil, fmt.Errorf("%w: %s has no address", ErrBadDescriptor, d.Nickname)
		}
		if d.Port == 0 {
			d.Port = DefaultPort
		}
		idx := len(r.devices)
		nick := strings.ToLower(d.Nickname)
		if _, exists := r.byName[nick]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNickname, d.Nickname)
		}
		r.devices = append(r.devices, d)
		r.byName[nick] = idx
		for _, g := range d.Groups {
			g = strings.ToLower(g)
			r.groups[g] = append(r.groups[g], idx)
		}
	}
	// Aliases are resolved after every nickname is registered so that an
	// alias shadowing a later nickname is caught.
	for idx, d := range r.devices {
		for _, a := range d.Aliases {
			key := strings.ToLower(a)
			if prev, exists := r.byName[key]; exists {
				if prev == idx {
					continue
				}
				return nil, fmt.Errorf("%w: %q -> %s and %s",
					ErrAliasConflict, a, r.devices[prev].Nickname, d.Nickname)
			}
			r.byName[key] = idx
		}
	}
	return r, nil
}

// Resolve looks up a projector by nickname or alias.
func (r *Registry) Resolve(name string) (DeviceDescriptor, error) {
	idx, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DeviceDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return r.devices[idx], nil
}

// All returns every registered projector in registration order.
func (r *Registry) All() []DeviceDescriptor {
	out := make([]DeviceDescriptor, len(r.devices))
	copy(out, r.devices)
	return out
}

// Group returns the projectors tagged with the given group.
func (r *Registry) Group(tag string) ([]DeviceDescriptor, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "all" {
		return r.All(), nil
	}
	idxs, ok := r.groups[tag]
	if !ok || len(idxs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, tag)
	}
	out := make([]DeviceDescriptor, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, r.devices[i])
	}
	return out, nil
}

// Groups returns the declared group tags plus the implicit "all", sorted.
func (r *Registry) Groups() []string {
	out := []string{"all"}
	for g := range r.groups {
		if g != "all" {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// Target selects the projectors a dispatch applies to. An explicit name
// list takes precedence over a group tag.
type Target struct {
	Names []string
	Group string
}

func TargetNames(names ...string) Target { return Target{Names: names} }
func TargetGroup(tag string) Target      { return Target{Group: tag} }
func TargetAll() Target                  { return Target{Group: "all"} }

// ResolveTarget expands a target into concrete descriptors. The result is
// never empty: an unknown name or group, or an empty target, is an error.
// Explicit names keep their given order with duplicates collapsed; group
// expansion uses registration order.
func (r *Registry) ResolveTarget(t Target) ([]DeviceDescriptor, error) {
	if len(t.Names) > 0 {
		seen := make(map[string]bool)
		out := make([]DeviceDescriptor, 0, len(t.Names))
		for _, name := range t.Names {
			d, err := r.Resolve(name)
			if err != nil {
				return nil, err
			}
			if seen[d.Nickname] {
				continue
			}
			seen[d.Nickname] = true
			out = append(out, d)
		}
		return out, nil
	}
	if t.Group != "" {
		return r.Group(t.Group)
	}
	return nil, ErrEmptyTarget
}
