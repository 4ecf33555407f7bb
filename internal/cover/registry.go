package cover

import (
	"fmt"
	"sort"
)

// Registry is the immutable bijection between hub device ids and cover
// names. All methods are safe for concurrent use.
type Registry struct {
	byID   map[DeviceID]Name
	byName map[Name]DeviceID
	names  []Name
}

// NewRegistry builds a registry from the configured mappings. Ids are
// normalized first. It fails with ErrConfiguration on an empty id or name,
// on a name containing "/", "+" or "#", or when an id or a name appears
// twice.
func NewRegistry(mappings []Mapping) (*Registry, error) {
	r := &Registry{
		byID:   make(map[DeviceID]Name, len(mappings)),
		byName: make(map[Name]DeviceID, len(mappings)),
		names:  make([]Name, 0, len(mappings)),
	}

	for i, m := range mappings {
		id := NormalizeID(string(m.ID))
		if id == "" || m.Name == "" {
			return nil, fmt.Errorf("%w: mapping %d has an empty id or name", ErrConfiguration, i)
		}
		if !m.Name.ValidTopicLevel() {
			return nil, fmt.Errorf("%w: cover name %q is not a single topic level", ErrConfiguration, m.Name)
		}
		if other, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("%w: device id %q mapped to both %q and %q", ErrConfiguration, id, other, m.Name)
		}
		if other, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("%w: cover name %q mapped to both %q and %q", ErrConfiguration, m.Name, other, id)
		}
		r.byID[id] = m.Name
		r.byName[m.Name] = id
		r.names = append(r.names, m.Name)
	}

	sort.Slice(r.names, func(i, j int) bool { return r.names[i] < r.names[j] })
	return r, nil
}

// NameToID returns the device id for a cover name.
func (r *Registry) NameToID(name Name) (DeviceID, error) {
	id, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: cover %q", ErrUnknownDevice, name)
	}
	return id, nil
}

// IDToName returns the cover name for a device id. The id is normalized
// before the lookup.
func (r *Registry) IDToName(id DeviceID) (Name, error) {
	name, ok := r.byID[NormalizeID(string(id))]
	if !ok {
		return "", fmt.Errorf("%w: device %q", ErrUnknownDevice, id)
	}
	return name, nil
}

// Resolve turns an endpoint identifier reported by the hub into a cover
// name. Known device ids resolve through the registry. Anything else that
// is already a known cover name passes through unchanged.
func (r *Registry) Resolve(raw string) (Name, error) {
	if name, err := r.IDToName(DeviceID(raw)); err == nil {
		return name, nil
	}
	if n := Name(raw); r.Has(n) {
		return n, nil
	}
	return "", fmt.Errorf("%w: endpoint %q", ErrUnknownDevice, raw)
}

// Has reports whether the cover name is known.
func (r *Registry) Has(name Name) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns the cover names in sorted order.
func (r *Registry) Names() []Name {
	out := make([]Name, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of covers.
func (r *Registry) Len() int {
	return len(r.names)
}
