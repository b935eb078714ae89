package persona

import (
	"errors"
	"fmt"
)

var (
	// errors
	ErrNotFound         = errors.New("persona not found")
	ErrUnknownArchetype = errors.New("archetype has no defined progress curve")
)

// Registry is the read-only persona catalog. It is built once at load time,
// validated, and safe for unlimited concurrent readers afterwards.
type Registry struct {
	personas map[string]Persona
	order    []string
	curves   map[Archetype][]int
}

// NewRegistry validates the authored personas and progress curves and indexes them.
// Curves map an archetype to weekly completion-percentage checkpoints; each curve
// must be non-empty, within [0,100] and monotonically non-decreasing.
func NewRegistry(personas []Persona, curves map[Archetype][]int) (*Registry, error) {
	for arch, curve := range curves {
		if !arch.Valid() {
			return nil, fmt.Errorf("progress curve for unknown archetype %q", arch)
		}
		if len(curve) == 0 {
			return nil, fmt.Errorf("empty progress curve for archetype %q", arch)
		}
		prev := 0
		for i, pct := range curve {
			if pct < 0 || pct > 100 {
				return nil, fmt.Errorf("archetype %q: checkpoint %d out of range: %d", arch, i, pct)
			}
			if pct < prev {
				return nil, fmt.Errorf("archetype %q: checkpoint %d decreases: %d -> %d", arch, i, prev, pct)
			}
			prev = pct
		}
	}

	reg := &Registry{
		personas: make(map[string]Persona, len(personas)),
		order:    make([]string, 0, len(personas)),
		curves:   curves,
	}
	for _, p := range personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona %q: id and name are required", p.ID)
		}
		if !p.Archetype.Valid() {
			return nil, fmt.Errorf("persona %q: unknown archetype %q", p.ID, p.Archetype)
		}
		if _, ok := curves[p.Archetype]; !ok {
			return nil, fmt.Errorf("persona %q: %w: %q", p.ID, ErrUnknownArchetype, p.Archetype)
		}
		if _, ok := reg.personas[p.ID]; ok {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		reg.personas[p.ID] = p
		reg.order = append(reg.order, p.ID)
	}
	return reg, nil
}

func (reg *Registry) Get(id string) (Persona, error) {
	p, ok := reg.personas[id]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (reg *Registry) Has(id string) bool {
	_, ok := reg.personas[id]
	return ok
}

// All returns the personas in authored order.
func (reg *Registry) All() []Persona {
	all := make([]Persona, 0, len(reg.order))
	for _, id := range reg.order {
		all = append(all, reg.personas[id])
	}
	return all
}

// Progress returns the completion percentage a persona of the given archetype
// should appear to have reached after elapsedDays. Checkpoints are weekly
// (index = days/7) and clamp to the last authored checkpoint; this is a lookup,
// not an interpolation.
func (reg *Registry) Progress(arch Archetype, elapsedDays int) (int, error) {
	curve, ok := reg.curves[arch]
	if !ok {
		return 0, ErrUnknownArchetype
	}
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	week := elapsedDays / 7
	if week >= len(curve) {
		week = len(curve) - 1
	}
	return curve[week], nil
}
