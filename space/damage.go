package space

import (
	"fmt"

	generaldata "github.com/mstarongithub/twm/general-data"
	"github.com/mstarongithub/twm/surface"
)

type DamageMode int

const (
	// Redraw the whole output every frame
	DamageFull = DamageMode(iota)
	// Redraw only what changed since the last frame
	DamageTracked
)

func ParseDamageMode(name string) (DamageMode, error) {
	switch name {
	case "", "full":
		return DamageFull, nil
	case "tracked":
		return DamageTracked, nil
	default:
		return DamageFull, fmt.Errorf("unknown damage mode %q", name)
	}
}

// DamageTracker works out which part of an output needs redrawing. One per output
type DamageTracker struct {
	mode DamageMode
	// Where each surface was drawn last frame
	last     map[*surface.Surface]generaldata.Rect
	lastSize generaldata.Vector2i
	first    bool
}

func NewDamageTracker(mode DamageMode) *DamageTracker {
	return &DamageTracker{
		mode:  mode,
		last:  make(map[*surface.Surface]generaldata.Rect),
		first: true,
	}
}

func (t *DamageTracker) Mode() DamageMode {
	return t.mode
}

// Damage computes the output local damage for this frame and remembers the element positions
// for the next one. size is the output's logical size
func (t *DamageTracker) Damage(size generaldata.Vector2i, elements []RenderElement) []generaldata.Rect {
	full := generaldata.Rect{Size: size}
	seen := make(map[*surface.Surface]generaldata.Rect, len(elements))
	var damage []generaldata.Rect

	for _, e := range elements {
		seen[e.Surface] = e.Geometry
		prev, known := t.last[e.Surface]
		switch {
		case !known:
			damage = append(damage, e.Geometry)
		case prev != e.Geometry:
			damage = append(damage, prev, e.Geometry)
		default:
			damage = append(damage, e.Damage...)
		}
	}
	for s, prev := range t.last {
		if _, ok := seen[s]; !ok {
			damage = append(damage, prev)
		}
	}

	resized := size != t.lastSize
	t.last = seen
	t.lastSize = size

	if t.mode == DamageFull || t.first || resized {
		t.first = false
		return []generaldata.Rect{full}
	}
	out := make([]generaldata.Rect, 0, len(damage))
	for _, d := range damage {
		if clipped := d.Intersect(full); !clipped.IsEmpty() {
			out = append(out, clipped)
		}
	}
	return out
}
