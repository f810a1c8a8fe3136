package generaldata

import (
	"fmt"
	"strings"
)

// Transform describes how an output's content is rotated and flipped on the physical display.
// Rotations are counter-clockwise. Flipped variants mirror around the vertical axis first
type Transform int

const (
	TransformNormal = Transform(iota)
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

var transformNames = map[Transform]string{
	TransformNormal:     "normal",
	Transform90:         "90",
	Transform180:        "180",
	Transform270:        "270",
	TransformFlipped:    "flipped",
	TransformFlipped90:  "flipped-90",
	TransformFlipped180: "flipped-180",
	TransformFlipped270: "flipped-270",
}

func (t Transform) String() string {
	if name, ok := transformNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Transform(%d)", int(t))
}

// ParseTransform turns a config name like "flipped-180" back into a Transform
func ParseTransform(name string) (Transform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return TransformNormal, nil
	}
	for t, n := range transformNames {
		if n == name {
			return t, nil
		}
	}
	return TransformNormal, fmt.Errorf("unknown transform %q", name)
}

func (t Transform) flipped() bool {
	return t >= TransformFlipped
}

func (t Transform) quarterTurns() int {
	return int(t) % 4
}

// TransformSize returns the logical size of a buffer or mode of the given physical size
func (t Transform) TransformSize(size Vector2i) Vector2i {
	if t.quarterTurns()%2 == 1 {
		return Vector2i{X: size.Y, Y: size.X}
	}
	return size
}

// TransformNormalized maps a device position in [0,1]x[0,1] (as seen on the physical display)
// into the same range in the output's logical space
func (t Transform) TransformNormalized(p Point) Point {
	if t.flipped() {
		p.X = 1 - p.X
	}
	for i := 0; i < t.quarterTurns(); i++ {
		p = Point{X: p.Y, Y: 1 - p.X}
	}
	return p
}
