package surface

import (
	generaldata "github.com/mstarongithub/twm/general-data"
)

// Buffer is client provided pixel content. Either a solid ARGB colour
// or Size.X*Size.Y*4 bytes of premultiplied ARGB in Pixels (little endian, so BGRA in memory).
// While a surface shows the buffer, the surface owns it and the client must not touch it
// until the buffer is released
type Buffer struct {
	ID     uint32
	Client generaldata.ClientID
	Size   generaldata.Vector2i
	Scale  int
	Color  uint32
	Pixels []byte

	owner     *Surface
	destroyed bool
}

// LogicalSize is the buffer size divided by its scale
func (b *Buffer) LogicalSize() generaldata.Vector2i {
	scale := max(b.Scale, 1)
	return generaldata.Vector2i{X: b.Size.X / scale, Y: b.Size.Y / scale}
}

// Owner returns the surface currently presenting the buffer
func (b *Buffer) Owner() *Surface {
	return b.owner
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}
