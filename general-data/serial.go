package generaldata

// ClientID identifies one connected client. Zero is never handed out
type ClientID uint32

// Serial tags input events and configure transactions. Serials wrap around,
// so compare them with IsNoOlderThan instead of <
type Serial uint32

// IsNoOlderThan reports whether s was produced at the same time or after other,
// assuming both are less than half the serial space apart
func (s Serial) IsNoOlderThan(other Serial) bool {
	return uint32(s)-uint32(other) < 1<<31
}

// SerialCounter hands out serials. Only the control loop uses it, so it is not locked
type SerialCounter struct {
	last uint32
}

// Next returns a fresh serial. Zero is skipped so it can mean "no serial"
func (c *SerialCounter) Next() Serial {
	c.last++
	if c.last == 0 {
		c.last++
	}
	return Serial(c.last)
}

// Last returns the most recently handed out serial
func (c *SerialCounter) Last() Serial {
	return Serial(c.last)
}
