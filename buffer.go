package praktor

// ImmutableBuffer is a read-only view over a byte region of fixed length,
// used to deliver inbound payloads to read/receive handlers (§3).
type ImmutableBuffer struct {
	data []byte
}

// NewImmutableBuffer wraps data as an ImmutableBuffer. Ownership of data
// transfers to the buffer; callers must not mutate it afterward.
func NewImmutableBuffer(data []byte) ImmutableBuffer {
	return ImmutableBuffer{data: data}
}

// Bytes returns the buffer's contents. The returned slice must be treated
// as read-only.
func (b ImmutableBuffer) Bytes() []byte { return b.data }

// Len returns the buffer's length.
func (b ImmutableBuffer) Len() int { return len(b.data) }

// MutableBuffer is a growable byte region with a capacity C and a current
// size S ≤ C, used for outbound payloads and the framing accumulator (§3,
// §4.4 F1).
type MutableBuffer struct {
	data []byte // len(data) == capacity
	size int
}

// NewMutableBuffer allocates a MutableBuffer with the given capacity and
// zero size.
func NewMutableBuffer(capacity int) *MutableBuffer {
	return &MutableBuffer{data: make([]byte, capacity)}
}

// WrapMutableBuffer wraps an existing slice as a MutableBuffer whose
// capacity is cap(data) and whose initial size is len(data).
func WrapMutableBuffer(data []byte) *MutableBuffer {
	full := data[:cap(data)]
	return &MutableBuffer{data: full, size: len(data)}
}

// Cap returns the buffer's capacity.
func (b *MutableBuffer) Cap() int { return cap(b.data) }

// Size returns the buffer's current size.
func (b *MutableBuffer) Size() int { return b.size }

// SetSize sets the current size, clamped to the capacity.
func (b *MutableBuffer) SetSize(n int) {
	if n < 0 {
		n = 0
	}
	if n > cap(b.data) {
		n = cap(b.data)
	}
	b.size = n
}

// Fill overwrites the buffer from offset 0 with src, truncated to
// capacity, and sets size to the number of bytes copied.
func (b *MutableBuffer) Fill(src []byte) int {
	n := copy(b.data[:cap(b.data)], src)
	b.size = n
	return n
}

// PutN copies up to n bytes from src into the buffer starting at offset,
// truncated to capacity, and extends size if the write reaches past the
// current size.
func (b *MutableBuffer) PutN(offset int, src []byte, n int) int {
	if offset < 0 || offset > cap(b.data) {
		return 0
	}
	avail := cap(b.data) - offset
	if n > avail {
		n = avail
	}
	if n > len(src) {
		n = len(src)
	}
	copied := copy(b.data[offset:offset+n], src[:n])
	if offset+copied > b.size {
		b.size = offset + copied
	}
	return copied
}

// Expand grows the buffer's capacity by n bytes without changing its
// current size.
func (b *MutableBuffer) Expand(n int) {
	if n <= 0 {
		return
	}
	grown := make([]byte, cap(b.data)+n)
	copy(grown, b.data[:b.size])
	b.data = grown
}

// Bytes returns the buffer's contents up to its current size.
func (b *MutableBuffer) Bytes() []byte { return b.data[:b.size] }

// Reset sets size back to zero without releasing capacity.
func (b *MutableBuffer) Reset() { b.size = 0 }
