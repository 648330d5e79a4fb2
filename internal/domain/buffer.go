package domain

// BufferSize is the capacity of every connection buffer.
const BufferSize = 8192

// Buffer is a fixed-capacity byte segment with a read cursor and a write
// cursor. Bytes between the two cursors are pending; the network read path
// appends after the write cursor, the write path drains from the read cursor.
type Buffer struct {
	data [BufferSize]byte
	r, w int
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Writable returns the free space after the pending bytes.
func (b *Buffer) Writable() []byte {
	return b.data[b.w:]
}

// Advance marks n bytes of Writable as filled.
func (b *Buffer) Advance(n int) {
	if n < 0 || b.w+n > len(b.data) {
		panic("domain: buffer advance out of range")
	}
	b.w += n
}

// Readable returns the pending bytes.
func (b *Buffer) Readable() []byte {
	return b.data[b.r:b.w]
}

// Consume drops n pending bytes from the front.
func (b *Buffer) Consume(n int) {
	if n < 0 || b.r+n > b.w {
		panic("domain: buffer consume out of range")
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
}

// Append copies p after the pending bytes and reports how many fit.
func (b *Buffer) Append(p []byte) int {
	n := copy(b.data[b.w:], p)
	b.w += n
	return n
}

func (b *Buffer) Len() int { return b.w - b.r }

func (b *Buffer) Empty() bool { return b.r == b.w }

// Full reports whether no more bytes can be appended without compacting.
func (b *Buffer) Full() bool { return b.w == len(b.data) }

// Compact moves the pending bytes to the front of the buffer.
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.data[:], b.data[b.r:b.w])
	b.r, b.w = 0, n
}

func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}
