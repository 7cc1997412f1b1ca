// Package bits packs values into a byte buffer at bit granularity.
package bits

import (
	"errors"
	mbits "math/bits"
)

// ErrUnexpectedEOF is returned when a Reader runs out of input.
var ErrUnexpectedEOF = errors.New("bits: unexpected end of data")

// Buffer is an append-only bit sink. Bits fill each byte from the least
// significant bit upwards.
type Buffer struct {
	data []byte
	// used is the number of bits already written into the last byte (0 means
	// the buffer is byte aligned).
	used uint
}

// NewBuffer returns a buffer with room for capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Extend appends the low n bits of value, least significant bit first.
func (b *Buffer) Extend(value uint64, n uint) {
	for n > 0 {
		if b.used == 0 {
			b.data = append(b.data, 0)
		}
		k := 8 - b.used
		if k > n {
			k = n
		}
		b.data[len(b.data)-1] |= byte(value&(1<<k-1)) << b.used
		value >>= k
		n -= k
		b.used = (b.used + k) % 8
	}
}

// ExtendRev appends the low n bits of value starting from bit n-1, so the
// most significant bit of the field is written first. Huffman codes are
// written this way.
func (b *Buffer) ExtendRev(value uint64, n uint) {
	if n == 0 {
		return
	}
	b.Extend(mbits.Reverse64(value)>>(64-n), n)
}

// FinishByte pads the current byte with zero bits.
func (b *Buffer) FinishByte() {
	b.used = 0
}

// WriteBytes aligns the buffer and appends p.
func (b *Buffer) WriteBytes(p []byte) {
	b.FinishByte()
	b.data = append(b.data, p...)
}

// Bytes returns the written bytes, including a partially filled last byte.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bits written, counting padding from FinishByte.
func (b *Buffer) Len() int {
	if b.used == 0 {
		return len(b.data) * 8
	}
	return (len(b.data)-1)*8 + int(b.used)
}

// Reader reads bits in the order Buffer writes them.
type Reader struct {
	data []byte
	pos  uint64 // bit position
}

// NewReader returns a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Read returns the next n bits (n <= 64), least significant bit first.
func (r *Reader) Read(n uint) (uint64, error) {
	if r.pos+uint64(n) > uint64(len(r.data))*8 {
		return 0, ErrUnexpectedEOF
	}
	var v uint64
	for i := uint(0); i < n; i++ {
		bit := (r.data[r.pos>>3] >> (r.pos & 7)) & 1
		v |= uint64(bit) << i
		r.pos++
	}
	return v, nil
}

// ReadBit returns the next bit.
func (r *Reader) ReadBit() (uint64, error) {
	return r.Read(1)
}

// ReadRev reads n bits written by ExtendRev.
func (r *Reader) ReadRev(n uint) (uint64, error) {
	v, err := r.Read(n)
	if err != nil || n == 0 {
		return 0, err
	}
	return mbits.Reverse64(v) >> (64 - n), nil
}

// AlignByte skips to the next byte boundary.
func (r *Reader) AlignByte() {
	r.pos = (r.pos + 7) &^ 7
}

// Offset returns the current byte offset, rounding partial bytes up.
func (r *Reader) Offset() int {
	return int((r.pos + 7) / 8)
}
