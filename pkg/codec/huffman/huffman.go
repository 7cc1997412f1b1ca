// Package huffman builds length-limited canonical prefix codes.
package huffman

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/resin-slicer/pkg/codec/bits"
)

// Errors returned when building or decoding codes.
var (
	ErrTooManySymbols = errors.New("huffman: too many symbols for maximum length")
	ErrInvalidLengths = errors.New("huffman: code lengths are over-subscribed")
	ErrInvalidCode    = errors.New("huffman: invalid code")
)

// Code is a symbol's code value and its length in bits. A zero Len means the
// symbol has no code.
type Code struct {
	Bits uint16
	Len  uint8
}

type item struct {
	weight uint64
	syms   []uint16
}

// BuildLengths returns a code length per symbol using package-merge, so
// that no length exceeds maxLen and the total weighted length is minimal
// under that limit. Symbols with zero frequency get length 0. A lone used
// symbol gets length 1.
func BuildLengths(freqs []uint32, maxLen int) ([]uint8, error) {
	lengths := make([]uint8, len(freqs))

	var leaves []item
	for s, f := range freqs {
		if f > 0 {
			leaves = append(leaves, item{weight: uint64(f), syms: []uint16{uint16(s)}})
		}
	}
	switch n := len(leaves); {
	case n == 0:
		return lengths, nil
	case n == 1:
		lengths[leaves[0].syms[0]] = 1
		return lengths, nil
	case maxLen < 1 || maxLen > 30 || n > 1<<maxLen:
		return nil, fmt.Errorf("%w: %d symbols, max length %d", ErrTooManySymbols, n, maxLen)
	}

	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].weight < leaves[j].weight })

	current := leaves
	for level := 1; level < maxLen; level++ {
		packages := make([]item, 0, len(current)/2)
		for i := 0; i+1 < len(current); i += 2 {
			syms := make([]uint16, 0, len(current[i].syms)+len(current[i+1].syms))
			syms = append(syms, current[i].syms...)
			syms = append(syms, current[i+1].syms...)
			packages = append(packages, item{weight: current[i].weight + current[i+1].weight, syms: syms})
		}
		current = merge(leaves, packages)
	}

	for _, it := range current[:2*len(leaves)-2] {
		for _, s := range it.syms {
			lengths[s]++
		}
	}
	return lengths, nil
}

// merge combines two weight-sorted lists, preferring leaves on ties.
func merge(a, b []item) []item {
	out := make([]item, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].weight <= b[j].weight {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Canonical assigns codes from lengths: shorter codes first, and within one
// length in increasing symbol order.
func Canonical(lengths []uint8) []Code {
	var count [32]uint16
	maxLen := uint8(0)
	for _, l := range lengths {
		if l > 0 {
			count[l]++
			if l > maxLen {
				maxLen = l
			}
		}
	}

	var next [32]uint16
	code := uint16(0)
	for l := uint8(1); l <= maxLen; l++ {
		code = (code + count[l-1]) << 1
		next[l] = code
	}

	codes := make([]Code, len(lengths))
	for s, l := range lengths {
		if l == 0 {
			continue
		}
		codes[s] = Code{Bits: next[l], Len: l}
		next[l]++
	}
	return codes
}

// Encode writes c most significant bit first.
func Encode(buf *bits.Buffer, c Code) {
	buf.ExtendRev(uint64(c.Bits), uint(c.Len))
}

// Decoder reads symbols coded with the canonical code for a set of lengths.
type Decoder struct {
	count   []uint16 // codes per length
	symbols []uint16 // symbols ordered by (length, symbol)
}

// NewDecoder validates lengths and prepares a decoder.
func NewDecoder(lengths []uint8) (*Decoder, error) {
	d := &Decoder{count: make([]uint16, 32)}
	for _, l := range lengths {
		d.count[l]++
	}
	d.count[0] = 0

	left := 1
	for l := 1; l < len(d.count); l++ {
		left <<= 1
		left -= int(d.count[l])
		if left < 0 {
			return nil, ErrInvalidLengths
		}
	}

	offs := make([]uint16, len(d.count)+1)
	for l := 1; l < len(d.count); l++ {
		offs[l+1] = offs[l] + d.count[l]
	}
	d.symbols = make([]uint16, offs[len(d.count)])
	for s, l := range lengths {
		if l != 0 {
			d.symbols[offs[l]] = uint16(s)
			offs[l]++
		}
	}
	return d, nil
}

// Decode reads one symbol.
func (d *Decoder) Decode(r *bits.Reader) (int, error) {
	code, first, index := 0, 0, 0
	for l := 1; l < len(d.count); l++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		code |= int(b)
		n := int(d.count[l])
		if code-first < n {
			return int(d.symbols[index+code-first]), nil
		}
		index += n
		first += n
		first <<= 1
		code <<= 1
	}
	return 0, ErrInvalidCode
}
