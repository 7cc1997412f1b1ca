// Package lz77 turns byte streams into literal and back-reference tokens
// using a hash-chain match finder.
package lz77

import (
	"errors"
	"fmt"

	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// Limits of the deflate format.
const (
	MaxWindow = 32768
	MinMatch  = 3
	MaxMatch  = 258
)

// ErrInvalidDistance is returned by Decode for a match reaching before the
// start of the output.
var ErrInvalidDistance = errors.New("lz77: match distance out of range")

// Token is a literal byte (Length == 0) or a match copying Length bytes from
// Distance bytes back.
type Token struct {
	Length   uint16
	Distance uint16
	Literal  byte
}

// Literal returns a literal token.
func Literal(b byte) Token { return Token{Literal: b} }

// Match returns a back-reference token.
func Match(length, distance int) Token {
	return Token{Length: uint16(length), Distance: uint16(distance)}
}

// IsLiteral reports whether t is a literal.
func (t Token) IsLiteral() bool { return t.Length == 0 }

func (t Token) String() string {
	if t.IsLiteral() {
		return fmt.Sprintf("lit(%#02x)", t.Literal)
	}
	return fmt.Sprintf("match(%d,%d)", t.Length, t.Distance)
}

// Options tune the match finder.
type Options struct {
	// Window is the maximum match distance; a power of two up to MaxWindow.
	Window int
	// MinMatch is the shortest match emitted; shorter repeats are literals.
	MinMatch int
	// MaxMatch is the longest match emitted.
	MaxMatch int
	// ChainLimit bounds the candidates examined per position.
	ChainLimit int
}

// DefaultOptions returns the deflate limits with a moderate chain length.
func DefaultOptions() Options {
	return Options{Window: MaxWindow, MinMatch: MinMatch, MaxMatch: MaxMatch, ChainLimit: 64}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.Window <= 0 || o.Window > MaxWindow || o.Window&(o.Window-1) != 0 {
		o.Window = d.Window
	}
	if o.MinMatch < MinMatch {
		o.MinMatch = MinMatch
	}
	if o.MaxMatch <= 0 || o.MaxMatch > MaxMatch {
		o.MaxMatch = d.MaxMatch
	}
	if o.MaxMatch < o.MinMatch {
		o.MaxMatch = o.MinMatch
	}
	if o.ChainLimit <= 0 {
		o.ChainLimit = d.ChainLimit
	}
	return o
}

// Tokenize tokenizes data in one call.
func Tokenize(data []byte, opts Options) []Token {
	t := NewTokenizer(opts)
	t.Write(data)
	return t.Close()
}

// FromRuns tokenizes a run sequence. Long runs are encoded as distance-1
// matches without expanding them in memory.
func FromRuns(runs []raster.Run, opts Options) []Token {
	t := NewTokenizer(opts)
	for _, r := range runs {
		t.WriteRun(r.Length, r.Value)
	}
	return t.Close()
}

// Decode expands tokens back into bytes.
func Decode(tokens []Token) ([]byte, error) {
	var out []byte
	for i, tok := range tokens {
		if tok.IsLiteral() {
			out = append(out, tok.Literal)
			continue
		}
		d := int(tok.Distance)
		if d == 0 || d > len(out) {
			return nil, fmt.Errorf("%w: token %d distance %d with %d bytes of output",
				ErrInvalidDistance, i, d, len(out))
		}
		start := len(out) - d
		for k := 0; k < int(tok.Length); k++ {
			out = append(out, out[start+k])
		}
	}
	return out, nil
}
