// Package deflate writes zlib streams made of dynamic-Huffman deflate blocks.
package deflate

import (
	"encoding/binary"

	"github.com/Faultbox/resin-slicer/pkg/codec/adler"
	"github.com/Faultbox/resin-slicer/pkg/codec/bits"
	"github.com/Faultbox/resin-slicer/pkg/codec/huffman"
	"github.com/Faultbox/resin-slicer/pkg/codec/lz77"
	"github.com/Faultbox/resin-slicer/pkg/raster"
)

// zlib header: deflate, 32 KiB window, default compression level.
var zlibHeader = []byte{0x78, 0x9C}

// Options configure a Writer.
type Options struct {
	LZ77 lz77.Options
	// BlockTokens is the maximum number of tokens per deflate block.
	BlockTokens int
}

// DefaultOptions returns the options used by Encode and EncodeRuns.
func DefaultOptions() Options {
	return Options{LZ77: lz77.DefaultOptions(), BlockTokens: 1 << 16}
}

// Writer encodes complete inputs into zlib streams. It holds no state
// between calls and may be shared.
type Writer struct {
	opts Options
}

// NewWriter returns a writer with the given options.
func NewWriter(opts Options) *Writer {
	if opts.BlockTokens <= 0 {
		opts.BlockTokens = DefaultOptions().BlockTokens
	}
	return &Writer{opts: opts}
}

// Encode compresses data.
func (w *Writer) Encode(data []byte) []byte {
	sum := adler.New()
	sum.Update(data)
	return w.EncodeTokens(lz77.Tokenize(data, w.opts.LZ77), sum.Sum32())
}

// EncodeRuns compresses the bytes described by runs without expanding them.
func (w *Writer) EncodeRuns(runs []raster.Run) []byte {
	sum := adler.New()
	for _, r := range runs {
		sum.UpdateRun(r.Length, r.Value)
	}
	return w.EncodeTokens(lz77.FromRuns(runs, w.opts.LZ77), sum.Sum32())
}

// EncodeTokens wraps tokens in a zlib stream whose trailer is checksum, the
// Adler-32 of the decoded bytes.
func (w *Writer) EncodeTokens(tokens []lz77.Token, checksum uint32) []byte {
	buf := bits.NewBuffer(len(tokens)/2 + 16)
	buf.WriteBytes(zlibHeader)

	for start := 0; ; start += w.opts.BlockTokens {
		end := start + w.opts.BlockTokens
		final := end >= len(tokens)
		if final {
			end = len(tokens)
		}
		writeBlock(buf, tokens[start:end], final)
		if final {
			break
		}
	}

	buf.FinishByte()
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], checksum)
	buf.WriteBytes(trailer[:])
	return buf.Bytes()
}

// Encode compresses data with the default options.
func Encode(data []byte) []byte {
	return NewWriter(DefaultOptions()).Encode(data)
}

// EncodeRuns compresses runs with the default options.
func EncodeRuns(runs []raster.Run) []byte {
	return NewWriter(DefaultOptions()).EncodeRuns(runs)
}

// ensureTwo gives fallback symbols a count so that at least two codes exist
// and the resulting code is complete.
func ensureTwo(freqs []uint32, fallback ...int) {
	used := 0
	for _, f := range freqs {
		if f > 0 {
			used++
		}
	}
	for _, s := range fallback {
		if used >= 2 {
			return
		}
		if freqs[s] == 0 {
			freqs[s] = 1
			used++
		}
	}
}

func buildCodes(freqs []uint32, maxBits int) ([]uint8, []huffman.Code) {
	lengths, err := huffman.BuildLengths(freqs, maxBits)
	if err != nil {
		// Every alphabet used here fits its length limit.
		panic(err)
	}
	return lengths, huffman.Canonical(lengths)
}

func writeBlock(buf *bits.Buffer, tokens []lz77.Token, final bool) {
	litFreq := make([]uint32, numLitLen)
	distFreq := make([]uint32, numDist)
	for _, t := range tokens {
		if t.IsLiteral() {
			litFreq[t.Literal]++
			continue
		}
		litFreq[257+int(lengthCodes[t.Length])]++
		distFreq[distCode(int(t.Distance))]++
	}
	litFreq[endOfBlock] = 1
	ensureTwo(litFreq, 0, 1)
	ensureTwo(distFreq, 0, 1)

	litLens, litCodes := buildCodes(litFreq, maxCodeBits)
	distLens, distCodes := buildCodes(distFreq, maxCodeBits)

	hlit := numLitLen
	for hlit > 257 && litLens[hlit-1] == 0 {
		hlit--
	}
	hdist := numDist
	for hdist > 1 && distLens[hdist-1] == 0 {
		hdist--
	}

	all := make([]uint8, 0, hlit+hdist)
	all = append(all, litLens[:hlit]...)
	all = append(all, distLens[:hdist]...)
	symbols := runLengthCodeLengths(all)

	clFreq := make([]uint32, numCodeLen)
	for _, s := range symbols {
		clFreq[s.code]++
	}
	ensureTwo(clFreq, 0, 18)
	clLens, clCodes := buildCodes(clFreq, maxCLBits)

	hclen := numCodeLen
	for hclen > 4 && clLens[codeLenOrder[hclen-1]] == 0 {
		hclen--
	}

	if final {
		buf.Extend(1, 1)
	} else {
		buf.Extend(0, 1)
	}
	buf.Extend(2, 2)
	buf.Extend(uint64(hlit-257), 5)
	buf.Extend(uint64(hdist-1), 5)
	buf.Extend(uint64(hclen-4), 4)
	for _, s := range codeLenOrder[:hclen] {
		buf.Extend(uint64(clLens[s]), 3)
	}
	for _, s := range symbols {
		huffman.Encode(buf, clCodes[s.code])
		if s.bits > 0 {
			buf.Extend(uint64(s.extra), s.bits)
		}
	}

	for _, t := range tokens {
		if t.IsLiteral() {
			huffman.Encode(buf, litCodes[t.Literal])
			continue
		}
		lc := lengthCodes[t.Length]
		huffman.Encode(buf, litCodes[257+int(lc)])
		if n := lengthExtra[lc]; n > 0 {
			buf.Extend(uint64(t.Length-lengthBase[lc]), uint(n))
		}
		dc := distCode(int(t.Distance))
		huffman.Encode(buf, distCodes[dc])
		if n := distExtra[dc]; n > 0 {
			buf.Extend(uint64(t.Distance-distBase[dc]), uint(n))
		}
	}
	huffman.Encode(buf, litCodes[endOfBlock])
}

type clSymbol struct {
	code  uint8
	extra uint8
	bits  uint
}

// runLengthCodeLengths compresses a code length sequence with the repeat
// symbols 16 (previous length 3-6 times), 17 (zero 3-10 times) and 18
// (zero 11-138 times).
func runLengthCodeLengths(lengths []uint8) []clSymbol {
	var out []clSymbol
	for i := 0; i < len(lengths); {
		v := lengths[i]
		n := 1
		for i+n < len(lengths) && lengths[i+n] == v {
			n++
		}
		i += n

		if v == 0 {
			for n >= 11 {
				k := min(n, 138)
				out = append(out, clSymbol{code: 18, extra: uint8(k - 11), bits: 7})
				n -= k
			}
			if n >= 3 {
				out = append(out, clSymbol{code: 17, extra: uint8(n - 3), bits: 3})
				n = 0
			}
		} else {
			out = append(out, clSymbol{code: v})
			n--
			for n >= 3 {
				k := min(n, 6)
				out = append(out, clSymbol{code: 16, extra: uint8(k - 3), bits: 2})
				n -= k
			}
		}
		for ; n > 0; n-- {
			out = append(out, clSymbol{code: v})
		}
	}
	return out
}
