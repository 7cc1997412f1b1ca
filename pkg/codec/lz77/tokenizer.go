package lz77

const (
	hashBits = 15
	hashSize = 1 << hashBits
)

// Tokenizer is a streaming LZ77 encoder. Input is buffered until enough
// lookahead exists to find a full-length match.
type Tokenizer struct {
	opts Options
	mask int64

	buf    []byte
	base   int64 // absolute position of buf[0]
	pos    int   // next byte to encode
	hashed int   // next position to insert into the chains

	// head and prev hold absolute positions plus one; zero means none.
	head []int64
	prev []int64

	tokens []Token
}

// NewTokenizer returns a tokenizer with normalized options.
func NewTokenizer(opts Options) *Tokenizer {
	opts = opts.normalize()
	return &Tokenizer{
		opts: opts,
		mask: int64(opts.Window - 1),
		head: make([]int64, hashSize),
		prev: make([]int64, opts.Window),
	}
}

// Write feeds bytes to the tokenizer.
func (t *Tokenizer) Write(p []byte) {
	t.buf = append(t.buf, p...)
	t.process(false)
}

// WriteRun feeds length copies of value. Runs much longer than a match are
// emitted as a literal followed by distance-1 matches.
func (t *Tokenizer) WriteRun(length uint64, value byte) {
	if length == 0 {
		return
	}
	if length < uint64(4*t.opts.MaxMatch) {
		for i := uint64(0); i < length; i++ {
			t.buf = append(t.buf, value)
		}
		t.process(false)
		return
	}

	t.buf = append(t.buf, value)
	t.process(true)

	rem := length - 1
	for rem > 0 {
		n := uint64(t.opts.MaxMatch)
		if rem < n {
			n = rem
		}
		if n < uint64(t.opts.MinMatch) {
			for i := uint64(0); i < n; i++ {
				t.tokens = append(t.tokens, Literal(value))
			}
		} else {
			t.tokens = append(t.tokens, Match(int(n), 1))
		}
		rem -= n
	}

	// Keep one window of the run as history; the skipped middle is never
	// hashed.
	keep := length - 1
	if keep > uint64(t.opts.Window) {
		t.base += int64(keep) - int64(t.opts.Window)
		t.slideAll()
		keep = uint64(t.opts.Window)
	}
	for i := uint64(0); i < keep; i++ {
		t.buf = append(t.buf, value)
	}
	t.pos = len(t.buf)
	if skip := len(t.buf) - t.opts.MaxMatch - 2; t.hashed < skip {
		t.hashed = skip
	}
	t.slide()
}

// Close encodes any buffered input and returns all tokens.
func (t *Tokenizer) Close() []Token {
	t.process(true)
	return t.tokens
}

// Tokens returns the tokens emitted so far.
func (t *Tokenizer) Tokens() []Token { return t.tokens }

func (t *Tokenizer) process(final bool) {
	for t.pos < len(t.buf) {
		if !final && len(t.buf)-t.pos < t.opts.MaxMatch {
			break
		}
		t.catchUp(t.pos)
		length, dist := t.findMatch(t.pos)
		if length >= t.opts.MinMatch {
			t.tokens = append(t.tokens, Match(length, dist))
			t.pos += length
		} else {
			t.tokens = append(t.tokens, Literal(t.buf[t.pos]))
			t.pos++
		}
	}
	t.slide()
}

// catchUp inserts every position before limit that has three bytes available.
func (t *Tokenizer) catchUp(limit int) {
	for t.hashed < limit && t.hashed+2 < len(t.buf) {
		t.insert(t.hashed)
		t.hashed++
	}
}

func (t *Tokenizer) hash(i int) int {
	b := t.buf[i : i+3]
	return (int(b[0])<<10 ^ int(b[1])<<5 ^ int(b[2])) & (hashSize - 1)
}

func (t *Tokenizer) insert(i int) {
	h := t.hash(i)
	abs := t.base + int64(i)
	t.prev[abs&t.mask] = t.head[h]
	t.head[h] = abs + 1
}

func (t *Tokenizer) findMatch(i int) (int, int) {
	if i+t.opts.MinMatch > len(t.buf) {
		return 0, 0
	}
	limit := len(t.buf) - i
	if limit > t.opts.MaxMatch {
		limit = t.opts.MaxMatch
	}

	abs := t.base + int64(i)
	window := int64(t.opts.Window)
	bestLen, bestDist := 0, 0
	cand := t.head[t.hash(i)]
	for chain := 0; cand != 0 && chain < t.opts.ChainLimit; chain++ {
		c := cand - 1
		if c >= abs || abs-c > window || c < t.base {
			break
		}
		j := int(c - t.base)
		n := 0
		for n < limit && t.buf[j+n] == t.buf[i+n] {
			n++
		}
		if n > bestLen {
			bestLen, bestDist = n, int(abs-c)
			if n == limit {
				break
			}
		}
		next := t.prev[c&t.mask]
		if next != 0 && next-1 >= c {
			break
		}
		cand = next
	}
	return bestLen, bestDist
}

// slide drops history older than one window behind pos.
func (t *Tokenizer) slide() {
	drop := t.pos - t.opts.Window
	if drop < t.opts.Window {
		return
	}
	n := copy(t.buf, t.buf[drop:])
	t.buf = t.buf[:n]
	t.base += int64(drop)
	t.pos -= drop
	t.hashed -= drop
	if t.hashed < 0 {
		t.hashed = 0
	}
}

// slideAll discards the whole buffer after base has been advanced past it.
func (t *Tokenizer) slideAll() {
	t.base += int64(len(t.buf))
	t.buf = t.buf[:0]
	t.pos = 0
	t.hashed = 0
}
