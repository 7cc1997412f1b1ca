// Package adler implements the Adler-32 checksum with a closed-form update
// for runs of a repeated byte.
package adler

const mod = 65521

// Checksum is a running Adler-32 state. The zero value is not ready; use New.
type Checksum struct {
	a, b uint32
}

// New returns a checksum over the empty input.
func New() *Checksum {
	return &Checksum{a: 1}
}

// Update adds data byte by byte.
func (c *Checksum) Update(data []byte) {
	a, b := c.a, c.b
	for len(data) > 0 {
		// 5552 is the largest n with 255n(n+1)/2 + (n+1)(mod-1) < 2^32.
		n := len(data)
		if n > 5552 {
			n = 5552
		}
		for _, v := range data[:n] {
			a += uint32(v)
			b += a
		}
		a %= mod
		b %= mod
		data = data[n:]
	}
	c.a, c.b = a, b
}

// UpdateRun adds length copies of value without iterating over them:
//
//	a' = a + L*V
//	b' = b + L*a + V*L*(L+1)/2
func (c *Checksum) UpdateRun(length uint64, value byte) {
	if length == 0 {
		return
	}
	l := length % mod
	v := uint64(value)
	a := uint64(c.a)
	b := uint64(c.b)

	// L*(L+1)/2 mod m, halving whichever factor is even before reducing.
	x, y := length, length+1
	if x%2 == 0 {
		x /= 2
	} else {
		y /= 2
	}
	tri := (x % mod) * (y % mod) % mod

	b = (b + l*a + v*tri) % mod
	a = (a + l*v) % mod
	c.a, c.b = uint32(a), uint32(b)
}

// Sum32 returns the checksum value.
func (c *Checksum) Sum32() uint32 {
	return c.b<<16 | c.a
}

// Reset returns the checksum to its initial state.
func (c *Checksum) Reset() {
	c.a, c.b = 1, 0
}
