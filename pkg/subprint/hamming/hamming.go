package hamming

import "sync"

// Table holds the Hamming distance of every byte pair, so the distance of two
// 32-bit hashes costs four lookups.
type Table struct {
	d [256][256]uint8
}

var defaultTable = sync.OnceValue(func() *Table {
	return New()
})

// Default returns the process-wide table. It is built on first use and never
// mutated afterwards.
func Default() *Table {
	return defaultTable()
}

// New builds a fresh table.
func New() *Table {
	t := &Table{}
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			x := a ^ b
			var c uint8
			for x != 0 {
				x &= x - 1
				c++
			}
			t.d[a][b] = c
		}
	}
	return t
}

// Distance returns the number of differing bits between a and b.
func (t *Table) Distance(a, b uint32) int {
	return int(t.d[a&0xff][b&0xff]) +
		int(t.d[(a>>8)&0xff][(b>>8)&0xff]) +
		int(t.d[(a>>16)&0xff][(b>>16)&0xff]) +
		int(t.d[a>>24][b>>24])
}

// Weight returns the population count of h.
func (t *Table) Weight(h uint32) int {
	return t.Distance(h, 0)
}

// SliceDistance sums Distance over two equally long slices. The caller checks
// the lengths.
func (t *Table) SliceDistance(a, b []uint32) int {
	sum := 0
	for i := range a {
		sum += t.Distance(a[i], b[i])
	}
	return sum
}

// Window is an inclusive range of accepted bit-population counts.
type Window struct {
	Min int
	Max int
}

// Probe is the window used for variant expansion and probe filtering.
var Probe = Window{Min: 14, Max: 18}

// Lookup is the looser window used when a signature indexes its own hashes.
var Lookup = Window{Min: 10, Max: 22}

// Contains reports whether the population count of h lies inside w.
func (w Window) Contains(h uint32) bool {
	n := Default().Weight(h)
	return n >= w.Min && n <= w.Max
}

// IsZero reports whether the window is unset (accept everything).
func (w Window) IsZero() bool {
	return w.Min == 0 && w.Max == 0
}
