package hamming

import (
	"math/bits"
	"math/rand"
	"testing"
)

func TestDistanceIdentityAndComplement(t *testing.T) {
	tbl := Default()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		h := rng.Uint32()
		if d := tbl.Distance(h, h); d != 0 {
			t.Fatalf("Distance(%d, %d) = %d, expected 0", h, h, d)
		}
		if d := tbl.Distance(h, ^h); d != 32 {
			t.Fatalf("Distance(%d, ^%d) = %d, expected 32", h, h, d)
		}
	}
}

func TestDistanceMatchesPopcount(t *testing.T) {
	tbl := New()
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 1000; i++ {
		a, b := rng.Uint32(), rng.Uint32()
		want := bits.OnesCount32(a ^ b)
		if got := tbl.Distance(a, b); got != want {
			t.Fatalf("Distance(%08x, %08x) = %d, expected %d", a, b, got, want)
		}
		if got := tbl.Distance(b, a); got != want {
			t.Fatalf("Distance is not symmetric for %08x, %08x", a, b)
		}
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Error("Expected Default to return the same table")
	}
}

func TestSliceDistance(t *testing.T) {
	a := []uint32{0, 0xffffffff, 0x0f0f0f0f}
	b := []uint32{1, 0, 0x0f0f0f0f}
	if got := Default().SliceDistance(a, b); got != 33 {
		t.Errorf("Expected 33, got %d", got)
	}
}

func TestWindowContains(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		h    uint32
		want bool
	}{
		{"popcount 16 in probe window", Probe, 0x0000ffff, true},
		{"popcount 5 outside probe window", Probe, 0x1f, false},
		{"popcount 14 lower edge", Probe, 0x3fff, true},
		{"popcount 19 above probe window", Probe, 0x7ffff, false},
		{"popcount 10 in lookup window", Lookup, 0x3ff, true},
		{"popcount 23 outside lookup window", Lookup, 0x7fffff, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Contains(tt.h); got != tt.want {
				t.Errorf("Contains(%08x) = %v, expected %v", tt.h, got, tt.want)
			}
		})
	}
}
