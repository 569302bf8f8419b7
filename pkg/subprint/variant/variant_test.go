package variant

import (
	"testing"

	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

func identityRanks() signature.Reliability {
	var r signature.Reliability
	for b := range r {
		r[b] = byte(b)
	}
	return r
}

func TestExpandZeroFlips(t *testing.T) {
	e := New()

	in := uint32(0x0000ffff) // popcount 16
	got := e.Expand(in, identityRanks(), 0)
	if len(got) != 1 || got[0] != in {
		t.Errorf("Expected [%d], got %v", in, got)
	}

	sparse := uint32(0x1f) // popcount 5
	if got := e.Expand(sparse, identityRanks(), 0); len(got) != 0 {
		t.Errorf("Expected sparse hash to be filtered out, got %v", got)
	}
}

func TestExpandUnfiltered(t *testing.T) {
	e := &Expander{}

	got := e.Expand(0, identityRanks(), 3)
	if len(got) != 8 {
		t.Fatalf("Expected 8 variants, got %d: %v", len(got), got)
	}
	for _, v := range got {
		if v&^0x7 != 0 {
			t.Errorf("Variant %b flips a bit other than the three least reliable", v)
		}
	}
}

func TestExpandFlipsLeastReliableFirst(t *testing.T) {
	e := &Expander{}

	var rel signature.Reliability
	for b := range rel {
		rel[b] = byte(31 - b) // bit 31 is least reliable
	}
	got := e.Expand(0, rel, 1)
	if len(got) != 2 || got[1] != 1<<31 {
		t.Errorf("Expected [0 1<<31], got %v", got)
	}
}

func TestExpandCapsFlips(t *testing.T) {
	e := &Expander{}
	got := e.Expand(0, identityRanks(), 20)
	if len(got) != 1<<MaxFlips {
		t.Errorf("Expected %d variants, got %d", 1<<MaxFlips, len(got))
	}
}

func TestExpandMissingRankSkipped(t *testing.T) {
	e := &Expander{}
	var rel signature.Reliability
	for b := range rel {
		rel[b] = 31 // no bit has rank 0..30
	}
	rel[4] = 1
	got := e.Expand(0, rel, 2)
	if len(got) != 2 || got[1] != 1<<4 {
		t.Errorf("Expected [0 16], got %v", got)
	}
}

func TestExpandQualityWindow(t *testing.T) {
	e := New()
	in := uint32(0x0000ffff)
	for _, v := range e.Expand(in, identityRanks(), 6) {
		if !hamming.Probe.Contains(v) {
			t.Errorf("Variant %08x falls outside the probe window", v)
		}
	}
}
