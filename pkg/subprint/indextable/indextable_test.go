package indextable

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestAddTryGet(t *testing.T) {
	tbl, err := New(8, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []int32{3, 17, 250}
	if err := tbl.Add(42, want); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := tbl.TryGet(42)
	if !ok {
		t.Fatal("Expected key 42 to be present")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, ok := tbl.TryGet(43); ok {
		t.Error("Expected key 43 to be absent")
	}
}

func TestAddDuplicateKey(t *testing.T) {
	tbl, _ := New(4, 4)
	if err := tbl.Add(7, []int32{1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	err := tbl.Add(7, []int32{2})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := tbl.TryGet(7)
	if !reflect.DeepEqual(got, []int32{1}) {
		t.Errorf("Duplicate insert must not overwrite, got %v", got)
	}
}

func TestTableFull(t *testing.T) {
	tbl, _ := New(3, 10)
	for k := uint32(0); k < 3; k++ {
		if err := tbl.Add(k, []int32{int32(k)}); err != nil {
			t.Fatalf("Add(%d) failed: %v", k, err)
		}
	}
	if err := tbl.Add(99, nil); !errors.Is(err, ErrTableFull) {
		t.Fatalf("Expected ErrTableFull, got %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", tbl.Len())
	}
}

func TestArenaFull(t *testing.T) {
	tbl, _ := New(2, 1)
	if err := tbl.Add(1, []int32{1, 2, 3, 4}); !errors.Is(err, ErrArenaFull) {
		t.Fatalf("Expected ErrArenaFull, got %v", err)
	}
}

func TestEmptyValues(t *testing.T) {
	tbl, _ := New(4, 0)
	if err := tbl.Add(5, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, ok := tbl.TryGet(5)
	if !ok || len(got) != 0 {
		t.Errorf("Expected present empty list, got %v (ok=%v)", got, ok)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	tbl, _ := New(64, 200)
	entries := map[uint32][]int32{}
	for k := uint32(0); k < 40; k++ {
		key := k*2654435761 + 1
		vals := make([]int32, int(k%5)+1)
		for i := range vals {
			vals[i] = int32(k)*10 + int32(i)
		}
		entries[key] = vals
		if err := tbl.Add(key, vals); err != nil {
			t.Fatalf("Add(%d) failed: %v", key, err)
		}
	}

	blob := tbl.Bytes()
	restored, err := FromBytes(blob)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}

	if !restored.ReadOnly() {
		t.Error("Expected restored table to be read-only")
	}
	if restored.Len() != len(entries) {
		t.Errorf("Expected %d entries, got %d", len(entries), restored.Len())
	}
	if restored.Capacity() != 64 {
		t.Errorf("Expected capacity 64, got %d", restored.Capacity())
	}
	for key, want := range entries {
		got, ok := restored.TryGet(key)
		if !ok || !reflect.DeepEqual(got, want) {
			t.Fatalf("Key %d: expected %v, got %v (ok=%v)", key, want, got, ok)
		}
	}
	if keys := restored.Keys(); len(keys) != len(entries) {
		t.Errorf("Expected %d keys, got %d", len(entries), len(keys))
	} else {
		for _, k := range keys {
			if _, ok := entries[k]; !ok {
				t.Errorf("Unexpected key %d", k)
			}
		}
	}
	if !bytes.Equal(restored.Bytes(), blob) {
		t.Error("Expected Bytes of a restored table to reproduce the input")
	}

	if err := restored.Add(123456, []int32{1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
}

func TestFromBytesCorrupt(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"zero capacity", []byte{0, 0, 0, 0}},
		{"truncated slots", []byte{4, 0, 0, 0, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromBytes(tt.buf); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestNewRejectsBadCapacity(t *testing.T) {
	if _, err := New(0, 1); err == nil {
		t.Error("Expected error for zero capacity")
	}
}
