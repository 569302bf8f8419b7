// Package indextable implements a fixed-capacity open-addressing table from a
// 32-bit key to a list of int32 positions, stored in one contiguous byte
// buffer that can be shipped between processes as-is.
//
// Layout (little endian):
//
//	+----------------------+  0
//	| capacity   u32       |
//	+----------------------+  4
//	| slots      i64 × cap |  arena offset of the entry, -1 when empty
//	+----------------------+  4 + cap*8
//	| arena                |  entries: key u32 | count u32 | values i32 × count
//	+----------------------+
package indextable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrDuplicateKey = errors.New("indextable: duplicate key")
	ErrTableFull    = errors.New("indextable: table full")
	ErrArenaFull    = errors.New("indextable: value arena exhausted")
	ErrReadOnly     = errors.New("indextable: table is read-only")
	ErrCorrupt      = errors.New("indextable: corrupt buffer")
)

const (
	headerSize      = 4
	slotSize        = 8
	entryHeaderSize = 8
	emptySlot       = -1
)

type Table struct {
	capacity uint32
	count    uint32
	buf      []byte // header + slots + arena, arena grows up to cap(buf)
	arenaEnd int
	readOnly bool
}

// New allocates a writable table. maxValues is an upper bound on the total
// number of values that will ever be added.
func New(capacity, maxValues int) (*Table, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("indextable: capacity must be positive, got %d", capacity)
	}
	if maxValues < 0 {
		return nil, fmt.Errorf("indextable: negative value estimate %d", maxValues)
	}

	slotsEnd := headerSize + capacity*slotSize
	size := slotsEnd + maxValues*4 + capacity*entryHeaderSize
	buf := make([]byte, slotsEnd, size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(capacity))
	for i := 0; i < capacity; i++ {
		putSlot(buf, i, emptySlot)
	}

	return &Table{
		capacity: uint32(capacity),
		buf:      buf,
		arenaEnd: slotsEnd,
	}, nil
}

// FromBytes reconstructs a read-only table from a buffer produced by Bytes.
// The buffer is copied.
func FromBytes(b []byte) (*Table, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(b))
	}
	capacity := binary.LittleEndian.Uint32(b[0:4])
	slotsEnd := headerSize + int(capacity)*slotSize
	if capacity == 0 || len(b) < slotsEnd {
		return nil, fmt.Errorf("%w: capacity %d does not fit in %d bytes", ErrCorrupt, capacity, len(b))
	}

	buf := make([]byte, len(b))
	copy(buf, b)

	t := &Table{
		capacity: capacity,
		buf:      buf,
		arenaEnd: len(buf),
		readOnly: true,
	}

	for i := 0; i < int(capacity); i++ {
		off := t.slot(i)
		if off == emptySlot {
			continue
		}
		if off < int64(slotsEnd) || off+entryHeaderSize > int64(len(buf)) {
			return nil, fmt.Errorf("%w: slot %d points outside the arena", ErrCorrupt, i)
		}
		n := binary.LittleEndian.Uint32(buf[off+4 : off+8])
		if off+entryHeaderSize+int64(n)*4 > int64(len(buf)) {
			return nil, fmt.Errorf("%w: entry at %d overruns the buffer", ErrCorrupt, off)
		}
		t.count++
	}

	return t, nil
}

// Add inserts key with a copy of values.
func (t *Table) Add(key uint32, values []int32) error {
	if t.readOnly {
		return ErrReadOnly
	}

	start := t.home(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := int((start + i) % t.capacity)
		off := t.slot(idx)
		if off == emptySlot {
			return t.place(idx, key, values)
		}
		if t.keyAt(off) == key {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
		}
	}
	return fmt.Errorf("%w: capacity %d", ErrTableFull, t.capacity)
}

// TryGet returns the values stored for key.
func (t *Table) TryGet(key uint32) ([]int32, bool) {
	start := t.home(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := int((start + i) % t.capacity)
		off := t.slot(idx)
		if off == emptySlot {
			return nil, false
		}
		if t.keyAt(off) == key {
			return t.valuesAt(off), true
		}
	}
	return nil, false
}

// Bytes returns the serialized table. The returned slice is a copy.
func (t *Table) Bytes() []byte {
	out := make([]byte, t.arenaEnd)
	copy(out, t.buf[:t.arenaEnd])
	return out
}

func (t *Table) Len() int       { return int(t.count) }
func (t *Table) Capacity() int  { return int(t.capacity) }
func (t *Table) ReadOnly() bool { return t.readOnly }

// Keys returns every stored key in slot order.
func (t *Table) Keys() []uint32 {
	keys := make([]uint32, 0, t.count)
	for i := 0; i < int(t.capacity); i++ {
		if off := t.slot(i); off != emptySlot {
			keys = append(keys, t.keyAt(off))
		}
	}
	return keys
}

func (t *Table) place(idx int, key uint32, values []int32) error {
	need := entryHeaderSize + len(values)*4
	if t.arenaEnd+need > cap(t.buf) {
		return fmt.Errorf("%w: need %d bytes, %d left", ErrArenaFull, need, cap(t.buf)-t.arenaEnd)
	}

	off := t.arenaEnd
	t.buf = t.buf[:off+need]
	binary.LittleEndian.PutUint32(t.buf[off:off+4], key)
	binary.LittleEndian.PutUint32(t.buf[off+4:off+8], uint32(len(values)))
	for i, v := range values {
		p := off + entryHeaderSize + i*4
		binary.LittleEndian.PutUint32(t.buf[p:p+4], uint32(v))
	}
	t.arenaEnd = off + need

	putSlot(t.buf, idx, int64(off))
	t.count++
	return nil
}

func (t *Table) home(key uint32) uint32 {
	var k [4]byte
	binary.LittleEndian.PutUint32(k[:], key)
	return uint32(xxhash.Sum64(k[:]) % uint64(t.capacity))
}

func (t *Table) slot(i int) int64 {
	p := headerSize + i*slotSize
	return int64(binary.LittleEndian.Uint64(t.buf[p : p+slotSize]))
}

func putSlot(buf []byte, i int, off int64) {
	p := headerSize + i*slotSize
	binary.LittleEndian.PutUint64(buf[p:p+slotSize], uint64(off))
}

func (t *Table) keyAt(off int64) uint32 {
	return binary.LittleEndian.Uint32(t.buf[off : off+4])
}

func (t *Table) valuesAt(off int64) []int32 {
	n := int(binary.LittleEndian.Uint32(t.buf[off+4 : off+8]))
	out := make([]int32, n)
	base := int(off) + entryHeaderSize
	for i := range out {
		p := base + i*4
		out[i] = int32(binary.LittleEndian.Uint32(t.buf[p : p+4]))
	}
	return out
}
