// Package mem provides the guest address space: page-granular sparse
// memory with explicit mappings and a scoped lock primitive for
// materializing structures in guest memory.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PageSize is the mapping granularity in bytes.
const PageSize = 4096

// ErrUnmapped reports an access to an address range with no mapping.
var ErrUnmapped = errors.New("unmapped guest address")

// Memory is a sparse guest address space. Pages exist only where Map
// has been called.
type Memory struct {
	pages map[uint64][]byte
}

// NewMemory creates an empty guest address space.
func NewMemory() *Memory {
	return &Memory{
		pages: make(map[uint64][]byte),
	}
}

// Map makes the pages covering [addr, addr+size) accessible,
// zero-filled. Mapping an already-mapped page keeps its contents.
func (m *Memory) Map(addr, size uint64) {
	for page := addr &^ (PageSize - 1); page < addr+size; page += PageSize {
		if m.pages[page] == nil {
			m.pages[page] = make([]byte, PageSize)
		}
	}
}

// IsMapped reports whether the whole range [addr, addr+size) is
// backed by mapped pages.
func (m *Memory) IsMapped(addr, size uint64) bool {
	if size == 0 {
		size = 1
	}
	// A range that wraps the address space cannot be backed.
	if addr+size < addr {
		return false
	}
	for page := addr &^ (PageSize - 1); page < addr+size; page += PageSize {
		if m.pages[page] == nil {
			return false
		}
	}
	return true
}

// Read8 reads one byte. Unmapped addresses read as zero; fault
// signaling for stray accesses belongs to the execution engine.
func (m *Memory) Read8(addr uint64) byte {
	page := m.pages[addr&^(PageSize-1)]
	if page == nil {
		return 0
	}
	return page[addr&(PageSize-1)]
}

// Write8 writes one byte. Writes to unmapped addresses are dropped.
func (m *Memory) Write8(addr uint64, value byte) {
	page := m.pages[addr&^(PageSize-1)]
	if page == nil {
		return
	}
	page[addr&(PageSize-1)] = value
}

// Read16 reads a little-endian 16-bit value.
func (m *Memory) Read16(addr uint64) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian 16-bit value.
func (m *Memory) Write16(addr uint64, value uint16) {
	m.Write8(addr, byte(value))
	m.Write8(addr+1, byte(value>>8))
}

// Read32 reads a little-endian 32-bit value.
func (m *Memory) Read32(addr uint64) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a little-endian 32-bit value.
func (m *Memory) Write32(addr uint64, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a little-endian 64-bit value.
func (m *Memory) Read64(addr uint64) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

// Write64 writes a little-endian 64-bit value.
func (m *Memory) Write64(addr uint64, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// LockRead copies [addr, addr+size) out of guest memory. It fails if
// any page in the range is unmapped.
func (m *Memory) LockRead(addr uint64, size int) ([]byte, error) {
	if !m.IsMapped(addr, uint64(size)) {
		return nil, fmt.Errorf("lock read [0x%x, +%d): %w", addr, size, ErrUnmapped)
	}
	buf := make([]byte, size)
	m.copyOut(addr, buf)
	return buf, nil
}

// Region is a write-locked view of a guest memory range. Mutate
// Bytes, then Commit to publish the whole range atomically from the
// guest's perspective; an uncommitted region leaves guest memory
// untouched.
type Region struct {
	mem  *Memory
	addr uint64
	buf  []byte
}

// LockWrite locks [addr, addr+size) for writing. Nothing reaches
// guest memory until Commit. It fails if any page is unmapped; in
// that case no byte of the range is written.
func (m *Memory) LockWrite(addr uint64, size int) (*Region, error) {
	if !m.IsMapped(addr, uint64(size)) {
		return nil, fmt.Errorf("lock write [0x%x, +%d): %w", addr, size, ErrUnmapped)
	}
	r := &Region{
		mem:  m,
		addr: addr,
		buf:  make([]byte, size),
	}
	m.copyOut(addr, r.buf)
	return r, nil
}

// Bytes exposes the locked buffer.
func (r *Region) Bytes() []byte {
	return r.buf
}

// PutUint32 writes a little-endian 32-bit value at a buffer offset.
func (r *Region) PutUint32(off int, value uint32) {
	binary.LittleEndian.PutUint32(r.buf[off:], value)
}

// PutUint64 writes a little-endian 64-bit value at a buffer offset.
func (r *Region) PutUint64(off int, value uint64) {
	binary.LittleEndian.PutUint64(r.buf[off:], value)
}

// Commit writes the buffer back to guest memory.
func (r *Region) Commit() {
	page := r.addr &^ (PageSize - 1)
	off := int(r.addr & (PageSize - 1))
	buf := r.buf
	for len(buf) > 0 {
		n := copy(r.mem.pages[page][off:], buf)
		buf = buf[n:]
		page += PageSize
		off = 0
	}
}

func (m *Memory) copyOut(addr uint64, buf []byte) {
	page := addr &^ (PageSize - 1)
	off := int(addr & (PageSize - 1))
	for len(buf) > 0 {
		n := copy(buf, m.pages[page][off:])
		buf = buf[n:]
		page += PageSize
		off = 0
	}
}
