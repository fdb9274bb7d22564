// Package loader provides ELF binary loading for RV64 guest
// executables and maps loaded segments into the guest address space.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/sarchlab/rvsim/mem"
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// DefaultStackTop is the default stack top for RV64 Linux user space.
// It stays inside the Sv39 user address range.
const DefaultStackTop = 0x3ffffff000

// DefaultStackSize is the default stack size (8MB).
const DefaultStackSize = 8 * 1024 * 1024

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint64
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint64
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Program represents a loaded ELF program ready for execution.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint64
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// InitialSP is the initial stack pointer value.
	InitialSP uint64
}

// Load parses an RV64 ELF binary and returns a Program ready for
// mapping into guest memory.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("not a RISC-V ELF file (machine type: %v)", f.Machine)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		InitialSP:  DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: phdr.Vaddr,
			Data:     data,
			MemSize:  phdr.Memsz,
			Flags:    flags,
		})
	}

	return prog, nil
}

// MapInto maps every segment plus the initial stack into guest memory
// and copies the segment contents in. BSS tails beyond the file data
// stay zero because fresh pages are zero-filled.
func (p *Program) MapInto(m *mem.Memory) {
	for _, seg := range p.Segments {
		size := seg.MemSize
		if size < uint64(len(seg.Data)) {
			size = uint64(len(seg.Data))
		}
		if size == 0 {
			continue
		}
		m.Map(seg.VirtAddr, size)
		for i, b := range seg.Data {
			m.Write8(seg.VirtAddr+uint64(i), b)
		}
	}

	m.Map(p.InitialSP-DefaultStackSize, DefaultStackSize)
}
