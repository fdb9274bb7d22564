// Package cache models a data cache in front of guest memory, built
// on Akita cache directory components. The emulator core does not
// need it for correctness; the execution engine uses it to account
// memory latency and to study guest working sets.
package cache

import (
	"encoding/binary"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rvsim/mem"
)

// Config holds the cache geometry and latencies.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (line size).
	BlockSize int
	// HitLatency in cycles.
	HitLatency uint64
	// MissLatency in cycles, including the backing access.
	MissLatency uint64
}

// DefaultConfig returns a modest L1-data-cache-like geometry.
func DefaultConfig() Config {
	return Config{
		Size:          32 * 1024,
		Associativity: 8,
		BlockSize:     64,
		HitLatency:    2,
		MissLatency:   40,
	}
}

// AccessResult reports one cache access.
type AccessResult struct {
	// Hit indicates whether the line was present.
	Hit bool
	// Latency is the cycle cost of this access.
	Latency uint64
	// Data is the value read (for reads).
	Data uint64
}

// Statistics accumulates access counts.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// DataCache is a write-back, write-allocate cache over guest memory.
type DataCache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	memory    *mem.Memory

	// lines holds the data for (setID * associativity + wayID).
	lines [][]byte

	// resident tracks directory blocks this cache has populated, so
	// Flush can write dirty lines back without directory iteration.
	resident map[int]*akitacache.Block

	stats Statistics
}

// New creates a cache over the given guest memory.
func New(config Config, memory *mem.Memory) *DataCache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalLines := numSets * config.Associativity

	lines := make([][]byte, totalLines)
	for i := range lines {
		lines[i] = make([]byte, config.BlockSize)
	}

	return &DataCache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		memory:   memory,
		lines:    lines,
		resident: make(map[int]*akitacache.Block),
	}
}

// Config returns the cache configuration.
func (c *DataCache) Config() Config {
	return c.config
}

// Stats returns the accumulated statistics.
func (c *DataCache) Stats() Statistics {
	return c.stats
}

// Memory returns the backing guest memory.
func (c *DataCache) Memory() *mem.Memory {
	return c.memory
}

func (c *DataCache) lineIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *DataCache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Read performs a cached read of size bytes (1, 2, 4, or 8).
func (c *DataCache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		line := c.lines[c.lineIndex(block)]
		return AccessResult{
			Hit:     true,
			Latency: c.config.HitLatency,
			Data:    extract(line, addr%uint64(c.config.BlockSize), size),
		}
	}

	c.stats.Misses++
	return c.fill(addr, size, false, 0)
}

// Write performs a cached write of size bytes, write-allocating on a
// miss.
func (c *DataCache) Write(addr uint64, size int, data uint64) AccessResult {
	c.stats.Writes++

	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		line := c.lines[c.lineIndex(block)]
		store(line, addr%uint64(c.config.BlockSize), size, data)
		block.IsDirty = true
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.fill(addr, size, true, data)
}

// fill brings a line in from guest memory, writing back a dirty
// victim first.
func (c *DataCache) fill(addr uint64, size int, isWrite bool, data uint64) AccessResult {
	result := AccessResult{Latency: c.config.MissLatency}
	blockAddr := c.blockAddr(addr)

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}
	line := c.lines[c.lineIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
			c.writeLine(victim.Tag, line)
		}
	}

	c.readLine(blockAddr, line)
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.resident[c.lineIndex(victim)] = victim

	offset := addr % uint64(c.config.BlockSize)
	if isWrite {
		store(line, offset, size, data)
		victim.IsDirty = true
	} else {
		result.Data = extract(line, offset, size)
	}

	c.directory.Visit(victim)
	return result
}

// Flush writes every dirty line back to guest memory and marks the
// cache clean. Callers that hand the address space to the signal
// codec flush first so the locked view is coherent.
func (c *DataCache) Flush() {
	for idx, block := range c.resident {
		if block.IsValid && block.IsDirty {
			c.stats.Writebacks++
			c.writeLine(block.Tag, c.lines[idx])
			block.IsDirty = false
		}
	}
}

func (c *DataCache) readLine(addr uint64, line []byte) {
	for i := range line {
		line[i] = c.memory.Read8(addr + uint64(i))
	}
}

func (c *DataCache) writeLine(addr uint64, line []byte) {
	for i, b := range line {
		c.memory.Write8(addr+uint64(i), b)
	}
}

func extract(line []byte, offset uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(line[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(line[offset:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(line[offset:]))
	default:
		return binary.LittleEndian.Uint64(line[offset:])
	}
}

func store(line []byte, offset uint64, size int, data uint64) {
	switch size {
	case 1:
		line[offset] = byte(data)
	case 2:
		binary.LittleEndian.PutUint16(line[offset:], uint16(data))
	case 4:
		binary.LittleEndian.PutUint32(line[offset:], uint32(data))
	default:
		binary.LittleEndian.PutUint64(line[offset:], data)
	}
}
