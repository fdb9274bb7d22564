// Package main provides the entry point for RVSim.
// RVSim models the architectural state, CSR, trap, and user-mode
// signal subsystem of a RISC-V (RV64) CPU.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/csr"
	"github.com/sarchlab/rvsim/hart"
	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/mem"
	"github.com/sarchlab/rvsim/mem/cache"
	"github.com/sarchlab/rvsim/signal"
)

var (
	configPath = flag.String("config", "", "Path to model configuration JSON file")
	elfPath    = flag.String("elf", "", "Path to an RV64 ELF binary to map into guest memory")
	sigDemo    = flag.Bool("sigdemo", false, "Run a signal delivery/return round trip")
	cached     = flag.Bool("cached", false, "Route demo memory traffic through the cache model")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	config := hart.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = hart.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading model config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid model config: %v\n", err)
		os.Exit(1)
	}

	h := hart.NewHartFromConfig(config, 0)
	table := csr.NewTable(config)

	fmt.Printf("RVSim model: %s\n", h.ISAString())
	fmt.Printf("Features: mmu=%v pmp=%v\n",
		h.HasFeature(hart.FeatureMMU), h.HasFeature(hart.FeaturePMP))
	if h.HasExt(hart.RVV) {
		fmt.Printf("Vector: VLEN=%d bits\n", h.Vector.VLen)
	}

	if *verbose {
		dumpRegs(h)
		dumpCSRs(h, table)
	}

	if *elfPath != "" {
		loadGuest(h, *elfPath)
	}

	if *sigDemo {
		runSignalDemo(h, table)
	}
}

// loadGuest maps an RV64 ELF binary into a fresh guest address space
// and points the hart at its entry.
func loadGuest(h *hart.Hart, path string) {
	prog, err := loader.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading guest binary: %v\n", err)
		os.Exit(1)
	}

	memory := mem.NewMemory()
	prog.MapInto(memory)
	h.PC = prog.EntryPoint
	h.X[2] = prog.InitialSP

	fmt.Printf("\nGuest image: %s\n", path)
	fmt.Printf("  entry: 0x%x\n", prog.EntryPoint)
	fmt.Printf("  sp:    0x%x\n", prog.InitialSP)
	for _, seg := range prog.Segments {
		fmt.Printf("  segment 0x%x (%d bytes, flags %#x)\n",
			seg.VirtAddr, seg.MemSize, seg.Flags)
	}
}

// dumpRegs prints the integer register file with ABI names.
func dumpRegs(h *hart.Hart) {
	fmt.Printf("\nRegisters (pc=0x%x, priv=%d):\n", h.PC, h.Priv)
	for i := 0; i < 32; i++ {
		fmt.Printf("  %-4s 0x%016x", hart.IntRegNames[i], h.ReadReg(uint8(i)))
		if i%2 == 1 {
			fmt.Println()
		}
	}
}

// dumpCSRs prints every readable CSR through the dispatch table.
func dumpCSRs(h *hart.Hart, table *csr.Table) {
	fmt.Printf("\nCSRs:\n")
	for csrno := 0; csrno < csr.TableSize; csrno++ {
		if !table.Defined(csrno) {
			continue
		}
		value, err := table.Read(h, csrno)
		if err != nil {
			continue
		}
		fmt.Printf("  0x%03x %-12s 0x%016x\n", csrno, table.Name(csrno), value)
	}
}

// runSignalDemo delivers a signal to a synthetic handler and returns
// through the trampoline path, printing the state transitions.
func runSignalDemo(h *hart.Hart, table *csr.Table) {
	const (
		stackTop    = 0x0000_7fff_f000
		stackSize   = 64 * 1024
		handlerAddr = 0x0000_0040_0000
	)

	memory := mem.NewMemory()
	memory.Map(stackTop-stackSize, stackSize)

	var dcache *cache.DataCache
	if *cached {
		dcache = cache.New(cache.DefaultConfig(), memory)
	}

	d := signal.NewDelivery(h, memory, table)
	if err := d.SetAction(signal.SIGUSR1, signal.Action{
		Handler: handlerAddr,
		Flags:   signal.SASiginfo,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing action: %v\n", err)
		os.Exit(1)
	}

	h.X[2] = stackTop
	h.PC = 0x10000
	h.X[10] = 0x1111111111111111
	pcBefore := h.PC

	if dcache != nil {
		// Touch the stack through the cache, then flush so the frame
		// codec sees coherent memory.
		for addr := uint64(stackTop - 256); addr < stackTop; addr += 8 {
			dcache.Write(addr, 8, addr)
		}
		dcache.Flush()
	}

	d.Deliver(signal.SIGUSR1, &signal.SigInfo{
		Signo: signal.SIGUSR1,
		Code:  signal.SiUser,
	})

	fmt.Printf("\nSignal delivery:\n")
	fmt.Printf("  handler PC:   0x%x\n", h.PC)
	fmt.Printf("  frame at sp:  0x%x (%d bytes)\n", h.X[2], d.Layout().FrameSize())
	fmt.Printf("  a0/a1/a2:     %d 0x%x 0x%x\n", h.X[10], h.X[11], h.X[12])
	fmt.Printf("  blocked mask: 0x%x\n", d.Blocked())

	// The handler's epilogue leaves sp at the frame and returns
	// through the trampoline, which issues rt_sigreturn.
	result := d.RTSigreturn()

	fmt.Printf("\nSignal return:\n")
	fmt.Printf("  result:       %d (sigreturn)\n", result)
	fmt.Printf("  restored PC:  0x%x (was 0x%x)\n", h.PC, pcBefore)
	fmt.Printf("  restored a0:  0x%x\n", h.X[10])
	fmt.Printf("  blocked mask: 0x%x\n", d.Blocked())

	if dcache != nil {
		stats := dcache.Stats()
		fmt.Printf("\nCache: reads=%d writes=%d hits=%d misses=%d writebacks=%d\n",
			stats.Reads, stats.Writes, stats.Hits, stats.Misses, stats.Writebacks)
	}
}
