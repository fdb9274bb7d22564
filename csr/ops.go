package csr

import (
	"fmt"

	"github.com/sarchlab/rvsim/hart"
)

// Access predicates. Registration is static per model; these gate
// per-hart on the extension and feature masks.

func predSmode(h *hart.Hart, csrno int) error {
	if !h.HasExt(hart.RVS) {
		return fmt.Errorf("csr 0x%03x: no supervisor mode: %w", csrno, ErrIllegal)
	}
	return nil
}

func predFs(h *hart.Hart, csrno int) error {
	if !h.HasExt(hart.RVF) {
		return fmt.Errorf("csr 0x%03x: no FPU: %w", csrno, ErrIllegal)
	}
	return nil
}

func predVs(h *hart.Hart, csrno int) error {
	if !h.HasExt(hart.RVV) {
		return fmt.Errorf("csr 0x%03x: no vector extension: %w", csrno, ErrIllegal)
	}
	return nil
}

func predSatp(h *hart.Hart, csrno int) error {
	if err := predSmode(h, csrno); err != nil {
		return err
	}
	if !h.HasFeature(hart.FeatureMMU) {
		return fmt.Errorf("csr 0x%03x: no MMU: %w", csrno, ErrIllegal)
	}
	return nil
}

// Floating-point CSRs.

func readFflags(h *hart.Hart, _ int) (uint64, error) {
	return h.Fflags, nil
}

func writeFflags(h *hart.Hart, _ int, value uint64) error {
	h.Fflags = value & hart.FflagsMask
	return nil
}

func readFrm(h *hart.Hart, _ int) (uint64, error) {
	return h.Frm, nil
}

func writeFrm(h *hart.Hart, _ int, value uint64) error {
	h.Frm = value & hart.FrmMask
	return nil
}

func readFcsr(h *hart.Hart, _ int) (uint64, error) {
	return h.Fcsr(), nil
}

func writeFcsr(h *hart.Hart, _ int, value uint64) error {
	h.SetFcsr(value)
	return nil
}

// Vector CSRs. vl and vtype are read-only; the decoder updates them
// through vset{i}vl{i}, not through CSR writes.

func readVstart(h *hart.Hart, _ int) (uint64, error) {
	return h.Vector.Vstart, nil
}

func writeVstart(h *hart.Hart, _ int, value uint64) error {
	h.Vector.Vstart = value
	return nil
}

func readVxsat(h *hart.Hart, _ int) (uint64, error) {
	return h.Vector.Vxsat, nil
}

func writeVxsat(h *hart.Hart, _ int, value uint64) error {
	h.Vector.Vxsat = value & 1
	return nil
}

func readVxrm(h *hart.Hart, _ int) (uint64, error) {
	return h.Vector.Vxrm, nil
}

func writeVxrm(h *hart.Hart, _ int, value uint64) error {
	h.Vector.Vxrm = value & 0x3
	return nil
}

func readVl(h *hart.Hart, _ int) (uint64, error) {
	return h.Vector.Vl, nil
}

func readVtype(h *hart.Hart, _ int) (uint64, error) {
	return h.Vector.Vtype, nil
}

// User counters.

func readCycle(h *hart.Hart, _ int) (uint64, error) {
	return h.Mcycle, nil
}

func readInstret(h *hart.Hart, _ int) (uint64, error) {
	return h.Minstret, nil
}

// Machine information registers.

func readZero(_ *hart.Hart, _ int) (uint64, error) {
	return 0, nil
}

func readMhartid(h *hart.Hart, _ int) (uint64, error) {
	return h.HartID, nil
}

// Machine trap setup.

// mstatusWritable is the set of mstatus bits a CSR write may change.
const mstatusWritable = hart.MstatusSIE | hart.MstatusSPIE |
	hart.MstatusMIE | hart.MstatusMPIE | hart.MstatusSPP |
	hart.MstatusMPP | hart.MstatusFS | hart.MstatusMPRV |
	hart.MstatusSUM | hart.MstatusMXR | hart.MstatusTVM |
	hart.MstatusTW | hart.MstatusTSR

func readMstatus(h *hart.Hart, _ int) (uint64, error) {
	return h.Mstatus, nil
}

func writeMstatus(h *hart.Hart, _ int, value uint64) error {
	mstatus := (h.Mstatus &^ mstatusWritable) | (value & mstatusWritable)

	// SD summarizes dirty FS/XS state.
	dirty := hart.GetField(mstatus, hart.MstatusFS) == 3 ||
		hart.GetField(mstatus, hart.MstatusXS) == 3
	mstatus &^= hart.MstatusSD
	if dirty {
		mstatus |= hart.MstatusSD
	}

	h.Mstatus = mstatus
	return nil
}

func readMisa(h *hart.Hart, _ int) (uint64, error) {
	return h.Misa, nil
}

// writeMisa ignores the write: runtime extension toggling is not
// supported by this model.
func writeMisa(_ *hart.Hart, _ int, _ uint64) error {
	return nil
}

func readMedeleg(h *hart.Hart, _ int) (uint64, error) {
	return h.Medeleg, nil
}

func writeMedeleg(h *hart.Hart, _ int, value uint64) error {
	// Environment calls from M-mode cannot be delegated.
	h.Medeleg = value &^ (1 << hart.ExcMEcall)
	return nil
}

// midelegWritable covers the delegable supervisor interrupts.
const midelegWritable = hart.MipSSIP | hart.MipSTIP | hart.MipSEIP

func readMideleg(h *hart.Hart, _ int) (uint64, error) {
	return h.Mideleg, nil
}

func writeMideleg(h *hart.Hart, _ int, value uint64) error {
	h.Mideleg = (h.Mideleg &^ midelegWritable) | (value & midelegWritable)
	return nil
}

// mieWritable covers all standard machine and supervisor interrupt
// enables.
const mieWritable = hart.MipMSIP | hart.MipMTIP | hart.MipMEIP |
	hart.MipSSIP | hart.MipSTIP | hart.MipSEIP

func readMie(h *hart.Hart, _ int) (uint64, error) {
	return h.Mie, nil
}

func writeMie(h *hart.Hart, _ int, value uint64) error {
	h.Mie = (h.Mie &^ mieWritable) | (value & mieWritable)
	return nil
}

func readMtvec(h *hart.Hart, _ int) (uint64, error) {
	return h.Mtvec, nil
}

func writeMtvec(h *hart.Hart, _ int, value uint64) error {
	// Only direct and vectored modes are supported.
	if value&hart.TvecModeMask <= hart.TvecModeVectored {
		h.Mtvec = value
	}
	return nil
}

func readMcounteren(h *hart.Hart, _ int) (uint64, error) {
	return h.Mcounteren, nil
}

func writeMcounteren(h *hart.Hart, _ int, value uint64) error {
	h.Mcounteren = value
	return nil
}

// Machine trap handling.

func readMscratch(h *hart.Hart, _ int) (uint64, error) {
	return h.Mscratch, nil
}

func writeMscratch(h *hart.Hart, _ int, value uint64) error {
	h.Mscratch = value
	return nil
}

func readMepc(h *hart.Hart, _ int) (uint64, error) {
	return h.Mepc, nil
}

func writeMepc(h *hart.Hart, _ int, value uint64) error {
	// Return addresses are at least 2-byte aligned.
	h.Mepc = value &^ 1
	return nil
}

func readMcause(h *hart.Hart, _ int) (uint64, error) {
	return h.Mcause, nil
}

func writeMcause(h *hart.Hart, _ int, value uint64) error {
	h.Mcause = value
	return nil
}

func readMtval(h *hart.Hart, _ int) (uint64, error) {
	return h.Mtval, nil
}

func writeMtval(h *hart.Hart, _ int, value uint64) error {
	h.Mtval = value
	return nil
}

// mipWritable covers the bits software may set/clear through the CSR;
// machine-level bits are driven by the interrupt controller.
const mipWritable = hart.MipSSIP | hart.MipSTIP | hart.MipSEIP

// opMip is a combined read-modify-write: the old value and the mask
// application must be one atomic step so pending bits are not lost
// between a separate read and write.
func opMip(h *hart.Hart, _ int, newValue, writeMask uint64) (uint64, error) {
	old := h.Mip
	mask := writeMask & mipWritable
	h.Mip = (old &^ mask) | (newValue & mask)
	return old, nil
}

// Machine counters.

func readMcycle(h *hart.Hart, _ int) (uint64, error) {
	return h.Mcycle, nil
}

func writeMcycle(h *hart.Hart, _ int, value uint64) error {
	h.Mcycle = value
	return nil
}

func readMinstret(h *hart.Hart, _ int) (uint64, error) {
	return h.Minstret, nil
}

func writeMinstret(h *hart.Hart, _ int, value uint64) error {
	h.Minstret = value
	return nil
}

// Supervisor trap setup. sstatus, sie, and sip are restricted views
// of the machine-level registers, not separate storage.

const sstatusWritable = hart.SstatusSIE | hart.SstatusSPIE |
	hart.SstatusSPP | hart.SstatusFS | hart.SstatusSUM | hart.SstatusMXR

func readSstatus(h *hart.Hart, _ int) (uint64, error) {
	return h.Mstatus & hart.SstatusMask, nil
}

func writeSstatus(h *hart.Hart, csrno int, value uint64) error {
	merged := (h.Mstatus &^ sstatusWritable) | (value & sstatusWritable)
	return writeMstatus(h, csrno, merged)
}

func readSie(h *hart.Hart, _ int) (uint64, error) {
	return h.Mie & h.Mideleg, nil
}

func writeSie(h *hart.Hart, _ int, value uint64) error {
	h.Mie = (h.Mie &^ h.Mideleg) | (value & h.Mideleg)
	return nil
}

func readStvec(h *hart.Hart, _ int) (uint64, error) {
	return h.Stvec, nil
}

func writeStvec(h *hart.Hart, _ int, value uint64) error {
	if value&hart.TvecModeMask <= hart.TvecModeVectored {
		h.Stvec = value
	}
	return nil
}

func readScounteren(h *hart.Hart, _ int) (uint64, error) {
	return h.Scounteren, nil
}

func writeScounteren(h *hart.Hart, _ int, value uint64) error {
	h.Scounteren = value
	return nil
}

// Supervisor trap handling.

func readSscratch(h *hart.Hart, _ int) (uint64, error) {
	return h.Sscratch, nil
}

func writeSscratch(h *hart.Hart, _ int, value uint64) error {
	h.Sscratch = value
	return nil
}

func readSepc(h *hart.Hart, _ int) (uint64, error) {
	return h.Sepc, nil
}

func writeSepc(h *hart.Hart, _ int, value uint64) error {
	h.Sepc = value &^ 1
	return nil
}

func readScause(h *hart.Hart, _ int) (uint64, error) {
	return h.Scause, nil
}

func writeScause(h *hart.Hart, _ int, value uint64) error {
	h.Scause = value
	return nil
}

func readStval(h *hart.Hart, _ int) (uint64, error) {
	return h.Stval, nil
}

func writeStval(h *hart.Hart, _ int, value uint64) error {
	h.Stval = value
	return nil
}

// opSip is the supervisor view of mip: only delegated bits are
// visible, and only SSIP is directly writable from S-mode.
func opSip(h *hart.Hart, _ int, newValue, writeMask uint64) (uint64, error) {
	mask := writeMask & h.Mideleg & hart.MipSSIP
	h.Mip = (h.Mip &^ mask) | (newValue & mask)
	return h.Mip & h.Mideleg, nil
}

func readSatp(h *hart.Hart, _ int) (uint64, error) {
	return h.Satp, nil
}

func writeSatp(h *hart.Hart, _ int, value uint64) error {
	h.Satp = value
	return nil
}

// NewTable builds the dispatch table for one CPU model configuration.
// The table is shared read-only by every hart of that model; per-hart
// availability is decided by the predicates against each hart's
// extension and feature masks.
func NewTable(_ *hart.Config) *Table {
	t := &Table{}

	// User floating-point CSRs.
	t.register(hart.CSRFflags, Operation{Name: "fflags", Predicate: predFs,
		Read: readFflags, Write: writeFflags})
	t.register(hart.CSRFrm, Operation{Name: "frm", Predicate: predFs,
		Read: readFrm, Write: writeFrm})
	t.register(hart.CSRFcsr, Operation{Name: "fcsr", Predicate: predFs,
		Read: readFcsr, Write: writeFcsr})

	// User vector CSRs.
	t.register(hart.CSRVstart, Operation{Name: "vstart", Predicate: predVs,
		Read: readVstart, Write: writeVstart})
	t.register(hart.CSRVxsat, Operation{Name: "vxsat", Predicate: predVs,
		Read: readVxsat, Write: writeVxsat})
	t.register(hart.CSRVxrm, Operation{Name: "vxrm", Predicate: predVs,
		Read: readVxrm, Write: writeVxrm})
	t.register(hart.CSRVl, Operation{Name: "vl", Predicate: predVs,
		Read: readVl})
	t.register(hart.CSRVtype, Operation{Name: "vtype", Predicate: predVs,
		Read: readVtype})

	// User counters.
	t.register(hart.CSRCycle, Operation{Name: "cycle", Read: readCycle})
	t.register(hart.CSRTime, Operation{Name: "time", Read: readCycle})
	t.register(hart.CSRInstret, Operation{Name: "instret", Read: readInstret})

	// Machine information registers.
	t.register(hart.CSRMvendorid, Operation{Name: "mvendorid", Read: readZero})
	t.register(hart.CSRMarchid, Operation{Name: "marchid", Read: readZero})
	t.register(hart.CSRMimpid, Operation{Name: "mimpid", Read: readZero})
	t.register(hart.CSRMhartid, Operation{Name: "mhartid", Read: readMhartid})

	// Machine trap setup.
	t.register(hart.CSRMstatus, Operation{Name: "mstatus",
		Read: readMstatus, Write: writeMstatus})
	t.register(hart.CSRMisa, Operation{Name: "misa",
		Read: readMisa, Write: writeMisa})
	t.register(hart.CSRMedeleg, Operation{Name: "medeleg", Predicate: predSmode,
		Read: readMedeleg, Write: writeMedeleg})
	t.register(hart.CSRMideleg, Operation{Name: "mideleg", Predicate: predSmode,
		Read: readMideleg, Write: writeMideleg})
	t.register(hart.CSRMie, Operation{Name: "mie",
		Read: readMie, Write: writeMie})
	t.register(hart.CSRMtvec, Operation{Name: "mtvec",
		Read: readMtvec, Write: writeMtvec})
	t.register(hart.CSRMcounteren, Operation{Name: "mcounteren",
		Read: readMcounteren, Write: writeMcounteren})

	// Machine trap handling.
	t.register(hart.CSRMscratch, Operation{Name: "mscratch",
		Read: readMscratch, Write: writeMscratch})
	t.register(hart.CSRMepc, Operation{Name: "mepc",
		Read: readMepc, Write: writeMepc})
	t.register(hart.CSRMcause, Operation{Name: "mcause",
		Read: readMcause, Write: writeMcause})
	t.register(hart.CSRMtval, Operation{Name: "mtval",
		Read: readMtval, Write: writeMtval})
	t.register(hart.CSRMip, Operation{Name: "mip", Op: opMip})

	// Machine counters.
	t.register(hart.CSRMcycle, Operation{Name: "mcycle",
		Read: readMcycle, Write: writeMcycle})
	t.register(hart.CSRMinstret, Operation{Name: "minstret",
		Read: readMinstret, Write: writeMinstret})

	// Supervisor trap setup.
	t.register(hart.CSRSstatus, Operation{Name: "sstatus", Predicate: predSmode,
		Read: readSstatus, Write: writeSstatus})
	t.register(hart.CSRSie, Operation{Name: "sie", Predicate: predSmode,
		Read: readSie, Write: writeSie})
	t.register(hart.CSRStvec, Operation{Name: "stvec", Predicate: predSmode,
		Read: readStvec, Write: writeStvec})
	t.register(hart.CSRScounteren, Operation{Name: "scounteren", Predicate: predSmode,
		Read: readScounteren, Write: writeScounteren})

	// Supervisor trap handling.
	t.register(hart.CSRSscratch, Operation{Name: "sscratch", Predicate: predSmode,
		Read: readSscratch, Write: writeSscratch})
	t.register(hart.CSRSepc, Operation{Name: "sepc", Predicate: predSmode,
		Read: readSepc, Write: writeSepc})
	t.register(hart.CSRScause, Operation{Name: "scause", Predicate: predSmode,
		Read: readScause, Write: writeScause})
	t.register(hart.CSRStval, Operation{Name: "stval", Predicate: predSmode,
		Read: readStval, Write: writeStval})
	t.register(hart.CSRSip, Operation{Name: "sip", Predicate: predSmode,
		Op: opSip})

	// Supervisor protection and translation.
	t.register(hart.CSRSatp, Operation{Name: "satp", Predicate: predSatp,
		Read: readSatp, Write: writeSatp})

	return t
}
