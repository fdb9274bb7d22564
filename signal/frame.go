package signal

import (
	"encoding/binary"

	"github.com/sarchlab/rvsim/hart"
)

// The machine-context codec is an explicit serialize/deserialize pair
// over a byte buffer at fixed offsets, so the wire format stays
// decoupled from the in-memory hart representation.

// setupSigcontext captures the hart's architectural state into the
// mcontext region of a frame buffer.
func (d *Delivery) setupSigcontext(buf []byte) {
	h := d.hart

	binary.LittleEndian.PutUint64(buf[scPC:], h.PC)
	for i := 1; i < 32; i++ {
		binary.LittleEndian.PutUint64(buf[scGPR+8*(i-1):], h.X[i])
	}
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint64(buf[scFPR+8*i:], h.F[i])
	}

	var fcsr uint64
	if h.HasExt(hart.RVF) {
		fcsr, _ = d.table.Read(h, hart.CSRFcsr)
	}
	binary.LittleEndian.PutUint32(buf[scFcsr:], uint32(fcsr))

	// The reserved region stays zero for forward compatibility.
	for off := scFcsr + 4; off < scVector; off++ {
		buf[off] = 0
	}

	if !h.HasExt(hart.RVV) {
		return
	}

	// Each vector register is written as successive 64-bit halves to
	// avoid alignment assumptions about the 128-bit slots.
	vs := h.Vector
	words := vs.WordsPerReg()
	for reg := 0; reg < 32; reg++ {
		for w := 0; w < words; w++ {
			off := scVector + reg*d.layout.VRegBytes() + 8*w
			binary.LittleEndian.PutUint64(buf[off:], vs.RegWord(reg, w))
		}
	}

	vectorCSRs := [5]int{
		hart.CSRVstart, hart.CSRVxsat, hart.CSRVxrm,
		hart.CSRVl, hart.CSRVtype,
	}
	for i, csrno := range vectorCSRs {
		value, _ := d.table.Read(h, csrno)
		binary.LittleEndian.PutUint64(buf[d.layout.VCSROffset(i):], value)
	}
}

// restoreSigcontext reads architectural state back from the mcontext
// region, in the same order and offsets used during capture.
func (d *Delivery) restoreSigcontext(buf []byte) {
	h := d.hart

	h.PC = binary.LittleEndian.Uint64(buf[scPC:])
	for i := 1; i < 32; i++ {
		h.X[i] = binary.LittleEndian.Uint64(buf[scGPR+8*(i-1):])
	}
	for i := 0; i < 32; i++ {
		h.F[i] = binary.LittleEndian.Uint64(buf[scFPR+8*i:])
	}

	if h.HasExt(hart.RVF) {
		fcsr := binary.LittleEndian.Uint32(buf[scFcsr:])
		_ = d.table.Write(h, hart.CSRFcsr, uint64(fcsr))
	}

	if !h.HasExt(hart.RVV) {
		return
	}

	vs := h.Vector
	words := vs.WordsPerReg()
	for reg := 0; reg < 32; reg++ {
		for w := 0; w < words; w++ {
			off := scVector + reg*d.layout.VRegBytes() + 8*w
			vs.SetRegWord(reg, w, binary.LittleEndian.Uint64(buf[off:]))
		}
	}

	_ = d.table.Write(h, hart.CSRVstart,
		binary.LittleEndian.Uint64(buf[d.layout.VCSROffset(0):]))
	_ = d.table.Write(h, hart.CSRVxsat,
		binary.LittleEndian.Uint64(buf[d.layout.VCSROffset(1):]))
	_ = d.table.Write(h, hart.CSRVxrm,
		binary.LittleEndian.Uint64(buf[d.layout.VCSROffset(2):]))

	// vl and vtype are read-only through the CSR interface; the frame
	// is the source of truth here, including a vtype with the illegal
	// bit set, which must round-trip untouched.
	vs.Vl = binary.LittleEndian.Uint64(buf[d.layout.VCSROffset(3):])
	vs.Vtype = binary.LittleEndian.Uint64(buf[d.layout.VCSROffset(4):])
}

// setupUcontext fills the user-context block: zero flags and link,
// the current alternate-stack descriptor, the pre-delivery signal
// mask, and the machine context.
func (d *Delivery) setupUcontext(buf []byte, oldSet SigSet) {
	binary.LittleEndian.PutUint64(buf[ucFlags:], 0)
	binary.LittleEndian.PutUint64(buf[ucLink:], 0)

	binary.LittleEndian.PutUint64(buf[ucStackSP:], d.altstack.SP)
	binary.LittleEndian.PutUint32(buf[ucStackFlg:], uint32(d.altstackFlags()))
	binary.LittleEndian.PutUint64(buf[ucStackSz:], d.altstack.Size)

	binary.LittleEndian.PutUint64(buf[ucSigmask:], uint64(oldSet))
	for off := ucSigmask + 8; off < ucMcontext; off++ {
		buf[off] = 0
	}

	d.setupSigcontext(buf[ucMcontext:])
}

// restoreUcontext reinstalls the saved signal mask, restores the
// machine context, and restores the alternate-stack descriptor.
func (d *Delivery) restoreUcontext(buf []byte) {
	// Installing the saved mask is what makes handler execution
	// appear synchronous: signals blocked at delivery become
	// unblocked atomically here.
	d.blocked = SigSet(binary.LittleEndian.Uint64(buf[ucSigmask:]))

	d.restoreSigcontext(buf[ucMcontext:])

	stack := StackT{
		SP:    binary.LittleEndian.Uint64(buf[ucStackSP:]),
		Flags: int32(binary.LittleEndian.Uint32(buf[ucStackFlg:])),
		Size:  binary.LittleEndian.Uint64(buf[ucStackSz:]),
	}
	d.altstack = stack
}

// installSigtramp writes the two-instruction return trampoline that
// issues the rt_sigreturn system call.
func installSigtramp(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], trampLoadNR)
	binary.LittleEndian.PutUint32(buf[4:], trampEcall)
}
