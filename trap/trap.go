// Package trap classifies exception and interrupt causes and performs
// privilege-mode trap entry and return for a hart.
//
// At an instruction boundary the execution engine delivers any pending
// synchronous exception first, then polls PendingInterrupt; among
// pending interrupts a fixed numeric priority table from the
// privileged specification decides, not the raw bit position.
package trap

import "github.com/sarchlab/rvsim/hart"

// IsInterrupt reports whether a cause value encodes an asynchronous
// interrupt (top bit set) rather than a synchronous exception.
func IsInterrupt(cause uint64) bool {
	return cause&hart.InterruptFlag != 0
}

// Code strips the interrupt flag from a cause value.
func Code(cause uint64) uint64 {
	return cause &^ hart.InterruptFlag
}

// Interrupt builds an interrupt cause value from an interrupt number.
func Interrupt(irq uint64) uint64 {
	return irq | hart.InterruptFlag
}

// interruptPriority is the fixed cross-level ordering from the
// privileged specification: external before software before timer,
// machine level before supervisor before user.
var interruptPriority = [...]uint64{
	hart.IrqMExt, hart.IrqMSoft, hart.IrqMTimer,
	hart.IrqSExt, hart.IrqSSoft, hart.IrqSTimer,
	hart.IrqUExt, hart.IrqUSoft, hart.IrqUTimer,
}

// TargetPriv computes the privilege mode that handles the given cause.
// A cause is delegated from M to S when the matching bit of medeleg
// (exceptions) or mideleg (interrupts) is set and the hart is not
// already executing in M-mode.
func TargetPriv(h *hart.Hart, cause uint64) uint64 {
	code := Code(cause)

	deleg := h.Medeleg
	if IsInterrupt(cause) {
		deleg = h.Mideleg
	}

	if h.Priv <= hart.PrivS && code < 64 && deleg&(1<<code) != 0 {
		return hart.PrivS
	}
	return hart.PrivM
}

// PendingInterrupt selects the highest-priority deliverable interrupt,
// honoring per-level global enables and delegation. The second return
// is false when nothing is deliverable.
func PendingInterrupt(h *hart.Hart) (uint64, bool) {
	pending := h.Mip & h.Mie
	if pending == 0 {
		return 0, false
	}

	// Machine-level interrupts are enabled below M-mode, or in
	// M-mode when mstatus.MIE is set; likewise for supervisor.
	mEnabled := h.Priv < hart.PrivM ||
		(h.Priv == hart.PrivM && h.Mstatus&hart.MstatusMIE != 0)
	sEnabled := h.Priv < hart.PrivS ||
		(h.Priv == hart.PrivS && h.Mstatus&hart.MstatusSIE != 0)

	var deliverable uint64
	if mEnabled {
		deliverable |= pending &^ h.Mideleg
	}
	if sEnabled {
		deliverable |= pending & h.Mideleg
	}

	for _, irq := range interruptPriority {
		if deliverable&(1<<irq) != 0 {
			return irq, true
		}
	}
	return 0, false
}

// vectorPC computes the redirected PC for a tvec register. Vectored
// mode applies to interrupts only.
func vectorPC(tvec, code uint64, async bool) uint64 {
	base := tvec &^ hart.TvecModeMask
	if async && tvec&hart.TvecModeMask == hart.TvecModeVectored {
		return base + 4*code
	}
	return base
}

// Take performs trap entry: it updates the previous-privilege and
// previous-interrupt-enable shadows in the target status register,
// records cause, epc, and trap value, redirects the PC to the trap
// vector, and switches privilege mode.
func Take(h *hart.Hart, cause, tval uint64) {
	async := IsInterrupt(cause)
	code := Code(cause)

	if TargetPriv(h, cause) == hart.PrivS {
		sie := hart.GetField(h.Mstatus, hart.MstatusSIE)
		h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSPIE, sie)
		h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSIE, 0)
		h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSPP, h.Priv)
		h.Scause = cause
		h.Sepc = h.PC
		h.Stval = tval
		h.PC = vectorPC(h.Stvec, code, async)
		h.Priv = hart.PrivS
		return
	}

	mie := hart.GetField(h.Mstatus, hart.MstatusMIE)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMPIE, mie)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMIE, 0)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMPP, h.Priv)
	h.Mcause = cause
	h.Mepc = h.PC
	h.Mtval = tval
	h.PC = vectorPC(h.Mtvec, code, async)
	h.Priv = hart.PrivM
}

// MRet performs a machine-mode trap return: restores the interrupt
// enable from MPIE, drops to the privilege saved in MPP, and resumes
// at mepc.
func MRet(h *hart.Hart) {
	mpie := hart.GetField(h.Mstatus, hart.MstatusMPIE)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMIE, mpie)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMPIE, 1)
	h.Priv = hart.GetField(h.Mstatus, hart.MstatusMPP)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusMPP, hart.PrivU)
	h.PC = h.Mepc
}

// SRet performs a supervisor-mode trap return.
func SRet(h *hart.Hart) {
	spie := hart.GetField(h.Mstatus, hart.MstatusSPIE)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSIE, spie)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSPIE, 1)
	h.Priv = hart.GetField(h.Mstatus, hart.MstatusSPP)
	h.Mstatus = hart.SetField(h.Mstatus, hart.MstatusSPP, hart.PrivU)
	h.PC = h.Sepc
}
