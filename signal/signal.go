package signal

import (
	"fmt"

	"github.com/sarchlab/rvsim/csr"
	"github.com/sarchlab/rvsim/hart"
	"github.com/sarchlab/rvsim/mem"
)

// Delivery owns the user-mode signal state of one emulated process:
// per-signal actions, the blocked mask, and the alternate stack. It
// performs frame capture on delivery and restore on sigreturn.
// Capture and restore are synchronous and non-reentrant with respect
// to the hart.
type Delivery struct {
	hart   *hart.Hart
	mem    *mem.Memory
	table  *csr.Table
	layout Layout

	actions  [NSig + 1]Action
	blocked  SigSet
	altstack StackT

	// terminated records a forced default-disposition fault; the
	// embedding process plumbing tears the guest down on it.
	terminated bool
	termSignal int
}

// NewDelivery creates the signal-delivery state for a hart. The CSR
// table is used to capture fcsr and the vector CSRs through their
// architectural access path.
func NewDelivery(h *hart.Hart, m *mem.Memory, table *csr.Table) *Delivery {
	vlen := hart.DefaultVLen
	if h.Vector != nil {
		vlen = h.Vector.VLen
	}
	return &Delivery{
		hart:     h,
		mem:      m,
		table:    table,
		layout:   NewLayout(vlen),
		altstack: StackT{Flags: SSDisable},
	}
}

// Layout returns the frame geometry in use.
func (d *Delivery) Layout() Layout {
	return d.layout
}

// SetAction installs a guest sigaction.
func (d *Delivery) SetAction(sig int, act Action) error {
	if sig < 1 || sig > NSig {
		return fmt.Errorf("signal %d out of range", sig)
	}
	d.actions[sig] = act
	return nil
}

// GetAction returns the current action for a signal.
func (d *Delivery) GetAction(sig int) Action {
	return d.actions[sig]
}

// SetAltStack installs the guest alternate signal stack.
func (d *Delivery) SetAltStack(stack StackT) error {
	if stack.Flags&SSDisable == 0 && stack.Size < MinSigStkSz {
		return fmt.Errorf("alternate stack of %d bytes is below the %d minimum",
			stack.Size, MinSigStkSz)
	}
	d.altstack = stack
	return nil
}

// AltStack returns the current alternate-stack descriptor.
func (d *Delivery) AltStack() StackT {
	return d.altstack
}

// Blocked returns the current blocked-signal mask.
func (d *Delivery) Blocked() SigSet {
	return d.blocked
}

// SetBlocked replaces the blocked-signal mask.
func (d *Delivery) SetBlocked(set SigSet) {
	d.blocked = set
}

// Terminated reports whether a forced fault ended the guest, and with
// which signal.
func (d *Delivery) Terminated() (bool, int) {
	return d.terminated, d.termSignal
}

// onSigStack reports whether sp currently points into the alternate
// stack.
func (d *Delivery) onSigStack(sp uint64) bool {
	if d.altstack.Disabled() {
		return false
	}
	return sp-d.altstack.SP <= d.altstack.Size
}

// altstackFlags computes the ss_flags value saved into a frame.
func (d *Delivery) altstackFlags() int32 {
	if d.altstack.Disabled() {
		return SSDisable
	}
	if d.onSigStack(d.hart.X[regSP]) {
		return SSOnStack
	}
	return 0
}

// sigsp applies the X/Open stack-switching convention: switch to the
// alternate stack only when the action requests it and we are not
// already there.
func (d *Delivery) sigsp(sp uint64, act Action) uint64 {
	if act.Flags&SAOnStack != 0 && !d.altstack.Disabled() && !d.onSigStack(sp) {
		return d.altstack.SP + d.altstack.Size
	}
	return sp
}

// sigframeAddr computes the address the frame will occupy. If we are
// already on the alternate stack and the frame would overflow it, an
// always-unmapped address is returned so delivery dies with a forced
// fault instead of corrupting memory below the stack.
func (d *Delivery) sigframeAddr(act Action) uint64 {
	sp := d.hart.X[regSP]
	frameSize := uint64(d.layout.FrameSize())

	if d.onSigStack(sp) && !d.onSigStack(sp-frameSize) {
		return ^uint64(0)
	}

	sp = d.sigsp(sp, act) - frameSize

	// The ABI requires only 4-byte alignment of sp at this layer;
	// the 16-byte-aligned fields inside the frame are positioned by
	// the fixed offsets. (The kernel may align to 16 here; kept at 4
	// for compatibility with the reference behavior.)
	sp &^= 3

	return sp
}

// Deliver blocks the action's mask plus the signal itself, then sets
// up the handler frame with the pre-delivery mask saved in it.
func (d *Delivery) Deliver(sig int, info *SigInfo) {
	act := d.actions[sig]
	oldSet := d.blocked
	d.blocked |= act.Mask | SigSet(1)<<(sig-1)
	d.SetupRTFrame(sig, info, oldSet)
}

// SetupRTFrame captures hart state into an rt_sigframe on the guest
// stack and redirects execution to the registered handler. All
// failures are handled internally: an unwritable frame forces a
// SIGSEGV, resetting SIGSEGV's own handler to default first when the
// failing signal is SIGSEGV itself, so delivery cannot re-enter
// forever.
func (d *Delivery) SetupRTFrame(sig int, info *SigInfo, oldSet SigSet) {
	act := d.actions[sig]
	frameAddr := d.sigframeAddr(act)

	region, err := d.mem.LockWrite(frameAddr, d.layout.FrameSize())
	if err != nil {
		d.badFrame(sig)
		return
	}

	buf := region.Bytes()
	installSigtramp(buf[frTramp:])
	if info != nil {
		info.encodeTo(buf[frInfo : frInfo+SigInfoSize])
	}
	d.setupUcontext(buf[frUC:], oldSet)
	region.Commit()

	h := d.hart
	h.PC = act.Handler
	h.X[regSP] = frameAddr
	h.X[regA0] = uint64(sig)
	h.X[regA1] = frameAddr + frInfo
	h.X[regA2] = frameAddr + frUC
	h.X[regRA] = frameAddr + frTramp
}

// RTSigreturn restores hart state from the frame located through the
// stack pointer and reinstalls the saved signal mask. It returns
// ESigreturn so the dispatch loop keeps its hands off the registers;
// an unreadable frame forces a fault and returns 0.
func (d *Delivery) RTSigreturn() int64 {
	frameAddr := d.hart.X[regSP]

	buf, err := d.mem.LockRead(frameAddr, d.layout.FrameSize())
	if err != nil {
		d.forceSig(SIGSEGV, frameAddr)
		return 0
	}

	d.restoreUcontext(buf[frUC:])
	return ESigreturn
}

// FrameInfo decodes the siginfo block of a frame, for diagnostics.
func (d *Delivery) FrameInfo(frameAddr uint64) (SigInfo, error) {
	buf, err := d.mem.LockRead(frameAddr+frInfo, SigInfoSize)
	if err != nil {
		return SigInfo{}, err
	}
	return decodeSigInfo(buf), nil
}

// badFrame applies the capture failure policy for signal sig.
func (d *Delivery) badFrame(sig int) {
	if sig == SIGSEGV {
		d.actions[SIGSEGV].Handler = HandlerDefault
	}
	d.forceSig(SIGSEGV, 0)
}

// forceSig delivers a synchronous fault signal, overriding ignore
// dispositions. A default disposition, or a blocked fault, terminates
// the guest rather than looping.
func (d *Delivery) forceSig(sig int, addr uint64) {
	act := d.actions[sig]
	if act.Handler == HandlerDefault || act.Handler == HandlerIgnore ||
		d.blocked.Has(sig) {
		d.terminated = true
		d.termSignal = sig
		return
	}

	d.Deliver(sig, &SigInfo{
		Signo: int32(sig),
		Code:  SiKernel,
		Addr:  addr,
	})
}
