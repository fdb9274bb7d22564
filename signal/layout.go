package signal

// The rt_sigframe wire format is fixed by the RISC-V Linux ABI
// (arch/riscv/include/uapi/asm/ptrace.h and kernel/signal.c); guest
// trampolines and debuggers parse it directly, so every offset below
// is byte-exact, including padding.
//
// struct sigcontext:
//	pc            at   0
//	x1..x31       at   8 + 8*(i-1)   (x0 is not stored)
//	f0..f31       at 256
//	fcsr (u32)    at 512
//	reserved      at 516 (67 words for future CSR additions)
//	v0..v31       at 784 (16-byte aligned, VLEN/8 bytes each)
//	vstart..vtype following the vector block
//
// struct ucontext:
//	uc_flags      at   0
//	uc_link       at   8
//	uc_stack      at  16 (ss_sp, ss_flags+pad, ss_size)
//	uc_sigmask    at  40
//	unused        at  48 (mask region padded to 128 bytes total)
//	uc_mcontext   at 176 (16-byte aligned)
//
// struct rt_sigframe:
//	tramp[2]      at   0 (the kernel uses the vDSO instead)
//	siginfo       at   8 (128 bytes)
//	ucontext      at 144 (16-byte aligned)

// Fixed sigcontext offsets.
const (
	scPC   = 0
	scGPR  = 8
	scFPR  = 256
	scFcsr = 512

	// scVector is where the 16-byte-aligned vector block begins,
	// after the 67-word reserved region.
	scVector = 784
)

// Fixed ucontext offsets.
const (
	ucFlags    = 0
	ucLink     = 8
	ucStackSP  = 16
	ucStackFlg = 24
	ucStackSz  = 32
	ucSigmask  = 40
	ucMcontext = 176
)

// Fixed rt_sigframe offsets.
const (
	frTramp = 0
	frInfo  = 8
	frUC    = 144
)

// Trampoline instruction words: li a7, 139; ecall.
const (
	trampLoadNR = 0x08b00893
	trampEcall  = 0x00000073
)

// ABI-designated registers for handler invocation.
const (
	regRA = 1
	regSP = 2
	regA0 = 10
	regA1 = 11
	regA2 = 12
)

// Layout gives the frame geometry for a vector width. The vector
// block is always present in the frame (the struct is fixed); only
// its contents are conditional on the V extension.
type Layout struct {
	// VLen is the vector register width in bits.
	VLen uint32
}

// NewLayout builds the frame geometry for a VLEN in bits.
func NewLayout(vlen uint32) Layout {
	return Layout{VLen: vlen}
}

func align16(n int) int {
	return (n + 15) &^ 15
}

// VRegBytes is the per-register size of a vector slot in the frame.
func (l Layout) VRegBytes() int {
	return int(l.VLen) / 8
}

// VCSROffset returns the offset of the i-th trailing vector CSR
// (vstart, vxsat, vxrm, vl, vtype in that order) within sigcontext.
func (l Layout) VCSROffset(i int) int {
	return scVector + 32*l.VRegBytes() + 8*i
}

// SigcontextSize is the 16-byte-aligned size of the machine context.
func (l Layout) SigcontextSize() int {
	return align16(l.VCSROffset(4) + 8)
}

// UcontextSize is the size of the enclosing user-context block.
func (l Layout) UcontextSize() int {
	return ucMcontext + l.SigcontextSize()
}

// FrameSize is the total rt_sigframe size reserved on the stack.
func (l Layout) FrameSize() int {
	return frUC + l.UcontextSize()
}
