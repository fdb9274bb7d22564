// Package signal implements the Linux user-mode signal-delivery
// protocol for an emulated RISC-V hart: capturing architectural state
// into a stack-resident frame before a guest handler runs, and
// restoring it when the handler returns through rt_sigreturn.
package signal

import "encoding/binary"

// NSig is the number of guest signals.
const NSig = 64

// Guest signal numbers (RISC-V Linux).
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGQUIT = 3
	SIGILL  = 4
	SIGTRAP = 5
	SIGABRT = 6
	SIGBUS  = 7
	SIGFPE  = 8
	SIGKILL = 9
	SIGUSR1 = 10
	SIGSEGV = 11
	SIGUSR2 = 12
	SIGPIPE = 13
	SIGALRM = 14
	SIGTERM = 15
)

// Special handler dispositions.
const (
	HandlerDefault uint64 = 0
	HandlerIgnore  uint64 = 1
)

// sigaction flags.
const (
	SASiginfo uint64 = 0x00000004
	SARestart uint64 = 0x10000000
	SAOnStack uint64 = 0x08000000
)

// sigaltstack flags.
const (
	SSOnStack int32 = 1
	SSDisable int32 = 2
)

// MinSigStkSz is the minimum usable alternate-stack size.
const MinSigStkSz = 2048

// NrRtSigreturn is the rt_sigreturn system call number the trampoline
// issues.
const NrRtSigreturn = 139

// ESigreturn is the distinguished result of RTSigreturn. The dispatch
// loop must not treat it as a system-call return value: the registers
// were just restored from the frame and must not be overwritten.
const ESigreturn int64 = -513

// SigSet is a guest signal mask: bit sig-1 represents signal sig.
// The wire representation in the frame is this word verbatim.
type SigSet uint64

// Add sets the bit for a signal.
func (s SigSet) Add(sig int) SigSet {
	return s | 1<<(sig-1)
}

// Del clears the bit for a signal.
func (s SigSet) Del(sig int) SigSet {
	return s &^ (1 << (sig - 1))
}

// Has reports whether the set contains a signal.
func (s SigSet) Has(sig int) bool {
	return s&(1<<(sig-1)) != 0
}

// Action is a guest sigaction: handler address, SA_* flags, and the
// mask blocked while the handler runs.
type Action struct {
	Handler uint64
	Flags   uint64
	Mask    SigSet
}

// StackT is a guest alternate-stack descriptor (stack_t).
type StackT struct {
	SP    uint64
	Flags int32
	Size  uint64
}

// Disabled reports whether the alternate stack is unusable.
func (s StackT) Disabled() bool {
	return s.Flags&SSDisable != 0 || s.Size == 0
}

// SigInfo carries signal metadata (siginfo_t). Only the fields this
// core produces are modeled; the wire block is 128 bytes regardless.
type SigInfo struct {
	Signo int32
	Errno int32
	Code  int32

	// Addr is the faulting address for SIGSEGV/SIGBUS class signals.
	Addr uint64

	// PID and UID identify the sender for kill-class signals.
	PID uint32
	UID uint32
}

// si_code values.
const (
	SiUser     int32 = 0
	SiKernel   int32 = 0x80
	SegvMaperr int32 = 1
	SegvAccerr int32 = 2
)

// SigInfoSize is the fixed siginfo_t wire size.
const SigInfoSize = 128

// encodeTo writes the siginfo wire format: signo, errno, and code
// words first, then the union at offset 16 (8-byte aligned on RV64).
func (si *SigInfo) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(si.Signo))
	binary.LittleEndian.PutUint32(buf[4:], uint32(si.Errno))
	binary.LittleEndian.PutUint32(buf[8:], uint32(si.Code))

	switch {
	case si.Addr != 0:
		binary.LittleEndian.PutUint64(buf[16:], si.Addr)
	default:
		binary.LittleEndian.PutUint32(buf[16:], si.PID)
		binary.LittleEndian.PutUint32(buf[20:], si.UID)
	}
}

// decodeSigInfo reads back the fields encodeTo wrote.
func decodeSigInfo(buf []byte) SigInfo {
	return SigInfo{
		Signo: int32(binary.LittleEndian.Uint32(buf[0:])),
		Errno: int32(binary.LittleEndian.Uint32(buf[4:])),
		Code:  int32(binary.LittleEndian.Uint32(buf[8:])),
		Addr:  binary.LittleEndian.Uint64(buf[16:]),
	}
}
