package hart

import "fmt"

// IntRegNames lists the ABI names of the integer registers.
var IntRegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// FpRegNames lists the ABI names of the floating-point registers.
var FpRegNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

var excpNames = map[uint64]string{
	ExcInstAddrMisaligned:  "misaligned_fetch",
	ExcInstAccessFault:     "fault_fetch",
	ExcIllegalInst:         "illegal_instruction",
	ExcBreakpoint:          "breakpoint",
	ExcLoadAddrMisaligned:  "misaligned_load",
	ExcLoadAccessFault:     "fault_load",
	ExcStoreAddrMisaligned: "misaligned_store",
	ExcStoreAccessFault:    "fault_store",
	ExcUEcall:              "user_ecall",
	ExcSEcall:              "supervisor_ecall",
	ExcMEcall:              "machine_ecall",
	ExcInstPageFault:       "exec_page_fault",
	ExcLoadPageFault:       "load_page_fault",
	ExcStorePageFault:      "store_page_fault",
}

var intrNames = map[uint64]string{
	IrqUSoft:  "u_software",
	IrqSSoft:  "s_software",
	IrqMSoft:  "m_software",
	IrqUTimer: "u_timer",
	IrqSTimer: "s_timer",
	IrqMTimer: "m_timer",
	IrqUExt:   "u_external",
	IrqSExt:   "s_external",
	IrqMExt:   "m_external",
}

// TrapName returns a human-readable name for a trap cause. The async
// flag selects the interrupt namespace.
func TrapName(cause uint64, async bool) string {
	names := excpNames
	if async {
		names = intrNames
	}
	if name, ok := names[cause]; ok {
		return name
	}
	return fmt.Sprintf("(unknown, cause=%d, async=%v)", cause, async)
}

// ISAString renders the hart's misa configuration in the canonical
// lowercase form, e.g. "rv64imafdcv".
func (h *Hart) ISAString() string {
	// Canonical extension order per the ISA naming convention.
	const order = "IEMAFDQCLBJTPVNSUHKORWXYZG"

	s := "rv64"
	for _, c := range order {
		if h.Misa&(1<<(c-'A')) != 0 {
			s += string(c + 'a' - 'A')
		}
	}
	return s
}
