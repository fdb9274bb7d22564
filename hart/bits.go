// Package hart models the architectural state of a single RISC-V
// hardware thread (hart): integer, floating-point, and privileged
// register state, plus the optional vector-extension overlay.
package hart

// GetField extracts the field selected by mask from reg. The mask must
// be a contiguous run of set bits.
func GetField(reg, mask uint64) uint64 {
	return (reg & mask) / (mask & ^(mask << 1))
}

// SetField replaces the field selected by mask in reg with val.
func SetField(reg, mask, val uint64) uint64 {
	return (reg & ^mask) | ((val * (mask & ^(mask << 1))) & mask)
}

// Privilege modes.
const (
	PrivU uint64 = 0
	PrivS uint64 = 1
	PrivH uint64 = 2 // reserved
	PrivM uint64 = 3
)

// Extension bits for the misa register. Bit i set means extension
// 'A'+i is implemented.
const (
	RVI uint64 = 1 << ('I' - 'A')
	RVE uint64 = 1 << ('E' - 'A')
	RVM uint64 = 1 << ('M' - 'A')
	RVA uint64 = 1 << ('A' - 'A')
	RVF uint64 = 1 << ('F' - 'A')
	RVD uint64 = 1 << ('D' - 'A')
	RVV uint64 = 1 << ('V' - 'A')
	RVC uint64 = 1 << ('C' - 'A')
	RVS uint64 = 1 << ('S' - 'A')
	RVU uint64 = 1 << ('U' - 'A')
	RVH uint64 = 1 << ('H' - 'A')
)

// MISA64MXL is the machine XLEN field of misa (RV64 -> 2).
const (
	MISA64MXL uint64 = 0xC000000000000000
	MXLRV64   uint64 = 2
)

// Features that are not expressible in misa. A core may implement
// supervisor mode without an MMU, so these live in a separate mask.
const (
	FeatureMMU uint32 = 1 << iota
	FeaturePMP
	FeatureEPMP
)

// Control and status register numbers.
const (
	// User floating-point CSRs.
	CSRFflags = 0x001
	CSRFrm    = 0x002
	CSRFcsr   = 0x003

	// User vector CSRs.
	CSRVstart = 0x008
	CSRVxsat  = 0x009
	CSRVxrm   = 0x00a
	CSRVl     = 0xc20
	CSRVtype  = 0xc21

	// User counters.
	CSRCycle   = 0xc00
	CSRTime    = 0xc01
	CSRInstret = 0xc02

	// Supervisor trap setup.
	CSRSstatus    = 0x100
	CSRSie        = 0x104
	CSRStvec      = 0x105
	CSRScounteren = 0x106

	// Supervisor trap handling.
	CSRSscratch = 0x140
	CSRSepc     = 0x141
	CSRScause   = 0x142
	CSRStval    = 0x143
	CSRSip      = 0x144

	// Supervisor protection and translation.
	CSRSatp = 0x180

	// Machine information.
	CSRMvendorid = 0xf11
	CSRMarchid   = 0xf12
	CSRMimpid    = 0xf13
	CSRMhartid   = 0xf14

	// Machine trap setup.
	CSRMstatus    = 0x300
	CSRMisa       = 0x301
	CSRMedeleg    = 0x302
	CSRMideleg    = 0x303
	CSRMie        = 0x304
	CSRMtvec      = 0x305
	CSRMcounteren = 0x306

	// Machine trap handling.
	CSRMscratch = 0x340
	CSRMepc     = 0x341
	CSRMcause   = 0x342
	CSRMtval    = 0x343
	CSRMip      = 0x344

	// Machine counters.
	CSRMcycle   = 0xb00
	CSRMinstret = 0xb02

	// Physical memory protection.
	CSRPmpcfg0  = 0x3a0
	CSRPmpaddr0 = 0x3b0
)

// mstatus bits.
const (
	MstatusUIE  uint64 = 0x00000001
	MstatusSIE  uint64 = 0x00000002
	MstatusMIE  uint64 = 0x00000008
	MstatusUPIE uint64 = 0x00000010
	MstatusSPIE uint64 = 0x00000020
	MstatusMPIE uint64 = 0x00000080
	MstatusSPP  uint64 = 0x00000100
	MstatusMPP  uint64 = 0x00001800
	MstatusFS   uint64 = 0x00006000
	MstatusXS   uint64 = 0x00018000
	MstatusMPRV uint64 = 0x00020000
	MstatusSUM  uint64 = 0x00040000
	MstatusMXR  uint64 = 0x00080000
	MstatusTVM  uint64 = 0x00100000
	MstatusTW   uint64 = 0x00200000
	MstatusTSR  uint64 = 0x00400000
	MstatusUXL  uint64 = 0x0000000300000000
	MstatusSXL  uint64 = 0x0000000C00000000
	MstatusSD   uint64 = 0x8000000000000000
)

// sstatus view of mstatus.
const (
	SstatusSIE  uint64 = MstatusSIE
	SstatusSPIE uint64 = MstatusSPIE
	SstatusSPP  uint64 = MstatusSPP
	SstatusFS   uint64 = MstatusFS
	SstatusXS   uint64 = MstatusXS
	SstatusSUM  uint64 = MstatusSUM
	SstatusMXR  uint64 = MstatusMXR
	SstatusUXL  uint64 = MstatusUXL
	SstatusSD   uint64 = MstatusSD

	// SstatusMask covers every bit visible through sstatus.
	SstatusMask = SstatusSIE | SstatusSPIE | SstatusSPP | SstatusFS |
		SstatusXS | SstatusSUM | SstatusMXR | SstatusUXL | SstatusSD
)

// fcsr fields.
const (
	FflagsMask uint64 = 0x1f
	FrmMask    uint64 = 0x7
	FrmShift          = 5
)

// Synchronous exception causes.
const (
	ExcInstAddrMisaligned  uint64 = 0x0
	ExcInstAccessFault     uint64 = 0x1
	ExcIllegalInst         uint64 = 0x2
	ExcBreakpoint          uint64 = 0x3
	ExcLoadAddrMisaligned  uint64 = 0x4
	ExcLoadAccessFault     uint64 = 0x5
	ExcStoreAddrMisaligned uint64 = 0x6
	ExcStoreAccessFault    uint64 = 0x7
	ExcUEcall              uint64 = 0x8
	ExcSEcall              uint64 = 0x9
	ExcMEcall              uint64 = 0xb
	ExcInstPageFault       uint64 = 0xc
	ExcLoadPageFault       uint64 = 0xd
	ExcStorePageFault      uint64 = 0xf
)

// InterruptFlag is the top bit of a cause value; set means the cause
// is an asynchronous interrupt rather than a synchronous exception.
const InterruptFlag uint64 = 1 << 63

// Interrupt numbers.
const (
	IrqUSoft  uint64 = 0
	IrqSSoft  uint64 = 1
	IrqMSoft  uint64 = 3
	IrqUTimer uint64 = 4
	IrqSTimer uint64 = 5
	IrqMTimer uint64 = 7
	IrqUExt   uint64 = 8
	IrqSExt   uint64 = 9
	IrqMExt   uint64 = 11
)

// mip bit masks.
const (
	MipUSIP uint64 = 1 << IrqUSoft
	MipSSIP uint64 = 1 << IrqSSoft
	MipMSIP uint64 = 1 << IrqMSoft
	MipUTIP uint64 = 1 << IrqUTimer
	MipSTIP uint64 = 1 << IrqSTimer
	MipMTIP uint64 = 1 << IrqMTimer
	MipUEIP uint64 = 1 << IrqUExt
	MipSEIP uint64 = 1 << IrqSExt
	MipMEIP uint64 = 1 << IrqMExt

	// SipMask covers the supervisor-visible interrupt bits.
	SipMask = MipSSIP | MipSTIP | MipSEIP
)

// vtype fields. VILL occupies the sign bit.
const (
	VtypeVlmul uint64 = 0x3
	VtypeVsew  uint64 = 0x1c
	VtypeVediv uint64 = 0x60
	VtypeVill  uint64 = 1 << 63
)

// tvec mode field.
const (
	TvecModeMask     uint64 = 0x3
	TvecModeDirect   uint64 = 0
	TvecModeVectored uint64 = 1
)

// DefaultResetVec is the PC installed at hart reset.
const DefaultResetVec uint64 = 0x1000
