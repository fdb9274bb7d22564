package hart

// Hart holds the complete architectural state of one RV64 hardware
// thread. One instance exists per emulated hart; the embedding
// execution engine owns it exclusively, so no locking happens here.
type Hart struct {
	// X holds general-purpose registers x0-x31.
	// X[0] is hard-wired to zero; reads go through ReadReg.
	X [32]uint64

	// PC is the program counter.
	PC uint64

	// F holds floating-point registers f0-f31 (F and D share them).
	F [32]uint64

	// Fflags and Frm are the pieces of fcsr.
	Fflags uint64
	Frm    uint64

	// Priv is the current privilege mode (PrivU/PrivS/PrivM).
	Priv uint64

	// Misa is the extension bitmask plus the MXL field.
	Misa uint64

	// Features holds capabilities not expressible in misa
	// (FeatureMMU, FeaturePMP, ...).
	Features uint32

	// HartID is the value exposed through mhartid.
	HartID uint64

	// Machine-level CSR bank.
	Mstatus    uint64
	Medeleg    uint64
	Mideleg    uint64
	Mie        uint64
	Mip        uint64
	Mtvec      uint64
	Mcounteren uint64
	Mscratch   uint64
	Mepc       uint64
	Mcause     uint64
	Mtval      uint64
	Mcycle     uint64
	Minstret   uint64

	// Supervisor-level CSR bank.
	Stvec      uint64
	Scounteren uint64
	Sscratch   uint64
	Sepc       uint64
	Scause     uint64
	Stval      uint64
	Satp       uint64

	// Vector is the vector-extension overlay; nil unless the V
	// extension is configured. All consumers gate on HasExt(RVV),
	// never on Vector != nil directly.
	Vector *VectorState

	resetVec uint64
}

// Option is a functional option for configuring a Hart.
type Option func(*Hart)

// WithExtensions enables the listed single-letter extensions, e.g.
// "IMAFDSU". The V extension also attaches the vector overlay with
// the default VLEN.
func WithExtensions(ext string) Option {
	return func(h *Hart) {
		for _, c := range ext {
			if c < 'A' || c > 'Z' {
				continue
			}
			h.Misa |= 1 << (c - 'A')
		}
		if h.Misa&RVV != 0 && h.Vector == nil {
			h.Vector = NewVectorState(DefaultVLen)
		}
	}
}

// WithVectorExtension enables the V extension with an explicit VLEN
// in bits.
func WithVectorExtension(vlen uint32) Option {
	return func(h *Hart) {
		h.Misa |= RVV
		h.Vector = NewVectorState(vlen)
	}
}

// WithFeatures sets the non-misa feature mask.
func WithFeatures(features uint32) Option {
	return func(h *Hart) {
		h.Features = features
	}
}

// WithHartID sets the mhartid value.
func WithHartID(id uint64) Option {
	return func(h *Hart) {
		h.HartID = id
	}
}

// WithResetVec sets the PC installed by Reset.
func WithResetVec(pc uint64) Option {
	return func(h *Hart) {
		h.resetVec = pc
	}
}

// NewHart creates a hart with the given configuration and resets it.
func NewHart(opts ...Option) *Hart {
	h := &Hart{
		resetVec: DefaultResetVec,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.Misa == 0 {
		h.Misa = RVI | RVM | RVA | RVF | RVD | RVC | RVS | RVU
	}
	h.Misa = SetField(h.Misa, MISA64MXL, MXLRV64)

	h.Reset()
	return h
}

// Reset puts the hart into its architectural reset state. Extension
// and feature configuration survives reset.
func (h *Hart) Reset() {
	h.Priv = PrivM
	h.PC = h.resetVec
	h.Mstatus = SetField(h.Mstatus, MstatusMPP, PrivM)
	h.Mcause = 0
	if h.Vector != nil {
		h.Vector.Reset()
	}
}

// ReadReg reads a general-purpose register. x0 always reads as zero.
func (h *Hart) ReadReg(reg uint8) uint64 {
	if reg == 0 {
		return 0
	}
	return h.X[reg]
}

// WriteReg writes a general-purpose register. Writes to x0 are
// silently discarded.
func (h *Hart) WriteReg(reg uint8, value uint64) {
	if reg == 0 {
		return
	}
	h.X[reg] = value
}

// ReadFReg reads a floating-point register.
func (h *Hart) ReadFReg(reg uint8) uint64 {
	return h.F[reg]
}

// WriteFReg writes a floating-point register.
func (h *Hart) WriteFReg(reg uint8, value uint64) {
	h.F[reg] = value
}

// Fcsr composes the floating-point control/status register from its
// stored pieces.
func (h *Hart) Fcsr() uint64 {
	return (h.Frm << FrmShift) | h.Fflags
}

// SetFcsr splits a combined fcsr value into its stored pieces.
func (h *Hart) SetFcsr(value uint64) {
	h.Fflags = value & FflagsMask
	h.Frm = (value >> FrmShift) & FrmMask
}

// HasExt reports whether extension bit ext (one of the RV* masks) is
// enabled in misa.
func (h *Hart) HasExt(ext uint64) bool {
	return h.Misa&ext != 0
}

// HasFeature reports whether a non-misa feature is present.
func (h *Hart) HasFeature(feature uint32) bool {
	return h.Features&feature != 0
}
