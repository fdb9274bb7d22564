package hart

// DefaultVLen is the vector register width in bits used when the V
// extension is enabled without an explicit width.
const DefaultVLen uint32 = 128

// MaxVLen bounds the configurable vector register width.
const MaxVLen uint32 = 256

// VectorState is the conditionally present vector coprocessor state.
// It exists only when the V extension is configured; every consumer
// (CSR handlers, the signal frame codec) gates on Hart.HasExt(RVV).
type VectorState struct {
	// VLen is the register width in bits. Fixed at configuration.
	VLen uint32

	// Reg holds all 32 vector registers as a flat array of 64-bit
	// words, VLen/64 words per register.
	Reg []uint64

	Vstart uint64
	Vxsat  uint64
	Vxrm   uint64
	Vl     uint64
	Vtype  uint64
}

// NewVectorState allocates vector state for the given VLEN in bits.
// VLEN is clamped to [64, MaxVLen] and must be a power of two; the
// decoder validates configuration before instructions run, so the
// clamp only guards construction.
func NewVectorState(vlen uint32) *VectorState {
	if vlen < 64 {
		vlen = 64
	}
	if vlen > MaxVLen {
		vlen = MaxVLen
	}
	return &VectorState{
		VLen: vlen,
		Reg:  make([]uint64, 32*int(vlen)/64),
	}
}

// WordsPerReg returns the number of 64-bit words in one register.
func (v *VectorState) WordsPerReg() int {
	return int(v.VLen) / 64
}

// RegWord returns word w of vector register reg.
func (v *VectorState) RegWord(reg, w int) uint64 {
	return v.Reg[reg*v.WordsPerReg()+w]
}

// SetRegWord sets word w of vector register reg.
func (v *VectorState) SetRegWord(reg, w int, value uint64) {
	v.Reg[reg*v.WordsPerReg()+w] = value
}

// VLMax derives the maximum vector length for a vtype setting:
//
//	VLMAX = (1 << LMUL) * VLEN / (8 * (1 << SEW))
//	      = VLEN >> (SEW + 3 - LMUL)
//
// The value is always derived from vtype, never cached, so a vtype
// with the illegal bit set still round-trips faithfully.
func (v *VectorState) VLMax(vtype uint64) uint32 {
	sew := GetField(vtype, VtypeVsew)
	lmul := GetField(vtype, VtypeVlmul)
	return v.VLen >> (sew + 3 - lmul)
}

// Vill reports whether vtype currently has the illegal bit set.
func (v *VectorState) Vill() bool {
	return v.Vtype&VtypeVill != 0
}

// Reset clears the vector CSRs and registers.
func (v *VectorState) Reset() {
	for i := range v.Reg {
		v.Reg[i] = 0
	}
	v.Vstart = 0
	v.Vxsat = 0
	v.Vxrm = 0
	v.Vl = 0
	v.Vtype = 0
}
