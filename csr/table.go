// Package csr implements the control-and-status-register dispatch
// table: a fixed 4096-slot mapping from 12-bit CSR numbers to
// operation bundles, looked up on every CSR instruction.
package csr

import (
	"errors"
	"fmt"

	"github.com/sarchlab/rvsim/hart"
)

// ErrIllegal reports a CSR access that must surface to the decoder as
// an illegal-instruction exception: the predicate rejected the access,
// the slot is unpopulated, or a write hit a read-only register.
var ErrIllegal = errors.New("illegal CSR access")

// TableSize is the number of CSR encodings (12-bit index space).
const TableSize = 0x1000

// PredicateFn checks whether a CSR exists and is accessible for the
// hart's current configuration. A non-nil error rejects the access.
type PredicateFn func(h *hart.Hart, csrno int) error

// ReadFn reads the nominal register value.
type ReadFn func(h *hart.Hart, csrno int) (uint64, error)

// WriteFn writes the nominal register value. Handlers may clamp or
// mask the value and may have side effects beyond the register.
type WriteFn func(h *hart.Hart, csrno int, value uint64) error

// OpFn is a combined read-modify-write handler for CSRs whose old and
// new values must be produced under one mask application (e.g. mip).
type OpFn func(h *hart.Hart, csrno int, newValue, writeMask uint64) (uint64, error)

// Operation is the per-CSR bundle of behavior. Unset fields fall back
// to the composition rules in Table.ReadWrite.
type Operation struct {
	Name      string
	Predicate PredicateFn
	Read      ReadFn
	Write     WriteFn
	Op        OpFn
}

// Table is the immutable CSR dispatch table. It is built once per CPU
// model configuration and shared read-only across that model's harts.
type Table struct {
	ops [TableSize]*Operation
}

// register installs an operation bundle. Each index may be populated
// at most once; a duplicate registration is a model-definition bug.
func (t *Table) register(csrno int, op Operation) {
	if t.ops[csrno] != nil {
		panic(fmt.Sprintf("csr 0x%03x registered twice", csrno))
	}
	t.ops[csrno] = &op
}

// Name returns the symbolic name of a CSR, or "" for an unpopulated
// slot.
func (t *Table) Name(csrno int) string {
	if csrno < 0 || csrno >= TableSize || t.ops[csrno] == nil {
		return ""
	}
	return t.ops[csrno].Name
}

// Defined reports whether a CSR slot is populated.
func (t *Table) Defined(csrno int) bool {
	return csrno >= 0 && csrno < TableSize && t.ops[csrno] != nil
}

// ReadWrite performs a read-modify-write access: the returned value is
// the old CSR value, and bits selected by writeMask are replaced with
// the corresponding bits of newValue (subject to the handler's own
// clamping). A zero writeMask performs a pure read.
func (t *Table) ReadWrite(h *hart.Hart, csrno int, newValue, writeMask uint64) (uint64, error) {
	if csrno < 0 || csrno >= TableSize {
		return 0, fmt.Errorf("csr 0x%03x: %w", csrno, ErrIllegal)
	}

	// The two bits at [9:8] encode the lowest privilege that may
	// access the CSR.
	if h.Priv < uint64((csrno>>8)&0x3) {
		return 0, fmt.Errorf("csr 0x%03x: insufficient privilege: %w",
			csrno, ErrIllegal)
	}

	// Attempted write to a read-only CSR (top two bits 0b11).
	if writeMask != 0 && csrno>>10 == 0x3 {
		return 0, fmt.Errorf("csr 0x%03x: read-only: %w", csrno, ErrIllegal)
	}

	op := t.ops[csrno]
	if op == nil {
		return 0, fmt.Errorf("csr 0x%03x: not implemented: %w", csrno, ErrIllegal)
	}

	if op.Predicate != nil {
		if err := op.Predicate(h, csrno); err != nil {
			return 0, err
		}
	}

	// A combined handler owns the whole access.
	if op.Op != nil {
		return op.Op(h, csrno, newValue, writeMask)
	}

	if op.Read == nil {
		return 0, fmt.Errorf("csr 0x%03x (%s): not readable: %w",
			csrno, op.Name, ErrIllegal)
	}
	old, err := op.Read(h, csrno)
	if err != nil {
		return 0, err
	}

	if writeMask != 0 {
		if op.Write == nil {
			return 0, fmt.Errorf("csr 0x%03x (%s): not writable: %w",
				csrno, op.Name, ErrIllegal)
		}
		merged := (old &^ writeMask) | (newValue & writeMask)
		if err := op.Write(h, csrno, merged); err != nil {
			return 0, err
		}
	}

	return old, nil
}

// Read performs a pure read (zero write mask).
func (t *Table) Read(h *hart.Hart, csrno int) (uint64, error) {
	return t.ReadWrite(h, csrno, 0, 0)
}

// Write performs a pure write (all-ones write mask); the old value is
// discarded.
func (t *Table) Write(h *hart.Hart, csrno int, value uint64) error {
	_, err := t.ReadWrite(h, csrno, value, ^uint64(0))
	return err
}
