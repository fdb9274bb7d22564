package hart

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config describes a CPU model configuration. It decides which
// extensions and features a hart carries and how the shared CSR
// dispatch table is populated.
type Config struct {
	// Extensions is the set of single-letter ISA extensions, e.g.
	// "IMAFDCSU". The V extension enables the vector overlay.
	Extensions string `json:"extensions"`

	// VLen is the vector register width in bits. Only meaningful
	// when the V extension is enabled. Default: 128.
	VLen uint32 `json:"vlen"`

	// MMU enables the memory-management unit feature bit. misa has
	// no bit for this, so it lives in the feature mask.
	MMU bool `json:"mmu"`

	// PMP enables the physical-memory-protection feature bit.
	PMP bool `json:"pmp"`

	// ResetVec is the PC installed at hart reset.
	ResetVec uint64 `json:"reset_vec"`
}

// DefaultConfig returns the rv64gc configuration with supervisor and
// user modes, MMU, and PMP.
func DefaultConfig() *Config {
	return &Config{
		Extensions: "IMAFDCSU",
		VLen:       DefaultVLen,
		MMU:        true,
		PMP:        true,
		ResetVec:   DefaultResetVec,
	}
}

// LoadConfig loads a model Config from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	for _, e := range c.Extensions {
		if e < 'A' || e > 'Z' {
			return fmt.Errorf("extension letters must be uppercase, got %q", e)
		}
	}
	if c.VLen != 0 && (c.VLen < 64 || c.VLen > MaxVLen || c.VLen&(c.VLen-1) != 0) {
		return fmt.Errorf("vlen must be a power of two in [64, %d], got %d",
			MaxVLen, c.VLen)
	}
	return nil
}

// Features renders the boolean fields as a feature bitmask.
func (c *Config) FeatureMask() uint32 {
	var features uint32
	if c.MMU {
		features |= FeatureMMU
	}
	if c.PMP {
		features |= FeaturePMP
	}
	return features
}

// NewHartFromConfig builds a hart matching the configuration.
func NewHartFromConfig(c *Config, hartID uint64) *Hart {
	opts := []Option{
		WithExtensions(c.Extensions),
		WithFeatures(c.FeatureMask()),
		WithHartID(hartID),
	}
	if c.ResetVec != 0 {
		opts = append(opts, WithResetVec(c.ResetVec))
	}
	h := NewHart(opts...)
	if h.HasExt(RVV) && c.VLen != 0 && c.VLen != h.Vector.VLen {
		h.Vector = NewVectorState(c.VLen)
	}
	return h
}
