package rohc

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the decompressor's channel-wide configuration (SPEC_FULL.md
// §2.2): one Config governs one Engine, which in turn owns one Registry
// per CID namespace.
type Config struct {
	CIDType              string   `yaml:"cid_type"` // "small" or "large"
	MaxCID               uint32   `yaml:"max_cid"`
	EnabledProfiles      []string `yaml:"enabled_profiles"`
	CorrectionCounterMax int      `yaml:"correction_counter_max"`
	ListWindow           int      `yaml:"list_window"`
}

// DefaultConfig matches the conventional defaults used across open ROHC
// implementations: small-CID channel, profile 0/2 enabled, a correction
// budget of 3 tries, and the list window from list.go.
func DefaultConfig() Config {
	return Config{
		CIDType:              "small",
		MaxCID:               15,
		EnabledProfiles:      []string{"uncompressed", "ip"},
		CorrectionCounterMax: 3,
		ListWindow:           DefaultListWindow,
	}
}

// LoadConfig reads and validates a YAML configuration document.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("rohc: parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile opens path and loads a Config from it.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("rohc: opening config: %w", err)
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate checks range and enum constraints that a malformed YAML
// document could otherwise smuggle through as nonsense channel state.
func (c Config) Validate() error {
	switch c.CIDType {
	case "small", "large":
	default:
		return fmt.Errorf("rohc: cid_type must be \"small\" or \"large\", got %q", c.CIDType)
	}
	if c.CIDType == "small" && c.MaxCID > 15 {
		return fmt.Errorf("rohc: max_cid %d exceeds small-CID channel limit of 15", c.MaxCID)
	}
	if c.CIDType == "large" && c.MaxCID > 1<<14-1 {
		return fmt.Errorf("rohc: max_cid %d exceeds large-CID channel limit of %d", c.MaxCID, 1<<14-1)
	}
	if c.CorrectionCounterMax < 0 {
		return fmt.Errorf("rohc: correction_counter_max must be >= 0, got %d", c.CorrectionCounterMax)
	}
	if c.ListWindow < 2 {
		return fmt.Errorf("rohc: list_window must be >= 2, got %d", c.ListWindow)
	}
	for _, p := range c.EnabledProfiles {
		if _, err := profileIDForName(p); err != nil {
			return err
		}
	}
	return nil
}

// cidType resolves the YAML string to the registry's CIDType enum.
func (c Config) cidType() CIDType {
	if c.CIDType == "large" {
		return LargeCID
	}
	return SmallCID
}

func profileIDForName(name string) (ProfileID, error) {
	switch name {
	case "uncompressed":
		return ProfileUncompressed, nil
	case "ip":
		return ProfileIP, nil
	case "udp":
		return ProfileUDP, nil
	case "udp-lite":
		return ProfileUDPLite, nil
	case "rtp":
		return ProfileRTP, nil
	default:
		return 0, fmt.Errorf("rohc: unknown profile name %q", name)
	}
}
