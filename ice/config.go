package ice

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-ice/mbus"
)

// Config describes a bench setup loaded from a YAML file. All keys
// are optional; the zero value is a valid live configuration taking
// the board's newest protocol version.
type Config struct {
	// Version pins the protocol version, e.g. "0.4". Empty takes the
	// newest the board offers.
	Version string `yaml:"ice-version"`

	// SerialPath is the serial device of the board.
	SerialPath string `yaml:"serial-path"`

	// Baud overrides the default link rate.
	Baud int `yaml:"baud"`

	// AddressMask filters which bus addresses the board acknowledges,
	// eight characters of '0', '1' and 'x'.
	AddressMask string `yaml:"i2c-address-mask"`

	// AckAll acknowledges every bus message regardless of address.
	AckAll bool `yaml:"ack-all"`

	// GenerateMessages turns on synthetic bus chatter in a simulated
	// board.
	GenerateMessages bool `yaml:"generate-messages"`

	// ReplayFile plays a captured trace back instead of live traffic.
	ReplayFile string `yaml:"replay-file"`
}

// LoadConfig reads and validates a YAML configuration. Unknown keys
// are rejected, so a typoed key fails loudly instead of silently
// falling back to a default.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ice: open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("ice: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for contradictions and malformed
// values.
func (c *Config) Validate() error {
	if _, err := c.VersionBytes(); err != nil {
		return err
	}
	if _, _, err := c.Mask(); err != nil {
		return err
	}
	if c.Baud < 0 {
		return &ConfigError{Key: "baud", Reason: "must not be negative"}
	}
	if c.GenerateMessages && c.ReplayFile != "" {
		return &ConfigError{Key: "generate-messages", Reason: "mutually exclusive with replay-file"}
	}
	return nil
}

// VersionBytes parses the pinned protocol version. The zero value
// means no pin.
func (c *Config) VersionBytes() ([2]byte, error) {
	if c.Version == "" {
		return [2]byte{}, nil
	}
	major, minor, ok := strings.Cut(c.Version, ".")
	if !ok {
		return [2]byte{}, &ConfigError{Key: "ice-version", Reason: "want the form MAJOR.MINOR"}
	}
	maj, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return [2]byte{}, &ConfigError{Key: "ice-version", Reason: "bad major " + strconv.Quote(major)}
	}
	min, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return [2]byte{}, &ConfigError{Key: "ice-version", Reason: "bad minor " + strconv.Quote(minor)}
	}
	return [2]byte{byte(maj), byte(min)}, nil
}

// Mask parses the address filter. ok is false when no mask is
// configured.
func (c *Config) Mask() (mask mbus.AddressMask, ok bool, err error) {
	if c.AddressMask == "" {
		return mbus.AddressMask{}, false, nil
	}
	mask, err = mbus.ParseAddressMask(c.AddressMask)
	if err != nil {
		return mbus.AddressMask{}, false, &ConfigError{Key: "i2c-address-mask", Reason: err.Error()}
	}
	return mask, true, nil
}
