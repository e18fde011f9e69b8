package ice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
ice-version: "0.4"
serial-path: /dev/ttyUSB0
baud: 115200
i2c-address-mask: "1001100x"
ack-all: false
generate-messages: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	v, err := cfg.VersionBytes()
	if err != nil {
		t.Fatalf("VersionBytes() error = %v", err)
	}
	if v != [2]byte{0, 4} {
		t.Errorf("VersionBytes() = %v, want 0.4", v)
	}
	mask, ok, err := cfg.Mask()
	if err != nil || !ok {
		t.Fatalf("Mask() = %v, %v, %v", mask, ok, err)
	}
	if mask.Ones != 0x98 || mask.Zeros != 0x66 {
		t.Errorf("mask = %02X/%02X, want 98/66", mask.Ones, mask.Zeros)
	}
	if cfg.SerialPath != "/dev/ttyUSB0" || cfg.Baud != 115200 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "serial-path: /dev/ttyUSB0\nbaudrate: 9600\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() accepted an unknown key")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantKey string
	}{
		{"zero value is valid", Config{}, ""},
		{"bad version form", Config{Version: "4"}, "ice-version"},
		{"bad version digits", Config{Version: "0.x"}, "ice-version"},
		{"bad mask", Config{AddressMask: "10x"}, "i2c-address-mask"},
		{"negative baud", Config{Baud: -1}, "baud"},
		{"driver conflict", Config{GenerateMessages: true, ReplayFile: "run.trace"}, "generate-messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantKey == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("ConfigError.Key = %q, want %q", cfgErr.Key, tt.wantKey)
			}
		})
	}
}

func TestMaskAbsentIsNotAnError(t *testing.T) {
	cfg := Config{}
	_, ok, err := cfg.Mask()
	if err != nil || ok {
		t.Errorf("Mask() = _, %v, %v; want false, nil", ok, err)
	}
}
