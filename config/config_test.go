package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("default rpc address: %q", cfg.RPCAddress)
	}
	if cfg.OfferTimeout != 240 || cfg.MaxDataIDs != 256 {
		t.Fatalf("default limits: timeout=%d maxDataIds=%d", cfg.OfferTimeout, cfg.MaxDataIDs)
	}
	if !cfg.SettlementHandlers {
		t.Fatalf("settlement handlers should default on")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the file that was just created.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.OfferTimeout != cfg.OfferTimeout {
		t.Fatalf("reloaded config mismatch: %+v", again)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	partial := "RPCAddress = \":9999\"\nOfferTimeout = 30\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9999" {
		t.Fatalf("explicit value lost: %q", cfg.RPCAddress)
	}
	if cfg.OfferTimeout != 30 {
		t.Fatalf("explicit timeout lost: %d", cfg.OfferTimeout)
	}
	if cfg.MaxDataIDs != 256 || cfg.RequestBurst != 20 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("NotARealKey = true\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("unknown keys must be rejected")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("RPCAddress = [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed file must be rejected")
	}
}
