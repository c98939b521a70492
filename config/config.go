package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress         string  `toml:"RPCAddress"`
	DataDir            string  `toml:"DataDir"`
	NetworkName        string  `toml:"NetworkName"`
	OfferTimeout       uint64  `toml:"OfferTimeout"`
	MaxDataIDs         int     `toml:"MaxDataIDs"`
	EventBuffer        int     `toml:"EventBuffer"`
	RequestsPerMinute  float64 `toml:"RequestsPerMinute"`
	RequestBurst       int     `toml:"RequestBurst"`
	AuthIssuer         string  `toml:"AuthIssuer"`
	AuthAudience       string  `toml:"AuthAudience"`
	LogFile            string  `toml:"LogFile"`
	LogMaxSizeMB       int     `toml:"LogMaxSizeMB"`
	LogMaxBackups      int     `toml:"LogMaxBackups"`
	SettlementHandlers bool    `toml:"SettlementHandlers"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./datamarket-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "datamarket-local"
	}
	if cfg.OfferTimeout == 0 {
		cfg.OfferTimeout = 240
	}
	if cfg.MaxDataIDs == 0 {
		cfg.MaxDataIDs = 256
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.RequestBurst <= 0 {
		cfg.RequestBurst = 20
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups <= 0 {
		cfg.LogMaxBackups = 3
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		DataDir:            "./datamarket-data",
		NetworkName:        "datamarket-local",
		OfferTimeout:       240,
		MaxDataIDs:         256,
		RequestsPerMinute:  600,
		RequestBurst:       20,
		LogMaxSizeMB:       100,
		LogMaxBackups:      3,
		SettlementHandlers: true,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
