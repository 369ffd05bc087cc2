package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

type Configuration struct {
	DryRun            bool          `koanf:"dry_run"`
	Quiet             bool          `koanf:"quiet"`
	CreateParents     bool          `koanf:"create_parents"`
	ComprehensiveScan bool          `koanf:"comprehensive_scan"`
	Scanner           string        `koanf:"scanner"`
	ScanTimeout       time.Duration `koanf:"scan_timeout"`
	FreeSpaceMargin   float64       `koanf:"free_space_margin"`
	PreserveOwnership bool          `koanf:"preserve_ownership"`

	Notifications NotificationsConfig `koanf:"notifications"`
}

/* Vars */

var (
	// Config is the active configuration, populated by Init.
	Config *Configuration

	// Delimiter is used for nested koanf keys.
	Delimiter = "."
)

/* Public */

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "smartmove", "config.yaml")
}

// Init loads defaults, then overlays the optional YAML config file.
// A missing file is not an error; config is entirely optional.
func Init(configFilePath string) error {
	k := koanf.New(Delimiter)

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"dry_run":            false,
		"quiet":              false,
		"create_parents":     false,
		"comprehensive_scan": false,
		"scanner":            "native",
		"scan_timeout":       300 * time.Second,
		"free_space_margin":  0.9,
		"preserve_ownership": true,
	}, Delimiter), nil); err != nil {
		return errors.Wrap(err, "load config defaults")
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err == nil {
			if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
				return errors.Wrapf(err, "load config file: %q", configFilePath)
			}
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat config file: %q", configFilePath)
		}
	}

	cfg := &Configuration{}
	if err := k.Unmarshal("", cfg); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}

	if cfg.FreeSpaceMargin <= 0 || cfg.FreeSpaceMargin > 1 {
		return errors.Errorf("free_space_margin must be within (0, 1]: %v", cfg.FreeSpaceMargin)
	}

	switch cfg.Scanner {
	case "native", "find":
	default:
		return errors.Errorf("unknown scanner: %q (expected native or find)", cfg.Scanner)
	}

	Config = cfg
	return nil
}
