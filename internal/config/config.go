// Package config holds process-wide configuration for ankurah/ankurahd:
// defaults, a project config.yaml, and ANKURAH_*/environment overrides,
// layered through a viper instance. Grounded on
// _examples/steveyegge-beads/internal/config's Initialize/GetXXX shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigDirName is the per-project directory holding config.yaml and the
// default local storage/runtime files.
const ConfigDirName = ".ankurah"

var v *viper.Viper

// Initialize (re)builds the package-level viper instance: defaults, then
// .ankurah/config.yaml if present, then ANKURAH_*/BEADS-style env
// overrides. Safe to call more than once (tests call it to reset state).
func Initialize() error {
	v = viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANKURAH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if dir, err := FindConfigDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return fmt.Errorf("config: read config.yaml: %w", err)
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("actor", "")
	v.SetDefault("data-dir", filepath.Join(ConfigDirName, "data"))
	v.SetDefault("storage-backend", "sqlite")
	v.SetDefault("nats-port", 4222)
	v.SetDefault("nats-store-dir", filepath.Join(ConfigDirName, "nats"))
	v.SetDefault("no-daemon", false)
	v.SetDefault("json", false)
	v.SetDefault("retrieval-budget", 256)
	v.SetDefault("flush-debounce", 30*time.Second)
	v.SetDefault("request-timeout", 10*time.Second)
	v.SetDefault("peers", []string{})
	v.SetDefault("collections", []string{})
}

// FindConfigDir walks up from the working directory looking for a .ankurah
// directory (whether or not it holds config.yaml), the way git locates .git.
func FindConfigDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: getwd: %w", err)
	}
	for dir := cwd; ; {
		candidate := filepath.Join(dir, ConfigDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("config: no %s directory found", ConfigDirName)
}

func ensure() {
	if v == nil {
		_ = Initialize()
	}
}

func GetString(key string) string {
	ensure()
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	ensure()
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	ensure()
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	ensure()
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

func GetStringSlice(key string) []string {
	ensure()
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

func Set(key string, value interface{}) {
	ensure()
	v.Set(key, value)
}
