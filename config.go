package statfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// PoolConfig carries the pool-wide settings the config loader is
// responsible for (spec.md §6.2 "Config loader" collaborator): max open
// handles, the mlock policy, and the flush schedule.
type PoolConfig struct {
	MaxOpenFiles  int           `json:"max_open_files,omitempty"`
	MlockEnabled  bool          `json:"mlock_enabled,omitempty"`
	FlushInterval time.Duration `json:"flush_interval,omitempty"`
	FlushJitter   time.Duration `json:"flush_jitter,omitempty"`
}

// StatfileConfig describes one statfile binding: its path, the size new
// files are created (or reindexed) at, and an optional per-file mlock flag.
// The flag is parsed and kept, but the pool does not read it: mlock follows
// PoolConfig.MlockEnabled for every file.
type StatfileConfig struct {
	Path         string `json:"path"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	MlockEnabled *bool  `json:"mlock_enabled,omitempty"`
}

// ClassifierConfig binds symbolic classifier token names to statfiles, the
// input get_by_symbol (spec.md §4.4) resolves against.
type ClassifierConfig struct {
	Symbols map[string]StatfileConfig `json:"symbols,omitempty"`
}

// Config is the top-level document the loader parses: pool settings plus
// the classifier's symbol bindings.
type Config struct {
	Pool       PoolConfig       `json:"pool,omitempty"`
	Classifier ClassifierConfig `json:"classifier,omitempty"`
}

// ConfigSources tracks which config files contributed to a loaded Config,
// mirroring the layered precedence of the teacher's LoadConfig.
type ConfigSources struct {
	Global  string
	Project string
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".statfile.json"

// DefaultPoolConfig returns the pool defaults: spec.md §4.4 STATFILES_MAX,
// mlock disabled, and no flush schedule armed.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenFiles:  StatfilesMax,
		MlockEnabled:  false,
		FlushInterval: 0,
		FlushJitter:   0,
	}
}

// DefaultConfig returns the zero-value-safe configuration: pool defaults,
// no classifier bindings.
func DefaultConfig() Config {
	return Config{
		Pool:       DefaultPoolConfig(),
		Classifier: ClassifierConfig{Symbols: map[string]StatfileConfig{}},
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/statfile/config.json, or
// ~/.config/statfile/config.json, scanning env first (so tests can supply a
// synthetic environment) before falling back to os.Getenv.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "statfile", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "statfile", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "statfile", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project config file (or an explicit
// path), then CLI/caller overrides applied by the caller after LoadConfig
// returns.
func LoadConfig(workDir, configPath string, env []string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if err := validateConfig(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: config file not found: %s", ErrInvalidArgument, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, cfgFile, nil
}

// loadConfigFile reads and parses path. If mustExist is false, a missing
// file returns a zero Config with loaded=false rather than an error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller/XDG-controlled, same trust level as the teacher's config reader
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: read config %s: %w", ErrIO, path, err)
		}

		return Config{}, false, nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w: parse config %s: %w", ErrInvalidArgument, path, err)
	}

	return cfg, true, nil
}

// parseConfig standardizes JSON-with-comments (hujson) to plain JSON before
// unmarshaling, exactly as the teacher's config parser does for .tk.json.
func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

// mergeConfig overlays non-zero fields of overlay onto base, field by field,
// matching the teacher's mergeConfig shape.
func mergeConfig(base, overlay Config) Config {
	if overlay.Pool.MaxOpenFiles != 0 {
		base.Pool.MaxOpenFiles = overlay.Pool.MaxOpenFiles
	}

	if overlay.Pool.MlockEnabled {
		base.Pool.MlockEnabled = true
	}

	if overlay.Pool.FlushInterval != 0 {
		base.Pool.FlushInterval = overlay.Pool.FlushInterval
	}

	if overlay.Pool.FlushJitter != 0 {
		base.Pool.FlushJitter = overlay.Pool.FlushJitter
	}

	if base.Classifier.Symbols == nil {
		base.Classifier.Symbols = map[string]StatfileConfig{}
	}

	for symbol, sf := range overlay.Classifier.Symbols {
		base.Classifier.Symbols[symbol] = sf
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Pool.MaxOpenFiles <= 0 {
		return fmt.Errorf("%w: pool.max_open_files must be > 0", ErrInvalidArgument)
	}

	if cfg.Pool.MaxOpenFiles > StatfilesMax {
		return fmt.Errorf("%w: pool.max_open_files exceeds hard cap %d", ErrInvalidArgument, StatfilesMax)
	}

	for symbol, sf := range cfg.Classifier.Symbols {
		if sf.Path == "" {
			return fmt.Errorf("%w: classifier symbol %q has empty path", ErrInvalidArgument, symbol)
		}
	}

	return nil
}

// FormatConfig renders cfg as indented JSON, the form SaveConfig writes.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

// SaveConfig writes the effective configuration to path as a write-then-
// rename, so a reader never observes a half-written snapshot. Mirrors the
// teacher's use of natefinch/atomic for durable ticket content writes.
func SaveConfig(path string, cfg Config) error {
	data, err := FormatConfig(cfg)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader([]byte(data))); err != nil {
		return fmt.Errorf("%w: save config snapshot %s: %w", ErrIO, path, err)
	}

	return nil
}
