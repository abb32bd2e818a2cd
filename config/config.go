// Package config loads and merges runtime settings for the VFS, the request
// engine, and the local auth-callback/streaming daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudkit/cloudkit/internal/util"
	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration values for a cloudkit mount.
type Config struct {
	MountOptions

	LogLvl util.LogLevel // Verbosity of the global logger (Default Info)

	ChunkSize         int // Size of each read-cache chunk in bytes (Default 1MB)
	CacheMaxSize      int // Maximum total cache size in bytes (Default 200MB)
	MaxPrefetchAhead  int // Maximum bytes to prefetch ahead of current read position (Default 100MB)
	PrefetchBatchSize int // Number of chunks to fetch concurrently in each prefetch batch (Default 3)

	// NOTE: low-level FUSE knobs; leave at defaults unless you know why not.
	MaxFH        int     // Maximum file handle value for FUSE compatibility
	MaxWrite     int     // Maximum write size per FUSE request
	AttrTimeout  float64 // Attribute cache timeout in seconds
	EntryTimeout float64 // Directory entry cache timeout in seconds
	DirectIO     bool    // Whether to bypass page cache for remote-backed files

	HTTPPort     int    // Port the local auth-callback/streaming daemon binds (0 = ephemeral)
	RedirectURI  string // OAuth redirect URI; used as given, never derived from HTTPPort
	TemporaryDir string // Scratch directory for pending uploads; os.TempDir() when empty

	MaxRetry          int // Request engine retry ceiling (§4.4)
	MaxReauthAttempts int // Reauth-and-retry ceiling per request (§4.3)
}

// NumCacheChunks returns the number of cache chunks derived from
// CacheMaxSize / ChunkSize. Returns 0 if ChunkSize is 0 to avoid division by
// zero.
func (c *Config) NumCacheChunks() int {
	if c.ChunkSize == 0 {
		return 0
	}
	return c.CacheMaxSize / c.ChunkSize
}

// ScratchDir returns TemporaryDir, falling back to the OS default when unset.
func (c *Config) ScratchDir() string {
	if c.TemporaryDir != "" {
		return c.TemporaryDir
	}
	return os.TempDir()
}

// ConfigOverride uses pointer fields to distinguish unset from zero values
// when merging partial configuration. See [Config] for field descriptions.
// LogLvl here is the CLI's 1-5 verbosity count, not a util.LogLevel.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`

	LogLvl *int `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`

	ChunkSize         *int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`
	CacheMaxSize      *int `yaml:"cache_max_size,omitempty" json:"cache_max_size,omitempty"`
	MaxPrefetchAhead  *int `yaml:"max_prefetch_ahead,omitempty" json:"max_prefetch_ahead,omitempty"`
	PrefetchBatchSize *int `yaml:"prefetch_batch_size,omitempty" json:"prefetch_batch_size,omitempty"`

	MaxFH        *int     `yaml:"max_fh,omitempty" json:"max_fh,omitempty"`
	MaxWrite     *int     `yaml:"max_write,omitempty" json:"max_write,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO     *bool    `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`

	HTTPPort     *int    `yaml:"http_port,omitempty" json:"http_port,omitempty"`
	RedirectURI  *string `yaml:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	TemporaryDir *string `yaml:"temporary_dir,omitempty" json:"temporary_dir,omitempty"`

	MaxRetry          *int `yaml:"max_retry,omitempty" json:"max_retry,omitempty"`
	MaxReauthAttempts *int `yaml:"max_reauth_attempts,omitempty" json:"max_reauth_attempts,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:            DefaultLogLvl,
		ChunkSize:         DefaultChunkSize,
		CacheMaxSize:      DefaultCacheMaxSize,
		MaxPrefetchAhead:  DefaultMaxPrefetchAhead,
		PrefetchBatchSize: DefaultPrefetchBatchSize,
		MaxFH:             DefaultMaxFH,
		MaxWrite:          DefaultMaxWrite,
		AttrTimeout:       DefaultAttrTimeout,
		EntryTimeout:      DefaultEntryTimeout,
		DirectIO:          DefaultDirectIO,
		HTTPPort:          DefaultHTTPPort,
		MaxRetry:          DefaultMaxRetry,
		MaxReauthAttempts: DefaultMaxReauthAttempts,
	}
}

// NewConfig builds a Config from defaults, applying override's non-nil
// fields on top. A nil override returns the defaults unchanged.
func NewConfig(override *ConfigOverride) *Config {
	cfg := defaultConfig()
	if override != nil {
		cfg.merge(override)
	}
	return cfg
}

// merge applies non-nil values from override onto c.
func (c *Config) merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.LogLvl != nil {
		c.LogLvl = verboseToLevel(*override.LogLvl)
	}
	if override.ChunkSize != nil {
		c.ChunkSize = *override.ChunkSize
	}
	if override.CacheMaxSize != nil {
		c.CacheMaxSize = *override.CacheMaxSize
	}
	if override.MaxPrefetchAhead != nil {
		c.MaxPrefetchAhead = *override.MaxPrefetchAhead
	}
	if override.PrefetchBatchSize != nil {
		c.PrefetchBatchSize = *override.PrefetchBatchSize
	}
	if override.MaxFH != nil {
		c.MaxFH = *override.MaxFH
	}
	if override.MaxWrite != nil {
		c.MaxWrite = *override.MaxWrite
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
	if override.HTTPPort != nil {
		c.HTTPPort = *override.HTTPPort
	}
	if override.RedirectURI != nil {
		c.RedirectURI = *override.RedirectURI
	}
	if override.TemporaryDir != nil {
		c.TemporaryDir = *override.TemporaryDir
	}
	if override.MaxRetry != nil {
		c.MaxRetry = *override.MaxRetry
	}
	if override.MaxReauthAttempts != nil {
		c.MaxReauthAttempts = *override.MaxReauthAttempts
	}
}

// verboseToLevel maps the CLI's -verbose level (clamped to [1,5]) onto a
// util.LogLevel, most-verbose last.
func verboseToLevel(verbose int) util.LogLevel {
	if verbose < ErrorVerbose {
		verbose = ErrorVerbose
	}
	if verbose > TraceVerbose {
		verbose = TraceVerbose
	}
	switch verbose {
	case ErrorVerbose:
		return util.ErrorLevel
	case WarnVerbose:
		return util.WarnLevel
	case InfoVerbose:
		return util.InfoLevel
	case DebugVerbose:
		return util.DebugLevel
	default:
		return util.TraceLevel
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without
// merging. Supports YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile builds a Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
