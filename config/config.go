package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/treefs/internal/util"
	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration values for the treefs CLI and its stores.
type Config struct {
	LogLvl      util.LogLevel // Internal log level, see [ConfigOverride.LogLvl] (Default Warn)
	Parallelism int           // Concurrent subtree walks during diff and copy (Default 1)

	Local       Local             // Local tree
	Remote      Remote            // Remote REST tree
	ObjectStore ObjectStore       // S3 compatible tree
	Sources     map[string]Source // Named source definitions, see [Source]

	MountOptions
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Whether to bypass page cache for remote files (Default true)
	MetricsAddr  string  // Address serving /metrics while mounted, disabled when empty
}

// Local configures the local directory tree.
type Local struct {
	Path   string   `yaml:"path" json:"path"`
	Ignore []string `yaml:"ignore,omitempty" json:"ignore,omitempty"` // Glob patterns hidden from the tree
}

// Remote configures the remote REST tree.
type Remote struct {
	URL         string       `yaml:"url" json:"url"`
	Token       string       `yaml:"token,omitempty" json:"token,omitempty"`             // Bearer token, none when empty
	Timeout     float64      `yaml:"timeout,omitempty" json:"timeout,omitempty"`         // Per request timeout in seconds
	MaxRetries  int          `yaml:"max_retries,omitempty" json:"max_retries,omitempty"` // Retries of failed requests
	Collections []Collection `yaml:"collections,omitempty" json:"collections,omitempty"`
}

// Collection maps a top level directory of the remote tree onto an API path.
type Collection struct {
	Name     string `yaml:"name" json:"name"`
	APIPath  string `yaml:"api_path" json:"api_path"`
	Kind     string `yaml:"kind" json:"kind"`                               // KindObjects, KindNested or KindPackages
	Identity string `yaml:"identity,omitempty" json:"identity,omitempty"` // Field that must equal the entry name
}

// ObjectStore configures an S3 compatible tree.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	AccessKey string `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// Source is a raw source definition handed to the adapter registry. The "type"
// key selects the adapter; the other keys are the adapter's own options.
type Source map[string]any

// Type returns the adapter type of the source, "" if unset.
func (s Source) Type() string {
	t, _ := s["type"].(string)
	return t
}

// Raw encodes the definition as JSON, the form adapters decode.
func (s Source) Raw() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is a CLI verbosity from 1 (errors only) to 5 (trace), clamped
	LogLvl       *int                  `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	Parallelism  *int                  `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`
	Local        *LocalOverride        `yaml:"local,omitempty" json:"local,omitempty"`
	Remote       *RemoteOverride       `yaml:"remote,omitempty" json:"remote,omitempty"`
	ObjectStore  *ObjectStoreOverride  `yaml:"object_store,omitempty" json:"object_store,omitempty"`
	Sources      map[string]Source     `yaml:"sources,omitempty" json:"sources,omitempty"`
	Mount        *MountOptionsOverride `yaml:"mount,omitempty" json:"mount,omitempty"`
	AttrTimeout  *float64              `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64              `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO     *bool                 `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`
	MetricsAddr  *string               `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// LocalOverride is the partial form of [Local].
type LocalOverride struct {
	Path   *string  `yaml:"path,omitempty" json:"path,omitempty"`
	Ignore []string `yaml:"ignore,omitempty" json:"ignore,omitempty"`
}

// RemoteOverride is the partial form of [Remote].
type RemoteOverride struct {
	URL         *string      `yaml:"url,omitempty" json:"url,omitempty"`
	Token       *string      `yaml:"token,omitempty" json:"token,omitempty"`
	Timeout     *float64     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries  *int         `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Collections []Collection `yaml:"collections,omitempty" json:"collections,omitempty"`
}

// ObjectStoreOverride is the partial form of [ObjectStore].
type ObjectStoreOverride struct {
	Endpoint  *string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Bucket    *string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix    *string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	AccessKey *string `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey *string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UseSSL    *bool   `yaml:"use_ssl,omitempty" json:"use_ssl,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		LogLvl:      DefaultLogLvl,
		Parallelism: DefaultParallelism,
		Local:       Local{Path: DefaultLocalPath},
		Remote: Remote{
			Timeout:     DefaultRemoteTimeout,
			MaxRetries:  DefaultRemoteMaxRetries,
			Collections: DefaultCollections(),
		},
		ObjectStore: ObjectStore{UseSSL: DefaultObjectStoreUseSSL},
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
		DirectIO:     DefaultDirectIO,
	}
}

// NewConfig returns the defaults with override applied. A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// LogLevelFromVerbosity maps a CLI verbosity onto a log level, clamping to 1..5.
func LogLevelFromVerbosity(verbose int) util.LogLevel {
	verbose = max(ErrorVerbose, min(TraceVerbose, verbose))
	return util.ErrorLevel - (verbose - ErrorVerbose)
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = LogLevelFromVerbosity(*override.LogLvl)
	}
	if override.Parallelism != nil {
		c.Parallelism = *override.Parallelism
	}
	if o := override.Local; o != nil {
		if o.Path != nil {
			c.Local.Path = *o.Path
		}
		if o.Ignore != nil {
			c.Local.Ignore = o.Ignore
		}
	}
	if o := override.Remote; o != nil {
		if o.URL != nil {
			c.Remote.URL = *o.URL
		}
		if o.Token != nil {
			c.Remote.Token = *o.Token
		}
		if o.Timeout != nil {
			c.Remote.Timeout = *o.Timeout
		}
		if o.MaxRetries != nil {
			c.Remote.MaxRetries = *o.MaxRetries
		}
		if o.Collections != nil {
			c.Remote.Collections = o.Collections
		}
	}
	if o := override.ObjectStore; o != nil {
		if o.Endpoint != nil {
			c.ObjectStore.Endpoint = *o.Endpoint
		}
		if o.Bucket != nil {
			c.ObjectStore.Bucket = *o.Bucket
		}
		if o.Prefix != nil {
			c.ObjectStore.Prefix = *o.Prefix
		}
		if o.AccessKey != nil {
			c.ObjectStore.AccessKey = *o.AccessKey
		}
		if o.SecretKey != nil {
			c.ObjectStore.SecretKey = *o.SecretKey
		}
		if o.UseSSL != nil {
			c.ObjectStore.UseSSL = *o.UseSSL
		}
	}
	if override.Sources != nil {
		if c.Sources == nil {
			c.Sources = make(map[string]Source, len(override.Sources))
		}
		for name, src := range override.Sources {
			c.Sources[name] = src
		}
	}
	c.MountOptions.merge(override.Mount)
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
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

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
