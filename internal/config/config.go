// Package config provides configuration loading for the cache sync pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Derivation strategy names for the active-service views.
const (
	// StrategyBondRate activates a service offering when it is online, meets
	// the bond threshold, declares a positive pay-as-you-go rate, and has a
	// resolved external metadata URI.
	StrategyBondRate = "bond-rate"

	// StrategyProviderMembership activates a service offering when it is
	// online and declares an external metadata URI; provider-level gating
	// happens in the provider view.
	StrategyProviderMembership = "provider-membership"
)

// Environment variables honored when the config file omits a value.
const (
	envCacheDir       = "CACHE_DIR"
	envArkeodHome     = "ARKEOD_HOME"
	envArkeodNode     = "ARKEOD_NODE"
	envRESTEndpoint   = "ARKEO_REST_API"
	envFetchInterval  = "CACHE_FETCH_INTERVAL"
	envAllowLocalhost = "ALLOW_LOCALHOST_SENTINEL_URIS"
	envCatalogPath    = "SERVICE_TYPE_RESOURCES_PATH"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config is the root configuration for the pipeline process.
type Config struct {
	// CacheDir is the directory every artifact is written to.
	CacheDir string `yaml:"cacheDir"`

	Node     NodeConfig     `yaml:"node"`
	Sync     SyncConfig     `yaml:"sync"`
	Views    ViewsConfig    `yaml:"views"`
	Metadata MetadataConfig `yaml:"metadata"`
}

// NodeConfig describes how to reach the chain node's query interface.
type NodeConfig struct {
	// Home is the arkeod home directory passed to every CLI query.
	Home string `yaml:"home"`

	// Endpoint is the Tendermint RPC endpoint passed via --node.
	Endpoint string `yaml:"endpoint"`

	// RESTEndpoint is the REST API base URL used for the services query.
	RESTEndpoint string `yaml:"restEndpoint,omitempty"`
}

// SyncConfig controls cycle scheduling.
type SyncConfig struct {
	// Interval between fetch cycles. Zero or negative disables the loop
	// entirely; the process parks until terminated.
	Interval time.Duration `yaml:"interval"`

	// InstanceLock takes a file lock on the cache directory before syncing,
	// refusing to run when another instance already holds it.
	InstanceLock bool `yaml:"instanceLock,omitempty"`
}

// ViewsConfig selects how derived views are computed.
type ViewsConfig struct {
	// Strategy is the activation strategy: bond-rate or provider-membership.
	Strategy string `yaml:"strategy"`

	// SyncListeners reconciles the externally owned listener registry against
	// the active-service set each cycle.
	SyncListeners bool `yaml:"syncListeners,omitempty"`

	// ServiceTypeResourcesPath points at the optional static catalog used to
	// enrich live service types with a chain identifier.
	ServiceTypeResourcesPath string `yaml:"serviceTypeResourcesPath,omitempty"`
}

// MetadataConfig controls metadata URI resolution.
type MetadataConfig struct {
	// AllowLocalhost permits metadata URIs pointing at localhost/loopback.
	// Off by default so untrusted catalog data cannot steer fetches at local
	// services.
	AllowLocalhost bool `yaml:"allowLocalhost,omitempty"`

	// RefreshPerCycle drops the persisted metadata cache at cycle start so
	// every cycle re-resolves all URIs.
	RefreshPerCycle bool `yaml:"refreshPerCycle,omitempty"`

	// FetchTimeout bounds each metadata document fetch.
	FetchTimeout time.Duration `yaml:"fetchTimeout,omitempty"`
}

// Default configuration values, matching the historical deployment layout.
const (
	DefaultCacheDir     = "/app/cache"
	DefaultArkeodHome   = "/root/.arkeo"
	DefaultNodeEndpoint = "tcp://127.0.0.1:26657"
	DefaultInterval     = 5 * time.Minute
	DefaultFetchTimeout = 5 * time.Second
	DefaultCatalogPath  = "/app/admin/service-type_resources.json"
)

// LoadConfig loads configuration from a YAML file when a path option is
// given, otherwise starts from defaults. Environment variables fill any
// value the file left empty.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	config.applyEnvironment()
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvironment fills empty fields from the process environment.
func (c *Config) applyEnvironment() {
	if c.CacheDir == "" {
		c.CacheDir = os.Getenv(envCacheDir)
	}
	if c.Node.Home == "" {
		c.Node.Home = os.Getenv(envArkeodHome)
	}
	if c.Node.Endpoint == "" {
		c.Node.Endpoint = os.Getenv(envArkeodNode)
	}
	if c.Node.RESTEndpoint == "" {
		c.Node.RESTEndpoint = os.Getenv(envRESTEndpoint)
	}
	if c.Views.ServiceTypeResourcesPath == "" {
		c.Views.ServiceTypeResourcesPath = os.Getenv(envCatalogPath)
	}
	if !c.Metadata.AllowLocalhost {
		c.Metadata.AllowLocalhost = ParseBool(os.Getenv(envAllowLocalhost))
	}
	if c.Sync.Interval == 0 {
		if raw := os.Getenv(envFetchInterval); raw != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				c.Sync.Interval = time.Duration(secs) * time.Second
			}
		}
	}
}

// applyDefaults fills any remaining empty fields. The fetch interval is left
// alone when the environment set it explicitly, so an operator can still
// disable the loop with a zero or negative value.
func (c *Config) applyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.Node.Home == "" {
		c.Node.Home = DefaultArkeodHome
	}
	if c.Node.Endpoint == "" {
		c.Node.Endpoint = DefaultNodeEndpoint
	}
	if c.Sync.Interval == 0 && os.Getenv(envFetchInterval) == "" {
		c.Sync.Interval = DefaultInterval
	}
	if c.Views.Strategy == "" {
		c.Views.Strategy = StrategyBondRate
	}
	if c.Views.ServiceTypeResourcesPath == "" {
		c.Views.ServiceTypeResourcesPath = DefaultCatalogPath
	}
	if c.Metadata.FetchTimeout == 0 {
		c.Metadata.FetchTimeout = DefaultFetchTimeout
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cacheDir is required")
	}

	switch c.Views.Strategy {
	case StrategyBondRate, StrategyProviderMembership:
	default:
		return fmt.Errorf("views.strategy must be %s or %s, got %q",
			StrategyBondRate, StrategyProviderMembership, c.Views.Strategy)
	}

	if c.Metadata.FetchTimeout < 0 {
		return fmt.Errorf("metadata.fetchTimeout must not be negative")
	}

	return nil
}

// ParseBool interprets the truthy spellings accepted in settings documents
// and environment variables: 1, true, yes, y, on (case-insensitive).
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
