package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/CTAG07/Sluice/pkg/render"
	"github.com/natefinch/atomic"
)

const (
	renderModeLocal  = "local"
	renderModeRemote = "remote"
)

// ServerConfig holds the configuration for the HTTP server and its storage.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`
	TemplateDir  string `json:"template_dir"`
	BundleDir    string `json:"bundle_dir"`
	// Precompile lists templates whose bundles are written to BundleDir at startup.
	Precompile     []string `json:"precompile"`
	MinifyBundles  bool     `json:"minify_bundles"`
	CompressOutput bool     `json:"compress_output"`
	// SeedVersions serves the version table persisted by the previous run
	// instead of recomputing it. Only safe when templates did not change.
	SeedVersions bool `json:"seed_versions"`
	// WatchTemplates recompiles templates when TemplateDir changes on disk.
	WatchTemplates bool `json:"watch_templates"`
}

// RenderConfig selects and configures the execution host.
type RenderConfig struct {
	Mode         string         `json:"mode"`
	RemoteURL    string         `json:"remote_url"`
	JSRoot       string         `json:"js_root"`
	TemplateRoot string         `json:"template_root"`
	Exports      map[string]any `json:"exports"`
	Mixins       []string       `json:"mixins"`
	TimeoutSec   int            `json:"timeout_sec"`
	Retries      int            `json:"retries"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server   *ServerConfig    `json:"server_config"`
	Compiler *compiler.Config `json:"compiler_config"`
	Render   *RenderConfig    `json:"render_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:        ":7278",
		LogLevel:       "info",
		DataDir:        "./data",
		DatabasePath:   "./data/sluice.db?_journal_mode=WAL&_busy_timeout=5000",
		TemplateDir:    "./data/templates",
		BundleDir:      "./data/bundles",
		Precompile:     []string{},
		MinifyBundles:  true,
		CompressOutput: true,
		SeedVersions:   false,
		WatchTemplates: false,
	}
}

// DefaultRenderConfig renders in-process, with remote settings matching
// render.DefaultRemoteConfig.
func DefaultRenderConfig() *RenderConfig {
	remote := render.DefaultRemoteConfig()
	return &RenderConfig{
		Mode:         renderModeLocal,
		RemoteURL:    remote.URL,
		JSRoot:       remote.JSRoot,
		TemplateRoot: remote.TemplateRoot,
		Exports:      remote.Exports,
		Mixins:       remote.Mixins,
		TimeoutSec:   int(remote.Timeout / time.Second),
		Retries:      remote.Retries,
	}
}

// RemoteConfig converts the file settings into a render.RemoteConfig.
func (rc *RenderConfig) RemoteConfig() render.RemoteConfig {
	return render.RemoteConfig{
		URL:          rc.RemoteURL,
		JSRoot:       rc.JSRoot,
		TemplateRoot: rc.TemplateRoot,
		Exports:      rc.Exports,
		Mixins:       rc.Mixins,
		Timeout:      time.Duration(rc.TimeoutSec) * time.Second,
		Retries:      rc.Retries,
	}
}

func defaultConfig() *Config {
	compilerConfig := compiler.DefaultConfig()
	return &Config{
		Server:   DefaultServerConfig(),
		Compiler: &compilerConfig,
		Render:   DefaultRenderConfig(),
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server == nil || c.Compiler == nil || c.Render == nil {
		return fmt.Errorf("server_config, compiler_config and render_config are required")
	}
	if c.Server.TemplateDir == "" {
		return fmt.Errorf("server_config.template_dir must not be empty")
	}
	if c.Compiler.Namespace == "" {
		return fmt.Errorf("compiler_config.namespace must not be empty")
	}
	if c.Compiler.MaxDepth <= 0 {
		return fmt.Errorf("compiler_config.max_depth must be positive, got %d", c.Compiler.MaxDepth)
	}
	switch c.Render.Mode {
	case renderModeLocal:
	case renderModeRemote:
		if c.Render.RemoteURL == "" {
			return fmt.Errorf("render_config.remote_url is required in remote mode")
		}
	default:
		return fmt.Errorf("render_config.mode must be %q or %q, got %q", renderModeLocal, renderModeRemote, c.Render.Mode)
	}
	return nil
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := defaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// ConfigManager handles thread-safe access to the configuration file.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetLogger sets the logger. That's about it.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a thread-safe copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	// Return a dereferenced copy to prevent external modification of the internal state
	return *cm.config
}

// Update validates the configuration and saves it to disk. Compiler and
// render settings take effect on the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("configuration rejected: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := json.MarshalIndent(&newConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig
	cm.logger.Info("Configuration saved", "path", cm.configPath)
	return nil
}
