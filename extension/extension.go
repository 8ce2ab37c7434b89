// Package extension provides the Forge extension adapter for Vidscribe.
//
// It implements the forge.Extension interface to integrate Vidscribe
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.vidscribe" or
// "vidscribe" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	vidscribe "github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/remote"
	"github.com/vidscribe/vidscribe/store"
	"github.com/vidscribe/vidscribe/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "vidscribe"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Credit-metered AI subtitle job engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Vidscribe as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *vidscribe.Session
	store       store.Store
	sessionOpts []vidscribe.Option
}

// New creates a new Vidscribe Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Session instance.
// This is nil until Register is called.
func (e *Extension) Engine() *vidscribe.Session { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the session engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build session options from resolved config.
	opts := e.buildSessionOpts()

	e.engine = vidscribe.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*vidscribe.Session, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("vidscribe: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("vidscribe: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildSessionOpts constructs vidscribe.Option values from the resolved config.
func (e *Extension) buildSessionOpts() []vidscribe.Option {
	opts := make([]vidscribe.Option, 0, len(e.sessionOpts)+4)

	if e.config.APIKey != "" {
		var clientOpts []remote.HTTPOption
		if e.config.BaseURL != "" && e.config.QueueURL != "" {
			clientOpts = append(clientOpts, remote.WithBaseURLs(e.config.BaseURL, e.config.QueueURL))
		}
		opts = append(opts, vidscribe.WithRemoteClient(remote.NewHTTPClient(e.config.APIKey, clientOpts...)))
	}

	if e.config.ResultDir != "" {
		opts = append(opts, vidscribe.WithResultDir(e.config.ResultDir))
	}
	if e.config.MaxFileSizeMB > 0 {
		opts = append(opts, vidscribe.WithMaxFileSize(e.config.MaxFileSizeMB<<20))
	}
	if e.config.ReconcileInterval > 0 {
		opts = append(opts, vidscribe.WithReconcileInterval(e.config.ReconcileInterval))
	}

	// Append any pass-through session options.
	opts = append(opts, e.sessionOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("vidscribe: configuration is required but not found in config files; " +
				"ensure 'extensions.vidscribe' or 'vidscribe' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("vidscribe: configuration loaded",
		forge.F("result_dir", e.config.ResultDir),
		forge.F("max_file_size_mb", e.config.MaxFileSizeMB),
		forge.F("reconcile_interval", e.config.ReconcileInterval),
		forge.F("remote_configured", e.config.APIKey != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.vidscribe" first (namespaced pattern).
	if cm.IsSet("extensions.vidscribe") {
		if err := cm.Bind("extensions.vidscribe", &cfg); err == nil {
			e.Logger().Debug("vidscribe: loaded config from file",
				forge.F("key", "extensions.vidscribe"),
			)
			return cfg, true
		}
		e.Logger().Warn("vidscribe: failed to bind extensions.vidscribe config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "vidscribe" key.
	if cm.IsSet("vidscribe") {
		if err := cm.Bind("vidscribe", &cfg); err == nil {
			e.Logger().Debug("vidscribe: loaded config from file",
				forge.F("key", "vidscribe"),
			)
			return cfg, true
		}
		e.Logger().Warn("vidscribe: failed to bind vidscribe config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxFileSizeMB == 0 {
		cfg.MaxFileSizeMB = defaults.MaxFileSizeMB
	}
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// String fields: YAML takes precedence.
	if yamlConfig.APIKey == "" && programmaticConfig.APIKey != "" {
		yamlConfig.APIKey = programmaticConfig.APIKey
	}
	if yamlConfig.BaseURL == "" && programmaticConfig.BaseURL != "" {
		yamlConfig.BaseURL = programmaticConfig.BaseURL
	}
	if yamlConfig.QueueURL == "" && programmaticConfig.QueueURL != "" {
		yamlConfig.QueueURL = programmaticConfig.QueueURL
	}
	if yamlConfig.ResultDir == "" && programmaticConfig.ResultDir != "" {
		yamlConfig.ResultDir = programmaticConfig.ResultDir
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MaxFileSizeMB == 0 && programmaticConfig.MaxFileSizeMB != 0 {
		yamlConfig.MaxFileSizeMB = programmaticConfig.MaxFileSizeMB
	}
	if yamlConfig.ReconcileInterval == 0 && programmaticConfig.ReconcileInterval != 0 {
		yamlConfig.ReconcileInterval = programmaticConfig.ReconcileInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
