package extension

import (
	"time"

	vidscribe "github.com/vidscribe/vidscribe"
	"github.com/vidscribe/vidscribe/identity"
	"github.com/vidscribe/vidscribe/plugin"
	"github.com/vidscribe/vidscribe/store"
)

// Option configures the Vidscribe Forge extension.
type Option func(*Extension)

// WithStore sets the store for the session engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithSessionOption passes a vidscribe.Option through to the underlying engine.
func WithSessionOption(opt vidscribe.Option) Option {
	return func(e *Extension) {
		e.sessionOpts = append(e.sessionOpts, opt)
	}
}

// WithIdentity sets the identity provider for the session.
func WithIdentity(p identity.Provider) Option {
	return func(e *Extension) {
		e.sessionOpts = append(e.sessionOpts, vidscribe.WithIdentity(p))
	}
}

// WithPlugin registers a session plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.sessionOpts = append(e.sessionOpts, vidscribe.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAPIKey sets the rendering service credential.
func WithAPIKey(key string) Option {
	return func(e *Extension) { e.config.APIKey = key }
}

// WithResultDir sets where subtitled videos are written.
func WithResultDir(dir string) Option {
	return func(e *Extension) { e.config.ResultDir = dir }
}

// WithMaxFileSizeMB sets the upload size ceiling in mebibytes.
func WithMaxFileSizeMB(mb int64) Option {
	return func(e *Extension) { e.config.MaxFileSizeMB = mb }
}

// WithReconcileInterval sets how often the background reconciler runs.
func WithReconcileInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ReconcileInterval = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
