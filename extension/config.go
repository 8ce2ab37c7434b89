package extension

import "time"

// Config holds the Vidscribe extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.vidscribe" or "vidscribe" keys).
type Config struct {
	// APIKey authenticates against the subtitle rendering service.
	// When empty, no remote client is constructed and job submission
	// is unavailable.
	APIKey string `json:"api_key" mapstructure:"api_key" yaml:"api_key"`

	// BaseURL overrides the rendering service REST endpoint.
	BaseURL string `json:"base_url" mapstructure:"base_url" yaml:"base_url"`

	// QueueURL overrides the rendering service queue endpoint.
	QueueURL string `json:"queue_url" mapstructure:"queue_url" yaml:"queue_url"`

	// ResultDir is where subtitled videos are written (default: os temp dir).
	ResultDir string `json:"result_dir" mapstructure:"result_dir" yaml:"result_dir"`

	// MaxFileSizeMB is the upload size ceiling in mebibytes (default: 100).
	MaxFileSizeMB int64 `json:"max_file_size_mb" mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`

	// ReconcileInterval is how often the background reconciler flushes
	// dirty ledger state and retries pending refunds (default: 30s).
	ReconcileInterval time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval" yaml:"reconcile_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxFileSizeMB:     100,
		ReconcileInterval: 30 * time.Second,
	}
}
