// Package config provides configuration management for processjob: command
// line flags, the HCL job file and validation.
package config

// Config holds the options of one processjob invocation.
type Config struct {
	// Job
	JobFile  string `json:"job_file"`
	PropsDir string `json:"props_dir"` // "" = os.TempDir()

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`

	// Dashboard
	TUIEnabled bool `json:"tui_enabled"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	SkipPreflight bool `json:"skip_preflight"`
	ShowVersion   bool `json:"show_version"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Observability
		MetricsAddr: "",
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",

		// Dashboard
		TUIEnabled: false,
	}
}
