// Package config provides the configuration surface for zukosync.
// A single Config structure covers the source API, the destination
// warehouse, the sync window, notification, and observability settings.
// Values are resolved before the sync core sees them; no component reads
// the environment ambiently.
package config

import (
	"fmt"
	"time"
)

// Config is the resolved configuration for one sync process.
type Config struct {
	// API configures the Zuko sessions endpoint
	API APIConfig `yaml:"api" json:"api"`

	// BigQuery configures the destination warehouse
	BigQuery BigQueryConfig `yaml:"bigquery" json:"bigquery"`

	// Sync configures the forms and window of a run
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Retry configures per-page retry behavior for extraction
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Notify configures the run summary email
	Notify NotifyConfig `yaml:"notify" json:"notify"`

	// Observability configures logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Server configures the HTTP trigger endpoint for serve mode
	Server ServerConfig `yaml:"server" json:"server"`
}

// APIConfig holds Zuko API settings.
type APIConfig struct {
	// BaseURL is the sessions endpoint
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is sent as the X-Api-Key header
	APIKey string `yaml:"api_key" json:"api_key"`
	// RequestTimeout bounds a single page request
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// BigQueryConfig holds destination settings.
type BigQueryConfig struct {
	// ProjectID is the GCP project holding the dataset
	ProjectID string `yaml:"project_id" json:"project_id"`
	// DatasetID is the dataset holding one table per form
	DatasetID string `yaml:"dataset_id" json:"dataset_id"`
	// Location is used when the dataset has to be created
	Location string `yaml:"location" json:"location"`
	// CredentialsJSON is a service account key document
	CredentialsJSON string `yaml:"credentials_json" json:"credentials_json"`
	// CredentialsFile is a path to a service account key file,
	// used when CredentialsJSON is empty
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// Form identifies one Zuko form to sync.
type Form struct {
	// Name is the destination table name
	Name string `yaml:"name" json:"name"`
	// UUID is the Zuko form identifier
	UUID string `yaml:"uuid" json:"uuid"`
}

// SyncConfig holds the per-run sync settings.
type SyncConfig struct {
	// Forms is the fixed list of forms to sync, in order
	Forms []Form `yaml:"forms" json:"forms"`
	// DaysBack sets the extraction window to [now-DaysBack, now]
	DaysBack int `yaml:"days_back" json:"days_back"`
	// TempDir holds the per-form intermediate files
	TempDir string `yaml:"temp_dir" json:"temp_dir"`
}

// RetryConfig holds extraction retry settings.
type RetryConfig struct {
	// Attempts is the maximum tries per page request
	Attempts int `yaml:"attempts" json:"attempts"`
	// InitialDelay is the first backoff delay
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	// MaxDelay caps the backoff delay
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// Multiplier grows the delay between attempts
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// NotifyConfig holds run summary email settings.
type NotifyConfig struct {
	// Enabled toggles email delivery; the summary is always produced
	Enabled bool `yaml:"enabled" json:"enabled"`
	// SMTPHost and SMTPPort locate the relay
	SMTPHost string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port" json:"smtp_port"`
	// Sender is the From address and SMTP login
	Sender string `yaml:"sender" json:"sender"`
	// Password is the SMTP login credential
	Password string `yaml:"password" json:"password"`
	// Recipients receive the run summary
	Recipients []string `yaml:"recipients" json:"recipients"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding selects json or console output
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// EnableMetrics activates prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
}

// ServerConfig holds serve-mode settings.
type ServerConfig struct {
	// ListenAddr is the bind address for the trigger endpoint
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Default returns a Config with production defaults. Credentials and the
// form list always come from the loaded file.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://egress.api.zuko.io/sessions",
			RequestTimeout: 30 * time.Second,
		},
		BigQuery: BigQueryConfig{
			DatasetID: "Zuko_data",
			Location:  "US",
		},
		Sync: SyncConfig{
			DaysBack: 1,
			TempDir:  "tmp",
		},
		Retry: RetryConfig{
			Attempts:     3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogEncoding:   "json",
			EnableMetrics: true,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate validates the configuration for correctness. It checks required
// fields and ensures values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.APIKey == "" {
		return fmt.Errorf("api.api_key is required")
	}
	if c.BigQuery.ProjectID == "" {
		return fmt.Errorf("bigquery.project_id is required")
	}
	if c.BigQuery.DatasetID == "" {
		return fmt.Errorf("bigquery.dataset_id is required")
	}
	if len(c.Sync.Forms) == 0 {
		return fmt.Errorf("sync.forms must list at least one form")
	}
	for i, f := range c.Sync.Forms {
		if f.Name == "" || f.UUID == "" {
			return fmt.Errorf("sync.forms[%d] needs both name and uuid", i)
		}
	}
	if c.Sync.DaysBack <= 0 {
		return fmt.Errorf("sync.days_back must be positive")
	}
	if c.Sync.TempDir == "" {
		return fmt.Errorf("sync.temp_dir is required")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive")
	}
	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" || c.Notify.Sender == "" {
			return fmt.Errorf("notify requires smtp_host and sender when enabled")
		}
		if len(c.Notify.Recipients) == 0 {
			return fmt.Errorf("notify.recipients must list at least one address when enabled")
		}
	}
	return nil
}

// Window returns the extraction window for a run starting at now.
func (s *SyncConfig) Window(now time.Time) (time.Time, time.Time) {
	end := now.UTC()
	return end.AddDate(0, 0, -s.DaysBack), end
}
