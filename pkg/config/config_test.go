package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.API.APIKey = "key"
	cfg.BigQuery.ProjectID = "proj"
	cfg.Sync.Forms = []Form{{Name: "signup_form", UUID: "94aa"}}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.API.APIKey = "" },
			wantErr: "api.api_key",
		},
		{
			name:    "missing project",
			mutate:  func(c *Config) { c.BigQuery.ProjectID = "" },
			wantErr: "bigquery.project_id",
		},
		{
			name:    "no forms",
			mutate:  func(c *Config) { c.Sync.Forms = nil },
			wantErr: "sync.forms",
		},
		{
			name:    "form missing uuid",
			mutate:  func(c *Config) { c.Sync.Forms = []Form{{Name: "x"}} },
			wantErr: "sync.forms[0]",
		},
		{
			name:    "zero days back",
			mutate:  func(c *Config) { c.Sync.DaysBack = 0 },
			wantErr: "days_back",
		},
		{
			name: "notify enabled without recipients",
			mutate: func(c *Config) {
				c.Notify.Enabled = true
				c.Notify.SMTPHost = "smtp.example.com"
				c.Notify.Sender = "jobs@example.com"
			},
			wantErr: "notify.recipients",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s := SyncConfig{DaysBack: 3}
	from, to := s.Window(now)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -3), from)
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("TEST_ZUKO_API_KEY", "secret-key")
	t.Setenv("TEST_DAYS_BACK", "7")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
api:
  api_key: ${TEST_ZUKO_API_KEY}
bigquery:
  project_id: my-project
sync:
  days_back: ${TEST_DAYS_BACK}
  forms:
    - name: signup_form
      uuid: 94aa
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.API.APIKey)
	assert.Equal(t, 7, cfg.Sync.DaysBack)
	// Defaults survive partial files
	assert.Equal(t, "https://egress.api.zuko.io/sessions", cfg.API.BaseURL)
	assert.Equal(t, "Zuko_data", cfg.BigQuery.DatasetID)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
