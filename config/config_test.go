package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
quantmuse:
  name: quantmuse
  version: 1.0.0
terminal:
  base_url: https://quantapi.example.com
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.MaxRequestsPerWindow != 30 {
		t.Fatalf("max requests = %d, want 30", cfg.RateLimit.MaxRequestsPerWindow)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Fatalf("window = %v, want 1m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.InterCallDelay != 200*time.Millisecond {
		t.Fatalf("inter-call delay = %v", cfg.RateLimit.InterCallDelay)
	}
	if cfg.Login.MaxRetries != 3 || cfg.Login.BaseRetryDelay != time.Second {
		t.Fatalf("login defaults = %+v", cfg.Login)
	}
	if cfg.Terminal.Timeout != 30*time.Second {
		t.Fatalf("terminal timeout = %v", cfg.Terminal.Timeout)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
rate_limit:
  max_requests_per_window: 10
  window: 30s
  batch_size: 5
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimit.MaxRequestsPerWindow != 10 {
		t.Fatalf("max requests = %d, want 10", cfg.RateLimit.MaxRequestsPerWindow)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("window = %v, want 30s", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.BatchSize != 5 {
		t.Fatalf("batch size = %d, want 5", cfg.RateLimit.BatchSize)
	}
}

func TestLoadConfigCredentialsFromEnv(t *testing.T) {
	t.Setenv("THS_USER_ID", " envuser ")
	t.Setenv("THS_PASSWORD", "envpass")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
  user_id: yamluser
  password: yamlpass
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Terminal.UserID != "envuser" {
		t.Fatalf("user id = %q, want env value trimmed", cfg.Terminal.UserID)
	}
	if cfg.Terminal.Password != "envpass" {
		t.Fatalf("password = %q", cfg.Terminal.Password)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `
terminal:
  base_url: https://quantapi.example.com
`},
		{"missing base url", `
quantmuse:
  name: quantmuse
`},
		{"zero window", minimalConfig + `
rate_limit:
  window: 0s
`},
		{"s3 enabled without bucket", minimalConfig + `
storage:
  s3:
    enabled: true
    region: us-east-1
`},
	}

	for _, tc := range cases {
		if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
