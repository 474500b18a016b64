package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %q", cfg.LogLevel)
	}
	if cfg.Listen != "127.0.0.1:2053" {
		t.Errorf("expected Listen=127.0.0.1:2053, got %q", cfg.Listen)
	}
	if cfg.Upstream != "" {
		t.Errorf("expected Upstream to be empty by default, got %q", cfg.Upstream)
	}
	if cfg.Pending.TTL != 10*time.Second {
		t.Errorf("expected Pending.TTL=10s, got %s", cfg.Pending.TTL)
	}
	if cfg.Pending.Max != 4096 {
		t.Errorf("expected Pending.Max=4096, got %d", cfg.Pending.Max)
	}
	if len(cfg.Blocklist.Files) != 0 {
		t.Errorf("expected Blocklist.Files to be empty by default, got %v", cfg.Blocklist.Files)
	}
	if cfg.Blocklist.DB != "/var/lib/rr-fwd/blocklist.db" {
		t.Errorf("expected Blocklist.DB=/var/lib/rr-fwd/blocklist.db, got %q", cfg.Blocklist.DB)
	}
	if cfg.Blocklist.CacheSize != 1000 {
		t.Errorf("expected Blocklist.CacheSize=1000, got %d", cfg.Blocklist.CacheSize)
	}
	if cfg.Blocklist.FPRate != 0.01 {
		t.Errorf("expected Blocklist.FPRate=0.01, got %v", cfg.Blocklist.FPRate)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("DNS_ENV", "dev")
	t.Setenv("DNS_LOG_LEVEL", "debug")
	t.Setenv("DNS_LISTEN", "0.0.0.0:5353")
	t.Setenv("DNS_UPSTREAM", "dns.example:53")
	t.Setenv("DNS_PENDING_TTL", "3s")
	t.Setenv("DNS_PENDING_MAX", "64")
	t.Setenv("DNS_BLOCKLIST_FILES", "/etc/rr-fwd/ads.txt,/etc/hosts.block")
	t.Setenv("DNS_BLOCKLIST_DB", "/tmp/blk.db")
	t.Setenv("DNS_BLOCKLIST_CACHE_SIZE", "0")
	t.Setenv("DNS_BLOCKLIST_FP_RATE", "0.001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
	if cfg.Listen != "0.0.0.0:5353" {
		t.Errorf("expected Listen=0.0.0.0:5353, got %q", cfg.Listen)
	}
	if cfg.Upstream != "dns.example:53" {
		t.Errorf("expected Upstream=dns.example:53, got %q", cfg.Upstream)
	}
	if cfg.Pending.TTL != 3*time.Second {
		t.Errorf("expected Pending.TTL=3s, got %s", cfg.Pending.TTL)
	}
	if cfg.Pending.Max != 64 {
		t.Errorf("expected Pending.Max=64, got %d", cfg.Pending.Max)
	}
	wantFiles := []string{"/etc/rr-fwd/ads.txt", "/etc/hosts.block"}
	if len(cfg.Blocklist.Files) != len(wantFiles) {
		t.Errorf("expected Blocklist.Files length %d, got %d", len(wantFiles), len(cfg.Blocklist.Files))
	} else {
		for i, v := range wantFiles {
			if cfg.Blocklist.Files[i] != v {
				t.Errorf("expected Blocklist.Files[%d]=%q, got %q", i, v, cfg.Blocklist.Files[i])
			}
		}
	}
	if cfg.Blocklist.DB != "/tmp/blk.db" {
		t.Errorf("expected Blocklist.DB=/tmp/blk.db, got %q", cfg.Blocklist.DB)
	}
	if cfg.Blocklist.CacheSize != 0 {
		t.Errorf("expected Blocklist.CacheSize=0, got %d", cfg.Blocklist.CacheSize)
	}
	if cfg.Blocklist.FPRate != 0.001 {
		t.Errorf("expected Blocklist.FPRate=0.001, got %v", cfg.Blocklist.FPRate)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "yaml",
			file:    "rr-fwd.yaml",
			content: "listen: 127.0.0.1:5300\nupstream: 192.0.2.1:53\npending:\n  max: 12\nblocklist:\n  files:\n    - /lists/a.txt\n",
		},
		{
			name:    "json",
			file:    "rr-fwd.json",
			content: `{"listen": "127.0.0.1:5300", "upstream": "192.0.2.1:53", "pending": {"max": 12}, "blocklist": {"files": ["/lists/a.txt"]}}`,
		},
		{
			name:    "toml",
			file:    "rr-fwd.toml",
			content: "listen = \"127.0.0.1:5300\"\nupstream = \"192.0.2.1:53\"\n[pending]\nmax = 12\n[blocklist]\nfiles = [\"/lists/a.txt\"]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			t.Setenv(ConfigFileEnv, path)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			if cfg.Listen != "127.0.0.1:5300" {
				t.Errorf("expected Listen from file, got %q", cfg.Listen)
			}
			if cfg.Upstream != "192.0.2.1:53" {
				t.Errorf("expected Upstream from file, got %q", cfg.Upstream)
			}
			if cfg.Pending.Max != 12 {
				t.Errorf("expected Pending.Max=12, got %d", cfg.Pending.Max)
			}
			// keys absent from the file keep their defaults
			if cfg.Pending.TTL != 10*time.Second {
				t.Errorf("expected default Pending.TTL, got %s", cfg.Pending.TTL)
			}
			if len(cfg.Blocklist.Files) != 1 || cfg.Blocklist.Files[0] != "/lists/a.txt" {
				t.Errorf("expected Blocklist.Files from file, got %v", cfg.Blocklist.Files)
			}
		})
	}
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rr-fwd.yml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:5300\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("DNS_LISTEN", "127.0.0.1:5400")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Listen != "127.0.0.1:5400" {
		t.Errorf("expected env to win, got %q", cfg.Listen)
	}
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	ini := filepath.Join(dir, "rr-fwd.ini")
	if err := os.WriteFile(ini, []byte("listen=x"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{ini, filepath.Join(dir, "missing.yaml")} {
		t.Setenv(ConfigFileEnv, path)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "error loading config file") {
			t.Errorf("expected config file error for %s, got %v", path, err)
		}
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading defaults, got nil")
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading env, got nil")
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked validation error") {
		t.Fatal("expected error when registering validation, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"env", "DNS_ENV", "staging"},
		{"log level", "DNS_LOG_LEVEL", "trace"},
		{"listen without port", "DNS_LISTEN", "127.0.0.1"},
		{"listen port out of range", "DNS_LISTEN", "127.0.0.1:99999"},
		{"upstream", "DNS_UPSTREAM", "not_a_server"},
		{"upstream port zero", "DNS_UPSTREAM", "192.0.2.1:0"},
		{"pending ttl", "DNS_PENDING_TTL", "0s"},
		{"pending ttl not a duration", "DNS_PENDING_TTL", "soon"},
		{"pending max", "DNS_PENDING_MAX", "0"},
		{"pending max not a number", "DNS_PENDING_MAX", "many"},
		{"blocklist db", "DNS_BLOCKLIST_DB", ""},
		{"cache size", "DNS_BLOCKLIST_CACHE_SIZE", "-1"},
		{"fp rate", "DNS_BLOCKLIST_FP_RATE", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.val)
			}
		})
	}
}

func TestValidHostPort(t *testing.T) {
	cases := []struct {
		input    string
		expected bool
	}{
		{"1.2.3.4:53", true},
		{"127.0.0.1:5353", true},
		{"[::1]:53", true},
		{"dns.example:53", true},
		{"localhost:2053", true},
		{"::1:53", false}, // missing brackets for IPv6
		{"192.168.1.1:", false},
		{":53", false},
		{"1.2.3.4:notaport", false},
		{"1.2.3.4:0", false},
		{"bad host:53", false},
		{"", false},
		{"1.2.3.4", false},
		{"[::1]", false},
	}

	validate := validator.New()
	_ = validate.RegisterValidation("host_port", validHostPort)

	type S struct {
		Addr string `validate:"host_port"`
	}
	for _, tc := range cases {
		err := validate.Struct(S{Addr: tc.input})
		if tc.expected && err != nil {
			t.Errorf("validHostPort(%q) = false, want true", tc.input)
		}
		if !tc.expected && err == nil {
			t.Errorf("validHostPort(%q) = true, want false", tc.input)
		}
	}
}

func TestDefaultLoader_LoadsDefaults(t *testing.T) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		t.Fatalf("defaultLoader returned error: %v", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.Env != DEFAULT_APP_CONFIG.Env {
		t.Errorf("expected Env=%q, got %q", DEFAULT_APP_CONFIG.Env, cfg.Env)
	}
	if cfg.Listen != DEFAULT_APP_CONFIG.Listen {
		t.Errorf("expected Listen=%q, got %q", DEFAULT_APP_CONFIG.Listen, cfg.Listen)
	}
	if cfg.Pending != DEFAULT_APP_CONFIG.Pending {
		t.Errorf("expected Pending=%+v, got %+v", DEFAULT_APP_CONFIG.Pending, cfg.Pending)
	}
	if cfg.Blocklist.DB != DEFAULT_APP_CONFIG.Blocklist.DB {
		t.Errorf("expected Blocklist.DB=%q, got %q", DEFAULT_APP_CONFIG.Blocklist.DB, cfg.Blocklist.DB)
	}
}

func TestValidate_InvalidDefault(t *testing.T) {
	orig := DEFAULT_APP_CONFIG
	defer func() { DEFAULT_APP_CONFIG = orig }()

	DEFAULT_APP_CONFIG.Listen = "not_a_valid_host_port"

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for invalid default Listen, got nil")
	}
}

func TestValidate_Override(t *testing.T) {
	cfg := DEFAULT_APP_CONFIG
	cfg.Upstream = "9.9.9.9:53"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	cfg.Upstream = "9.9.9.9"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for upstream without port")
	}
}
