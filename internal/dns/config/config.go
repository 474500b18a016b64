// Package config loads rr-fwd settings from defaults, an optional config file
// and DNS_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "DNS_CONFIG_FILE"

// AppConfig holds the forwarder configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the host:port the UDP socket binds to.
	Listen string `koanf:"listen" validate:"required,host_port"`

	// Upstream is the resolver queries are forwarded to. Empty disables forwarding.
	Upstream string `koanf:"upstream" validate:"omitempty,host_port"`

	Pending   PendingConfig   `koanf:"pending"`
	Blocklist BlocklistConfig `koanf:"blocklist"`
}

// PendingConfig bounds the table of queries waiting for upstream answers.
type PendingConfig struct {
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
	Max int           `koanf:"max" validate:"gte=1"`
}

// BlocklistConfig configures question filtering. No files means nothing is blocked.
type BlocklistConfig struct {
	Files     []string `koanf:"files" validate:"dive,required"`
	DB        string   `koanf:"db" validate:"required"`
	CacheSize int      `koanf:"cache_size" validate:"gte=0"`
	FPRate    float64  `koanf:"fp_rate" validate:"gt=0,lt=1"`
}

// DEFAULT_APP_CONFIG holds the values used for anything not set elsewhere.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Listen:   "127.0.0.1:2053",
	Upstream: "",
	Pending: PendingConfig{
		TTL: 10 * time.Second,
		Max: 4096,
	},
	Blocklist: BlocklistConfig{
		Files:     []string{},
		DB:        "/var/lib/rr-fwd/blocklist.db",
		CacheSize: 1000,
		FPRate:    0.01,
	},
}

// envKeys maps flattened environment names onto nested koanf paths.
var envKeys = map[string]string{
	"pending_ttl":          "pending.ttl",
	"pending_max":          "pending.max",
	"blocklist_files":      "blocklist.files",
	"blocklist_db":         "blocklist.db",
	"blocklist_cache_size": "blocklist.cache_size",
	"blocklist_fp_rate":    "blocklist.fp_rate",
}

// validHostPort accepts "host:port" where host is an IP or a host name and
// port is 1-65535.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /\t") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "DNS_".
// Values containing spaces or commas become lists. Can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			if key == ConfigFileEnv {
				return "", nil
			}
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			if mapped, ok := envKeys[key]; ok {
				key = mapped
			}
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads a YAML, JSON or TOML file chosen by extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the "host_port" rule with v.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load builds an AppConfig from defaults, the file named by DNS_CONFIG_FILE
// if set, and the environment, then validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its field rules. Callers that change a loaded
// config (command-line overrides) validate it again.
func Validate(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
