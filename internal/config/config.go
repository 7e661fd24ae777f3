package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LedgerConfig struct {
	HTTPAddr       string `mapstructure:"http_addr"`
	GRPCAddr       string `mapstructure:"grpc_addr"`
	Store          string `mapstructure:"store"` // "memory" | "sqlite" | "postgres"
	DBPath         string `mapstructure:"db_path"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	AllowClear     bool   `mapstructure:"allow_clear"`
	PrincipalsFile string `mapstructure:"principals_file"`
	SeedDemo       bool   `mapstructure:"seed_demo"`
}

type CacheConfig struct {
	Backend     string        `mapstructure:"backend"` // "memory" | "sqlite" | "redis"
	Path        string        `mapstructure:"path"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	Freshness   time.Duration `mapstructure:"freshness"`
}

type ClientConfig struct {
	LedgerURL      string        `mapstructure:"ledger_url"`
	Identity       string        `mapstructure:"identity"`
	Name           string        `mapstructure:"name"`
	Kind           string        `mapstructure:"kind"`
	Cache          CacheConfig   `mapstructure:"cache"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	AllowRerequest bool          `mapstructure:"allow_rerequest"`
}

type Config struct {
	Env         string       `mapstructure:"env"` // "dev" | "prod"
	LogLevel    string       `mapstructure:"log_level"`
	MetricsPath string       `mapstructure:"metrics_path"`
	Ledger      LedgerConfig `mapstructure:"ledger"`
	Client      ClientConfig `mapstructure:"client"`
}

// Load reads an optional YAML file, then ACCESSGATE_* environment
// overrides (ACCESSGATE_LEDGER_HTTP_ADDR for ledger.http_addr). With an
// empty path, ./accessgate.yaml is used when present.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ACCESSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("accessgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Env = strings.ToLower(cfg.Env)
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}
	cfg.Client.Cache.Path = expandHome(cfg.Client.Cache.Path)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")

	v.SetDefault("ledger.http_addr", ":8080")
	v.SetDefault("ledger.grpc_addr", "")
	v.SetDefault("ledger.store", "sqlite")
	v.SetDefault("ledger.db_path", "./data/ledger.db")
	v.SetDefault("ledger.postgres_dsn", "")
	v.SetDefault("ledger.allow_clear", false)
	v.SetDefault("ledger.principals_file", "")
	v.SetDefault("ledger.seed_demo", false)

	v.SetDefault("client.ledger_url", "http://localhost:8080")
	v.SetDefault("client.identity", "")
	v.SetDefault("client.name", "")
	v.SetDefault("client.kind", "viewer")
	v.SetDefault("client.cache.backend", "sqlite")
	v.SetDefault("client.cache.path", "~/.accessgate/cache.db")
	v.SetDefault("client.cache.redis_addr", "")
	v.SetDefault("client.cache.redis_prefix", "accessgate:status:")
	v.SetDefault("client.cache.freshness", "5m")
	v.SetDefault("client.poll_interval", "30s")
	v.SetDefault("client.fetch_timeout", "10s")
	v.SetDefault("client.allow_rerequest", false)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
