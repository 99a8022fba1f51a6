package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string

	Site struct {
		Identifier string
		URL        string
	}

	SenderEmail string
	TempDir     string

	DB struct {
		DSN string
	}

	Log struct {
		Level  string
		Format string
	}

	Export struct {
		RatePerSecond float64
		Burst         int
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

// Load reads APP_* environment variables, layered over an optional YAML
// file named by APP_CONFIG_FILE whose keys drop the prefix (listen_addr).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("site_url", "http://localhost:8080")
	v.SetDefault("temp_dir", filepath.Join(os.TempDir(), "bookingcal"))
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("prometheus_endpoint_enabled", false)
	v.SetDefault("export_rate_per_second", 10)
	v.SetDefault("export_burst", 20)

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{}
	cfg.ListenAddr = v.GetString("listen_addr")
	cfg.Site.Identifier = strings.TrimSpace(v.GetString("site_identifier"))
	cfg.Site.URL = strings.TrimRight(strings.TrimSpace(v.GetString("site_url")), "/")
	cfg.SenderEmail = strings.TrimSpace(v.GetString("sender_email"))
	cfg.TempDir = v.GetString("temp_dir")
	cfg.DB.DSN = v.GetString("db_dsn")
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")
	cfg.Export.RatePerSecond = v.GetFloat64("export_rate_per_second")
	cfg.Export.Burst = v.GetInt("export_burst")
	cfg.PrometheusEnabled = v.GetBool("prometheus_endpoint_enabled")
	cfg.TrustedProxies = splitList(v.GetString("trusted_proxies"))

	if cfg.DB.DSN == "" {
		host := v.GetString("db_host")
		name := v.GetString("db_name")
		user := v.GetString("db_user")
		password := v.GetString("db_password")

		var missing []string
		if host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		if len(missing) == 0 {
			dsn := url.URL{
				Scheme:   "postgres",
				User:     url.UserPassword(user, password),
				Host:     host + ":" + v.GetString("db_port"),
				Path:     "/" + name,
				RawQuery: "sslmode=" + url.QueryEscape(v.GetString("db_sslmode")),
			}
			cfg.DB.DSN = dsn.String()
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if c.Site.Identifier == "" {
		return errors.New("APP_SITE_IDENTIFIER is required")
	}
	if c.SenderEmail == "" {
		return errors.New("APP_SENDER_EMAIL is required")
	}
	if _, err := mail.ParseAddress(c.SenderEmail); err != nil {
		return fmt.Errorf("APP_SENDER_EMAIL is not a valid address: %w", err)
	}
	u, err := url.Parse(c.Site.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("APP_SITE_URL must be an absolute http(s) URL (got %q)", c.Site.URL)
	}
	if c.Export.RatePerSecond <= 0 {
		return fmt.Errorf("APP_EXPORT_RATE_PER_SECOND must be positive (got %v)", c.Export.RatePerSecond)
	}
	if c.Export.Burst < 1 {
		return fmt.Errorf("APP_EXPORT_BURST must be at least 1 (got %d)", c.Export.Burst)
	}
	return nil
}

func splitList(v string) []string {
	var result []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
