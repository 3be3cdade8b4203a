package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s"
// or "5m". Bare integers are taken as nanoseconds, matching what the YAML
// decoder would do for the underlying type.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Logging struct {
		Dir    string `yaml:"dir"`
		AppLog string `yaml:"app_log"`
	} `yaml:"logging"`

	Services struct {
		TemplateSearchURL string   `yaml:"template_search_url"`
		TableDataURL      string   `yaml:"table_data_url"`
		FetchTimeout      Duration `yaml:"fetch_timeout"`
	} `yaml:"services"`

	Sessions struct {
		IdleTimeout   Duration `yaml:"idle_timeout"`
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"sessions"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults if not specified
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "./data/stepline.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "./data/logs"
	}
	if cfg.Logging.AppLog == "" {
		cfg.Logging.AppLog = "./data/logs/app.log"
	}
	if cfg.Services.FetchTimeout == 0 {
		cfg.Services.FetchTimeout = Duration(10 * time.Second)
	}
	if cfg.Sessions.IdleTimeout == 0 {
		cfg.Sessions.IdleTimeout = Duration(30 * time.Minute)
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = Duration(time.Minute)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
func LoadFromEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		cfg.Logging.Dir = logDir
		cfg.Logging.AppLog = logDir + "/app.log"
	}
	if port := os.Getenv("PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil && val > 0 {
			cfg.Server.Port = val
		}
	}
	if u := os.Getenv("TEMPLATE_SEARCH_URL"); u != "" {
		cfg.Services.TemplateSearchURL = u
	}
	if u := os.Getenv("TABLE_DATA_URL"); u != "" {
		cfg.Services.TableDataURL = u
	}

	return cfg, nil
}
