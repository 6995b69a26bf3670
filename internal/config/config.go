package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the classifier service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Chroma   ChromaConfig   `yaml:"chroma"`
	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
	Fallback FallbackConfig `yaml:"fallback"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig configures the SQLite ticket store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ChromaConfig configures the similarity index backend.
type ChromaConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
	TopK       int           `yaml:"topK"`
}

// LLMConfig configures the Anthropic completion client.
type LLMConfig struct {
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig controls Redis-backed caching of classification results.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ResultTTL    time.Duration `yaml:"resultTTL"`
}

// FallbackConfig controls keyword rule-pack loading for the fallback
// classifier.
type FallbackConfig struct {
	KeywordsPath string `yaml:"keywordsPath"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TICKET_CLASSIFIER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Path: "data/tickets.db"},
		Chroma: ChromaConfig{
			Collection: "tickets",
			Timeout:    5 * time.Second,
			TopK:       3,
		},
		LLM: LLMConfig{Timeout: 30 * time.Second},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ResultTTL:    168 * time.Hour,
		},
		Fallback: FallbackConfig{KeywordsPath: "configs/keywords/default.yaml"},
		Logging:  LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TICKET_CLASSIFIER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CHROMA_URL"); v != "" {
		cfg.Chroma.Endpoint = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CHROMA_COLLECTION"); v != "" {
		cfg.Chroma.Collection = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CHROMA_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Chroma.TopK = k
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TICKET_CLASSIFIER_KEYWORDS_PATH"); v != "" {
		cfg.Fallback.KeywordsPath = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReadTimeout = d
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WriteTimeout = d
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("TICKET_CLASSIFIER_CACHE_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultTTL = d
		}
	}
}
