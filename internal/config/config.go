package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultURL  = "https://www.mirbsd.org/acronyms"
	DefaultPath = "./data/acronyms.db"
)

type Config struct {
	Listen          string        `json:"listen"`
	URLBasePath     string        `json:"url_base_path"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Log             LogConfig     `json:"log"`
	Dictionary      DictConfig    `json:"dictionary"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type DictConfig struct {
	URL          string        `json:"url"`
	Path         string        `json:"path"`
	ChunkSize    int           `json:"chunk_size"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
	IndexCache   bool          `json:"index_cache"`
	CacheSize    int           `json:"cache_size"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

func Default() Config {
	return Config{
		Listen:          ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level: "info",
		},
		Dictionary: DictConfig{
			URL:          DefaultURL,
			Path:         DefaultPath,
			ChunkSize:    4096,
			FetchTimeout: 5 * time.Minute,
			IndexCache:   true,
			CacheSize:    1024,
			CacheTTL:     5 * time.Minute,
		},
	}
}

// Load reads the JSON file at path over the defaults, then applies
// environment overrides (a .env file in the working directory is honored).
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	_ = godotenv.Load()
	applyEnv(&cfg)
	fillDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ACRODICT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("ACRODICT_BASE_PATH"); v != "" {
		cfg.URLBasePath = v
	}
	if v := os.Getenv("ACRODICT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ACRODICT_DICT_URL"); v != "" {
		cfg.Dictionary.URL = v
	}
	if v := os.Getenv("ACRODICT_DICT_PATH"); v != "" {
		cfg.Dictionary.Path = v
	}
}

func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Dictionary.URL == "" {
		cfg.Dictionary.URL = def.Dictionary.URL
	}
	if cfg.Dictionary.Path == "" {
		cfg.Dictionary.Path = def.Dictionary.Path
	}
	if cfg.Dictionary.ChunkSize <= 0 {
		cfg.Dictionary.ChunkSize = def.Dictionary.ChunkSize
	}
	if cfg.Dictionary.FetchTimeout == 0 {
		cfg.Dictionary.FetchTimeout = def.Dictionary.FetchTimeout
	}
}
