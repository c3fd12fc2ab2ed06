package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Index backends
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Advisor providers
const (
	AdvisorOpenAI    = "openai"
	AdvisorHeuristic = "heuristic"
	AdvisorNone      = "none"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		APIKey         string   `yaml:"apiKey"`
		RateLimit      struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Analysis struct {
		BaseURL        string        `yaml:"baseURL"`
		Timeout        time.Duration `yaml:"timeout"`
		UseCache       bool          `yaml:"useCache"`
		NumCompletions int           `yaml:"numCompletions"`
		PollInterval   time.Duration `yaml:"pollInterval"`
		MaxAttempts    int           `yaml:"maxAttempts"`
	} `yaml:"analysis"`

	Index struct {
		Backend       string        `yaml:"backend"`
		Path          string        `yaml:"path"`
		StorageKey    string        `yaml:"storageKey"`
		Watch         bool          `yaml:"watch"`
		WatchInterval time.Duration `yaml:"watchInterval"`
	} `yaml:"index"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Advisor struct {
		Provider string `yaml:"provider"`
	} `yaml:"advisor"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	c.Server.RateLimit.Capacity = 20
	c.Server.RateLimit.RefillRate = 1

	c.Analysis.BaseURL = "http://localhost:3001/api/v1"
	c.Analysis.Timeout = 30 * time.Second
	c.Analysis.UseCache = true
	c.Analysis.NumCompletions = 1
	c.Analysis.PollInterval = 2 * time.Second
	c.Analysis.MaxAttempts = 30

	c.Index.Backend = BackendFile
	c.Index.Path = defaultIndexPath()
	c.Index.StorageKey = "prompt-analyses"
	c.Index.Watch = true
	c.Index.WatchInterval = 2 * time.Second

	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "petri-results"

	c.Log.Level = "info"
	return &c
}

func defaultIndexPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "petri" + string(os.PathSeparator) + "prompt-analyses.json"
	}
	return "prompt-analyses.json"
}

// Load baca file config.yaml. File yang tidak ada berarti pakai default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if cfg.Advisor.Provider == "" {
		cfg.Advisor.Provider = AdvisorHeuristic
		if cfg.OpenAI.APIKey != "" {
			cfg.Advisor.Provider = AdvisorOpenAI
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PETRI_API_URL"); v != "" {
		c.Analysis.BaseURL = v
	}
	if v := os.Getenv("PETRI_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("PETRI_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("PETRI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if u, err := url.Parse(c.Analysis.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("analysis.baseURL must be an http(s) URL: %q", c.Analysis.BaseURL))
	}
	if c.Analysis.PollInterval < 0 {
		errs = append(errs, errors.New("analysis.pollInterval must not be negative"))
	}
	if c.Analysis.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("analysis.maxAttempts must be positive: %d", c.Analysis.MaxAttempts))
	}
	if c.Analysis.NumCompletions < 0 {
		errs = append(errs, errors.New("analysis.numCompletions must not be negative"))
	}

	switch c.Index.Backend {
	case BackendFile, BackendSQLite:
		if strings.TrimSpace(c.Index.Path) == "" {
			errs = append(errs, fmt.Errorf("index.path is required for backend %s", c.Index.Backend))
		}
	case BackendMySQL, BackendPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, fmt.Errorf("database.host and database.name are required for backend %s", c.Index.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}

	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}

	switch c.Advisor.Provider {
	case AdvisorOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.apiKey is required for advisor provider openai"))
		}
	case AdvisorHeuristic, AdvisorNone, "":
	default:
		errs = append(errs, fmt.Errorf("unknown advisor.provider %q", c.Advisor.Provider))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
