// Package config loads the process configuration once at startup from an
// optional TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nadmax/nexcoach/internal/apperr"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Server   Server   `toml:"server"`
	Notion   Notion   `toml:"notion"`
	LLM      LLM      `toml:"llm"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	Email    Email    `toml:"email"`
	Worker   Worker   `toml:"worker"`
	Log      Log      `toml:"log"`
}

type Server struct {
	Port               string   `toml:"port"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	ShutdownTimeout    Duration `toml:"shutdown_timeout"`
	// TrustProxy keys rate limiting on X-Forwarded-For. Enable only behind
	// a proxy that overwrites the header.
	TrustProxy         bool     `toml:"trust_proxy"`
}

type Notion struct {
	APIKey             string `toml:"api_key"`
	TasksDatabaseID    string `toml:"tasks_database_id"`
	ProjectsDatabaseID string `toml:"projects_database_id"`
	GoalsDatabaseID    string `toml:"goals_database_id"`
	// StatusKind is the Notion property type backing "Status": "status" or "select".
	StatusKind string `toml:"status_kind"`
}

type LLM struct {
	APIKey            string   `toml:"api_key"`
	Model             string   `toml:"model"`
	BaseURL           string   `toml:"base_url"`
	MaxTokens         int      `toml:"max_tokens"`
	Temperature       float64  `toml:"temperature"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	Timeout           Duration `toml:"timeout"`
}

type Postgres struct {
	DSN string `toml:"dsn"`
}

type Redis struct {
	Addr string `toml:"addr"`
}

type Email struct {
	APIKey      string `toml:"api_key"`
	Host        string `toml:"host"`
	FromName    string `toml:"from_name"`
	FromAddress string `toml:"from_address"`
	Recipient   string `toml:"recipient"`
}

type Worker struct {
	ID           string   `toml:"id"`
	PollInterval Duration `toml:"poll_interval"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const DefaultTemperature = 0.7

// Requirements selects which sections a binary cannot run without.
type Requirements struct {
	Notion   bool
	LLM      bool
	Redis    bool
	Postgres bool
}

// Load reads path (if non-empty), applies environment overrides and
// defaults. Validation is left to the caller, which knows its Requirements.
func Load(path string) (*Config, error) {
	// Zero is a valid temperature, so its default is set before decoding
	// rather than filled in afterwards.
	cfg := Config{LLM: LLM{Temperature: DefaultTemperature}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Config("read config", fmt.Errorf("reading %s: %w", path, err))
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, apperr.Config("parse config", fmt.Errorf("parsing %s: %w", path, err))
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return apperr.Config("read env", fmt.Errorf("%s must be an integer: %w", key, err))
		}
		*dst = n
		return nil
	}

	str("PORT", &cfg.Server.Port)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if err := integer("RATE_LIMIT_PER_MINUTE", &cfg.Server.RateLimitPerMinute); err != nil {
		return err
	}
	if v, ok := lookup("TRUST_PROXY"); ok && strings.TrimSpace(v) != "" {
		trust, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return apperr.Config("read env", fmt.Errorf("TRUST_PROXY must be a boolean: %w", err))
		}
		cfg.Server.TrustProxy = trust
	}

	str("NOTION_API_KEY", &cfg.Notion.APIKey)
	str("NOTION_TASKS_DATABASE_ID", &cfg.Notion.TasksDatabaseID)
	str("NOTION_PROJECTS_DATABASE_ID", &cfg.Notion.ProjectsDatabaseID)
	str("NOTION_GOALS_DATABASE_ID", &cfg.Notion.GoalsDatabaseID)
	str("NOTION_STATUS_KIND", &cfg.Notion.StatusKind)

	str("ANTHROPIC_API_KEY", &cfg.LLM.APIKey)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	if err := integer("LLM_MAX_TOKENS", &cfg.LLM.MaxTokens); err != nil {
		return err
	}
	if err := integer("LLM_REQUESTS_PER_MINUTE", &cfg.LLM.RequestsPerMinute); err != nil {
		return err
	}

	str("POSTGRES_DSN", &cfg.Postgres.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)

	str("EMAIL_API_KEY", &cfg.Email.APIKey)
	str("EMAIL_HOST", &cfg.Email.Host)
	str("FROM_NAME", &cfg.Email.FromName)
	str("FROM_ADDRESS", &cfg.Email.FromAddress)
	str("DIGEST_RECIPIENT", &cfg.Email.Recipient)

	str("WORKER_ID", &cfg.Worker.ID)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 60
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = 5 * time.Second
	}

	if cfg.Notion.StatusKind == "" {
		cfg.Notion.StatusKind = "status"
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-5"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.RequestsPerMinute == 0 {
		cfg.LLM.RequestsPerMinute = 50
	}
	if cfg.LLM.Timeout.Duration == 0 {
		cfg.LLM.Timeout.Duration = 30 * time.Second
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.Email.Host == "" {
		cfg.Email.Host = "https://api.sendgrid.com"
	}

	if cfg.Worker.ID == "" {
		cfg.Worker.ID = fmt.Sprintf("worker-%d", time.Now().Unix())
	}
	if cfg.Worker.PollInterval.Duration == 0 {
		cfg.Worker.PollInterval.Duration = time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate reports every missing setting the caller requires as a single
// configuration error.
func (c *Config) Validate(req Requirements) error {
	var errs []error
	missing := func(name string) {
		errs = append(errs, fmt.Errorf("%s is required", name))
	}

	if req.Notion {
		if c.Notion.APIKey == "" {
			missing("notion.api_key (NOTION_API_KEY)")
		}
		if c.Notion.TasksDatabaseID == "" {
			missing("notion.tasks_database_id (NOTION_TASKS_DATABASE_ID)")
		}
		if c.Notion.StatusKind != "status" && c.Notion.StatusKind != "select" {
			errs = append(errs, fmt.Errorf("notion.status_kind must be \"status\" or \"select\", got %q", c.Notion.StatusKind))
		}
	}
	if req.LLM {
		if c.LLM.APIKey == "" {
			missing("llm.api_key (ANTHROPIC_API_KEY)")
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
			errs = append(errs, fmt.Errorf("llm.temperature must be within [0,1], got %v", c.LLM.Temperature))
		}
		if c.LLM.MaxTokens < 0 || c.LLM.RequestsPerMinute < 0 {
			errs = append(errs, errors.New("llm.max_tokens and llm.requests_per_minute must be positive"))
		}
	}
	if req.Redis && c.Redis.Addr == "" {
		missing("redis.addr (REDIS_ADDR)")
	}
	if req.Postgres && c.Postgres.DSN == "" {
		missing("postgres.dsn (POSTGRES_DSN)")
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("server.rate_limit_per_minute must be positive"))
	}

	if len(errs) > 0 {
		return apperr.Config("validate config", errors.Join(errs...))
	}
	return nil
}

// EmailEnabled reports whether digests can be delivered.
func (c *Config) EmailEnabled() bool {
	return c.Email.APIKey != "" && c.Email.FromAddress != "" && c.Email.Recipient != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
