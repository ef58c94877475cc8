package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

// EnvPrefix namespaces every environment override, e.g. LIVEQUIZ_REDIS_ADDR.
const EnvPrefix = "LIVEQUIZ_"

type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Quiz     QuizConfig     `yaml:"quiz" envPrefix:"QUIZ_"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
	// PublicURL is the base URL encoded into join QR codes.
	PublicURL       string `yaml:"public_url" env:"PUBLIC_URL"`
	ShutdownTimeout string `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or text
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // memory or redis
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	TTL      string `yaml:"ttl" env:"TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type AuthConfig struct {
	Secret   string `yaml:"secret" env:"SECRET"`
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	TokenTTL string `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type QuizConfig struct {
	BankTTL          string  `yaml:"bank_ttl" env:"BANK_TTL"`
	AnswerGrace      string  `yaml:"answer_grace" env:"ANSWER_GRACE"`
	EarlyAdvance     *bool   `yaml:"early_advance" env:"EARLY_ADVANCE"`
	SkipVoteRatio    float64 `yaml:"skip_vote_ratio" env:"SKIP_VOTE_RATIO"`
	HostTimeout      string  `yaml:"host_timeout" env:"HOST_TIMEOUT"`
	WatchdogInterval string  `yaml:"watchdog_interval" env:"WATCHDOG_INTERVAL"`
	// QuestionSets points to a YAML file of sets served when Postgres is not configured.
	QuestionSets string `yaml:"question_sets" env:"QUESTION_SETS"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "live-quiz"
	}
}

// EarlyAdvance defaults to on when not configured.
func (q QuizConfig) EarlyAdvanceEnabled() bool {
	return q.EarlyAdvance == nil || *q.EarlyAdvance
}

// LogLevel parses the configured level, falling back to info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// LoadQuestionSets reads a YAML list of question sets keyed by ID.
func LoadQuestionSets(path string) (map[string]domain.QuestionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sets []domain.QuestionSet
	if err := yaml.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	byID := make(map[string]domain.QuestionSet, len(sets))
	for _, set := range sets {
		if set.ID == "" {
			return nil, fmt.Errorf("question set without id in %s", path)
		}
		if _, dup := byID[set.ID]; dup {
			return nil, fmt.Errorf("duplicate question set %q in %s", set.ID, path)
		}
		byID[set.ID] = set
	}
	return byID, nil
}
