package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config.yaml"

var (
	ErrEmptyModelURL        = errors.New("model endpoint base url is required")
	ErrEmptyBotToken        = errors.New("telegram bot token is required")
	ErrEmptyDBPassword      = errors.New("database password is required")
	ErrArchiveNeedsDatabase = errors.New("nats archive consumer requires the database")
)

type Config struct {
	App       AppConfig       `yaml:"app" env-prefix:"APP_"`
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model" env-prefix:"MODEL_"`
	Generator GeneratorConfig `yaml:"generator" env-prefix:"GENERATOR_"`
	Corpus    CorpusConfig    `yaml:"corpus" env-prefix:"CORPUS_"`
	Store     StoreConfig     `yaml:"store" env-prefix:"STORE_"`
	GitHub    GitHubConfig    `yaml:"github" env-prefix:"GITHUB_"`
	Preview   PreviewConfig   `yaml:"preview" env-prefix:"PREVIEW_"`
	Database  DatabaseConfig  `yaml:"database" env-prefix:"DB_"`
	NATS      NATSConfig      `yaml:"nats" env-prefix:"NATS_"`
	Bot       BotConfig       `yaml:"bot" env-prefix:"BOT_"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME" env-default:"roast-machine"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// IsDevelopment reports whether logs should be human readable.
func (a AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" env-default:"8080"`
	SiteURL         string        `yaml:"site_url" env:"SITE_URL" env-default:"https://bittensor-roast.fly.dev"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type ModelConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY" env-default:"not-needed"`
	Name        string        `yaml:"name" env:"NAME" env-default:"Qwen/Qwen3-4B"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE" env-default:"0.9"`
	TopP        float64       `yaml:"top_p" env:"TOP_P" env-default:"0.95"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS" env-default:"150"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"60s"`
}

type GeneratorConfig struct {
	Subject           string  `yaml:"subject" env:"SUBJECT" env-default:"the Bittensor (TAO) crypto ecosystem"`
	MaxAttempts       int     `yaml:"max_attempts" env:"MAX_ATTEMPTS" env-default:"3"`
	MinLength         int     `yaml:"min_length" env:"MIN_LENGTH" env-default:"20"`
	ExamplesPerPrompt int     `yaml:"examples_per_prompt" env:"EXAMPLES_PER_PROMPT" env-default:"1"`
	DedupThreshold    float64 `yaml:"dedup_threshold" env:"DEDUP_THRESHOLD" env-default:"0.6"`
	RecentWindow      int     `yaml:"recent_window" env:"RECENT_WINDOW" env-default:"50"`
}

type CorpusConfig struct {
	FactoidsPath string `yaml:"factoids_path" env:"FACTOIDS_PATH" env-default:"data/factoids.md"`
	ExamplesPath string `yaml:"examples_path" env:"EXAMPLES_PATH" env-default:"data/examples.md"`
}

type StoreConfig struct {
	Dir     string `yaml:"dir" env:"DIR" env-default:"all-jokes"`
	PerPage int    `yaml:"per_page" env:"PER_PAGE" env-default:"20"`
}

type GitHubConfig struct {
	Token   string        `yaml:"token" env:"TOKEN"`
	Repo    string        `yaml:"repo" env:"REPO" env-default:"Bitsec-AI/jokes"`
	Dir     string        `yaml:"dir" env:"DIR" env-default:"all-jokes"`
	BaseURL string        `yaml:"base_url" env:"API_URL" env-default:"https://api.github.com"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"15s"`
}

type PreviewConfig struct {
	CacheSize int    `yaml:"cache_size" env:"CACHE_SIZE" env-default:"256"`
	Title     string `yaml:"title" env:"TITLE" env-default:"Bittensor Roast Machine"`
	Footer    string `yaml:"footer" env:"FOOTER" env-default:"@bitsecai  x  @basilic_ai"`
}

type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Host           string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" env-default:"5432"`
	User           string `yaml:"user" env:"USER" env-default:"roast"`
	Password       string `yaml:"password" env:"PASSWORD"`
	Name           string `yaml:"name" env:"NAME" env-default:"roast"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"10"`
	MinConnections int    `yaml:"min_connections" env:"MIN_CONNECTIONS" env-default:"1"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type NATSConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Consume    bool          `yaml:"consume" env:"CONSUME" env-default:"true"`
	URL        string        `yaml:"url" env:"URL" env-default:"nats://localhost:4222"`
	StreamName string        `yaml:"stream_name" env:"STREAM_NAME" env-default:"ROAST"`
	FetchWait  time.Duration `yaml:"fetch_wait" env:"FETCH_WAIT" env-default:"500ms"`
}

type BotConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Token     string `yaml:"token" env:"TOKEN"`
	ParseMode string `yaml:"parse_mode" env:"PARSE_MODE" env-default:"Markdown"`
}

// Load reads the configuration and validates it for serving.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read loads .env (if present), the YAML file at CONFIG_PATH and then the
// environment, in that order of increasing precedence, without validating.
// Tools that need only part of the configuration start from here.
func Read() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	var cfg Config

	if _, err := os.Stat(configPath); err == nil || explicit {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Model.BaseURL == "" {
		return ErrEmptyModelURL
	}

	if c.Bot.Enabled && c.Bot.Token == "" {
		return ErrEmptyBotToken
	}

	if c.Database.Enabled && c.Database.Password == "" {
		return ErrEmptyDBPassword
	}

	if c.NATS.Enabled && c.NATS.Consume && !c.Database.Enabled {
		return ErrArchiveNeedsDatabase
	}

	return nil
}
