// Package config provides configuration loading and validation for the
// intake service. Values come from defaults, an optional config.yaml and
// INTAKE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every configuration failure.
var ErrConfiguration = errors.New("configuration error")

// Config holds all application settings.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Support   SupportConfig   `mapstructure:"support"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"            validate:"min=1,max=65535"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=5m"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type AIConfig struct {
	// Backend selects the text-generation service: openai or gemini.
	Backend     string        `mapstructure:"backend"     validate:"oneof=openai gemini"`
	Token       string        `mapstructure:"token"       validate:"required"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	Instruction string        `mapstructure:"instruction" validate:"required"`

	// Embeddings always go through the OpenAI API; the token defaults to
	// the generation token when unset (relevant for the gemini backend).
	EmbeddingModel string        `mapstructure:"embedding_model" validate:"required"`
	EmbeddingToken string        `mapstructure:"embedding_token"`
	EmbedTimeout   time.Duration `mapstructure:"embed_timeout"   validate:"min=1s,max=2m"`
}

type DirectoryConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"           validate:"required"`
	RetentionDays int    `mapstructure:"retention_days" validate:"min=1,max=3650"`
	// MaintenanceCron schedules the nightly VACUUM/trim job.
	MaintenanceCron string `mapstructure:"maintenance_cron" validate:"required"`
}

type SupportConfig struct {
	Contact string `mapstructure:"contact" validate:"required"`
}

// Load reads configuration from defaults, config.yaml (optional) and
// environment variables, then validates the result.
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("INTAKE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
		// Missing config file is fine; defaults plus env must suffice.
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if cfg.AI.EmbeddingToken == "" {
		cfg.AI.EmbeddingToken = cfg.AI.Token
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", true)

	viper.SetDefault("server.port", 10000)
	viper.SetDefault("server.request_timeout", 30*time.Second)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("ai.backend", "openai")
	viper.SetDefault("ai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.timeout", 25*time.Second)
	viper.SetDefault("ai.instruction",
		"Ты — ассистент сервиса спортивной психологии. Отвечай кратко, тепло и по делу. "+
			"Не выдумывай специалистов и ссылки: карточки подставляет система.")
	viper.SetDefault("ai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("ai.embed_timeout", 10*time.Second)

	viper.SetDefault("directory.path", "specialists.yaml")

	viper.SetDefault("database.path", "intake.db")
	viper.SetDefault("database.retention_days", 90)
	viper.SetDefault("database.maintenance_cron", "0 4 * * *")

	viper.SetDefault("support.contact", "https://t.me/sportmind_support")
}
