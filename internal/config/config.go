// Package config loads the research agent configuration from an optional YAML or JSON
// file and RESEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/supervity/company-research/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. RESEARCH_POOL_SIZE.
const EnvPrefix = "RESEARCH"

// Config represents the agent configuration. Every field has a default, so a missing
// config file is not an error.
type Config struct {
	// Model
	Provider       string        `mapstructure:"provider" validate:"oneof=gemini vertex openai"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey   string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL  string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	VertexProject  string        `mapstructure:"vertex_project"`
	VertexLocation string        `mapstructure:"vertex_location"`
	Grounding      bool          `mapstructure:"grounding"`
	Model          string        `mapstructure:"model"`
	LiteModel      string        `mapstructure:"lite_model"`
	Temperature    float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" validate:"gt=0"`

	// Generation
	RequesterCompany string        `mapstructure:"requester_company" validate:"required"`
	Language         string        `mapstructure:"language" validate:"required"`
	PoolSize         int           `mapstructure:"pool_size" validate:"gte=1,lte=64"`
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
	Summary          bool          `mapstructure:"summary"`

	// Output
	OutputDir     string        `mapstructure:"output_dir" validate:"required"`
	Store         string        `mapstructure:"store" validate:"oneof=file sqlite"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	DatabaseURL   string        `mapstructure:"database_url"`
	Renderer      string        `mapstructure:"renderer" validate:"oneof=chrome weasyprint none"`
	ChromePath    string        `mapstructure:"chrome_path"`
	RenderTimeout time.Duration `mapstructure:"render_timeout" validate:"gt=0"`

	// Server
	ListenAddr     string   `mapstructure:"listen_addr" validate:"required"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" validate:"gte=0"`
	CORSOrigins    []string `mapstructure:"cors_origins"`

	Verbose bool `mapstructure:"verbose"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Provider:         string(llm.ProviderGemini),
		VertexLocation:   "us-central1",
		Temperature:      0.2,
		CallTimeout:      llm.DefaultTimeout,
		RequesterCompany: "Supervity",
		Language:         "English",
		PoolSize:         10,
		MaxAttempts:      1,
		RetryBaseDelay:   2 * time.Second,
		OutputDir:        "output",
		Store:            "file",
		SQLitePath:       "research.db",
		Renderer:         "chrome",
		RenderTimeout:    2 * time.Minute,
		ListenAddr:       ":8080",
		RateLimitRPS:     2,
		RateLimitBurst:   10,
		CORSOrigins:      []string{"*"},
	}
}

// legacyEnv lists environment names honored besides the RESEARCH_ ones.
var legacyEnv = map[string][]string{
	"gemini_api_key": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai_api_key": {"OPENAI_API_KEY"},
	"database_url":   {"DATABASE_URL"},
	"model":          {"LLM_MODEL"},
	"temperature":    {"LLM_TEMPERATURE"},
}

// LoadConfig reads path (or research.yaml/research.json in the working directory when
// path is empty) and applies environment overrides. The result is validated.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("research")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(key)}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("vertex_project", "")
	v.SetDefault("vertex_location", d.VertexLocation)
	v.SetDefault("grounding", false)
	v.SetDefault("model", "")
	v.SetDefault("lite_model", "")
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("call_timeout", d.CallTimeout)
	v.SetDefault("requester_company", d.RequesterCompany)
	v.SetDefault("language", d.Language)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("max_attempts", d.MaxAttempts)
	v.SetDefault("retry_base_delay", d.RetryBaseDelay)
	v.SetDefault("summary", false)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("store", d.Store)
	v.SetDefault("sqlite_path", d.SQLitePath)
	v.SetDefault("database_url", "")
	v.SetDefault("renderer", d.Renderer)
	v.SetDefault("chrome_path", "")
	v.SetDefault("render_timeout", d.RenderTimeout)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("rate_limit_rps", d.RateLimitRPS)
	v.SetDefault("rate_limit_burst", d.RateLimitBurst)
	v.SetDefault("cors_origins", d.CORSOrigins)
	v.SetDefault("verbose", false)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("'%s' fails %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// LLM returns the model client configuration for the selected provider.
func (c *Config) LLM() *llm.Config {
	p := llm.Provider(c.Provider)
	out := llm.DefaultConfigFor(p)
	switch p {
	case llm.ProviderOpenAI:
		out.APIKey = c.OpenAIAPIKey
		out.BaseURL = c.OpenAIBaseURL
	default:
		out.APIKey = c.GeminiAPIKey
	}
	out.Project = c.VertexProject
	out.Location = c.VertexLocation
	out.Grounding = c.Grounding || p == llm.ProviderVertex
	out.Timeout = c.CallTimeout
	if c.Model != "" {
		out.Models[llm.TierStandard] = c.Model
	}
	if c.LiteModel != "" {
		out.Models[llm.TierLite] = c.LiteModel
	}
	return out
}

// ModelName is the model used for section generation.
func (c *Config) ModelName() string {
	return c.LLM().GetModel(llm.TierStandard)
}
