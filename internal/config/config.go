package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ReviewAnalyzer/internal/domain"
)

const (
	configPathEnv       = "REVIEW_ANALYZER_CONFIG"
	databaseURLEnv      = "DATABASE_URL"
	logLevelEnv         = "LOG_LEVEL"
	classifierURLEnv    = "CLASSIFIER_URL"
	classifierKeyEnv    = "CLASSIFIER_API_KEY"
	classifierBackEnv   = "CLASSIFIER_BACKEND"
	chatGPTAPIKeyEnv    = "CHATGPT_API_KEY"
	chatGPTModelEnv     = "CHATGPT_MODEL"
	defaultSQLiteDSN    = "file:reviews_analyzer.db"
	BackendInference    = "inference"
	BackendChatGPT      = "chatgpt"
	defaultAcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Target     TargetConfig     `yaml:"target"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Classifier ClassifierConfig `yaml:"classifier"`
	ChatGPT    ChatGPTConfig    `yaml:"chatgpt"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the history store. A postgres:// DSN selects Postgres, anything else SQLite.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// TargetConfig is the review-site allow-list.
type TargetConfig struct {
	AllowedDomains []string `yaml:"allowedDomains"`
}

// FetcherConfig controls politeness delays, retries and the browser identity.
type FetcherConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	DelayMin        time.Duration `yaml:"delayMin"`
	DelayMax        time.Duration `yaml:"delayMax"`
	BlockedStatuses []int         `yaml:"blockedStatuses"`
	BlockedBackoff  time.Duration `yaml:"blockedBackoff"`
	NetworkBackoff  time.Duration `yaml:"networkBackoff"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	UserAgents      []string      `yaml:"userAgents"`
	AcceptLanguage  string        `yaml:"acceptLanguage"`
	Accept          string        `yaml:"accept"`
}

// ExtractorConfig holds selectors, strategy order and review text bounds.
type ExtractorConfig struct {
	ProductNameSelectors []string `yaml:"productNameSelectors"`
	UnknownProduct       string   `yaml:"unknownProduct"`
	Strategies           []string `yaml:"strategies"`
	MinCandidates        int      `yaml:"minCandidates"`
	LinkContainer        string   `yaml:"linkContainer"`
	ReviewPathPrefix     string   `yaml:"reviewPathPrefix"`
	MaxReviews           int      `yaml:"maxReviews"`
	MinChars             int      `yaml:"minChars"`
	MaxChars             int      `yaml:"maxChars"`
	MinWords             int      `yaml:"minWords"`
	Boilerplate          []string `yaml:"boilerplate"`
}

// ClassifierConfig configures the sentiment model backend and label normalization.
type ClassifierConfig struct {
	Backend       string              `yaml:"backend"`
	Endpoint      string              `yaml:"endpoint"`
	APIKey        string              `yaml:"apiKey"`
	Timeout       time.Duration       `yaml:"timeout"`
	MaxInputRunes int                 `yaml:"maxInputRunes"`
	PositiveAbove float64             `yaml:"positiveAbove"`
	NegativeBelow float64             `yaml:"negativeBelow"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	Workers       int                 `yaml:"workers"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible chat API when used as the model backend.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// ScoringConfig holds the rating weights.
type ScoringConfig struct {
	Weights domain.RatingWeights `yaml:"weights"`
}

// PipelineConfig bounds one analysis run.
type PipelineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads .env files and the YAML file named by REVIEW_ANALYZER_CONFIG (if set)
// and applies environment overrides. A broken file is logged and skipped.
func Load() Config {
	cfg, err := LoadFrom(os.Getenv(configPathEnv))
	if err != nil {
		log.Printf("config: %v (falling back to defaults)", err)
	}
	return cfg
}

// LoadFrom is Load with an explicit YAML path. The file is merged before the
// environment overrides, so DATABASE_URL and friends always win. On a read error
// the returned config still carries defaults and env overrides.
func LoadFrom(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := Default()

	var readErr error
	if path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			readErr = err
		} else {
			cfg = Merge(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, readErr
}

// ReadFile parses a YAML configuration file without applying defaults.
func ReadFile(path string) (Config, error) {
	var fileCfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileCfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return fileCfg, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Merge overlays every non-zero field of override onto base.
func Merge(base, override Config) Config {
	if err := mergo.Merge(&base, override, mergo.WithOverride); err != nil {
		log.Printf("config: merge failed: %v (keeping defaults)", err)
	}
	return base
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.Endpoint = v
	}

	if v := os.Getenv(classifierKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(classifierBackEnv); v != "" {
		c.Classifier.Backend = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}
}

// Validate rejects combinations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	if len(c.Target.AllowedDomains) == 0 {
		errs = append(errs, errors.New("target.allowedDomains is empty"))
	}
	if c.Fetcher.MaxAttempts < 1 {
		errs = append(errs, errors.New("fetcher.maxAttempts must be at least 1"))
	}
	if c.Fetcher.DelayMin < 0 || c.Fetcher.DelayMax < c.Fetcher.DelayMin {
		errs = append(errs, fmt.Errorf("fetcher delay range %s-%s is invalid", c.Fetcher.DelayMin, c.Fetcher.DelayMax))
	}
	if c.Extractor.MaxReviews < 1 {
		errs = append(errs, errors.New("extractor.maxReviews must be at least 1"))
	}
	if c.Extractor.MaxChars < c.Extractor.MinChars {
		errs = append(errs, errors.New("extractor.maxChars is below extractor.minChars"))
	}
	if c.Classifier.NegativeBelow > c.Classifier.PositiveAbove {
		errs = append(errs, errors.New("classifier.negativeBelow is above classifier.positiveAbove"))
	}
	if c.Classifier.MaxInputRunes < 1 {
		errs = append(errs, errors.New("classifier.maxInputRunes must be positive"))
	}
	switch c.Classifier.Backend {
	case BackendInference, BackendChatGPT:
	default:
		errs = append(errs, fmt.Errorf("unknown classifier backend %q", c.Classifier.Backend))
	}

	return errors.Join(errs...)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{DSN: defaultSQLiteDSN},
		Target:   TargetConfig{AllowedDomains: []string{"irecommend.ru"}},
		Fetcher: FetcherConfig{
			MaxAttempts:     3,
			DelayMin:        2 * time.Second,
			DelayMax:        5 * time.Second,
			BlockedStatuses: []int{403, 520, 521},
			BlockedBackoff:  5 * time.Second,
			NetworkBackoff:  3 * time.Second,
			RequestTimeout:  30 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			},
			AcceptLanguage: "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
			Accept:         defaultAcceptHeader,
		},
		Extractor: ExtractorConfig{
			ProductNameSelectors: []string{`[itemprop="name"]`, "h1", "title"},
			UnknownProduct:       domain.UnknownProduct,
			Strategies:           []string{"review-body", "description", "keyword-container", "paragraph"},
			MinCandidates:        5,
			LinkContainer:        "ul.list-comments",
			ReviewPathPrefix:     "/content/",
			MaxReviews:           20,
			MinChars:             50,
			MaxChars:             10000,
			MinWords:             5,
			Boilerplate: []string{
				"read more",
				"report abuse",
				"show more",
				"читать далее",
				"читать весь отзыв",
				"пожаловаться на отзыв",
				"показать полностью",
			},
		},
		Classifier: ClassifierConfig{
			Backend:       BackendInference,
			Endpoint:      "http://localhost:8000",
			Timeout:       15 * time.Second,
			MaxInputRunes: 512,
			PositiveAbove: 0.6,
			NegativeBelow: 0.4,
			Synonyms: map[string][]string{
				string(domain.LabelPositive): {"positive", "pos", "позитив", "положительн"},
				string(domain.LabelNeutral):  {"neutral", "neu", "нейтрал"},
				string(domain.LabelNegative): {"negative", "neg", "негатив", "отрицательн"},
			},
			Workers: 1,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "",
		},
		Scoring:  ScoringConfig{Weights: domain.DefaultRatingWeights()},
		Pipeline: PipelineConfig{Timeout: 5 * time.Minute},
	}
}
