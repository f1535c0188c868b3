package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"esgdocs/internal"
	"esgdocs/internal/llm"
	"esgdocs/internal/matching"
	"esgdocs/internal/ocr"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string
	LogLevel   string
	LogFormat  string

	DetectStrict       bool
	ParseMaxRows       int
	ParseMinConfidence float64

	OCREnabled          bool
	OCRLanguages        string
	OCRTessdataPrefix   string
	OCRPreprocess       bool
	OCRTrialCostCeiling float64
	OCRDefaultMode      string

	MatchMinQueryLength    int
	MatchDiceAccept        float64
	MatchSubsequenceAccept float64
	MatchMaxEdits          int

	LLMEnabled      bool
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMTimeout      time.Duration
	LLMRateLimitRPS int
	LLMSamplingRate float64

	MetricsPeriodDays int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),

		DetectStrict:       getEnvBool("DETECT_STRICT", false),
		ParseMaxRows:       getEnvInt("PARSE_MAX_ROWS", 10000),
		ParseMinConfidence: getEnvFloat("PARSE_MIN_CONFIDENCE", 0.1),

		OCREnabled:          getEnvBool("OCR_ENABLED", true),
		OCRLanguages:        getEnv("OCR_LANGUAGES", "rus+eng"),
		OCRTessdataPrefix:   getEnv("OCR_TESSDATA_PREFIX", ""),
		OCRPreprocess:       getEnvBool("OCR_PREPROCESS", true),
		OCRTrialCostCeiling: getEnvFloat("OCR_TRIAL_COST_CEILING", 0.002),
		OCRDefaultMode:      getEnv("OCR_DEFAULT_MODE", string(ocr.ModeDemo)),

		MatchMinQueryLength:    getEnvInt("MATCH_MIN_QUERY_LENGTH", 3),
		MatchDiceAccept:        getEnvFloat("MATCH_DICE_ACCEPT", 70),
		MatchSubsequenceAccept: getEnvFloat("MATCH_SUBSEQUENCE_ACCEPT", 60),
		MatchMaxEdits:          getEnvInt("MATCH_MAX_EDITS", 2),

		LLMEnabled:      getEnvBool("LLM_ENABLED", false),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:      getEnvDuration("LLM_TIMEOUT", 20*time.Second),
		LLMRateLimitRPS: getEnvInt("LLM_RATE_LIMIT_RPS", 2),
		LLMSamplingRate: getEnvFloat("LLM_SAMPLING_RATE", 0.3),

		MetricsPeriodDays: getEnvInt("METRICS_PERIOD_DAYS", 7),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	if cfg.LLMEnabled {
		if err := cfg.Require("LLM_API_KEY", cfg.LLMAPIKey); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) ParseOptions() internal.ParseOptions {
	opts := internal.DefaultParseOptions()
	opts.MaxRows = c.ParseMaxRows
	opts.MinConfidence = c.ParseMinConfidence
	opts.UserMode = c.OCRDefaultMode
	return opts
}

func (c Config) MatchingConfig() matching.Config {
	cfg := matching.DefaultConfig()
	cfg.Matcher = matching.MatcherConfig{
		MinQueryLength:    c.MatchMinQueryLength,
		DiceAccept:        c.MatchDiceAccept,
		SubsequenceAccept: c.MatchSubsequenceAccept,
		MaxEdits:          c.MatchMaxEdits,
	}
	cfg.SamplingRate = c.LLMSamplingRate
	cfg.EnhanceTimeout = c.LLMTimeout
	return cfg
}

func (c Config) OCRConfig() ocr.Config {
	cfg := ocr.DefaultConfig()
	if langs := strings.FieldsFunc(c.OCRLanguages, func(r rune) bool { return r == '+' || r == ',' || r == ' ' }); len(langs) > 0 {
		cfg.Languages = langs
	}
	cfg.TessdataPrefix = c.OCRTessdataPrefix
	cfg.Preprocess = c.OCRPreprocess
	cfg.TrialCostCeiling = c.OCRTrialCostCeiling
	cfg.DefaultMode = ocr.ParseUserMode(c.OCRDefaultMode)
	return cfg
}

func (c Config) LLMConfig() llm.Config {
	return llm.Config{
		BaseURL:      c.LLMBaseURL,
		APIKey:       c.LLMAPIKey,
		Model:        c.LLMModel,
		Timeout:      c.LLMTimeout,
		RateLimitRPS: c.LLMRateLimitRPS,
	}
}

func (c Config) MetricsPeriod() time.Duration {
	if c.MetricsPeriodDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.MetricsPeriodDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("20s") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
