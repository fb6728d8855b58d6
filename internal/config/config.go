package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPredictionEndpoint はVedic Astro APIの年間予測エンドポイント。
const DefaultPredictionEndpoint = "https://api.vedicastroapi.com/v3-json/prediction/yearly"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	// BaseURL は外部から到達可能な公開URL。PDFのメディアURLとWebhook署名検証に使う。
	BaseURL string

	// Logging
	LogLevel string

	// Prediction API
	PredictionEndpoint      string
	PredictionAPIKey        string
	PredictionTimeout       time.Duration
	PredictionMaxSize       int64
	PredictionPhaseFallback bool

	// Twilio
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioNumber            string
	TwilioValidateSignature bool

	// Report
	ReportDir             string
	MalayalamFontPath     string
	ReportRetention       time.Duration
	ReportCleanupInterval time.Duration

	// Conversation
	FarewellDelay  time.Duration
	SessionIdleTTL time.Duration

	// Rate Limit（送信者ごとの req/min）
	RateLimitWebhook int
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.PredictionAPIKey = os.Getenv("VEDIC_API_KEY")
	if cfg.PredictionAPIKey == "" {
		missing = append(missing, "VEDIC_API_KEY")
	}

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	if cfg.TwilioAccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}

	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	if cfg.TwilioAuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}

	cfg.TwilioNumber = os.Getenv("TWILIO_NUMBER")
	if cfg.TwilioNumber == "" {
		missing = append(missing, "TWILIO_NUMBER")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.PredictionEndpoint = getEnvString("PREDICTION_ENDPOINT", DefaultPredictionEndpoint)
	cfg.PredictionTimeout = getEnvDuration("PREDICTION_TIMEOUT", 15*time.Second)
	cfg.PredictionMaxSize = getEnvInt64("PREDICTION_MAX_SIZE", 1048576)
	cfg.PredictionPhaseFallback = getEnvBool("PREDICTION_PHASE_FALLBACK", true)
	cfg.TwilioValidateSignature = getEnvBool("TWILIO_VALIDATE_SIGNATURE", false)
	cfg.ReportDir = getEnvString("REPORT_DIR", "static")
	cfg.MalayalamFontPath = getEnvString("MALAYALAM_FONT_PATH", "fonts/NotoSansMalayalam-Regular.ttf")
	cfg.ReportRetention = getEnvDuration("REPORT_RETENTION", 24*time.Hour)
	cfg.ReportCleanupInterval = getEnvDuration("REPORT_CLEANUP_INTERVAL", time.Hour)
	cfg.FarewellDelay = getEnvDuration("FAREWELL_DELAY", 30*time.Second)
	cfg.SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", 24*time.Hour)
	cfg.RateLimitWebhook = getEnvInt("RATE_LIMIT_WEBHOOK", 30)

	return cfg, nil
}

// WebhookURL はTwilioに登録する受信Webhookの公開URLを返す。
func (c *Config) WebhookURL() string {
	return c.BaseURL + "/bot"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
