// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ストレージドライバの種別。
const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Bot
	BotPassword   string
	BotToken      string
	BotAPIBaseURL string
	WebhookSecret string

	// Server
	ServerPort string

	// Storage
	DataDir     string
	StoreDriver string
	DatabaseURL string

	// Resolve
	ResolveTimeout time.Duration
	ResolveMaxSize int64

	// Session
	SessionTTL time.Duration

	// Rate Limit
	RateLimitEvents int
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（存在しない場合は無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envはローカル開発用。読み込み失敗は致命的ではない。
	_ = godotenv.Load()

	cfg := &Config{}

	var missing []string

	cfg.BotPassword = os.Getenv("BOT_PASSWORD")
	if cfg.BotPassword == "" {
		missing = append(missing, "BOT_PASSWORD")
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.BotAPIBaseURL = getEnvString("BOT_API_BASE_URL", "https://api.telegram.org")
	cfg.WebhookSecret = getEnvString("WEBHOOK_SECRET", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.DataDir = getEnvString("DATA_DIR", "data")
	cfg.StoreDriver = getEnvString("STORE_DRIVER", StoreDriverFile)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ResolveTimeout = getEnvDuration("RESOLVE_TIMEOUT", 30*time.Second)
	cfg.ResolveMaxSize = getEnvInt64("RESOLVE_MAX_SIZE", 10*1024*1024)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", time.Hour)
	cfg.RateLimitEvents = getEnvInt("RATE_LIMIT_EVENTS", 60)

	switch cfg.StoreDriver {
	case StoreDriverFile:
		// DataDir配下のJSONファイルを使用する。
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %s (supported: %s, %s)",
			cfg.StoreDriver, StoreDriverFile, StoreDriverPostgres)
	}

	return cfg, nil
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
