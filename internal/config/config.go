// Package config は環境変数と.envファイルからアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/taskhub/pkg/logger"
)

// デフォルト値。
const (
	DefaultAppEnv          = "development"
	DefaultPort            = 3000
	DefaultDatabaseDriver  = DriverSQLite
	DefaultDatabaseURL     = "file:taskhub.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	DefaultJWTSecret       = "change-this-secret"
	DefaultTokenTTL        = time.Hour
	DefaultShutdownTimeout = 10 * time.Second
	DefaultWebhookTimeout  = 5 * time.Second
	DefaultEventQueueSize  = 256
)

// データベースドライバー名。
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// envProduction は本番環境を表すAPP_ENVの値。
const envProduction = "production"

// LookupFunc は環境変数を参照する関数。os.LookupEnvと同じシグネチャ。
type LookupFunc func(key string) (string, bool)

// Config はアプリケーション全体の設定。
type Config struct {
	AppEnv          string
	Port            int
	DatabaseDriver  string
	DatabaseURL     string
	JWTSecret       string
	TokenTTL        time.Duration
	BcryptCost      int
	CORSOrigins     []string
	LogLevel        slog.Level
	MetricsEnabled  bool
	MQTTURL         string
	EventWebhookURL string
	// EventWebhookToken が空でなければWebhookにBearerトークンとして送る。
	EventWebhookToken   string
	EventWebhookTimeout time.Duration
	// EventQueueSize は配信待ちイベントのキュー長。
	EventQueueSize  int
	ShutdownTimeout time.Duration
}

// Load は.envファイル（存在する場合）を読み込んだ後、環境変数から設定を生成して検証する。
// 既に設定されている環境変数は.envの値で上書きされない。
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%sの読み込みに失敗: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup はlookupから設定を生成して検証する。
func FromLookup(lookup LookupFunc) (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	port, err := GetInt(lookup, "PORT", DefaultPort)
	collect(err)
	ttlMinutes, err := GetInt(lookup, "TOKEN_TTL_MINUTES", int(DefaultTokenTTL/time.Minute))
	collect(err)
	cost, err := GetInt(lookup, "BCRYPT_COST", bcrypt.DefaultCost)
	collect(err)
	metrics, err := GetBool(lookup, "METRICS_ENABLED", true)
	collect(err)
	shutdown, err := GetDuration(lookup, "SHUTDOWN_TIMEOUT_SECONDS", DefaultShutdownTimeout)
	collect(err)
	webhookTimeout, err := GetDuration(lookup, "EVENT_WEBHOOK_TIMEOUT_SECONDS", DefaultWebhookTimeout)
	collect(err)
	queueSize, err := GetInt(lookup, "EVENT_QUEUE_SIZE", DefaultEventQueueSize)
	collect(err)
	level, err := logger.ParseLevel(GetString(lookup, "LOG_LEVEL", "info"))
	collect(err)

	cfg := Config{
		AppEnv:              GetString(lookup, "APP_ENV", DefaultAppEnv),
		Port:                port,
		DatabaseDriver:      strings.ToLower(GetString(lookup, "DATABASE_DRIVER", DefaultDatabaseDriver)),
		DatabaseURL:         GetString(lookup, "DATABASE_URL", DefaultDatabaseURL),
		JWTSecret:           GetString(lookup, "JWT_SECRET", DefaultJWTSecret),
		TokenTTL:            time.Duration(ttlMinutes) * time.Minute,
		BcryptCost:          cost,
		CORSOrigins:         splitList(GetString(lookup, "CORS_ALLOWED_ORIGINS", "")),
		LogLevel:            level,
		MetricsEnabled:      metrics,
		MQTTURL:             GetString(lookup, "MQTT_URL", ""),
		EventWebhookURL:     GetString(lookup, "EVENT_WEBHOOK_URL", ""),
		EventWebhookToken:   GetString(lookup, "EVENT_WEBHOOK_TOKEN", ""),
		EventWebhookTimeout: webhookTimeout,
		EventQueueSize:      queueSize,
		ShutdownTimeout:     shutdown,
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVERが不正です: %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URLが空です"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORTが範囲外です: %d", c.Port))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COSTは%d〜%dの範囲で指定してください: %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL_MINUTESは正の値で指定してください: %s", c.TokenTTL))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDSは正の値で指定してください: %s", c.ShutdownTimeout))
	}
	if c.EventWebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_WEBHOOK_TIMEOUT_SECONDSは正の値で指定してください: %s", c.EventWebhookTimeout))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_QUEUE_SIZEは正の値で指定してください: %d", c.EventQueueSize))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRETが空です"))
	}
	if c.IsProduction() && c.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("本番環境ではJWT_SECRETにデフォルト値を使用できません"))
	}
	return errors.Join(errs...)
}

// IsProduction は本番環境かどうかを返す。
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, envProduction)
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// GetString は環境変数を取得する。未設定の場合はfallbackを返す。
func GetString(lookup LookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

// GetInt は環境変数を整数として取得する。
// 未設定の場合はfallbackを、変換できない場合はfallbackとエラーを返す。
func GetInt(lookup LookupFunc, key string, fallback int) (int, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return parsed, nil
}

// GetBool は環境変数を真偽値として取得する。
func GetBool(lookup LookupFunc, key string, fallback bool) (bool, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return parsed, nil
}

// GetDuration は環境変数を秒数として読み、time.Durationで返す。
// "30s"のような単位付きの表記も受け付ける。
func GetDuration(lookup LookupFunc, key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return d, nil
}

// splitList はカンマ区切りの文字列を空要素を除いたスライスに変換する。
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
