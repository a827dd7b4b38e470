package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"contact-guard-proxy/internal/security"
)

// Config 运行时配置
type Config struct {
	Port                  string        `toml:"port"`
	LogLevel              string        `toml:"log_level"`
	LogDevelopment        bool          `toml:"log_development"`
	StoreBackend          string        `toml:"store_backend"`
	DataDir               string        `toml:"data_dir"`
	SQLitePath            string        `toml:"sqlite_path"`
	RedisAddr             string        `toml:"redis_addr"`
	RedisPassword         string        `toml:"redis_password"`
	RedisDB               int           `toml:"redis_db"`
	RedisKeyPrefix        string        `toml:"redis_key_prefix"`
	RecordTTL             time.Duration `toml:"-"`
	AllowedOrigin         string        `toml:"allowed_origin"`
	TrustedProxies        []string      `toml:"trusted_proxies"`
	ContactPath           string        `toml:"-"`
	SheetsWebhookURL      string        `toml:"sheets_webhook_url"`
	ContactEmail          string        `toml:"contact_email"`
	EmailRelayBaseURL     string        `toml:"email_relay_base_url"`
	WhatsAppNumber        string        `toml:"whatsapp_number"`
	SinkTimeout           time.Duration `toml:"-"`
	MaxSubmissionsPerHour int           `toml:"max_submissions_per_hour"`
	CooldownMinutes       int           `toml:"cooldown_minutes"`
	MaxMessageLength      int           `toml:"max_message_length"`
	MinMessageLength      int           `toml:"min_message_length"`
	MaxNameLength         int           `toml:"max_name_length"`
	DuplicateThreshold    float64       `toml:"duplicate_threshold"`
	ExtraPatterns         []string      `toml:"extra_suspicious_patterns"`
	RequestLimitPerWindow int           `toml:"request_limit_per_window"`
	RequestWindow         time.Duration `toml:"-"`
}

// fileDurations TOML 中时长以字符串书写，例如 "24h"
type fileDurations struct {
	RecordTTL     string `toml:"record_ttl"`
	SinkTimeout   string `toml:"sink_timeout"`
	RequestWindow string `toml:"request_window"`
}

func Defaults() Config {
	return Config{
		Port:                  "8080",
		LogLevel:              "info",
		StoreBackend:          "file",
		DataDir:               "./data",
		SQLitePath:            "./data/guard.db",
		RedisKeyPrefix:        "contact-guard",
		RecordTTL:             24 * time.Hour,
		ContactPath:           "/v1/contact",
		EmailRelayBaseURL:     "https://formsubmit.co",
		SinkTimeout:           10 * time.Second,
		MaxSubmissionsPerHour: 3,
		CooldownMinutes:       10,
		MaxMessageLength:      1000,
		MinMessageLength:      10,
		MaxNameLength:         100,
		DuplicateThreshold:    0.8,
		RequestLimitPerWindow: 30,
		RequestWindow:         15 * time.Minute,
	}
}

// Load 先读取 CONFIG_FILE 指向的 TOML 文件（可选），再用环境变量覆盖
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	var durations fileDurations
	if _, err := toml.DecodeFile(path, &durations); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	cfg.RecordTTL = parseDuration(durations.RecordTTL, cfg.RecordTTL)
	cfg.SinkTimeout = parseDuration(durations.SinkTimeout, cfg.SinkTimeout)
	cfg.RequestWindow = parseDuration(durations.RequestWindow, cfg.RequestWindow)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogDevelopment = getEnvAsBool("LOG_DEVELOPMENT", cfg.LogDevelopment)
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", cfg.StoreBackend))
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisAddr = strings.TrimSpace(getEnv("REDIS_ADDR", cfg.RedisAddr))
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvAsInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisKeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.RedisKeyPrefix)
	cfg.RecordTTL = getEnvAsDuration("RECORD_TTL", cfg.RecordTTL)
	cfg.AllowedOrigin = strings.TrimRight(getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin), "/")
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = splitList(proxies)
	}
	cfg.SheetsWebhookURL = strings.TrimSpace(getEnv("SHEETS_WEBHOOK_URL", cfg.SheetsWebhookURL))
	cfg.ContactEmail = strings.TrimSpace(getEnv("CONTACT_EMAIL", cfg.ContactEmail))
	cfg.EmailRelayBaseURL = strings.TrimRight(getEnv("EMAIL_RELAY_BASE_URL", cfg.EmailRelayBaseURL), "/")
	cfg.WhatsAppNumber = strings.TrimSpace(getEnv("WHATSAPP_NUMBER", cfg.WhatsAppNumber))
	cfg.SinkTimeout = getEnvAsDuration("SINK_TIMEOUT", cfg.SinkTimeout)
	cfg.MaxSubmissionsPerHour = clampInt(getEnvAsInt("MAX_SUBMISSIONS_PER_HOUR", cfg.MaxSubmissionsPerHour), 1, 1000)
	cfg.CooldownMinutes = clampInt(getEnvAsInt("COOLDOWN_MINUTES", cfg.CooldownMinutes), 0, 24*60)
	cfg.MaxMessageLength = clampInt(getEnvAsInt("MAX_MESSAGE_LENGTH", cfg.MaxMessageLength), 1, 100000)
	cfg.MinMessageLength = clampInt(getEnvAsInt("MIN_MESSAGE_LENGTH", cfg.MinMessageLength), 0, cfg.MaxMessageLength)
	cfg.MaxNameLength = clampInt(getEnvAsInt("MAX_NAME_LENGTH", cfg.MaxNameLength), 1, 10000)
	cfg.DuplicateThreshold = getEnvAsFloat("DUPLICATE_THRESHOLD", cfg.DuplicateThreshold)
	cfg.RequestLimitPerWindow = getEnvAsInt("REQUEST_LIMIT_PER_WINDOW", cfg.RequestLimitPerWindow)
	cfg.RequestWindow = getEnvAsDuration("REQUEST_WINDOW", cfg.RequestWindow)

	if extra := os.Getenv("EXTRA_SUSPICIOUS_PATTERNS"); extra != "" {
		cfg.ExtraPatterns = splitList(extra)
	}
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "file", "redis", "sqlite":
	default:
		return fmt.Errorf("未知存储后端 %q", c.StoreBackend)
	}
	if c.StoreBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("存储后端为 redis 时必须设置 REDIS_ADDR")
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("DUPLICATE_THRESHOLD 必须在 0 到 1 之间")
	}
	if _, err := security.CompilePatterns(c.ExtraPatterns); err != nil {
		return err
	}
	for _, proxy := range c.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("TRUSTED_PROXIES 中的 %q 不是 IP 或 CIDR", proxy)
		}
	}
	return nil
}

// validProxy 与 gin 的 SetTrustedProxies 接受的格式一致
func validProxy(value string) bool {
	if strings.Contains(value, "/") {
		_, _, err := net.ParseCIDR(value)
		return err == nil
	}
	return net.ParseIP(value) != nil
}

func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	return parseDuration(os.Getenv(key), fallback)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
