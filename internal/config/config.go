// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken = "TELEGRAM_TOKEN"
	KeyBotOwner      = "BOT_OWNER"
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"

	KeyAIAPIKey    = "AI_API_KEY"
	KeyAIBaseURL   = "AI_BASE_URL"
	KeyAIModel     = "AI_MODEL"
	KeyAITimeout   = "AI_TIMEOUT"
	KeyAIRateLimit = "AI_RATE_LIMIT"
	KeyAIRateBurst = "AI_RATE_BURST"

	KeyQuotaHoroscopeFree    = "QUOTA_HOROSCOPE_FREE"
	KeyQuotaHoroscopeWindow  = "QUOTA_HOROSCOPE_WINDOW"
	KeyQuotaTarotFree        = "QUOTA_TAROT_FREE"
	KeyQuotaTarotWindow      = "QUOTA_TAROT_WINDOW"
	KeyQuotaChatFree         = "QUOTA_CHAT_FREE"
	KeyQuotaChatWindow       = "QUOTA_CHAT_WINDOW"
	KeyQuotaNumerologyFree   = "QUOTA_NUMEROLOGY_FREE"
	KeyQuotaNumerologyWindow = "QUOTA_NUMEROLOGY_WINDOW"
	KeyQuotaNatalFree        = "QUOTA_NATAL_FREE"
	KeyQuotaNatalWindow      = "QUOTA_NATAL_WINDOW"

	KeyBirthDataRequired   = "BIRTH_DATA_REQUIRED"
	KeyDeliveryDefaultTime = "DELIVERY_DEFAULT_TIME"
	KeyDeliverySchedule    = "DELIVERY_SCHEDULE"
	KeyDeliveryConcurrency = "DELIVERY_CONCURRENCY"
	KeyRedisURL            = "REDIS_URL"

	KeyPremiumMonthlyStars = "PREMIUM_MONTHLY_STARS"
	KeyPremiumYearlyStars  = "PREMIUM_YEARLY_STARS"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv   = EnvProduction
	DefaultLogLevel = "info"
	DefaultHTTPPort = 8080

	DefaultAIBaseURL   = "https://openrouter.ai/api/v1"
	DefaultAIModel     = "anthropic/claude-3.5-sonnet"
	DefaultAITimeout   = 10 * time.Second
	DefaultAIRateLimit = 2.0
	DefaultAIRateBurst = 4

	DefaultQuotaHoroscopeFree    = 1
	DefaultQuotaHoroscopeWindow  = 24 * time.Hour
	DefaultQuotaTarotFree        = 1
	DefaultQuotaTarotWindow      = 7 * 24 * time.Hour
	DefaultQuotaChatFree         = 0
	DefaultQuotaChatWindow       = 24 * time.Hour
	DefaultQuotaNumerologyFree   = 0
	DefaultQuotaNumerologyWindow = 30 * 24 * time.Hour
	DefaultQuotaNatalFree        = 0
	DefaultQuotaNatalWindow      = 30 * 24 * time.Hour

	DefaultBirthDataRequired   = true
	DefaultDeliveryTime        = "08:00"
	DefaultDeliverySchedule    = "0 * * * *"
	DefaultDeliveryConcurrency = 4

	DefaultPremiumMonthlyStars = 250
	DefaultPremiumYearlyStars  = 2500

	// Recommended database names by environment.
	DefaultMongoDBProd = "astro_bot"
	DefaultMongoDBDev  = "astro_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id allowed to run /grant and /stats.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health and metrics port.",
	},
	{
		Key:         KeyAIAPIKey,
		Example:     "sk-or-...",
		Description: "Credential for the AI completion provider.",
		Notes:       "When empty every AI call fails fast as unconfigured and users get fallback text.",
	},
	{
		Key:         KeyAIBaseURL,
		Example:     DefaultAIBaseURL,
		Default:     DefaultAIBaseURL,
		Description: "Base URL of the chat/completions compatible provider.",
	},
	{
		Key:         KeyAIModel,
		Example:     DefaultAIModel,
		Default:     DefaultAIModel,
		Description: "Model identifier sent with every completion request.",
	},
	{
		Key:         KeyAITimeout,
		Example:     DefaultAITimeout.String(),
		Default:     DefaultAITimeout.String(),
		Description: "Upper bound for a single AI call, including rate limiter wait.",
	},
	{
		Key:         KeyAIRateLimit,
		Example:     strconv.FormatFloat(DefaultAIRateLimit, 'f', -1, 64),
		Default:     strconv.FormatFloat(DefaultAIRateLimit, 'f', -1, 64),
		Description: "Sustained AI requests per second across all users.",
	},
	{
		Key:         KeyAIRateBurst,
		Example:     strconv.Itoa(DefaultAIRateBurst),
		Default:     strconv.Itoa(DefaultAIRateBurst),
		Description: "AI request burst size.",
	},
	{
		Key:         KeyQuotaHoroscopeFree,
		Example:     strconv.Itoa(DefaultQuotaHoroscopeFree),
		Default:     strconv.Itoa(DefaultQuotaHoroscopeFree),
		Description: "Horoscopes a free user may request per window.",
	},
	{
		Key:         KeyQuotaHoroscopeWindow,
		Example:     DefaultQuotaHoroscopeWindow.String(),
		Default:     DefaultQuotaHoroscopeWindow.String(),
		Description: "Horoscope quota window.",
	},
	{
		Key:         KeyQuotaTarotFree,
		Example:     strconv.Itoa(DefaultQuotaTarotFree),
		Default:     strconv.Itoa(DefaultQuotaTarotFree),
		Description: "Tarot readings a free user may request per window.",
	},
	{
		Key:         KeyQuotaTarotWindow,
		Example:     DefaultQuotaTarotWindow.String(),
		Default:     DefaultQuotaTarotWindow.String(),
		Description: "Tarot quota window.",
	},
	{
		Key:         KeyQuotaChatFree,
		Example:     strconv.Itoa(DefaultQuotaChatFree),
		Default:     strconv.Itoa(DefaultQuotaChatFree),
		Description: "AI chat messages a free user may send per window.",
		Notes:       "0 makes chat a premium-only feature.",
	},
	{
		Key:         KeyQuotaChatWindow,
		Example:     DefaultQuotaChatWindow.String(),
		Default:     DefaultQuotaChatWindow.String(),
		Description: "AI chat quota window.",
	},
	{
		Key:         KeyQuotaNumerologyFree,
		Example:     strconv.Itoa(DefaultQuotaNumerologyFree),
		Default:     strconv.Itoa(DefaultQuotaNumerologyFree),
		Description: "Numerology readings a free user may request per window.",
		Notes:       "0 makes numerology a premium-only feature.",
	},
	{
		Key:         KeyQuotaNumerologyWindow,
		Example:     DefaultQuotaNumerologyWindow.String(),
		Default:     DefaultQuotaNumerologyWindow.String(),
		Description: "Numerology quota window.",
	},
	{
		Key:         KeyQuotaNatalFree,
		Example:     strconv.Itoa(DefaultQuotaNatalFree),
		Default:     strconv.Itoa(DefaultQuotaNatalFree),
		Description: "Natal chart readings a free user may request per window.",
		Notes:       "0 makes natal charts a premium-only feature.",
	},
	{
		Key:         KeyQuotaNatalWindow,
		Example:     DefaultQuotaNatalWindow.String(),
		Default:     DefaultQuotaNatalWindow.String(),
		Description: "Natal chart quota window.",
	},
	{
		Key:         KeyBirthDataRequired,
		Example:     "true / false",
		Default:     strconv.FormatBool(DefaultBirthDataRequired),
		Description: "Whether onboarding collects birth date, time and place before features unlock.",
	},
	{
		Key:         KeyDeliveryDefaultTime,
		Example:     DefaultDeliveryTime,
		Default:     DefaultDeliveryTime,
		Description: "UTC HH:MM assigned to new profiles for the daily horoscope.",
	},
	{
		Key:         KeyDeliverySchedule,
		Example:     DefaultDeliverySchedule,
		Default:     DefaultDeliverySchedule,
		Description: "Cron expression (5 fields, UTC) for the delivery batch.",
	},
	{
		Key:         KeyDeliveryConcurrency,
		Example:     strconv.Itoa(DefaultDeliveryConcurrency),
		Default:     strconv.Itoa(DefaultDeliveryConcurrency),
		Description: "Profiles processed in parallel by one delivery batch.",
	},
	{
		Key:         KeyRedisURL,
		Example:     "redis://localhost:6379/0",
		Description: "Optional Redis used to lock the delivery batch across replicas.",
	},
	{
		Key:         KeyPremiumMonthlyStars,
		Example:     strconv.Itoa(DefaultPremiumMonthlyStars),
		Default:     strconv.Itoa(DefaultPremiumMonthlyStars),
		Description: "Price of the monthly premium plan in Telegram Stars.",
	},
	{
		Key:         KeyPremiumYearlyStars,
		Example:     strconv.Itoa(DefaultPremiumYearlyStars),
		Default:     strconv.Itoa(DefaultPremiumYearlyStars),
		Description: "Price of the yearly premium plan in Telegram Stars.",
	},
}

// AIConfig configures the completion provider.
type AIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// Quota is a free-tier allowance for one feature.
type Quota struct {
	Limit  int
	Window time.Duration
}

// QuotaConfig groups the free-tier allowances.
type QuotaConfig struct {
	Horoscope  Quota
	Tarot      Quota
	Chat       Quota
	Numerology Quota
	Natal      Quota
}

// DeliveryConfig configures the daily horoscope batch.
type DeliveryConfig struct {
	DefaultTime string
	Schedule    string
	Concurrency int
	RedisURL    string
}

// PlanConfig holds premium prices in Telegram Stars.
type PlanConfig struct {
	MonthlyStars int
	YearlyStars  int
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken     string
	BotOwnerID        int64
	MongoURI          string
	MongoDB           string
	AppEnv            string
	LogLevel          string
	HTTPPort          int
	BirthDataRequired bool
	AI                AIConfig
	Quotas            QuotaConfig
	Delivery          DeliveryConfig
	Plans             PlanConfig
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken: strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:      strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:       strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:      DefaultHTTPPort,
		AI: AIConfig{
			APIKey:  strings.TrimSpace(os.Getenv(KeyAIAPIKey)),
			BaseURL: strings.TrimRight(firstNonEmpty(os.Getenv(KeyAIBaseURL), DefaultAIBaseURL), "/"),
			Model:   firstNonEmpty(os.Getenv(KeyAIModel), DefaultAIModel),
		},
		Delivery: DeliveryConfig{
			Schedule: firstNonEmpty(os.Getenv(KeyDeliverySchedule), DefaultDeliverySchedule),
			RedisURL: strings.TrimSpace(os.Getenv(KeyRedisURL)),
		},
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner))
	if ownerRaw == "" {
		missing = append(missing, KeyBotOwner)
	} else {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.HTTPPort, err = positiveInt(KeyHTTPPort, DefaultHTTPPort); err != nil {
		return Config{}, err
	}

	if err := loadAI(&cfg.AI); err != nil {
		return Config{}, err
	}

	if err := loadQuotas(&cfg.Quotas); err != nil {
		return Config{}, err
	}

	if cfg.BirthDataRequired, err = boolValue(KeyBirthDataRequired, DefaultBirthDataRequired); err != nil {
		return Config{}, err
	}

	cfg.Delivery.DefaultTime = firstNonEmpty(os.Getenv(KeyDeliveryDefaultTime), DefaultDeliveryTime)
	if !ValidClock(cfg.Delivery.DefaultTime) {
		return Config{}, fmt.Errorf("invalid %s: expected HH:MM, got %q", KeyDeliveryDefaultTime, cfg.Delivery.DefaultTime)
	}
	if cfg.Delivery.Concurrency, err = positiveInt(KeyDeliveryConcurrency, DefaultDeliveryConcurrency); err != nil {
		return Config{}, err
	}

	if cfg.Plans.MonthlyStars, err = positiveInt(KeyPremiumMonthlyStars, DefaultPremiumMonthlyStars); err != nil {
		return Config{}, err
	}
	if cfg.Plans.YearlyStars, err = positiveInt(KeyPremiumYearlyStars, DefaultPremiumYearlyStars); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// ValidClock reports whether value is a 24h HH:MM clock string.
func ValidClock(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", value)
	return err == nil
}

func loadAI(ai *AIConfig) error {
	var err error
	if ai.Timeout, err = positiveDuration(KeyAITimeout, DefaultAITimeout); err != nil {
		return err
	}
	if ai.RateBurst, err = positiveInt(KeyAIRateBurst, DefaultAIRateBurst); err != nil {
		return err
	}

	ai.RateLimit = DefaultAIRateLimit
	if raw := strings.TrimSpace(os.Getenv(KeyAIRateLimit)); raw != "" {
		limit, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return fmt.Errorf("invalid %s: %w", KeyAIRateLimit, parseErr)
		}
		if limit <= 0 {
			return fmt.Errorf("%s must be greater than 0", KeyAIRateLimit)
		}
		ai.RateLimit = limit
	}

	return nil
}

func loadQuotas(q *QuotaConfig) error {
	specs := []struct {
		target        *Quota
		limitKey      string
		defaultLimit  int
		windowKey     string
		defaultWindow time.Duration
	}{
		{&q.Horoscope, KeyQuotaHoroscopeFree, DefaultQuotaHoroscopeFree, KeyQuotaHoroscopeWindow, DefaultQuotaHoroscopeWindow},
		{&q.Tarot, KeyQuotaTarotFree, DefaultQuotaTarotFree, KeyQuotaTarotWindow, DefaultQuotaTarotWindow},
		{&q.Chat, KeyQuotaChatFree, DefaultQuotaChatFree, KeyQuotaChatWindow, DefaultQuotaChatWindow},
		{&q.Numerology, KeyQuotaNumerologyFree, DefaultQuotaNumerologyFree, KeyQuotaNumerologyWindow, DefaultQuotaNumerologyWindow},
		{&q.Natal, KeyQuotaNatalFree, DefaultQuotaNatalFree, KeyQuotaNatalWindow, DefaultQuotaNatalWindow},
	}

	for _, spec := range specs {
		limit, err := nonNegativeInt(spec.limitKey, spec.defaultLimit)
		if err != nil {
			return err
		}
		window, err := positiveDuration(spec.windowKey, spec.defaultWindow)
		if err != nil {
			return err
		}
		*spec.target = Quota{Limit: limit, Window: window}
	}

	return nil
}

func positiveInt(key string, fallback int) (int, error) {
	value, err := nonNegativeInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return value, nil
}

func nonNegativeInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return value, nil
}

func positiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return value, nil
}

func boolValue(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
