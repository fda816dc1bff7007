package config

import (
	"fmt"
	"net/url"
	"strings"
)

const redactedSuffix = "...redacted"

// FormatRedacted renders a human-readable summary of cfg with secrets masked.
// Used by --config-only to verify a deployment without leaking credentials.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	line := func(key string, value any) {
		fmt.Fprintf(&b, "%s: %v\n", key, value)
	}

	line("app_env", cfg.AppEnv)
	line("log_level", cfg.LogLevel)
	line("http_port", cfg.HTTPPort)
	line("telegram_token", maskSecret(cfg.TelegramToken))
	line("bot_owner", cfg.BotOwnerID)
	line("mongo_uri", redactURI(cfg.MongoURI))
	line("mongo_db", cfg.MongoDB)
	line("ai_api_key", maskSecret(cfg.AI.APIKey))
	line("ai_base_url", cfg.AI.BaseURL)
	line("ai_model", cfg.AI.Model)
	line("ai_timeout", cfg.AI.Timeout)
	line("ai_rate", fmt.Sprintf("%g/s burst %d", cfg.AI.RateLimit, cfg.AI.RateBurst))
	line("quota_horoscope", fmt.Sprintf("%d per %s", cfg.Quotas.Horoscope.Limit, cfg.Quotas.Horoscope.Window))
	line("quota_tarot", fmt.Sprintf("%d per %s", cfg.Quotas.Tarot.Limit, cfg.Quotas.Tarot.Window))
	line("quota_chat", fmt.Sprintf("%d per %s", cfg.Quotas.Chat.Limit, cfg.Quotas.Chat.Window))
	line("quota_numerology", fmt.Sprintf("%d per %s", cfg.Quotas.Numerology.Limit, cfg.Quotas.Numerology.Window))
	line("quota_natal", fmt.Sprintf("%d per %s", cfg.Quotas.Natal.Limit, cfg.Quotas.Natal.Window))
	line("birth_data_required", cfg.BirthDataRequired)
	line("delivery_default_time", cfg.Delivery.DefaultTime)
	line("delivery_schedule", cfg.Delivery.Schedule)
	line("delivery_concurrency", cfg.Delivery.Concurrency)
	line("redis_url", redactURI(cfg.Delivery.RedisURL))
	line("premium_monthly_stars", cfg.Plans.MonthlyStars)
	line("premium_yearly_stars", cfg.Plans.YearlyStars)

	return strings.TrimRight(b.String(), "\n")
}

func maskSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return redactedSuffix[3:]
	}
	return value[:4] + redactedSuffix
}

func redactURI(raw string) string {
	if raw == "" {
		return "(unset)"
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	parsed.User = nil

	return parsed.String()
}
