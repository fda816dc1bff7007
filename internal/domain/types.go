// Package domain defines the profile model, its enums and the error taxonomy
// shared by every component of the bot.
package domain

import "strings"

// Stage is the onboarding progress of a profile.
type Stage string

const (
	StageNew                 Stage = "new"
	StageLanguageSelected    Stage = "language_selected"
	StageCollectingBirthData Stage = "collecting_birth_data"
	StageReady               Stage = "ready"
)

var stageRank = map[Stage]int{
	StageNew:                 0,
	StageLanguageSelected:    1,
	StageCollectingBirthData: 2,
	StageReady:               3,
}

// Rank returns the position of s in the onboarding order, or -1 when s is not
// a known stage.
func (s Stage) Rank() int {
	rank, ok := stageRank[s]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Rank() >= 0
}

// Language is a supported interface language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageRussian Language = "ru"
	LanguageSpanish Language = "es"

	DefaultLanguage = LanguageEnglish
)

// Languages lists the supported languages in keyboard order.
func Languages() []Language {
	return []Language{LanguageEnglish, LanguageRussian, LanguageSpanish}
}

// ParseLanguage normalizes a language code.
func ParseLanguage(code string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(code)))
	switch lang {
	case LanguageEnglish, LanguageRussian, LanguageSpanish:
		return lang, true
	default:
		return "", false
	}
}

// NativeName is the language name shown on the selection keyboard.
func (l Language) NativeName() string {
	switch l {
	case LanguageRussian:
		return "Русский"
	case LanguageSpanish:
		return "Español"
	case LanguageEnglish:
		return "English"
	default:
		return string(l)
	}
}

// Tier is the subscription tier of a profile.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Feature is a quota-metered capability.
type Feature string

const (
	FeatureHoroscope  Feature = "horoscope"
	FeatureTarot      Feature = "tarot"
	FeatureChat       Feature = "chat"
	FeatureNumerology Feature = "numerology"
	FeatureNatal      Feature = "natal"
)

// Features lists every metered feature.
func Features() []Feature {
	return []Feature{FeatureHoroscope, FeatureTarot, FeatureChat, FeatureNumerology, FeatureNatal}
}

// ParseFeature validates a feature name.
func ParseFeature(name string) (Feature, bool) {
	f := Feature(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case FeatureHoroscope, FeatureTarot, FeatureChat, FeatureNumerology, FeatureNatal:
		return f, true
	default:
		return "", false
	}
}
