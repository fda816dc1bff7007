// Package i18n renders user-facing messages in the profile language, falling
// back to English for anything not translated.
package i18n

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"astro_bot/internal/domain"
)

var (
	buildOnce sync.Once
	printers  map[domain.Language]*message.Printer
)

func tagFor(lang domain.Language) language.Tag {
	switch lang {
	case domain.LanguageRussian:
		return language.Russian
	case domain.LanguageSpanish:
		return language.Spanish
	default:
		return language.English
	}
}

func build() {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, byLang := range messages {
		for _, lang := range domain.Languages() {
			text, ok := byLang[lang]
			if !ok {
				text = byLang[domain.LanguageEnglish]
			}
			// Only fails for malformed entries, which the catalog test catches.
			_ = b.SetString(tagFor(lang), key, text)
		}
	}

	printers = make(map[domain.Language]*message.Printer, len(domain.Languages()))
	for _, lang := range domain.Languages() {
		printers[lang] = message.NewPrinter(tagFor(lang), message.Catalog(b))
	}
}

// T renders key in lang with fmt-style args.
func T(lang domain.Language, key string, args ...interface{}) string {
	buildOnce.Do(build)

	p, ok := printers[lang]
	if !ok {
		p = printers[domain.DefaultLanguage]
	}
	return p.Sprintf(key, args...)
}

// Has reports whether key has a translation in lang (without fallback).
func Has(lang domain.Language, key string) bool {
	byLang, ok := messages[key]
	if !ok {
		return false
	}
	_, ok = byLang[lang]
	return ok
}
