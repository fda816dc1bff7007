package router

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"astro_bot/internal/domain"
)

const (
	minBirthYear    = 1900
	defaultBirthHr  = "12:00"
	maxPlaceLength  = 100
	clockLayout     = "15:04"
	displayDateForm = "02.01.2006"
)

// Accepted birth date layouts, day-first before month-first.
var birthDateLayouts = []string{
	"02.01.2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"01/02/2006",
}

var skipWords = map[string]bool{
	"skip":       true,
	"-":          true,
	"пропустить": true,
	"saltar":     true,
}

// ParseBirthDate accepts the common numeric date layouts. The year must be
// 1900 or later and the date may not be in the future.
func ParseBirthDate(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range birthDateLayouts {
		date, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		if date.Year() < minBirthYear {
			return time.Time{}, fmt.Errorf("%w: birth year %d before %d", domain.ErrValidation, date.Year(), minBirthYear)
		}
		if date.After(now.UTC()) {
			return time.Time{}, fmt.Errorf("%w: birth date %s is in the future", domain.ErrValidation, date.Format(domain.DateLayout))
		}
		return date, nil
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized birth date %q", domain.ErrValidation, text)
}

// ParseBirthTime accepts HH:MM or a skip word, which maps to noon.
func ParseBirthTime(text string) (string, error) {
	text = strings.TrimSpace(text)
	if skipWords[strings.ToLower(text)] {
		return defaultBirthHr, nil
	}

	clock, err := time.Parse(clockLayout, text)
	if err != nil {
		return "", fmt.Errorf("%w: unrecognized birth time %q", domain.ErrValidation, text)
	}
	return clock.Format(clockLayout), nil
}

// ParseBirthPlace validates a free-text place name.
func ParseBirthPlace(text string) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || strings.HasPrefix(text, "/") {
		return "", fmt.Errorf("%w: empty birth place", domain.ErrValidation)
	}
	if utf8.RuneCountInString(text) > maxPlaceLength {
		return "", fmt.Errorf("%w: birth place longer than %d characters", domain.ErrValidation, maxPlaceLength)
	}
	return text, nil
}

// LocationPlace renders a shared location as a birth place.
func LocationPlace(loc Location) string {
	return fmt.Sprintf("Lat: %.4f, Lon: %.4f", loc.Latitude, loc.Longitude)
}
