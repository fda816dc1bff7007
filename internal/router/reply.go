package router

import (
	"strconv"
	"time"

	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/tarot"
)

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Reply is an outbound text message with an optional inline keyboard.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

// DeliveryTimes are the offered delivery slots (UTC).
var DeliveryTimes = []string{"06:00", "07:00", "08:00", "09:00", "10:00", "12:00", "18:00", "21:00"}

func button(text string, action Action, value string) Button {
	return Button{Text: text, Data: Callback{Action: action, Value: value}.Encode()}
}

func say(lang domain.Language, key string, args ...interface{}) *Reply {
	return &Reply{Text: i18n.T(lang, key, args...)}
}

func withKeyboard(r *Reply, keyboard [][]Button) *Reply {
	r.Keyboard = keyboard
	return r
}

// LanguageKeyboard lists every supported language by native name.
func LanguageKeyboard() [][]Button {
	row := make([]Button, 0, len(domain.Languages()))
	for _, lang := range domain.Languages() {
		row = append(row, button(lang.NativeName(), ActionLanguage, string(lang)))
	}
	return [][]Button{row}
}

// MainMenu is the steady-state keyboard.
func MainMenu(lang domain.Language) [][]Button {
	return [][]Button{
		{
			button(i18n.T(lang, i18n.ButtonHoroscope), ActionMenu, MenuHoroscope),
			button(i18n.T(lang, i18n.ButtonTarot), ActionMenu, MenuTarot),
		},
		{
			button(i18n.T(lang, i18n.ButtonNumerology), ActionMenu, MenuNumerology),
			button(i18n.T(lang, i18n.ButtonNatal), ActionMenu, MenuNatal),
		},
		{
			button(i18n.T(lang, i18n.ButtonPremium), ActionMenu, MenuPremium),
			button(i18n.T(lang, i18n.ButtonProfile), ActionMenu, MenuProfile),
		},
		{
			button(i18n.T(lang, i18n.ButtonSettings), ActionMenu, MenuSettings),
		},
	}
}

// SpreadKeyboard lists the tarot spreads, one per row.
func SpreadKeyboard(lang domain.Language) [][]Button {
	spreads := tarot.Spreads()
	rows := make([][]Button, 0, len(spreads))
	for _, s := range spreads {
		rows = append(rows, []Button{button(i18n.SpreadName(lang, s.ID), ActionSpread, s.ID)})
	}
	return rows
}

// PlanKeyboard lists the premium plans with their price.
func PlanKeyboard(lang domain.Language, plans []Plan) [][]Button {
	rows := make([][]Button, 0, len(plans))
	for _, p := range plans {
		key := i18n.PlanMonthly
		if p.ID == PlanYearly {
			key = i18n.PlanYearly
		}
		rows = append(rows, []Button{button(i18n.T(lang, key, strconv.Itoa(p.Stars)), ActionPlan, p.ID)})
	}
	return rows
}

// SettingsKeyboard offers language and delivery time changes.
func SettingsKeyboard(lang domain.Language) [][]Button {
	return [][]Button{
		{button(i18n.T(lang, i18n.ButtonLanguage), ActionSettings, SettingsLanguage)},
		{button(i18n.T(lang, i18n.ButtonTime), ActionSettings, SettingsTime)},
	}
}

// TimeKeyboard lists DeliveryTimes four per row plus an off switch.
func TimeKeyboard(lang domain.Language) [][]Button {
	const perRow = 4
	var rows [][]Button
	var row []Button
	for _, clock := range DeliveryTimes {
		row = append(row, button(clock, ActionTime, clock))
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, []Button{button(i18n.T(lang, i18n.Off), ActionTime, TimeOff)})
}

// ProfileText renders the profile summary.
func ProfileText(p domain.Profile, now time.Time) string {
	lang := p.Lang()
	notSet := i18n.T(lang, i18n.NotSet)

	date, clock, place := notSet, notSet, notSet
	if p.BirthDate != nil {
		date = p.BirthDate.Format(displayDateForm)
	}
	if p.BirthTime != nil {
		clock = *p.BirthTime
	}
	if p.BirthPlace != nil {
		place = *p.BirthPlace
	}

	plan := i18n.T(lang, i18n.TierFree)
	if p.IsPremium(now) {
		if p.TierExpiry == nil {
			plan = i18n.T(lang, i18n.TierLifetime)
		} else {
			plan = i18n.T(lang, i18n.TierPremiumUntil, p.TierExpiry.UTC().Format(displayDateForm))
		}
	}

	delivery := i18n.T(lang, i18n.Off)
	if p.DeliveryTime != "" {
		delivery = p.DeliveryTime + " UTC"
	}

	return i18n.T(lang, i18n.ProfileSummary, lang.NativeName(), date, clock, place, plan, delivery)
}
