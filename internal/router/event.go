// Package router is the per-user session state machine. Route maps a profile
// snapshot and an incoming event to the profile changes, the reply and the
// side effects the engine should perform. It does no IO.
package router

import (
	"strings"

	"astro_bot/internal/domain"
)

// Kind tags an incoming event.
type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindCallback
	KindText
	KindLocation
	KindPayment
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindCallback:
		return "callback"
	case KindText:
		return "text"
	case KindLocation:
		return "location"
	case KindPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// Event is one update from the chat platform, already normalized.
type Event struct {
	Kind     Kind
	Identity domain.Identity

	// Command is lower case without the leading slash or @bot suffix.
	Command string
	Args    string

	Callback   Callback
	CallbackID string

	Text     string
	Location *Location
	Payment  *Payment
}

// Location is a shared map point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Payment is a completed payment reported by the platform.
type Payment struct {
	Payload  string
	Currency string
	Amount   int
	ChargeID string
}

// Callback actions. The encoded form is stored in inline keyboards that
// outlive restarts, so these values must not change.
type Action string

const (
	ActionLanguage Action = "lang"
	ActionMenu     Action = "menu"
	ActionSpread   Action = "spread"
	ActionPlan     Action = "plan"
	ActionSettings Action = "set"
	ActionTime     Action = "time"
)

// Menu values.
const (
	MenuMain       = "main"
	MenuHoroscope  = "horoscope"
	MenuTarot      = "tarot"
	MenuNumerology = "numerology"
	MenuNatal      = "natal"
	MenuPremium    = "premium"
	MenuProfile    = "profile"
	MenuSettings   = "settings"
)

// Settings values.
const (
	SettingsLanguage = "language"
	SettingsTime     = "time"
)

// TimeOff disables the daily delivery.
const TimeOff = "off"

// maxCallbackData is the platform limit for inline button payloads.
const maxCallbackData = 64

// Callback is a decoded inline button payload.
type Callback struct {
	Action Action
	Value  string
}

// Encode renders the callback as "<action>:<value>".
func (c Callback) Encode() string {
	return string(c.Action) + ":" + c.Value
}

// ParseCallback decodes button data. Only the first colon separates the
// action, so values may contain colons (delivery times do).
func ParseCallback(data string) (Callback, bool) {
	if len(data) == 0 || len(data) > maxCallbackData {
		return Callback{}, false
	}
	action, value, found := strings.Cut(data, ":")
	if !found || value == "" {
		return Callback{}, false
	}

	switch a := Action(action); a {
	case ActionLanguage, ActionMenu, ActionSpread, ActionPlan, ActionSettings, ActionTime:
		return Callback{Action: a, Value: value}, true
	default:
		return Callback{}, false
	}
}

// ParseCommand splits "/cmd@bot args" into ("cmd", "args"). ok is false when
// text is not a command.
func ParseCommand(text string) (command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}

	return strings.ToLower(head), strings.TrimSpace(rest), true
}
