package router

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"astro_bot/internal/config"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/tarot"
)

const maxGrantDays = 3650

// Commands understood by the router.
const (
	CommandStart      = "start"
	CommandHelp       = "help"
	CommandHoroscope  = "horoscope"
	CommandTarot      = "tarot"
	CommandNumerology = "numerology"
	CommandNatal      = "natal"
	CommandSubscribe  = "subscribe"
	CommandProfile    = "profile"
	CommandSettings   = "settings"
	CommandGrant      = "grant"
	CommandStats      = "stats"
)

// Settings are the configurable parts of the state machine.
type Settings struct {
	OwnerID             int64
	BirthDataRequired   bool
	DefaultDeliveryTime string
	Plans               []Plan
}

// SettingsFromConfig extracts router settings from the runtime config.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		OwnerID:             cfg.BotOwnerID,
		BirthDataRequired:   cfg.BirthDataRequired,
		DefaultDeliveryTime: cfg.Delivery.DefaultTime,
		Plans:               PlansFromConfig(cfg.Plans),
	}
}

// Decision is the outcome of routing one event. The engine persists Patch
// first and only then performs the rest.
type Decision struct {
	// Action names what happened, for logs and metrics.
	Action  string
	Patch   domain.Patch
	Reply   *Reply
	Feature *FeatureRequest
	Invoice *Invoice
	Grant   *Grant
	Stats   bool
	// Err is the classified problem behind the decision, if any.
	Err error
}

// FeatureRequest asks the engine to run a metered feature.
type FeatureRequest struct {
	Feature domain.Feature
	// Spread is the tarot spread id.
	Spread string
	// Question is the tarot question or the chat message.
	Question string
}

// Invoice asks the engine to send a Stars invoice.
type Invoice struct {
	Plan        Plan
	Title       string
	Description string
	Payload     string
}

// Grant asks the engine to extend another user's premium.
type Grant struct {
	UserID int64
	Days   int
}

// Router maps (profile, event) to a Decision.
type Router struct {
	settings Settings
}

// New returns a router with settings.
func New(settings Settings) *Router {
	if settings.DefaultDeliveryTime == "" {
		settings.DefaultDeliveryTime = config.DefaultDeliveryTime
	}
	return &Router{settings: settings}
}

// Plans returns the configured premium plans.
func (r *Router) Plans() []Plan {
	return r.settings.Plans
}

// Route is a pure function of the profile snapshot, the event and now.
func (r *Router) Route(p domain.Profile, ev Event, now time.Time) Decision {
	if err := p.CheckConsistency(); err != nil {
		return r.reset(p, ev, now, err)
	}

	switch ev.Kind {
	case KindPayment:
		return r.payment(p, ev, now)
	case KindCommand:
		return r.command(p, ev, now)
	case KindCallback:
		return r.callback(p, ev, now)
	case KindText, KindLocation:
		return r.input(p, ev, now)
	default:
		return r.help(p)
	}
}

func (r *Router) reset(p domain.Profile, ev Event, now time.Time, cause error) Decision {
	patch := domain.Patch{
		Stage:          domain.Ptr(domain.StageNew),
		Language:       domain.Ptr(domain.Language("")),
		ClearBirthData: true,
		Reset:          true,
	}
	if p.TierExpiry != nil && p.Tier != domain.TierPremium {
		patch.ClearTierExpiry = true
	}

	lang := p.Lang()
	reply := withKeyboard(say(lang, i18n.StateReset), LanguageKeyboard())
	d := Decision{Action: "state_reset", Patch: patch, Reply: reply, Err: cause}

	// A payment must never be lost to a reset; credit it on the repaired profile.
	if ev.Kind == KindPayment {
		repaired := p
		patch.ApplyTo(&repaired)
		paid := r.payment(repaired, ev, now)
		d.Patch.Tier = paid.Patch.Tier
		d.Patch.TierExpiry = paid.Patch.TierExpiry
		if paid.Reply != nil {
			reply.Text = paid.Reply.Text + "\n\n" + reply.Text
		}
		if paid.Err != nil {
			d.Err = errors.Join(cause, paid.Err)
		}
	}

	return d
}

func (r *Router) isOwner(p domain.Profile) bool {
	return p.Owner || (r.settings.OwnerID != 0 && p.UserID == r.settings.OwnerID)
}

func (r *Router) help(p domain.Profile) Decision {
	lang := p.Lang()
	reply := say(lang, i18n.Help)
	if p.Stage == domain.StageReady {
		reply.Keyboard = MainMenu(lang)
	}
	return Decision{Action: "help", Reply: reply}
}

// prompt is the reply that moves the user on from the current stage.
func (r *Router) prompt(p domain.Profile) *Reply {
	lang := p.Lang()
	switch p.Stage {
	case domain.StageNew:
		return withKeyboard(say(lang, i18n.ChooseLanguage), LanguageKeyboard())
	case domain.StageLanguageSelected:
		return say(lang, i18n.AskBirthDate)
	case domain.StageCollectingBirthData:
		if p.BirthTime == nil {
			return say(lang, i18n.AskBirthTime)
		}
		return say(lang, i18n.AskBirthPlace)
	default:
		return withKeyboard(say(lang, i18n.MainMenu), MainMenu(lang))
	}
}

// notReady re-prompts the current onboarding step for a feature request
// that arrived too early.
func (r *Router) notReady(p domain.Profile) Decision {
	reply := r.prompt(p)
	reply.Text = i18n.T(p.Lang(), i18n.FinishOnboarding) + "\n\n" + reply.Text
	return Decision{Action: "onboarding_prompt", Reply: reply}
}

func (r *Router) command(p domain.Profile, ev Event, now time.Time) Decision {
	lang := p.Lang()

	switch ev.Command {
	case CommandStart:
		if p.Stage == domain.StageNew {
			return Decision{Action: "language_prompt", Reply: r.prompt(p)}
		}
		return Decision{Action: "start", Reply: r.prompt(p)}
	case CommandHelp:
		return r.help(p)
	case CommandGrant:
		if !r.isOwner(p) {
			return r.help(p)
		}
		return r.grant(p, ev.Args)
	case CommandStats:
		if !r.isOwner(p) {
			return r.help(p)
		}
		return Decision{Action: "stats", Stats: true}
	case CommandHoroscope, CommandTarot, CommandNumerology, CommandNatal, CommandSubscribe, CommandProfile, CommandSettings:
	default:
		return r.help(p)
	}

	if p.Stage != domain.StageReady {
		return r.notReady(p)
	}

	switch ev.Command {
	case CommandHoroscope:
		return Decision{Action: "feature", Feature: &FeatureRequest{Feature: domain.FeatureHoroscope}}
	case CommandTarot:
		if ev.Args == "" {
			return Decision{Action: "spread_menu", Reply: withKeyboard(say(lang, i18n.ChooseSpread), SpreadKeyboard(lang))}
		}
		return Decision{Action: "feature", Feature: &FeatureRequest{
			Feature:  domain.FeatureTarot,
			Spread:   tarot.SpreadThreeCard,
			Question: ev.Args,
		}}
	case CommandNumerology:
		return r.birthReading(p, domain.FeatureNumerology)
	case CommandNatal:
		return r.birthReading(p, domain.FeatureNatal)
	case CommandSubscribe:
		return r.plans(p, now)
	case CommandProfile:
		return Decision{Action: "profile", Reply: withKeyboard(&Reply{Text: ProfileText(p, now)}, MainMenu(lang))}
	default:
		return Decision{Action: "settings", Reply: withKeyboard(say(lang, i18n.SettingsMenu), SettingsKeyboard(lang))}
	}
}

// birthReading requests a reading computed from birth data. Numerology needs
// only the date; a natal chart needs date, time and place.
func (r *Router) birthReading(p domain.Profile, feature domain.Feature) Decision {
	missing := p.BirthDate == nil
	if feature == domain.FeatureNatal {
		missing = !p.HasBirthData()
	}
	if missing {
		lang := p.Lang()
		return Decision{Action: "birth_data_missing", Reply: withKeyboard(say(lang, i18n.BirthDataMissing), MainMenu(lang))}
	}
	return Decision{Action: "feature", Feature: &FeatureRequest{Feature: feature}}
}

func (r *Router) plans(p domain.Profile, now time.Time) Decision {
	lang := p.Lang()
	if p.IsLifetime() {
		return Decision{Action: "already_lifetime", Reply: say(lang, i18n.AlreadyLifetime)}
	}
	return Decision{Action: "plans", Reply: withKeyboard(say(lang, i18n.ChoosePlan), PlanKeyboard(lang, r.settings.Plans))}
}

func (r *Router) grant(p domain.Profile, args string) Decision {
	usage := Decision{Action: "grant_usage", Reply: say(p.Lang(), i18n.GrantUsage)}

	fields := strings.Fields(args)
	if len(fields) != 2 {
		return usage
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || userID <= 0 {
		return usage
	}
	days, err := strconv.Atoi(fields[1])
	if err != nil || days <= 0 || days > maxGrantDays {
		return usage
	}

	return Decision{Action: "grant", Grant: &Grant{UserID: userID, Days: days}}
}

func (r *Router) callback(p domain.Profile, ev Event, now time.Time) Decision {
	lang := p.Lang()
	cb := ev.Callback

	if cb.Action == ActionLanguage {
		return r.selectLanguage(p, cb.Value)
	}
	if cb.Action == "" {
		return r.help(p)
	}
	if p.Stage != domain.StageReady {
		return r.notReady(p)
	}

	switch cb.Action {
	case ActionMenu:
		switch cb.Value {
		case MenuHoroscope:
			return Decision{Action: "feature", Feature: &FeatureRequest{Feature: domain.FeatureHoroscope}}
		case MenuTarot:
			return Decision{Action: "spread_menu", Reply: withKeyboard(say(lang, i18n.ChooseSpread), SpreadKeyboard(lang))}
		case MenuNumerology:
			return r.birthReading(p, domain.FeatureNumerology)
		case MenuNatal:
			return r.birthReading(p, domain.FeatureNatal)
		case MenuPremium:
			return r.plans(p, now)
		case MenuProfile:
			return Decision{Action: "profile", Reply: withKeyboard(&Reply{Text: ProfileText(p, now)}, MainMenu(lang))}
		case MenuSettings:
			return Decision{Action: "settings", Reply: withKeyboard(say(lang, i18n.SettingsMenu), SettingsKeyboard(lang))}
		default:
			return Decision{Action: "menu", Reply: r.prompt(p)}
		}
	case ActionSpread:
		if _, ok := tarot.SpreadByID(cb.Value); !ok {
			return Decision{Action: "spread_menu", Reply: withKeyboard(say(lang, i18n.ChooseSpread), SpreadKeyboard(lang))}
		}
		return Decision{Action: "feature", Feature: &FeatureRequest{Feature: domain.FeatureTarot, Spread: cb.Value}}
	case ActionPlan:
		plan, ok := findPlan(r.settings.Plans, cb.Value)
		if !ok {
			return r.plans(p, now)
		}
		return Decision{Action: "invoice", Invoice: &Invoice{
			Plan:        plan,
			Title:       i18n.T(lang, i18n.InvoiceTitle),
			Description: i18n.T(lang, i18n.InvoiceDescription, strconv.Itoa(plan.Days)),
			Payload:     InvoicePayload(plan.ID, p.UserID),
		}}
	case ActionSettings:
		if cb.Value == SettingsLanguage {
			return Decision{Action: "language_menu", Reply: withKeyboard(say(lang, i18n.ChooseLanguage), LanguageKeyboard())}
		}
		return Decision{Action: "time_menu", Reply: withKeyboard(say(lang, i18n.ChooseDeliveryTime), TimeKeyboard(lang))}
	case ActionTime:
		return r.deliveryTime(p, cb.Value)
	default:
		return r.help(p)
	}
}

func (r *Router) selectLanguage(p domain.Profile, code string) Decision {
	lang, ok := domain.ParseLanguage(code)
	if !ok {
		return Decision{Action: "language_prompt", Reply: withKeyboard(say(p.Lang(), i18n.ChooseLanguage), LanguageKeyboard())}
	}

	if p.Stage != domain.StageNew {
		next := p
		next.Language = lang
		reply := r.prompt(next)
		reply.Text = i18n.T(lang, i18n.LanguageSet) + "\n\n" + reply.Text
		return Decision{Action: "language_changed", Patch: domain.Patch{Language: &lang}, Reply: reply}
	}

	if !r.settings.BirthDataRequired {
		next := p
		next.Language = lang
		reply := withKeyboard(say(lang, i18n.LanguageSet), MainMenu(lang))
		reply.Text += "\n\n" + r.doneText(next)
		return Decision{
			Action: "onboarding_completed",
			Patch:  domain.Patch{Language: &lang, Stage: domain.Ptr(domain.StageReady)},
			Reply:  reply,
		}
	}

	reply := say(lang, i18n.LanguageSet)
	reply.Text += "\n\n" + i18n.T(lang, i18n.AskBirthDate)
	return Decision{
		Action: "language_selected",
		Patch:  domain.Patch{Language: &lang, Stage: domain.Ptr(domain.StageLanguageSelected)},
		Reply:  reply,
	}
}

func (r *Router) doneText(p domain.Profile) string {
	lang := p.Lang()
	delivery := p.DeliveryTime
	if delivery == "" {
		return i18n.T(lang, i18n.MainMenu)
	}
	return i18n.T(lang, i18n.OnboardingDone, p.FirstName, delivery)
}

func (r *Router) deliveryTime(p domain.Profile, value string) Decision {
	lang := p.Lang()
	if value == TimeOff {
		return Decision{
			Action: "delivery_disabled",
			Patch:  domain.Patch{DeliveryTime: domain.Ptr("")},
			Reply:  withKeyboard(say(lang, i18n.DeliveryDisabled), MainMenu(lang)),
		}
	}
	if !config.ValidClock(value) {
		return Decision{Action: "time_menu", Reply: withKeyboard(say(lang, i18n.ChooseDeliveryTime), TimeKeyboard(lang))}
	}
	return Decision{
		Action: "delivery_time_set",
		Patch:  domain.Patch{DeliveryTime: domain.Ptr(value)},
		Reply:  withKeyboard(say(lang, i18n.DeliveryTimeSet, value), MainMenu(lang)),
	}
}

func (r *Router) input(p domain.Profile, ev Event, now time.Time) Decision {
	lang := p.Lang()

	switch p.Stage {
	case domain.StageNew:
		return Decision{Action: "language_prompt", Reply: r.prompt(p)}

	case domain.StageLanguageSelected:
		if ev.Kind != KindText {
			return Decision{Action: "birth_date_invalid", Reply: say(lang, i18n.InvalidBirthDate)}
		}
		date, err := ParseBirthDate(ev.Text, now)
		if err != nil {
			return Decision{Action: "birth_date_invalid", Reply: say(lang, i18n.InvalidBirthDate), Err: err}
		}
		return Decision{
			Action: "birth_date_set",
			Patch:  domain.Patch{BirthDate: &date, Stage: domain.Ptr(domain.StageCollectingBirthData)},
			Reply:  say(lang, i18n.AskBirthTime),
		}

	case domain.StageCollectingBirthData:
		if p.BirthTime == nil {
			if ev.Kind != KindText {
				return Decision{Action: "birth_time_invalid", Reply: say(lang, i18n.InvalidBirthTime)}
			}
			clock, err := ParseBirthTime(ev.Text)
			if err != nil {
				return Decision{Action: "birth_time_invalid", Reply: say(lang, i18n.InvalidBirthTime), Err: err}
			}
			return Decision{
				Action: "birth_time_set",
				Patch:  domain.Patch{BirthTime: &clock},
				Reply:  say(lang, i18n.AskBirthPlace),
			}
		}

		var place string
		if ev.Kind == KindLocation && ev.Location != nil {
			place = LocationPlace(*ev.Location)
		} else {
			parsed, err := ParseBirthPlace(ev.Text)
			if err != nil {
				return Decision{Action: "birth_place_invalid", Reply: say(lang, i18n.InvalidBirthPlace), Err: err}
			}
			place = parsed
		}
		return Decision{
			Action: "onboarding_completed",
			Patch:  domain.Patch{BirthPlace: &place, Stage: domain.Ptr(domain.StageReady)},
			Reply:  withKeyboard(&Reply{Text: r.doneText(p)}, MainMenu(lang)),
		}

	default:
		question := strings.TrimSpace(ev.Text)
		if ev.Kind != KindText || question == "" {
			return Decision{Action: "menu", Reply: r.prompt(p)}
		}
		return Decision{Action: "feature", Feature: &FeatureRequest{Feature: domain.FeatureChat, Question: question}}
	}
}

func (r *Router) payment(p domain.Profile, ev Event, now time.Time) Decision {
	lang := p.Lang()
	if ev.Payment == nil {
		return Decision{Action: "payment_rejected", Reply: say(lang, i18n.PaymentInvalid)}
	}

	plan, err := r.CheckPayment(p.UserID, ev.Payment.Payload, ev.Payment.Currency, ev.Payment.Amount)
	if err != nil {
		return Decision{Action: "payment_rejected", Reply: say(lang, i18n.PaymentInvalid), Err: err}
	}

	patch := p.ExtendPremium(now, plan.Duration)
	if patch.IsEmpty() {
		return Decision{Action: "payment_lifetime", Reply: say(lang, i18n.AlreadyLifetime)}
	}

	reply := say(lang, i18n.PaymentSuccess, patch.TierExpiry.Format(displayDateForm))
	if p.Stage == domain.StageReady {
		reply.Keyboard = MainMenu(lang)
	}
	return Decision{Action: "payment_accepted", Patch: patch, Reply: reply}
}
