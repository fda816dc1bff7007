// Package engine turns routed decisions into persisted state and outbound
// messages. Every event runs read, route, compare-and-swap write, then side
// effects; nothing is sent that claims success before the write is durable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"astro_bot/internal/ai"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/logging"
	"astro_bot/internal/metrics"
	"astro_bot/internal/numerology"
	"astro_bot/internal/quota"
	"astro_bot/internal/router"
	"astro_bot/internal/store"
	"astro_bot/internal/tarot"
)

const (
	maxApplyAttempts = 3
	resetLayout      = "2006-01-02 15:04"
	displayDate      = "02.01.2006"
)

type profileStore interface {
	GetOrCreate(ctx context.Context, id domain.Identity) (domain.Profile, error)
	Get(ctx context.Context, userID int64) (domain.Profile, error)
	Apply(ctx context.Context, userID, version int64, patch domain.Patch) (domain.Profile, error)
	ExtendPremium(ctx context.Context, userID int64, d time.Duration, now time.Time) (domain.Profile, error)
}

type usageLimiter interface {
	CheckAndConsume(ctx context.Context, profile domain.Profile, feature domain.Feature, now time.Time) (quota.Verdict, error)
	Release(ctx context.Context, profile domain.Profile, feature domain.Feature, verdict quota.Verdict, now time.Time) error
}

type completer interface {
	Complete(ctx context.Context, req ai.Request) ai.Completion
}

type cardDrawer interface {
	Draw(spread tarot.Spread) tarot.Reading
}

type statsSource interface {
	Snapshot(ctx context.Context, now time.Time) (store.Stats, error)
}

// Sender delivers outbound messages to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, reply router.Reply) error
	SendInvoice(ctx context.Context, chatID int64, invoice router.Invoice) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Profiles profileStore
	Router   *router.Router
	Limiter  usageLimiter
	AI       completer
	Drawer   cardDrawer
	Stats    statsSource
	Sender   Sender
	Metrics  *metrics.Metrics
	Logger   *logrus.Entry
}

// Engine handles one event at a time per user; see Dispatcher for ordering.
type Engine struct {
	profiles profileStore
	router   *router.Router
	limiter  usageLimiter
	ai       completer
	drawer   cardDrawer
	stats    statsSource
	sender   Sender
	metrics  *metrics.Metrics
	logger   *logrus.Entry
	now      func() time.Time
}

// New validates deps and returns an Engine.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Profiles == nil:
		return nil, errors.New("engine: profile store is required")
	case deps.Router == nil:
		return nil, errors.New("engine: router is required")
	case deps.Limiter == nil:
		return nil, errors.New("engine: limiter is required")
	case deps.AI == nil:
		return nil, errors.New("engine: ai client is required")
	case deps.Sender == nil:
		return nil, errors.New("engine: sender is required")
	}

	drawer := deps.Drawer
	if drawer == nil {
		drawer = tarot.NewDrawer(nil)
	}

	return &Engine{
		profiles: deps.Profiles,
		router:   deps.Router,
		limiter:  deps.Limiter,
		ai:       deps.AI,
		drawer:   drawer,
		stats:    deps.Stats,
		sender:   deps.Sender,
		metrics:  deps.Metrics,
		logger:   logging.Component(deps.Logger, "engine"),
		now:      time.Now,
	}, nil
}

// Handle processes one event end to end. The returned error is for logging;
// the user has already been answered.
func (e *Engine) Handle(ctx context.Context, ev router.Event) error {
	start := e.now()
	now := start.UTC()
	log := logging.Enrich(e.logger, logging.Context{
		UserID: ev.Identity.UserID,
		ChatID: ev.Identity.ChatID,
		Event:  ev.Kind.String(),
	})

	err := e.handle(ctx, ev, now, log)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.ObserveEvent(ev.Kind.String(), outcome, e.now().Sub(start))
	return err
}

func (e *Engine) handle(ctx context.Context, ev router.Event, now time.Time, log *logrus.Entry) error {
	if ev.Payment != nil {
		log = log.WithFields(logrus.Fields{
			"charge_id": ev.Payment.ChargeID,
			"payload":   ev.Payment.Payload,
			"amount":    ev.Payment.Amount,
			"currency":  ev.Payment.Currency,
		})
	}

	p, err := e.profiles.GetOrCreate(ctx, ev.Identity)
	if err != nil {
		e.paymentFailed(ev, err, log)
		e.retryLater(ctx, ev.Identity.ChatID, domain.DefaultLanguage, log)
		return fmt.Errorf("%w: load profile: %v", domain.ErrUpstreamUnavailable, err)
	}

	p, d, err := e.decide(ctx, p, ev, now)
	if err != nil {
		e.paymentFailed(ev, err, log)
		e.retryLater(ctx, ev.Identity.ChatID, p.Lang(), log)
		return err
	}
	if ev.Payment != nil {
		e.paymentSettled(d, p, log)
	}

	fields := logrus.Fields{"event": "event_routed", "action": d.Action, "stage": p.Stage}
	switch {
	case errors.Is(d.Err, domain.ErrStateCorruption):
		log.WithFields(fields).WithError(d.Err).Warn("profile reset after state corruption")
	case d.Err != nil:
		log.WithFields(fields).WithError(d.Err).Info("event rejected")
	default:
		log.WithFields(fields).Debug("event routed")
	}

	chatID := p.ChatID
	if chatID == 0 {
		chatID = ev.Identity.ChatID
	}

	if d.Reply != nil {
		if err := e.sender.Send(ctx, chatID, *d.Reply); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}

	switch {
	case d.Feature != nil:
		return e.runFeature(ctx, p, chatID, *d.Feature, now, log)
	case d.Invoice != nil:
		if err := e.sender.SendInvoice(ctx, chatID, *d.Invoice); err != nil {
			e.retryLater(ctx, chatID, p.Lang(), log)
			return fmt.Errorf("send invoice: %w", err)
		}
		log.WithFields(logrus.Fields{"event": "invoice_sent", "plan": d.Invoice.Plan.ID}).Info("invoice sent")
	case d.Grant != nil:
		return e.grant(ctx, p, chatID, *d.Grant, now, log)
	case d.Stats:
		return e.sendStats(ctx, p, chatID, now, log)
	}

	return nil
}

// paymentFailed records a charge that was taken but not credited so it can be
// reconciled or refunded by hand.
func (e *Engine) paymentFailed(ev router.Event, err error, log *logrus.Entry) {
	if ev.Payment == nil {
		return
	}
	log.WithError(err).WithField("event", "payment_failed").Error("payment charged but not credited")
}

func (e *Engine) paymentSettled(d router.Decision, p domain.Profile, log *logrus.Entry) {
	log = log.WithField("action", d.Action)
	switch d.Action {
	case "payment_accepted":
		log.WithFields(logrus.Fields{"event": "payment_received", "tier_expiry": p.TierExpiry}).Info("payment credited")
	case "payment_lifetime":
		log.WithField("event", "payment_not_credited").Warn("payment received for lifetime premium, refund by hand")
	default:
		log.WithError(d.Err).WithField("event", "payment_rejected").Warn("payment rejected, refund by hand")
	}
}

// decide routes ev and persists the resulting patch with compare-and-swap,
// re-reading and re-routing when a concurrent writer got there first.
func (e *Engine) decide(ctx context.Context, p domain.Profile, ev router.Event, now time.Time) (domain.Profile, router.Decision, error) {
	for attempt := 1; ; attempt++ {
		d := e.router.Route(p, ev, now)
		if d.Patch.IsEmpty() {
			return p, d, nil
		}
		if err := d.Patch.CheckTransition(p); err != nil {
			return p, d, fmt.Errorf("route %s: %w", d.Action, err)
		}

		updated, err := e.profiles.Apply(ctx, p.UserID, p.Version, d.Patch)
		if err == nil {
			return updated, d, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= maxApplyAttempts {
			return p, d, fmt.Errorf("%w: apply %s: %v", domain.ErrUpstreamUnavailable, d.Action, err)
		}

		fresh, getErr := e.profiles.Get(ctx, p.UserID)
		if getErr != nil {
			return p, d, fmt.Errorf("%w: reload profile: %v", domain.ErrUpstreamUnavailable, getErr)
		}
		p = fresh
	}
}

func (e *Engine) retryLater(ctx context.Context, chatID int64, lang domain.Language, log *logrus.Entry) {
	if chatID == 0 {
		return
	}
	if err := e.sender.Send(ctx, chatID, router.Reply{Text: i18n.T(lang, i18n.RetryLater)}); err != nil {
		log.WithError(err).WithField("event", "send_failed").Warn("failed to send retry-later reply")
	}
}

func (e *Engine) runFeature(ctx context.Context, p domain.Profile, chatID int64, req router.FeatureRequest, now time.Time, log *logrus.Entry) error {
	lang := p.Lang()
	log = log.WithField("feature", req.Feature)

	verdict, err := e.limiter.CheckAndConsume(ctx, p, req.Feature, now)
	if err != nil {
		e.retryLater(ctx, chatID, lang, log)
		return fmt.Errorf("check quota: %w", err)
	}
	if !verdict.Allowed {
		return e.sender.Send(ctx, chatID, denial(lang, req.Feature, verdict))
	}

	var (
		aiReq  ai.Request
		render func(string) string
	)
	switch req.Feature {
	case domain.FeatureHoroscope:
		aiReq = ai.HoroscopeRequest(p, now)
		render = func(body string) string {
			return i18n.T(lang, i18n.HoroscopeTitle, now.Format(displayDate), body)
		}
	case domain.FeatureTarot:
		spread, ok := tarot.SpreadByID(req.Spread)
		if !ok {
			spread, _ = tarot.SpreadByID(tarot.SpreadThreeCard)
		}
		reading := e.drawer.Draw(spread)
		aiReq = ai.TarotRequest(lang, reading, req.Question)
		render = func(body string) string {
			return i18n.T(lang, i18n.TarotTitle, i18n.SpreadName(lang, spread.ID), cardLines(reading), body)
		}
	case domain.FeatureNumerology:
		reading := numerology.Calculate(p.FirstName, *p.BirthDate)
		aiReq = ai.NumerologyRequest(lang, reading)
		render = func(body string) string {
			return i18n.T(lang, i18n.NumerologyTitle, displayName(lang, reading.Name),
				reading.BirthDate.Format(displayDate), numberLines(lang, reading), body)
		}
	case domain.FeatureNatal:
		aiReq = ai.NatalRequest(p)
		render = func(body string) string {
			return i18n.T(lang, i18n.NatalTitle, p.BirthDate.Format(displayDate), *p.BirthTime, *p.BirthPlace, body)
		}
	default:
		aiReq = ai.ChatRequest(p, req.Question)
		render = func(body string) string { return body }
	}

	// No profile state is held across this call.
	completion := e.ai.Complete(ctx, aiReq)
	if completion.Failure != nil {
		if err := e.limiter.Release(ctx, p, req.Feature, verdict, now); err != nil {
			log.WithError(err).WithField("event", "quota_release_failed").Warn("failed to release quota after AI failure")
		}
		return e.sender.Send(ctx, chatID, router.Reply{Text: completion.Text, Keyboard: router.MainMenu(lang)})
	}

	return e.sender.Send(ctx, chatID, router.Reply{Text: render(completion.Text), Keyboard: router.MainMenu(lang)})
}

func denial(lang domain.Language, feature domain.Feature, verdict quota.Verdict) router.Reply {
	name := i18n.FeatureName(lang, feature)
	upgrade := [][]router.Button{{{
		Text: i18n.T(lang, i18n.ButtonPremium),
		Data: router.Callback{Action: router.ActionMenu, Value: router.MenuPremium}.Encode(),
	}}}

	if verdict.Reason == quota.ReasonPremiumOnly {
		return router.Reply{Text: i18n.T(lang, i18n.PremiumOnly, name), Keyboard: upgrade}
	}
	return router.Reply{
		Text:     i18n.T(lang, i18n.QuotaExceeded, name, verdict.ResetAt.UTC().Format(resetLayout)),
		Keyboard: upgrade,
	}
}

func numberLines(lang domain.Language, reading numerology.Reading) string {
	lines := make([]string, 0, len(reading.Numbers))
	for _, kind := range numerology.Kinds() {
		if kind.NameBased() && !reading.HasName() {
			continue
		}
		lines = append(lines, "✨ "+i18n.NumberName(lang, string(kind))+": "+strconv.Itoa(reading.Numbers[kind]))
	}
	return strings.Join(lines, "\n")
}

func displayName(lang domain.Language, name string) string {
	if strings.TrimSpace(name) == "" {
		return i18n.T(lang, i18n.NotSet)
	}
	return name
}

func cardLines(reading tarot.Reading) string {
	lines := make([]string, 0, len(reading.Cards))
	for _, card := range reading.Cards {
		lines = append(lines, "• "+card.Position+": "+card.DisplayName())
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) grant(ctx context.Context, p domain.Profile, chatID int64, g router.Grant, now time.Time, log *logrus.Entry) error {
	lang := p.Lang()
	target := strconv.FormatInt(g.UserID, 10)

	updated, err := e.profiles.ExtendPremium(ctx, g.UserID, time.Duration(g.Days)*24*time.Hour, now)
	if errors.Is(err, domain.ErrNotFound) {
		return e.sender.Send(ctx, chatID, router.Reply{Text: i18n.T(lang, i18n.GrantNotFound, target)})
	}
	if err != nil {
		e.retryLater(ctx, chatID, lang, log)
		return fmt.Errorf("grant premium to %d: %w", g.UserID, err)
	}

	until := i18n.T(lang, i18n.TierLifetime)
	if updated.TierExpiry != nil {
		until = updated.TierExpiry.UTC().Format(displayDate)
	}
	log.WithFields(logrus.Fields{
		"event":     "premium_granted",
		"target_id": g.UserID,
		"days":      g.Days,
	}).Info("owner granted premium")

	return e.sender.Send(ctx, chatID, router.Reply{Text: i18n.T(lang, i18n.GrantDone, target, until)})
}

func (e *Engine) sendStats(ctx context.Context, p domain.Profile, chatID int64, now time.Time, log *logrus.Entry) error {
	if e.stats == nil {
		return errors.New("stats source not configured")
	}
	snapshot, err := e.stats.Snapshot(ctx, now)
	if err != nil {
		e.retryLater(ctx, chatID, p.Lang(), log)
		return fmt.Errorf("stats snapshot: %w", err)
	}
	return e.sender.Send(ctx, chatID, router.Reply{
		Text: i18n.T(p.Lang(), i18n.StatsSummary,
			strconv.FormatInt(snapshot.Profiles, 10),
			strconv.FormatInt(snapshot.Ready, 10),
			strconv.FormatInt(snapshot.Premium, 10),
		),
	})
}
