package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"astro_bot/internal/ai"
	"astro_bot/internal/config"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/metrics"
	"astro_bot/internal/quota"
	"astro_bot/internal/router"
	"astro_bot/internal/store"
	"astro_bot/internal/tarot"
)

var engineNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// memStore is an in-memory profile store with the same version semantics as
// the MongoDB one.
type memStore struct {
	mu        sync.Mutex
	profiles  map[int64]domain.Profile
	applyErr  error
	loadErr   error
	conflicts int
	applies   int
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[int64]domain.Profile)}
}

func clone(p domain.Profile) domain.Profile {
	if p.Usage != nil {
		usage := make(map[domain.Feature]domain.UsageWindow, len(p.Usage))
		for k, v := range p.Usage {
			usage[k] = v
		}
		p.Usage = usage
	}
	return p
}

func (s *memStore) put(p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = clone(p)
}

func (s *memStore) get(userID int64) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.profiles[userID])
}

func (s *memStore) GetOrCreate(_ context.Context, id domain.Identity) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Profile{}, s.loadErr
	}
	p, ok := s.profiles[id.UserID]
	if !ok {
		p = domain.NewProfile(id, "08:00", engineNow)
		s.profiles[id.UserID] = p
	}
	return clone(p), nil
}

func (s *memStore) Get(_ context.Context, userID int64) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return clone(p), nil
}

func (s *memStore) Apply(_ context.Context, userID, version int64, patch domain.Patch) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applies++
	if s.applyErr != nil {
		return domain.Profile{}, s.applyErr
	}
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	if s.conflicts > 0 {
		s.conflicts--
		p.Version++
		s.profiles[userID] = p
		return domain.Profile{}, domain.ErrVersionConflict
	}
	if p.Version != version {
		return domain.Profile{}, domain.ErrVersionConflict
	}
	patch.ApplyTo(&p)
	p.Version++
	s.profiles[userID] = p
	return clone(p), nil
}

func (s *memStore) ExtendPremium(_ context.Context, userID int64, d time.Duration, now time.Time) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	p.ExtendPremium(now, d).ApplyTo(&p)
	p.Version++
	s.profiles[userID] = p
	return clone(p), nil
}

func (s *memStore) ConsumeUsage(_ context.Context, userID int64, feature domain.Feature, limit int, window time.Duration, now time.Time) (domain.UsageWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	if p.Usage == nil {
		p.Usage = map[domain.Feature]domain.UsageWindow{}
	}
	w := p.Usage[feature]
	switch {
	case !w.ResetAt.After(now):
		w = domain.UsageWindow{Count: 1, ResetAt: now.Add(window), Total: w.Total + 1}
	case w.Count < limit:
		w.Count++
		w.Total++
	default:
		return w, false, nil
	}
	p.Usage[feature] = w
	s.profiles[userID] = p
	return w, true, nil
}

func (s *memStore) ReleaseUsage(_ context.Context, userID int64, feature domain.Feature, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	w := p.Usage[feature]
	if w.Count > 0 && w.ResetAt.After(now) {
		w.Count--
		p.Usage[feature] = w
		s.profiles[userID] = p
	}
	return nil
}

func (s *memStore) IncrementUsage(_ context.Context, userID int64, feature domain.Feature) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	if p.Usage == nil {
		p.Usage = map[domain.Feature]domain.UsageWindow{}
	}
	w := p.Usage[feature]
	w.Total++
	p.Usage[feature] = w
	s.profiles[userID] = p
	return w.Total, nil
}

type fakeAI struct {
	mu       sync.Mutex
	calls    []ai.Request
	failWith ai.Reason
}

func (f *fakeAI) Complete(_ context.Context, req ai.Request) ai.Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.failWith != "" {
		return ai.Completion{Text: i18n.T(req.Language, i18n.AIUnavailable), Failure: &ai.Failure{Reason: f.failWith}}
	}
	return ai.Completion{Text: "The stars favour you.", Model: "test"}
}

func (f *fakeAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentMessage struct {
	chatID int64
	reply  router.Reply
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	invoices []router.Invoice
	err      error
}

func (f *fakeSender) Send(_ context.Context, chatID int64, reply router.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, sentMessage{chatID: chatID, reply: reply})
	return nil
}

func (f *fakeSender) SendInvoice(_ context.Context, _ int64, invoice router.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, invoice)
	return nil
}

func (f *fakeSender) last(t *testing.T) router.Reply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		t.Fatalf("expected a sent message")
	}
	return f.messages[len(f.messages)-1].reply
}

type fakeStats struct {
	stats store.Stats
	err   error
}

func (f fakeStats) Snapshot(context.Context, time.Time) (store.Stats, error) {
	return f.stats, f.err
}

type harness struct {
	engine *Engine
	store  *memStore
	ai     *fakeAI
	sender *fakeSender
	hook   *logtest.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	entry := logrus.NewEntry(logger)

	st := newMemStore()
	m := metrics.New()
	limiter := quota.NewLimiter(st, quota.PoliciesFromConfig(config.QuotaConfig{
		Horoscope:  config.Quota{Limit: 1, Window: 24 * time.Hour},
		Tarot:      config.Quota{Limit: 1, Window: 7 * 24 * time.Hour},
		Chat:       config.Quota{Limit: 0, Window: 24 * time.Hour},
		Numerology: config.Quota{Limit: 1, Window: 30 * 24 * time.Hour},
		Natal:      config.Quota{Limit: 0, Window: 30 * 24 * time.Hour},
	}), m, entry)

	h := &harness{store: st, ai: &fakeAI{}, sender: &fakeSender{}, hook: hook}
	eng, err := New(Deps{
		Profiles: st,
		Router: router.New(router.Settings{
			OwnerID:             42,
			BirthDataRequired:   true,
			DefaultDeliveryTime: "08:00",
			Plans:               router.PlansFromConfig(config.PlanConfig{MonthlyStars: 250, YearlyStars: 2500}),
		}),
		Limiter: limiter,
		AI:      h.ai,
		Drawer:  tarot.NewDrawer(nil),
		Stats:   fakeStats{stats: store.Stats{Profiles: 10, Ready: 6, Premium: 2}},
		Sender:  h.sender,
		Metrics: m,
		Logger:  entry,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	eng.now = func() time.Time { return engineNow }
	h.engine = eng
	return h
}

func identity(userID int64) domain.Identity {
	return domain.Identity{UserID: userID, ChatID: userID * 10, FirstName: "Ann"}
}

func (h *harness) send(t *testing.T, ev router.Event) error {
	t.Helper()
	if ev.Identity.UserID == 0 {
		ev.Identity = identity(7)
	}
	return h.engine.Handle(context.Background(), ev)
}

func cmd(name string) router.Event {
	return router.Event{Kind: router.KindCommand, Command: name}
}

func (h *harness) onboard(t *testing.T) {
	t.Helper()
	steps := []router.Event{
		cmd(router.CommandStart),
		{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionLanguage, Value: "ru"}},
		{Kind: router.KindText, Text: "15.03.1990"},
		{Kind: router.KindText, Text: "14:30"},
		{Kind: router.KindText, Text: "Москва"},
	}
	for _, ev := range steps {
		if err := h.send(t, ev); err != nil {
			t.Fatalf("onboarding step %+v failed: %v", ev, err)
		}
	}
	if p := h.store.get(7); p.Stage != domain.StageReady {
		t.Fatalf("expected ready after onboarding, got %s", p.Stage)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected missing dependencies to fail")
	}
}

func TestScenarioStartLanguageAndQuota(t *testing.T) {
	h := newHarness(t)

	if err := h.send(t, cmd(router.CommandStart)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.LanguageEnglish, i18n.ChooseLanguage) || len(reply.Keyboard) != 1 {
		t.Fatalf("expected language prompt, got %+v", reply)
	}

	if err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionLanguage, Value: "ru"}}); err != nil {
		t.Fatalf("language selection failed: %v", err)
	}
	p := h.store.get(7)
	if p.Language != domain.LanguageRussian || p.Stage != domain.StageLanguageSelected {
		t.Fatalf("expected ru/language_selected, got %s/%s", p.Language, p.Stage)
	}

	for _, ev := range []router.Event{
		{Kind: router.KindText, Text: "15.03.1990"},
		{Kind: router.KindText, Text: "skip"},
		{Kind: router.KindText, Text: "Москва"},
	} {
		if err := h.send(t, ev); err != nil {
			t.Fatalf("birth data step failed: %v", err)
		}
	}

	for i := 1; i <= 5; i++ {
		if err := h.send(t, cmd(router.CommandHoroscope)); err != nil {
			t.Fatalf("horoscope %d failed: %v", i, err)
		}
		reply := h.sender.last(t)
		if i == 1 {
			if !strings.Contains(reply.Text, "The stars favour you.") {
				t.Fatalf("expected first horoscope to be delivered, got %q", reply.Text)
			}
			continue
		}
		resetAt := engineNow.Add(24 * time.Hour).Format(resetLayout)
		want := i18n.T(domain.LanguageRussian, i18n.QuotaExceeded, i18n.FeatureName(domain.LanguageRussian, domain.FeatureHoroscope), resetAt)
		if reply.Text != want {
			t.Fatalf("horoscope %d: expected quota denial %q, got %q", i, want, reply.Text)
		}
	}
	if h.ai.count() != 1 {
		t.Fatalf("expected exactly one AI call, got %d", h.ai.count())
	}
}

func TestPremiumUserIsNeverDenied(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	p := h.store.get(7)
	p.Tier = domain.TierPremium
	h.store.put(p)

	for i := 0; i < 10; i++ {
		if err := h.send(t, cmd(router.CommandHoroscope)); err != nil {
			t.Fatalf("horoscope %d failed: %v", i, err)
		}
	}
	if h.ai.count() != 10 {
		t.Fatalf("expected every premium request to reach the AI, got %d", h.ai.count())
	}
	if total := h.store.get(7).UsageFor(domain.FeatureHoroscope).Total; total != 10 {
		t.Fatalf("expected premium usage counted, got %d", total)
	}
}

func TestAIFailureReleasesQuotaAndSendsFallback(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)
	h.ai.failWith = ai.ReasonTimeout

	if err := h.send(t, cmd(router.CommandHoroscope)); err != nil {
		t.Fatalf("horoscope failed: %v", err)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.LanguageRussian, i18n.AIUnavailable) {
		t.Fatalf("expected localized fallback, got %q", reply.Text)
	}
	if count := h.store.get(7).UsageFor(domain.FeatureHoroscope).Count; count != 0 {
		t.Fatalf("expected quota unit to be released, got count %d", count)
	}

	h.ai.failWith = ""
	if err := h.send(t, cmd(router.CommandHoroscope)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if reply := h.sender.last(t); !strings.Contains(reply.Text, "The stars favour you.") {
		t.Fatalf("expected retry to be allowed, got %q", reply.Text)
	}
}

func TestChatIsPremiumOnlyForFreeUsers(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	if err := h.send(t, router.Event{Kind: router.KindText, Text: "What about Venus?"}); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	want := i18n.T(domain.LanguageRussian, i18n.PremiumOnly, i18n.FeatureName(domain.LanguageRussian, domain.FeatureChat))
	if reply := h.sender.last(t); reply.Text != want {
		t.Fatalf("expected premium only notice, got %q", reply.Text)
	}
	if h.ai.count() != 0 {
		t.Fatalf("expected no AI call")
	}
}

func TestTarotDrawsSpread(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	ev := router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionSpread, Value: tarot.SpreadCelticCross}}
	if err := h.send(t, ev); err != nil {
		t.Fatalf("tarot failed: %v", err)
	}
	reply := h.sender.last(t)
	if strings.Count(reply.Text, "• ") != 10 {
		t.Fatalf("expected ten card lines, got %q", reply.Text)
	}
	if !strings.Contains(h.ai.calls[0].Prompt, "Celtic Cross") {
		t.Fatalf("expected spread in prompt, got %q", h.ai.calls[0].Prompt)
	}
}

func TestNumerologyShowsNumbersAndInterpretation(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	if err := h.send(t, cmd(router.CommandNumerology)); err != nil {
		t.Fatalf("numerology failed: %v", err)
	}
	reply := h.sender.last(t)
	lang := domain.LanguageRussian
	for _, want := range []string{
		"Ann",
		"15.03.1990",
		i18n.NumberName(lang, "life_path") + ": 1",
		i18n.NumberName(lang, "attitude") + ": 9",
		"The stars favour you.",
	} {
		if !strings.Contains(reply.Text, want) {
			t.Fatalf("expected %q in reading, got %q", want, reply.Text)
		}
	}
	if !strings.Contains(h.ai.calls[0].Prompt, "life_path: 1") {
		t.Fatalf("expected computed numbers in prompt, got %q", h.ai.calls[0].Prompt)
	}

	if err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionMenu, Value: router.MenuNumerology}}); err != nil {
		t.Fatalf("second numerology failed: %v", err)
	}
	if reply := h.sender.last(t); !strings.Contains(reply.Text, i18n.FeatureName(lang, domain.FeatureNumerology)) {
		t.Fatalf("expected quota notice on the second reading, got %q", reply.Text)
	}
	if h.ai.count() != 1 {
		t.Fatalf("expected one AI call, got %d", h.ai.count())
	}
}

func TestNatalChartIsPremiumOnly(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	if err := h.send(t, cmd(router.CommandNatal)); err != nil {
		t.Fatalf("natal failed: %v", err)
	}
	want := i18n.T(domain.LanguageRussian, i18n.PremiumOnly, i18n.FeatureName(domain.LanguageRussian, domain.FeatureNatal))
	if reply := h.sender.last(t); reply.Text != want {
		t.Fatalf("expected premium only notice, got %q", reply.Text)
	}

	p := h.store.get(7)
	p.Tier = domain.TierPremium
	h.store.put(p)

	if err := h.send(t, cmd(router.CommandNatal)); err != nil {
		t.Fatalf("premium natal failed: %v", err)
	}
	reply := h.sender.last(t)
	if !strings.Contains(reply.Text, "14:30") || !strings.Contains(reply.Text, "Москва") || !strings.Contains(reply.Text, "The stars favour you.") {
		t.Fatalf("expected birth data and interpretation, got %q", reply.Text)
	}
	if !strings.Contains(h.ai.calls[0].Prompt, "Sun sign: Pisces") {
		t.Fatalf("expected sun sign in prompt, got %q", h.ai.calls[0].Prompt)
	}
}

func TestPersistenceFailureNeverClaimsSuccess(t *testing.T) {
	h := newHarness(t)
	if err := h.send(t, cmd(router.CommandStart)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.store.applyErr = errors.New("mongo down")

	err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionLanguage, Value: "es"}})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.LanguageEnglish, i18n.RetryLater) {
		t.Fatalf("expected retry-later reply, got %q", reply.Text)
	}
	if p := h.store.get(7); p.Stage != domain.StageNew || p.Language != "" {
		t.Fatalf("expected no partial state, got %+v", p)
	}
}

func TestLoadFailureRepliesRetryLater(t *testing.T) {
	h := newHarness(t)
	h.store.loadErr = errors.New("timeout")

	if err := h.send(t, cmd(router.CommandStart)); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.DefaultLanguage, i18n.RetryLater) {
		t.Fatalf("expected retry-later reply, got %q", reply.Text)
	}
}

func TestVersionConflictReroutes(t *testing.T) {
	h := newHarness(t)
	if err := h.send(t, cmd(router.CommandStart)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.store.conflicts = 1

	if err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionLanguage, Value: "en"}}); err != nil {
		t.Fatalf("expected conflict to be retried, got %v", err)
	}
	if p := h.store.get(7); p.Stage != domain.StageLanguageSelected {
		t.Fatalf("expected language selected after retry, got %s", p.Stage)
	}
	if h.store.applies != 2 {
		t.Fatalf("expected two apply attempts, got %d", h.store.applies)
	}
}

func TestPersistentConflictGivesUp(t *testing.T) {
	h := newHarness(t)
	if err := h.send(t, cmd(router.CommandStart)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.store.conflicts = maxApplyAttempts

	err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionLanguage, Value: "en"}})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected failure after bounded attempts, got %v", err)
	}
	if h.store.applies != maxApplyAttempts {
		t.Fatalf("expected %d attempts, got %d", maxApplyAttempts, h.store.applies)
	}
}

func TestInvoiceAndPayment(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	if err := h.send(t, router.Event{Kind: router.KindCallback, Callback: router.Callback{Action: router.ActionPlan, Value: router.PlanMonthly}}); err != nil {
		t.Fatalf("plan selection failed: %v", err)
	}
	if len(h.sender.invoices) != 1 || h.sender.invoices[0].Payload != "premium:monthly:7" {
		t.Fatalf("expected monthly invoice, got %+v", h.sender.invoices)
	}

	pay := router.Event{Kind: router.KindPayment, Payment: &router.Payment{
		Payload:  h.sender.invoices[0].Payload,
		Currency: router.CurrencyStars,
		Amount:   250,
		ChargeID: "charge-1",
	}}
	if err := h.send(t, pay); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	p := h.store.get(7)
	if !p.IsPremium(engineNow) || !p.TierExpiry.Equal(engineNow.Add(30*24*time.Hour)) {
		t.Fatalf("expected 30 days of premium, got %+v", p.TierExpiry)
	}
	if entry := h.entry("payment_received"); entry == nil || entry.Data["charge_id"] != "charge-1" {
		t.Fatalf("expected credited payment logged with its charge id, got %+v", entry)
	}
}

func (h *harness) entry(event string) *logrus.Entry {
	for _, entry := range h.hook.AllEntries() {
		if entry.Data["event"] == event {
			return entry
		}
	}
	return nil
}

func TestUncreditedPaymentLogsChargeID(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)
	h.store.applyErr = errors.New("mongo down")

	pay := router.Event{Kind: router.KindPayment, Payment: &router.Payment{
		Payload:  router.InvoicePayload(router.PlanMonthly, 7),
		Currency: router.CurrencyStars,
		Amount:   250,
		ChargeID: "charge-lost",
	}}
	if err := h.send(t, pay); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	entry := h.entry("payment_failed")
	if entry == nil {
		t.Fatalf("expected payment_failed log")
	}
	if entry.Level != logrus.ErrorLevel || entry.Data["charge_id"] != "charge-lost" || entry.Data["user_id"] != int64(7) {
		t.Fatalf("expected error with charge id and payer, got level=%s data=%+v", entry.Level, entry.Data)
	}
	if p := h.store.get(7); p.IsPremium(engineNow) {
		t.Fatalf("expected no premium without a persisted credit")
	}
}

func TestLifetimePaymentIsFlaggedForRefund(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)
	p := h.store.get(7)
	p.Tier = domain.TierPremium
	h.store.put(p)

	pay := router.Event{Kind: router.KindPayment, Payment: &router.Payment{
		Payload:  router.InvoicePayload(router.PlanMonthly, 7),
		Currency: router.CurrencyStars,
		Amount:   250,
		ChargeID: "charge-extra",
	}}
	if err := h.send(t, pay); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	entry := h.entry("payment_not_credited")
	if entry == nil || entry.Data["charge_id"] != "charge-extra" || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected lifetime payment flagged with its charge id, got %+v", entry)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.LanguageRussian, i18n.AlreadyLifetime) {
		t.Fatalf("expected lifetime reply, got %q", reply.Text)
	}
}

func TestOwnerGrantAndStats(t *testing.T) {
	h := newHarness(t)
	h.onboard(t)

	owner := router.Event{Kind: router.KindCommand, Command: router.CommandGrant, Args: "7 10", Identity: identity(42)}
	if err := h.send(t, owner); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if p := h.store.get(7); !p.IsPremium(engineNow) {
		t.Fatalf("expected target to be premium")
	}
	if reply := h.sender.last(t); !strings.Contains(reply.Text, "7") || !strings.Contains(reply.Text, "11.05.2024") {
		t.Fatalf("unexpected grant reply %q", reply.Text)
	}

	missing := router.Event{Kind: router.KindCommand, Command: router.CommandGrant, Args: "999 10", Identity: identity(42)}
	if err := h.send(t, missing); err != nil {
		t.Fatalf("grant to missing user failed: %v", err)
	}
	if reply := h.sender.last(t); reply.Text != i18n.T(domain.LanguageEnglish, i18n.GrantNotFound, "999") {
		t.Fatalf("expected not found reply, got %q", reply.Text)
	}

	stats := router.Event{Kind: router.KindCommand, Command: router.CommandStats, Identity: identity(42)}
	if err := h.send(t, stats); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if reply := h.sender.last(t); !strings.Contains(reply.Text, "10") || !strings.Contains(reply.Text, "6") {
		t.Fatalf("unexpected stats reply %q", reply.Text)
	}
}

func TestStateCorruptionIsLoggedAndReset(t *testing.T) {
	h := newHarness(t)
	h.store.put(domain.Profile{UserID: 7, ChatID: 70, Stage: domain.StageReady, Tier: domain.TierFree})

	if err := h.send(t, cmd(router.CommandHoroscope)); err != nil {
		t.Fatalf("expected reset to be handled, got %v", err)
	}
	if p := h.store.get(7); p.Stage != domain.StageNew {
		t.Fatalf("expected reset to new, got %s", p.Stage)
	}

	found := false
	for _, entry := range h.hook.AllEntries() {
		if entry.Data["action"] == "state_reset" && entry.Level == logrus.WarnLevel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected state reset warning")
	}
}
