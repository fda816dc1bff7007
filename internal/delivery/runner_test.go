package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"astro_bot/internal/ai"
	"astro_bot/internal/domain"
	"astro_bot/internal/metrics"
	"astro_bot/internal/router"
)

var batchNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type memProfiles struct {
	mu       sync.Mutex
	profiles map[int64]*domain.Profile
	listErr  error
	claimErr error
	releases int
}

func newMemProfiles(profiles ...domain.Profile) *memProfiles {
	m := &memProfiles{profiles: map[int64]*domain.Profile{}}
	for i := range profiles {
		p := profiles[i]
		m.profiles[p.UserID] = &p
	}
	return m
}

func (m *memProfiles) ListDue(_ context.Context, clock, date string) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var due []domain.Profile
	for _, p := range m.profiles {
		if p.Stage == domain.StageReady && p.DeliveryTime != "" && p.DeliveryTime <= clock && p.LastDeliveryDate != date {
			due = append(due, *p)
		}
	}
	return due, nil
}

func (m *memProfiles) ClaimDelivery(_ context.Context, userID int64, date string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return "", false, m.claimErr
	}
	p, ok := m.profiles[userID]
	if !ok || p.Stage != domain.StageReady || p.LastDeliveryDate == date {
		return "", false, nil
	}
	previous := p.LastDeliveryDate
	p.LastDeliveryDate = date
	return previous, true, nil
}

func (m *memProfiles) ReleaseDelivery(_ context.Context, userID int64, date, previous string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	if p, ok := m.profiles[userID]; ok && p.LastDeliveryDate == date {
		p.LastDeliveryDate = previous
	}
	return nil
}

func (m *memProfiles) lastDelivery(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID].LastDeliveryDate
}

type stubAI struct {
	mu     sync.Mutex
	calls  int
	failed map[int64]bool
}

func (s *stubAI) Complete(_ context.Context, req ai.Request) ai.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for uid := range s.failed {
		if strings.Contains(req.Prompt, marker(uid)) {
			return ai.Completion{Text: "fallback", Failure: &ai.Failure{Reason: ai.ReasonTimeout}}
		}
	}
	return ai.Completion{Text: "The stars align."}
}

type sent struct {
	chatID int64
	reply  router.Reply
}

type stubSender struct {
	mu    sync.Mutex
	sent  []sent
	errOn map[int64]error
}

func (s *stubSender) Send(_ context.Context, chatID int64, reply router.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errOn[chatID]; err != nil {
		return err
	}
	s.sent = append(s.sent, sent{chatID: chatID, reply: reply})
	return nil
}

type stubRuns struct {
	mu      sync.Mutex
	reports []Report
}

func (s *stubRuns) InsertOne(_ context.Context, doc interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, doc.(Report))
	return &mongo.InsertOneResult{}, nil
}

type deniedLock struct{}

func (deniedLock) TryLock(context.Context, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

// marker is a birth place unique to a user so the AI stub can recognize the prompt.
func marker(userID int64) string {
	return "Town-" + string(rune('A'+userID))
}

func readyProfile(userID int64, clock, last string) domain.Profile {
	birth := time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC)
	return domain.Profile{
		UserID:           userID,
		ChatID:           userID * 10,
		Language:         domain.LanguageEnglish,
		Stage:            domain.StageReady,
		BirthDate:        &birth,
		BirthTime:        domain.Ptr("12:00"),
		BirthPlace:       domain.Ptr(marker(userID)),
		DeliveryTime:     clock,
		LastDeliveryDate: last,
	}
}

func deliveries(t *testing.T, m *metrics.Metrics, result string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "astro_bot_deliveries_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func newRunner(t *testing.T, deps Deps) (*Runner, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	deps.Logger = logrus.NewEntry(logger)
	r, err := NewRunner(deps)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r, hook
}

func TestRunDailyBatchDeliversDueProfiles(t *testing.T) {
	store := newMemProfiles(
		readyProfile(1, "08:00", "2026-03-09"),
		readyProfile(2, "09:00", ""),
		readyProfile(3, "10:00", ""),           // not yet due
		readyProfile(4, "", ""),                // deliveries disabled
		readyProfile(5, "07:00", "2026-03-10"), // already delivered today
	)
	notReady := readyProfile(6, "07:00", "")
	notReady.Stage = domain.StageCollectingBirthData
	store.profiles[6] = &notReady

	m := metrics.New()
	runs := &stubRuns{}
	sender := &stubSender{}
	r, _ := newRunner(t, Deps{Profiles: store, AI: &stubAI{}, Sender: sender, Runs: runs, Metrics: m})

	report, err := r.RunDailyBatch(context.Background(), batchNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Candidates != 2 || report.Delivered != 2 || report.Duplicates != 0 || len(report.Failures) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.RunID == "" || report.Date != "2026-03-10" {
		t.Fatalf("expected run id and date, got %+v", report)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected two messages, got %d", len(sender.sent))
	}
	for _, s := range sender.sent {
		if !strings.Contains(s.reply.Text, "10.03.2026") || !strings.Contains(s.reply.Text, "The stars align.") {
			t.Fatalf("unexpected delivery text %q", s.reply.Text)
		}
		if len(s.reply.Keyboard) == 0 {
			t.Fatalf("expected main menu keyboard")
		}
	}
	if got := store.lastDelivery(1); got != "2026-03-10" {
		t.Fatalf("expected profile marked delivered, got %q", got)
	}
	if len(runs.reports) != 1 || runs.reports[0].RunID != report.RunID {
		t.Fatalf("expected report persisted, got %+v", runs.reports)
	}
	if got := deliveries(t, m, ResultDelivered); got != 2 {
		t.Fatalf("expected delivered metric 2, got %v", got)
	}
}

func TestRunDailyBatchTwiceSameDayDeliversOnce(t *testing.T) {
	store := newMemProfiles(readyProfile(1, "08:00", ""), readyProfile(2, "08:30", ""))
	sender := &stubSender{}
	r, _ := newRunner(t, Deps{Profiles: store, AI: &stubAI{}, Sender: sender})

	if _, err := r.RunDailyBatch(context.Background(), batchNow); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.RunDailyBatch(context.Background(), batchNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Candidates != 0 || second.Delivered != 0 {
		t.Fatalf("expected nothing left on the second run, got %+v", second)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected exactly one message per profile, got %d", len(sender.sent))
	}
}

func TestConcurrentRunsDeliverAtMostOnce(t *testing.T) {
	var profiles []domain.Profile
	for uid := int64(1); uid <= 20; uid++ {
		profiles = append(profiles, readyProfile(uid, "08:00", ""))
	}
	store := newMemProfiles(profiles...)
	sender := &stubSender{}
	r, _ := newRunner(t, Deps{Profiles: store, AI: &stubAI{}, Sender: sender, Concurrency: 3})

	var wg sync.WaitGroup
	reports := make([]Report, 3)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], _ = r.RunDailyBatch(context.Background(), batchNow)
		}()
	}
	wg.Wait()

	delivered := 0
	for _, rep := range reports {
		delivered += rep.Delivered
	}
	if delivered != 20 || len(sender.sent) != 20 {
		t.Fatalf("expected 20 deliveries in total, got %d (sent %d)", delivered, len(sender.sent))
	}
}

func TestRunDailyBatchReleasesFailedProfiles(t *testing.T) {
	store := newMemProfiles(
		readyProfile(1, "08:00", "2026-03-09"),
		readyProfile(2, "08:00", ""),
		readyProfile(3, "08:00", ""),
	)
	aiStub := &stubAI{failed: map[int64]bool{1: true}}
	sender := &stubSender{errOn: map[int64]error{20: errors.New("bot was blocked by the user")}}
	m := metrics.New()
	r, hook := newRunner(t, Deps{Profiles: store, AI: aiStub, Sender: sender, Metrics: m})

	report, err := r.RunDailyBatch(context.Background(), batchNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Delivered != 1 || len(report.Failures) != 2 {
		t.Fatalf("expected one delivery and two failures, got %+v", report)
	}
	if got := store.lastDelivery(1); got != "2026-03-09" {
		t.Fatalf("expected claim released to previous date, got %q", got)
	}
	if got := store.lastDelivery(2); got != "" {
		t.Fatalf("expected claim released, got %q", got)
	}
	if store.releases != 2 {
		t.Fatalf("expected two releases, got %d", store.releases)
	}
	if got := deliveries(t, m, ResultFailed); got != 2 {
		t.Fatalf("expected failed deliveries metric 2, got %v", got)
	}

	failures := 0
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "delivery_failed" {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected two delivery_failed entries, got %d", failures)
	}

	// The next run retries them.
	aiStub.failed = nil
	sender.errOn = nil
	retry, err := r.RunDailyBatch(context.Background(), batchNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if retry.Candidates != 2 || retry.Delivered != 2 {
		t.Fatalf("expected failed profiles retried, got %+v", retry)
	}
}

func TestRunDailyBatchSkipsWhenLockHeld(t *testing.T) {
	store := newMemProfiles(readyProfile(1, "08:00", ""))
	sender := &stubSender{}
	r, _ := newRunner(t, Deps{Profiles: store, AI: &stubAI{}, Sender: sender, Lock: deniedLock{}})

	report, err := r.RunDailyBatch(context.Background(), batchNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Skipped || len(sender.sent) != 0 {
		t.Fatalf("expected skipped run, got %+v", report)
	}
}

func TestRunDailyBatchReturnsListErrors(t *testing.T) {
	store := newMemProfiles()
	store.listErr = errors.New("mongo down")
	r, _ := newRunner(t, Deps{Profiles: store, AI: &stubAI{}, Sender: &stubSender{}})

	if _, err := r.RunDailyBatch(context.Background(), batchNow); err == nil || !strings.Contains(err.Error(), "mongo down") {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestNewRunnerValidatesDeps(t *testing.T) {
	if _, err := NewRunner(Deps{AI: &stubAI{}, Sender: &stubSender{}}); err == nil {
		t.Fatalf("expected error without profile store")
	}
	if _, err := NewRunner(Deps{Profiles: newMemProfiles(), Sender: &stubSender{}}); err == nil {
		t.Fatalf("expected error without ai client")
	}
	if _, err := NewRunner(Deps{Profiles: newMemProfiles(), AI: &stubAI{}}); err == nil {
		t.Fatalf("expected error without sender")
	}
}
