// Package delivery sends the daily horoscope to every profile whose delivery
// time has passed. Each profile is claimed with a conditional update before
// anything is generated, so overlapping or repeated runs deliver at most once
// per profile per day.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"astro_bot/internal/ai"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/logging"
	"astro_bot/internal/metrics"
	"astro_bot/internal/router"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	displayDate = "02.01.2006"

	defaultConcurrency = 4
	defaultLockTTL     = 30 * time.Minute
	persistTimeout     = 5 * time.Second
)

// Per-profile results, also used as metric labels.
const (
	ResultDelivered = "delivered"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

type dueStore interface {
	ListDue(ctx context.Context, clock, date string) ([]domain.Profile, error)
	ClaimDelivery(ctx context.Context, userID int64, date string) (string, bool, error)
	ReleaseDelivery(ctx context.Context, userID int64, date, previous string) error
}

type completer interface {
	Complete(ctx context.Context, req ai.Request) ai.Completion
}

type sender interface {
	Send(ctx context.Context, chatID int64, reply router.Reply) error
}

type runCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Failure describes one profile the batch could not serve.
type Failure struct {
	UserID int64  `bson:"user_id"`
	Reason string `bson:"reason"`
}

// Report summarizes one batch run.
type Report struct {
	RunID      string    `bson:"run_id"`
	Date       string    `bson:"date"`
	Clock      string    `bson:"clock"`
	StartedAt  time.Time `bson:"started_at"`
	FinishedAt time.Time `bson:"finished_at"`
	Skipped    bool      `bson:"skipped"`
	Candidates int       `bson:"candidates"`
	Delivered  int       `bson:"delivered"`
	Duplicates int       `bson:"duplicates"`
	Failures   []Failure `bson:"failures,omitempty"`
}

// Deps are the collaborators of a Runner. Runs and Lock are optional.
type Deps struct {
	Profiles    dueStore
	AI          completer
	Sender      sender
	Runs        runCollection
	Lock        Lock
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *logrus.Entry
}

// Runner executes delivery batches.
type Runner struct {
	profiles    dueStore
	ai          completer
	sender      sender
	runs        runCollection
	lock        Lock
	lockTTL     time.Duration
	concurrency int
	metrics     *metrics.Metrics
	logger      *logrus.Entry
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps Deps) (*Runner, error) {
	if deps.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if deps.AI == nil {
		return nil, errors.New("ai client is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("sender is required")
	}

	lock := deps.Lock
	if lock == nil {
		lock = LocalLock{}
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Runner{
		profiles:    deps.Profiles,
		ai:          deps.AI,
		sender:      deps.Sender,
		runs:        deps.Runs,
		lock:        lock,
		lockTTL:     defaultLockTTL,
		concurrency: concurrency,
		metrics:     deps.Metrics,
		logger:      logging.Component(deps.Logger, "delivery"),
	}, nil
}

// RunDailyBatch delivers today's horoscope to every due profile. Per-profile
// failures are collected in the report and released for the next run; only
// failures to list candidates or take the lock are returned as errors.
func (r *Runner) RunDailyBatch(ctx context.Context, now time.Time) (Report, error) {
	now = now.UTC()
	report := Report{
		RunID:     uuid.NewString(),
		Date:      now.Format(dateLayout),
		Clock:     now.Format(clockLayout),
		StartedAt: now,
	}
	log := r.logger.WithFields(logrus.Fields{"run_id": report.RunID, "date": report.Date})

	unlock, ok, err := r.lock.TryLock(ctx, r.lockTTL)
	if err != nil {
		r.metrics.BatchRun("error")
		return report, err
	}
	if !ok {
		report.Skipped = true
		r.metrics.BatchRun("skipped")
		log.WithField("event", "batch_skipped").Info("another replica holds the delivery lock")
		return report, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).WithField("event", "batch_unlock_failed").Warn("failed to release delivery lock")
		}
	}()

	due, err := r.profiles.ListDue(ctx, report.Clock, report.Date)
	if err != nil {
		r.metrics.BatchRun("error")
		return report, fmt.Errorf("list due profiles: %w", err)
	}
	report.Candidates = len(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, p := range due {
		g.Go(func() error {
			result, reason := r.deliver(ctx, p, now, report.Date)
			r.metrics.Delivery(result)

			mu.Lock()
			defer mu.Unlock()
			switch result {
			case ResultDelivered:
				report.Delivered++
			case ResultDuplicate:
				report.Duplicates++
			default:
				report.Failures = append(report.Failures, Failure{UserID: p.UserID, Reason: reason})
			}
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	if report.FinishedAt.Before(report.StartedAt) {
		report.FinishedAt = report.StartedAt
	}
	r.metrics.BatchRun("ok")
	r.persist(ctx, log, report)

	log.WithFields(logrus.Fields{
		"event":      "batch_finished",
		"candidates": report.Candidates,
		"delivered":  report.Delivered,
		"duplicates": report.Duplicates,
		"failures":   len(report.Failures),
	}).Info("delivery batch finished")

	return report, nil
}

func (r *Runner) deliver(ctx context.Context, p domain.Profile, now time.Time, date string) (string, string) {
	log := logging.Enrich(r.logger, logging.Context{UserID: p.UserID, ChatID: p.ChatID})

	previous, claimed, err := r.profiles.ClaimDelivery(ctx, p.UserID, date)
	if err != nil {
		log.WithError(err).WithField("event", "delivery_claim_failed").Warn("failed to claim delivery")
		return ResultFailed, "claim: " + err.Error()
	}
	if !claimed {
		return ResultDuplicate, ""
	}

	reason := ""
	completion := r.ai.Complete(ctx, ai.HoroscopeRequest(p, now))
	if completion.Failure != nil {
		reason = "ai: " + string(completion.Failure.Reason)
	} else {
		lang := p.Lang()
		reply := router.Reply{
			Text:     i18n.T(lang, i18n.DailyHoroscopeTitle, now.Format(displayDate), completion.Text),
			Keyboard: router.MainMenu(lang),
		}
		if err := r.sender.Send(ctx, p.ChatID, reply); err != nil {
			reason = "send: " + err.Error()
		}
	}

	if reason == "" {
		log.WithField("event", "delivery_sent").Debug("daily horoscope delivered")
		return ResultDelivered, ""
	}

	if err := r.profiles.ReleaseDelivery(context.WithoutCancel(ctx), p.UserID, date, previous); err != nil {
		log.WithError(err).WithField("event", "delivery_release_failed").Error("failed to release delivery claim")
	}
	log.WithFields(logrus.Fields{"event": "delivery_failed", "reason": reason}).Warn("daily horoscope not delivered")

	return ResultFailed, reason
}

func (r *Runner) persist(ctx context.Context, log *logrus.Entry, report Report) {
	if r.runs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if _, err := r.runs.InsertOne(ctx, report); err != nil {
		log.WithError(err).WithField("event", "batch_report_failed").Warn("failed to persist delivery report")
	}
}
