package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"astro_bot/internal/logging"
	"astro_bot/internal/router"
)

const (
	defaultEventTimeout = 2 * time.Minute
	defaultMaxQueued    = 32
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// ErrQueueFull is returned when a user has too many pending events.
var ErrQueueFull = errors.New("user event queue full")

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev router.Event) error

type mailbox struct {
	events []router.Event
}

// Dispatcher runs events of the same user in arrival order and events of
// different users in parallel. A user has at most one drain goroutine, which
// exits as soon as the mailbox is empty.
type Dispatcher struct {
	handle       HandlerFunc
	logger       *logrus.Entry
	eventTimeout time.Duration
	maxQueued    int

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	boxes  map[int64]*mailbox
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher that feeds handle.
func NewDispatcher(handle HandlerFunc, logger *logrus.Entry) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handle:       handle,
		logger:       logging.Component(logger, "dispatcher"),
		eventTimeout: defaultEventTimeout,
		maxQueued:    defaultMaxQueued,
		baseCtx:      ctx,
		cancel:       cancel,
		boxes:        make(map[int64]*mailbox),
	}
}

// Dispatch enqueues ev behind the pending events of the same user.
func (d *Dispatcher) Dispatch(ev router.Event) error {
	userID := ev.Identity.UserID

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if box, ok := d.boxes[userID]; ok {
		if len(box.events) >= d.maxQueued {
			d.mu.Unlock()
			return fmt.Errorf("%w: user %d", ErrQueueFull, userID)
		}
		box.events = append(box.events, ev)
		d.mu.Unlock()
		return nil
	}

	box := &mailbox{events: []router.Event{ev}}
	d.boxes[userID] = box
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(userID, box)
	return nil
}

func (d *Dispatcher) drain(userID int64, box *mailbox) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(box.events) == 0 {
			delete(d.boxes, userID)
			d.mu.Unlock()
			return
		}
		ev := box.events[0]
		box.events[0] = router.Event{}
		box.events = box.events[1:]
		d.mu.Unlock()

		d.run(ev)
	}
}

func (d *Dispatcher) run(ev router.Event) {
	log := logging.Enrich(d.logger, logging.Context{
		UserID: ev.Identity.UserID,
		ChatID: ev.Identity.ChatID,
		Event:  ev.Kind.String(),
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"event": "handler_panic",
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("recovered panic while handling event")
		}
	}()

	ctx, cancel := context.WithTimeout(d.baseCtx, d.eventTimeout)
	defer cancel()

	if err := d.handle(ctx, ev); err != nil {
		log.WithError(err).WithField("event", "handle_failed").Error("failed to handle event")
	}
}

// Pending returns the number of users with queued or running events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.boxes)
}

// Close stops accepting events and waits for queued ones to finish. When ctx
// ends first, in-flight handlers are canceled and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
