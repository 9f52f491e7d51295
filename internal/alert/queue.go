package alert

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the forwarding queue cannot take another record.
var ErrQueueFull = errors.New("forward queue full")

// Queue hands alerts to slow notifiers off the event path. Notify never
// blocks: when the buffer is full the record is dropped and ErrQueueFull is
// returned. Run delivers queued records to every notifier in order.
type Queue struct {
	records   chan Record
	notifiers []Notifier
	timeout   time.Duration
	logger    *logrus.Entry
}

// NewQueue creates a queue holding up to size records. timeout bounds each
// notifier call.
func NewQueue(size int, timeout time.Duration, logger *logrus.Entry, notifiers ...Notifier) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		records:   make(chan Record, size),
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}
}

func (q *Queue) Name() string { return "queue" }

func (q *Queue) Notify(_ context.Context, r Record) error {
	select {
	case q.records <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case r := <-q.records:
			q.deliver(ctx, r)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) deliver(ctx context.Context, r Record) {
	for _, n := range q.notifiers {
		callCtx, cancel := q.callContext(ctx)
		err := n.Notify(callCtx, r)
		cancel()

		if err != nil {
			q.logger.WithFields(logrus.Fields{
				"notifier": n.Name(),
				"alert_id": r.ID,
			}).WithError(err).Error("Failed to forward alert")
		}
	}
}

func (q *Queue) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.timeout)
}
