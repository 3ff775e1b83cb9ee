package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/metrics"
	"github.com/GTDGit/gtd_auth/internal/notify"
)

// ErrQueueFull is returned by Send when the delivery queue has no room.
var ErrQueueFull = errors.New("notification queue full")

const sendTimeout = 30 * time.Second

type notification struct {
	template  notify.Template
	recipient string
	params    map[string]string
}

// NotificationWorker queues messages and delivers them in the background
// through sender, retrying failures with capped exponential backoff.
// It implements notify.Notifier, so services never wait on SMTP.
type NotificationWorker struct {
	sender     notify.Notifier
	queue      chan notification
	workers    int
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
	metrics    *metrics.Metrics
}

// NewNotificationWorker constructs a NotificationWorker.
func NewNotificationWorker(sender notify.Notifier, cfg config.NotifyConfig, m *metrics.Metrics) *NotificationWorker {
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay < base {
		maxDelay = base
	}
	return &NotificationWorker{
		sender:     sender,
		queue:      make(chan notification, size),
		workers:    workers,
		maxRetries: cfg.MaxRetries,
		baseDelay:  base,
		maxDelay:   maxDelay,
		metrics:    m,
	}
}

// Send enqueues a message without blocking.
func (w *NotificationWorker) Send(_ context.Context, tmpl notify.Template, recipient string, params map[string]string) error {
	select {
	case w.queue <- notification{template: tmpl, recipient: recipient, params: params}:
		return nil
	default:
		w.metrics.Email(string(tmpl), "dropped")
		return ErrQueueFull
	}
}

// Start runs the delivery loops and blocks until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	log.Info().Int("workers", w.workers).Msg("Starting notification worker")

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case n := <-w.queue:
					w.run(ctx, n)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()

	log.Info().Int("pending", len(w.queue)).Msg("Notification worker stopped")
}

func (w *NotificationWorker) run(ctx context.Context, n notification) {
	b := retry.NewExponential(w.baseDelay)
	b = retry.WithCappedDuration(w.maxDelay, b)
	b = retry.WithMaxRetries(w.maxRetries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		if err := w.sender.Send(sendCtx, n.template, n.recipient, n.params); err != nil {
			log.Warn().Err(err).
				Str("template", string(n.template)).
				Int("attempt", attempt).
				Msg("Email delivery failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		w.metrics.Email(string(n.template), "failed")
		log.Error().Err(err).
			Str("template", string(n.template)).
			Int("attempts", attempt).
			Msg("Giving up on email delivery")
		return
	}
	w.metrics.Email(string(n.template), "sent")
}
