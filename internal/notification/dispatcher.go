package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopflow/orderflow/internal/domain"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Config controls queue size, concurrency and retries.
type Config struct {
	QueueSize    int
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
	SendTimeout  time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		Workers:      2,
		MaxAttempts:  3,
		RetryBackoff: 500 * time.Millisecond,
		SendTimeout:  5 * time.Second,
	}
}

type job struct {
	ctx context.Context
	msg *Message
}

// Dispatcher delivers notifications in the background. Enqueueing never
// blocks the caller and delivery failures never reach it: they are retried,
// then logged and counted.
type Dispatcher struct {
	cfg     Config
	senders map[string]Sender
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers workers. senders maps a channel name to
// the sender for it.
func NewDispatcher(cfg Config, senders map[string]Sender, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	d := &Dispatcher{
		cfg:     cfg,
		senders: senders,
		logger:  logger,
		queue:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue queues msg for delivery. The request context's values (such as the
// correlation ID) are kept but its cancellation is not.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		notificationsDropped.WithLabelValues("closed").Inc()
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		notificationQueueDepth.Inc()
		return nil
	default:
		notificationsDropped.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) SendOrderPlacedEmail(ctx context.Context, o *domain.Order) error {
	return d.Enqueue(ctx, OrderPlacedEmail(o))
}

func (d *Dispatcher) SendOrderPlacedSMS(ctx context.Context, o *domain.Order) error {
	return d.Enqueue(ctx, OrderPlacedSMS(o))
}

func (d *Dispatcher) SendOrderCancelledEmail(ctx context.Context, o *domain.Order) error {
	return d.Enqueue(ctx, OrderCancelledEmail(o))
}

// Close stops accepting messages and waits for the queue to drain or ctx to
// expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		notificationQueueDepth.Dec()
		d.deliver(j.ctx, j.msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg *Message) {
	sender, ok := d.senders[msg.Channel]
	if !ok {
		notificationsFailed.WithLabelValues(msg.Channel).Inc()
		d.logger.WarnContext(ctx, "no sender for notification channel",
			slog.String("channel", msg.Channel),
			slog.String("notification_id", msg.ID),
		)
		return
	}

	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.cfg.RetryBackoff * time.Duration(attempt-1))
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err = sender.Send(sendCtx, msg)
		cancel()
		if err == nil {
			notificationsSent.WithLabelValues(msg.Channel).Inc()
			return
		}

		d.logger.DebugContext(ctx, "notification attempt failed",
			slog.String("notification_id", msg.ID),
			slog.String("sender", sender.Name()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	notificationsFailed.WithLabelValues(msg.Channel).Inc()
	d.logger.WarnContext(ctx, "notification delivery failed",
		slog.String("notification_id", msg.ID),
		slog.String("kind", msg.Kind),
		slog.String("channel", msg.Channel),
		slog.String("order_id", msg.OrderID),
		slog.Int("attempts", d.cfg.MaxAttempts),
		slog.String("error", err.Error()),
	)
}
