// internal/notification/dispatcher.go
package notification

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"librastacks/internal/telemetry"
)

// Dispatcher hands messages to a pool of workers that forward them to the
// wrapped Notifier. Notify never blocks; when the queue is full the message is
// dropped.
type Dispatcher struct {
	next   Notifier
	queue  chan Message
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	delivered metric.Int64Counter
	dropped   metric.Int64Counter
}

func NewDispatcher(next Notifier, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter("librastacks/notification")
	d := &Dispatcher{
		next:      next,
		queue:     make(chan Message, queueSize),
		logger:    logger,
		delivered: telemetry.Counter(meter, "notification.delivered", "Notifications handed to the notifier"),
		dropped:   telemetry.Counter(meter, "notification.dropped", "Notifications dropped on a full queue"),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for msg := range d.queue {
		ctx := context.Background()
		if err := d.next.Notify(ctx, msg); err != nil {
			d.logger.Error("notification failed", "worker", id, "account_id", msg.AccountID, "error", err)
			continue
		}
		d.delivered.Add(ctx, 1)
	}
	d.logger.Debug("notification worker stopped", "worker", id)
}

// Notify queues msg for delivery.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.dropped.Add(ctx, 1)
		d.logger.WarnContext(ctx, "notification queue full, dropping message", "account_id", msg.AccountID, "subject", msg.Subject)
		return ErrQueueFull
	}
}

// Shutdown stops accepting messages and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
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
		return ctx.Err()
	}
}
