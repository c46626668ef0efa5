package inmem

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/quickshop/product-service/internal/domain/messaging"
	"github.com/quickshop/product-service/internal/observability"
	"github.com/quickshop/product-service/internal/observability/logctx"
)

const componentBroker = "inmem_broker"

// Broker is an in-process stand-in for the message broker, used in tests and
// brokerless runs. It is not durable; deliveries survive handler errors via
// bounded in-memory redelivery only.
type Broker struct {
	mu            sync.RWMutex
	handler       messaging.Handler
	queue         chan delivery
	startOnce     sync.Once
	stopOnce      sync.Once
	cancel        context.CancelFunc
	done          chan struct{}
	maxAttempts   int
	handleTimeout time.Duration
	redeliverWait time.Duration
	log           observability.Logger
}

type delivery struct {
	msg      messaging.FulfillmentRequest
	attempts int
}

func NewBroker(logger observability.Logger) *Broker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Broker{
		queue:         make(chan delivery, 1024), // buffer for backpressure
		maxAttempts:   5,
		handleTimeout: 30 * time.Second,
		redeliverWait: 50 * time.Millisecond,
		done:          make(chan struct{}),
		log:           logger.With(observability.F("component", componentBroker)),
	}
}

func (b *Broker) Subscribe(h messaging.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("broker_started")
	})
}

func (b *Broker) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		close(b.done)
		logctx.FromOr(ctx, b.log).Info("broker_stopped")
	})
}

func (b *Broker) Publish(ctx context.Context, msg messaging.FulfillmentRequest) error {
	select {
	case b.queue <- delivery{msg: msg}:
		b.log.Debug("fulfillment_enqueued", observability.F("order_id", msg.OrderID))
		return nil
	case <-ctx.Done():
		b.log.Warn("fulfillment_enqueue_aborted",
			observability.F("order_id", msg.OrderID),
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Broker) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.queue:
			b.deliver(ctx, d)
		}
	}
}

func (b *Broker) deliver(ctx context.Context, d delivery) {
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()

	if handler == nil {
		b.log.Debug("fulfillment_dropped_no_subscriber",
			observability.F("order_id", d.msg.OrderID),
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler_panic",
				observability.F("order_id", d.msg.OrderID),
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, b.handleTimeout)
	err := handler(hctx, d.msg)
	cancel()
	if err == nil {
		return
	}

	d.attempts++
	if d.attempts >= b.maxAttempts {
		b.log.Error("fulfillment_redelivery_exhausted",
			observability.F("order_id", d.msg.OrderID),
			observability.F("attempts", d.attempts),
			observability.F("error", err.Error()),
		)
		return
	}

	b.log.Warn("fulfillment_redelivery_scheduled",
		observability.F("order_id", d.msg.OrderID),
		observability.F("attempt", d.attempts),
		observability.F("error", err.Error()),
	)
	redelivery := d
	time.AfterFunc(b.redeliverWait, func() {
		select {
		case b.queue <- redelivery:
		case <-b.done:
		}
	})
}
