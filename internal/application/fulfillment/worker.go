package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickshop/product-service/internal/domain/messaging"
	domorder "github.com/quickshop/product-service/internal/domain/order"
	domproduct "github.com/quickshop/product-service/internal/domain/product"
	"github.com/quickshop/product-service/internal/observability"
	"github.com/quickshop/product-service/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	workerService        = "fulfillment-worker"
	useCaseFulfill       = "fulfillment.process"
	spanPrefix           = "UC."
	defaultLookupTimeout = 3 * time.Second
)

// Worker consumes fulfillment requests and drives each order to a terminal
// status. Returning an error from the handler asks the broker to redeliver;
// permanent outcomes are recorded on the order and acknowledged.
type Worker struct {
	orders        domorder.Repository
	products      domproduct.Repository
	subscriber    messaging.Subscriber
	lookupTimeout time.Duration
	tel           observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func New(
	orders domorder.Repository,
	products domproduct.Repository,
	subscriber messaging.Subscriber,
	lookupTimeout time.Duration,
	tel observability.Telemetry,
) *Worker {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	return &Worker{
		orders:        orders,
		products:      products,
		subscriber:    subscriber,
		lookupTimeout: lookupTimeout,
		tel:           tel,
		log:           tel.Logger().With(observability.F("service", workerService)),
		reqCounter:    tel.Counter(observability.MUsecaseRequests),
		durHistogram:  tel.Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.orders == nil {
		return
	}
	w.subscriber.Subscribe(w.Handle)
}

// Handle processes one delivery. It is exported so tests and in-process
// brokers can drive it directly.
func (w *Worker) Handle(ctx context.Context, msg messaging.FulfillmentRequest) (err error) {
	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"Fulfill",
		attribute.String("use_case", useCaseFulfill),
		attribute.String("order.id", msg.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCaseFulfill),
		observability.F("order_id", msg.OrderID),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCaseFulfill, outcome, lat)

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)

		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	current, err := w.orders.Get(ctx, msg.OrderID)
	if err != nil {
		if errors.Is(err, domorder.ErrNotFound) {
			// Nothing to transition; redelivering cannot help.
			outcome, status = "ignored", "ORDER_UNKNOWN"
			logger.Warn("fulfillment_order_unknown")
			return nil
		}
		outcome, status = "error", "ORDER_LOAD_FAILED"
		return fmt.Errorf("fulfillment: load order: %w", err)
	}

	// Duplicate delivery guard: a terminal order is acknowledged untouched.
	if current.Terminal() {
		outcome, status = "ignored", "ALREADY_TERMINAL"
		span.AddEvent("order.duplicate_delivery",
			trace.WithAttributes(attribute.String("order.status", string(current.Status))),
		)
		return nil
	}

	failureReason, err := w.checkProducts(ctx, msg.ProductIDs)
	if err != nil {
		// Transient store failure or timeout: leave the order pending and
		// let the broker redeliver.
		outcome, status = "error", "PRODUCT_CHECK_TRANSIENT"
		return fmt.Errorf("fulfillment: product check: %w", err)
	}

	updated, err := w.orders.Transition(ctx, msg.OrderID, func(o *domorder.Order) error {
		if o.Terminal() {
			return nil
		}
		if failureReason != "" {
			return o.Fail(failureReason)
		}
		return o.Complete()
	})
	if err != nil {
		outcome, status = "error", "ORDER_TRANSITION_FAILED"
		return fmt.Errorf("fulfillment: transition: %w", err)
	}

	if updated.Status == domorder.StatusFailed {
		status = "ORDER_FAILED"
		logger.Warn("fulfillment_failed",
			observability.F("reason", updated.FailureReason),
		)
	}
	span.SetAttributes(attribute.String("order.status", string(updated.Status)))
	return nil
}

// checkProducts validates existence and price availability for every product
// in the order. It returns a non-empty failure reason for permanent problems
// and an error for transient ones.
func (w *Worker) checkProducts(ctx context.Context, productIDs []string) (string, error) {
	for _, pid := range productIDs {
		lookupCtx, cancel := context.WithTimeout(ctx, w.lookupTimeout)
		p, err := w.products.Get(lookupCtx, pid)
		cancel()

		switch {
		case err == nil:
			if p.Price < 0 {
				return fmt.Sprintf("product %s has no valid price", pid), nil
			}
		case errors.Is(err, domproduct.ErrNotFound):
			return fmt.Sprintf("product %s not found", pid), nil
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return "", err
		default:
			return "", err
		}
	}
	return "", nil
}

func (w *Worker) observe(useCase, outcome string, latencySeconds float64) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
