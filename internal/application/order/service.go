package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quickshop/product-service/internal/domain/messaging"
	domain "github.com/quickshop/product-service/internal/domain/order"
	domproduct "github.com/quickshop/product-service/internal/domain/product"
	"github.com/quickshop/product-service/internal/observability"
	"github.com/quickshop/product-service/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService         = "order-service"
	useCasePurchase      = "order.purchase"
	spanPrefix           = "UC."
	publishPeer          = "broker"
	publishEndpoint      = "order.fulfillment"
	defaultPublishBudget = 5 * time.Second
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

// Service is the purchase orchestrator: it resolves the requested products,
// persists a pending order, and hands it to the fulfillment publisher. It
// never waits on fulfillment itself.
type Service struct {
	orders      domain.Repository
	products    domproduct.Repository
	idGenerator IDGenerator
	publisher   messaging.Publisher
	tel         observability.Telemetry

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewService(
	orders domain.Repository,
	products domproduct.Repository,
	idGen IDGenerator,
	publisher messaging.Publisher,
	tel observability.Telemetry,
) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		orders:       orders,
		products:     products,
		idGenerator:  idGen,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", orderService)),
		reqCounter:   tel.Counter(observability.MUsecaseRequests),
		durHistogram: tel.Histogram(observability.MUsecaseDuration),
		extCounter:   tel.Counter(observability.MExternalRequests),
		extHistogram: tel.Histogram(observability.MExternalRequestDuration),
	}
}

type PurchaseInput struct {
	CustomerID string
	ProductIDs []string
}

type PurchaseResult struct {
	OrderID  string
	Status   domain.Status
	Products []*domproduct.Product
}

// InitiatePurchase performs the synchronous half of the order lifecycle.
// It returns once the pending order is persisted and the fulfillment request
// is acknowledged by the broker.
func (s *Service) InitiatePurchase(ctx context.Context, cmd PurchaseInput) (_ *PurchaseResult, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCasePurchase))

	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+"InitiatePurchase",
		attribute.String("use_case", useCasePurchase),
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.Int("order.product_count", len(cmd.ProductIDs)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	var orderID string

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCasePurchase),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat,
			observability.L("use_case", useCasePurchase),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if orderID != "" {
			fields = append(fields, observability.F("order_id", orderID))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if len(cmd.ProductIDs) == 0 {
		outcome, statusText = "error", "PRODUCT_IDS_REQUIRED"
		return nil, domain.ErrNoProducts
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	// Resolve every product before creating the order. A malformed id is a
	// client error; a well-formed id that resolves to nothing is not found.
	products := make([]*domproduct.Product, 0, len(cmd.ProductIDs))
	for _, pid := range cmd.ProductIDs {
		if uuid.Validate(pid) != nil {
			outcome, statusText = "error", "PRODUCT_ID_MALFORMED"
			return nil, fmt.Errorf("%w: %q", domproduct.ErrInvalidID, pid)
		}
		p, lookupErr := s.products.Get(ctx, pid)
		if lookupErr != nil {
			if errors.Is(lookupErr, domproduct.ErrNotFound) {
				outcome, statusText = "error", "PRODUCT_NOT_FOUND"
				return nil, fmt.Errorf("%w: %s", domproduct.ErrNotFound, pid)
			}
			outcome, statusText = "error", "PRODUCT_LOOKUP_FAILED"
			return nil, fmt.Errorf("%w: %w", ErrRepository, lookupErr)
		}
		products = append(products, p)
	}

	orderID = s.idGenerator.NewID()
	entity, derr := domain.New(orderID, cmd.CustomerID, cmd.ProductIDs)
	if derr != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, fmt.Errorf("order: construct: %w", derr)
	}

	if err := s.orders.Insert(ctx, entity); err != nil {
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	span.AddEvent("order.created",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)

	pubCtx, cancel := context.WithTimeout(ctx, defaultPublishBudget)
	pubStart := time.Now()
	pubOutcome := "success"
	pubErr := s.publisher.Publish(pubCtx, messaging.FulfillmentRequest{
		OrderID:    entity.ID,
		ProductIDs: entity.ProductIDs,
	})
	cancel()
	if pubErr != nil {
		pubOutcome = "error"
	}

	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", publishEndpoint),
		observability.L("outcome", pubOutcome),
	)
	s.extHistogram.Observe(time.Since(pubStart).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", publishEndpoint),
	)

	if pubErr != nil {
		// The pending order is durable; a reconciliation sweep can re-drive
		// fulfillment. Surface the failure instead of rolling back.
		outcome, statusText = "error", "PUBLISH_FAILED"
		logger.Error("fulfillment_publish_failed",
			observability.F("order_id", entity.ID),
			observability.F("error", pubErr.Error()),
		)
		return nil, fmt.Errorf("%w: order %s", messaging.ErrPublishFailed, entity.ID)
	}

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	return &PurchaseResult{
		OrderID:  entity.ID,
		Status:   entity.Status,
		Products: products,
	}, nil
}

// Get returns the current state of an order, the read path clients poll
// while fulfillment runs.
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return s.orders.Get(ctx, id)
}
