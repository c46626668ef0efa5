package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appcatalog "github.com/quickshop/product-service/internal/application/catalog"
	"github.com/quickshop/product-service/internal/application/fulfillment"
	apporder "github.com/quickshop/product-service/internal/application/order"
	"github.com/quickshop/product-service/internal/config"
	"github.com/quickshop/product-service/internal/domain/messaging"
	"github.com/quickshop/product-service/internal/infrastructure/auth"
	"github.com/quickshop/product-service/internal/infrastructure/id"
	"github.com/quickshop/product-service/internal/infrastructure/inmem"
	"github.com/quickshop/product-service/internal/infrastructure/memory"
	"github.com/quickshop/product-service/internal/infrastructure/observability/oteltrace"
	"github.com/quickshop/product-service/internal/infrastructure/observability/prometrics"
	"github.com/quickshop/product-service/internal/infrastructure/observability/telemetry"
	"github.com/quickshop/product-service/internal/infrastructure/observability/zaplogger"
	"github.com/quickshop/product-service/internal/infrastructure/rabbitmq"
	"github.com/quickshop/product-service/internal/observability"
	httppresentation "github.com/quickshop/product-service/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	baseLogger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	registry := prometrics.New("quickshop", "product_service")
	counters := map[string]observability.Counter{
		observability.MUsecaseRequests:  registry.Counter(observability.MUsecaseRequests, "Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests:     registry.Counter(observability.MHTTPRequests, "Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests: registry.Counter(observability.MExternalRequests, "Total number of calls to external peers.", "peer", "endpoint", "outcome"),
	}
	histograms := map[string]observability.Histogram{
		observability.MUsecaseDuration:         registry.Histogram(observability.MUsecaseDuration, "Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration:     registry.Histogram(observability.MHTTPRequestDuration, "Duration of HTTP request handling in seconds.", prometheus.DefBuckets, "method", "route", "status"),
		observability.MExternalRequestDuration: registry.Histogram(observability.MExternalRequestDuration, "Duration of external calls in seconds.", prometheus.DefBuckets, "peer", "endpoint"),
	}
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), baseLogger, counters, histograms)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	productRepo := memory.NewProductRepository()
	orderRepo := memory.NewOrderRepository()
	idGenerator := id.NewUUIDGenerator()

	// Broker selection: RabbitMQ when configured, in-process broker otherwise.
	// Either way the server only reports healthy after the readiness signal.
	var publisher messaging.Publisher
	var ready <-chan struct{}

	if cfg.RabbitURL != "" {
		client := rabbitmq.NewClient(rabbitmq.Config{
			URL:          cfg.RabbitURL,
			Exchange:     cfg.RabbitExchange,
			Queue:        cfg.RabbitQueue,
			RoutingKey:   cfg.RabbitRoutingKey,
			DialAttempts: cfg.BrokerDialAttempts,
		}, baseLogger)
		if err := client.Connect(ctx); err != nil {
			baseLogger.Error("broker_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()

		consumer := rabbitmq.NewConsumer(client, baseLogger)
		worker := fulfillment.New(orderRepo, productRepo, consumer, cfg.FulfillLookupTimeout, tel)
		worker.Start()
		if err := consumer.Start(ctx); err != nil {
			baseLogger.Error("consumer_start_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}

		publisher = rabbitmq.NewPublisher(client, cfg.PublishMaxAttempts, cfg.PublishBackoff, baseLogger)
		ready = client.Ready()
	} else {
		broker := inmem.NewBroker(baseLogger)
		worker := fulfillment.New(orderRepo, productRepo, broker, cfg.FulfillLookupTimeout, tel)
		worker.Start()
		broker.Start(ctx)
		defer broker.Stop(context.Background())

		publisher = broker
		readyCh := make(chan struct{})
		close(readyCh)
		ready = readyCh
	}

	catalogService := appcatalog.NewService(productRepo, idGenerator, baseLogger)
	orderService := apporder.NewService(orderRepo, productRepo, idGenerator, publisher, tel)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	handler := httppresentation.NewHandler(catalogService, orderService, verifier, ready, baseLogger, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		baseLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error",
				observability.F("error", err.Error()),
			)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error",
			observability.F("error", err.Error()),
		)
	} else {
		baseLogger.Info("http_server_stopped")
	}
}
