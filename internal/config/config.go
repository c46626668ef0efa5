// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, auth, and the broker.
type Config struct {
	ServiceName     string
	Env             string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	JWTSecret string

	RabbitURL          string
	RabbitExchange     string
	RabbitQueue        string
	RabbitRoutingKey   string
	BrokerDialAttempts int

	PublishMaxAttempts int
	PublishBackoff     time.Duration

	FulfillLookupTimeout time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults. An empty
// RABBITMQ_URL selects the in-process broker.
func Load() Config {
	return Config{
		ServiceName:     getenv("SERVICE_NAME", "product-service"),
		Env:             getenv("ENV", "dev"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 10),

		JWTSecret: getenv("JWT_SECRET", "secret"),

		RabbitURL:          getenv("RABBITMQ_URL", ""),
		RabbitExchange:     getenv("RABBITMQ_EXCHANGE", "order_exchange"),
		RabbitQueue:        getenv("RABBITMQ_QUEUE", "order_fulfillment_queue"),
		RabbitRoutingKey:   getenv("RABBITMQ_ROUTING_KEY", "order.fulfillment"),
		BrokerDialAttempts: atoienv("BROKER_DIAL_ATTEMPTS", 5),

		PublishMaxAttempts: atoienv("PUBLISH_MAX_ATTEMPTS", 3),
		PublishBackoff:     durenvms("PUBLISH_BACKOFF_MS", 200),

		FulfillLookupTimeout: durenvms("FULFILL_LOOKUP_TIMEOUT_MS", 3000),
	}
}
