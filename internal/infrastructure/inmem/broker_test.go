package inmem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickshop/product-service/internal/domain/messaging"
	"github.com/quickshop/product-service/internal/observability"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := NewBroker(observability.NopLogger())
	got := make(chan messaging.FulfillmentRequest, 1)
	b.Subscribe(func(_ context.Context, msg messaging.FulfillmentRequest) error {
		got <- msg
		return nil
	})
	b.Start(context.Background())
	defer b.Stop(context.Background())

	if err := b.Publish(context.Background(), messaging.FulfillmentRequest{OrderID: "o1", ProductIDs: []string{"p1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-got:
		if msg.OrderID != "o1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message never delivered")
	}
}

func TestBrokerRedeliversOnHandlerError(t *testing.T) {
	b := NewBroker(observability.NopLogger())
	b.redeliverWait = time.Millisecond

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	b.Subscribe(func(context.Context, messaging.FulfillmentRequest) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	b.Start(context.Background())
	defer b.Stop(context.Background())

	if err := b.Publish(context.Background(), messaging.FulfillmentRequest{OrderID: "o1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("expected redelivery to succeed, saw %d calls", calls)
	}
}

func TestBrokerRedeliveryIsBounded(t *testing.T) {
	b := NewBroker(observability.NopLogger())
	b.redeliverWait = time.Millisecond
	b.maxAttempts = 2

	var mu sync.Mutex
	calls := 0
	b.Subscribe(func(context.Context, messaging.FulfillmentRequest) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("always failing")
	})
	b.Start(context.Background())
	defer b.Stop(context.Background())

	_ = b.Publish(context.Background(), messaging.FulfillmentRequest{OrderID: "o1"})

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestBrokerWithoutSubscriberDropsQuietly(t *testing.T) {
	b := NewBroker(observability.NopLogger())
	b.Start(context.Background())
	defer b.Stop(context.Background())

	if err := b.Publish(context.Background(), messaging.FulfillmentRequest{OrderID: "o1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBrokerPublishRespectsContext(t *testing.T) {
	b := NewBroker(observability.NopLogger())
	// Not started: fill the buffer so Publish blocks, then cancel.
	for i := 0; i < cap(b.queue); i++ {
		b.queue <- delivery{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Publish(ctx, messaging.FulfillmentRequest{OrderID: "o1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
