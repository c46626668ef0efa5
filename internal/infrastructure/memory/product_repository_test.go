package memory

import (
	"context"
	"errors"
	"testing"

	domain "github.com/quickshop/product-service/internal/domain/product"
)

func TestProductInsertGetList(t *testing.T) {
	repo := NewProductRepository()
	ctx := context.Background()

	first, _ := domain.New("p1", "Laptop", "portable", 999.99)
	second, _ := domain.New("p2", "Mouse", "", 19.99)
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Laptop" || got.Price != 999.99 {
		t.Fatalf("unexpected product: %+v", got)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 products, got %d", len(list))
	}
	if list[0].ID != "p1" || list[1].ID != "p2" {
		t.Fatalf("expected insertion order, got %s,%s", list[0].ID, list[1].ID)
	}
}

func TestProductGetNotFound(t *testing.T) {
	repo := NewProductRepository()
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
