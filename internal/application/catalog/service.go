package catalog

import (
	"context"
	"fmt"

	domain "github.com/quickshop/product-service/internal/domain/product"
	"github.com/quickshop/product-service/internal/observability"
	"github.com/quickshop/product-service/internal/observability/logctx"
)

const componentCatalog = "catalog_service"

// Service owns product creation and lookup. Field validation happens here,
// before the repository is touched.
type Service struct {
	repo        domain.Repository
	idGenerator IDGenerator
	log         observability.Logger
}

type IDGenerator interface {
	NewID() string
}

func NewService(repo domain.Repository, idGen IDGenerator, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		repo:        repo,
		idGenerator: idGen,
		log:         logger.With(observability.F("component", componentCatalog)),
	}
}

type CreateProductInput struct {
	Name        string
	Description string
	// Price is a pointer so an absent price is distinguishable from zero.
	Price *float64
}

func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	logger := logctx.FromOr(ctx, s.log)

	if input.Name == "" {
		return nil, domain.ErrNameRequired
	}
	if input.Price == nil {
		return nil, domain.ErrPriceRequired
	}

	entity, err := domain.New(s.idGenerator.NewID(), input.Name, input.Description, *input.Price)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, entity); err != nil {
		logger.Error("product_insert_failed",
			observability.F("product_id", entity.ID),
			observability.F("error", err.Error()),
		)
		return nil, fmt.Errorf("catalog: insert: %w", err)
	}

	logger.Info("product_created",
		observability.F("product_id", entity.ID),
		observability.F("name", entity.Name),
	)
	return entity, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}
