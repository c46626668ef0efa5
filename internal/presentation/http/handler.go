package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	appcatalog "github.com/quickshop/product-service/internal/application/catalog"
	apporder "github.com/quickshop/product-service/internal/application/order"
	domainOrder "github.com/quickshop/product-service/internal/domain/order"
	domainProduct "github.com/quickshop/product-service/internal/domain/product"
	"github.com/quickshop/product-service/internal/infrastructure/auth"
	"github.com/quickshop/product-service/internal/observability"
)

const componentHTTPHandler = "http_server"

// TokenVerifier validates a bearer credential and extracts an identity claim.
// Token issuance belongs to the external auth service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

type Handler struct {
	catalog  *appcatalog.Service
	orders   *apporder.Service
	verifier TokenVerifier
	ready    <-chan struct{}
	log      observability.Logger
	tel      observability.Telemetry
}

func NewHandler(
	catalogSvc *appcatalog.Service,
	orderSvc *apporder.Service,
	verifier TokenVerifier,
	ready <-chan struct{},
	logger observability.Logger,
	tel observability.Telemetry,
) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Handler{
		catalog:  catalogSvc,
		orders:   orderSvc,
		verifier: verifier,
		ready:    ready,
		log:      logger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	// Wire middlewares: route template → trace → request logger/metrics → access log.
	r.Use(h.withRoute, h.withTrace, h.withObservability, h.withAccessLog)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.requireAuth)
	api.HandleFunc("/products", h.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products", h.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/buy", h.handleBuyProducts).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.handleGetOrder).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	return r
}

// productResponse matches the wire format clients already depend on,
// including the `_id` key.
type productResponse struct {
	ID          string  `json:"_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

func toProductResponse(p *domainProduct.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
	}
}

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Price is a pointer so a missing field is rejected rather than read as 0.
	Price *float64 `json:"price"`
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.catalog.CreateProduct(r.Context(), appcatalog.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(created))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type buyRequest struct {
	IDs []string `json:"ids"`
}

type buyResponse struct {
	OrderID  string             `json:"orderId"`
	Status   domainOrder.Status `json:"status"`
	Products []productResponse  `json:"products"`
}

func (h *Handler) handleBuyProducts(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orders.InitiatePurchase(r.Context(), apporder.PurchaseInput{
		CustomerID: identityFromContext(r.Context()).Subject,
		ProductIDs: req.IDs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	products := make([]productResponse, 0, len(result.Products))
	for _, p := range result.Products {
		products = append(products, toProductResponse(p))
	}
	writeJSON(w, http.StatusCreated, buyResponse{
		OrderID:  result.OrderID,
		Status:   result.Status,
		Products: products,
	})
}

type orderResponse struct {
	OrderID       string             `json:"orderId"`
	Status        domainOrder.Status `json:"status"`
	ProductIDs    []string           `json:"productIds"`
	CreatedAt     time.Time          `json:"createdAt"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ord, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{
		OrderID:       ord.ID,
		Status:        ord.Status,
		ProductIDs:    ord.ProductIDs,
		CreatedAt:     ord.CreatedAt,
		CompletedAt:   ord.CompletedAt,
		FailureReason: ord.FailureReason,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-h.ready:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("broker not ready"))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainProduct.ErrNameRequired),
		errors.Is(err, domainProduct.ErrPriceRequired),
		errors.Is(err, domainProduct.ErrInvalidPrice),
		errors.Is(err, domainProduct.ErrInvalidID),
		errors.Is(err, domainOrder.ErrNoProducts):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domainProduct.ErrNotFound),
		errors.Is(err, domainOrder.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
