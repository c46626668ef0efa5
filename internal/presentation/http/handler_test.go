package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appcatalog "github.com/quickshop/product-service/internal/application/catalog"
	"github.com/quickshop/product-service/internal/application/fulfillment"
	apporder "github.com/quickshop/product-service/internal/application/order"
	domainOrder "github.com/quickshop/product-service/internal/domain/order"
	"github.com/quickshop/product-service/internal/infrastructure/auth"
	"github.com/quickshop/product-service/internal/infrastructure/id"
	"github.com/quickshop/product-service/internal/infrastructure/inmem"
	"github.com/quickshop/product-service/internal/infrastructure/memory"
	"github.com/quickshop/product-service/internal/observability"
)

const testSecret = "test-secret"

type testApp struct {
	router http.Handler
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()
	gen := id.NewUUIDGenerator()
	tel := observability.NopTelemetry()
	logger := observability.NopLogger()

	broker := inmem.NewBroker(logger)
	worker := fulfillment.New(orders, products, broker, time.Second, tel)
	worker.Start()
	broker.Start(context.Background())
	t.Cleanup(func() { broker.Stop(context.Background()) })

	catalogSvc := appcatalog.NewService(products, gen, logger)
	orderSvc := apporder.NewService(orders, products, gen, broker, tel)
	verifier := auth.NewJWTVerifier(testSecret)

	ready := make(chan struct{})
	close(ready)
	handler := NewHandler(catalogSvc, orderSvc, verifier, ready, logger, tel)

	return &testApp{router: handler.Router()}
}

func validToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Username: "demo",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateProductRequiresToken(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products", "", map[string]any{
		"name": "Unauthorized Product", "price": 10, "description": "Test",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateProduct(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products", validToken(t), map[string]any{
		"name":        "Test Product CI",
		"description": "Description for CI test",
		"price":       99,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected _id in response")
	}
	if created.Name != "Test Product CI" || created.Description != "Description for CI test" || created.Price != 99 {
		t.Fatalf("unexpected echo: %+v", created)
	}
}

func TestCreateProductMissingName(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products", validToken(t), map[string]any{
		"description": "Description of Product 1",
		"price":       10.99,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateProductMissingPrice(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products", validToken(t), map[string]any{
		"name":        "Test No Price",
		"description": "Description of Product 1",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListProductsRequiresToken(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodGet, "/api/products", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListProducts(t *testing.T) {
	app := setupApp(t)
	token := validToken(t)
	_ = doJSON(t, app.router, http.MethodPost, "/api/products", token, map[string]any{
		"name": "One", "price": 1,
	})

	rr := doJSON(t, app.router, http.MethodGet, "/api/products", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list []productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("expected array body: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}
}

func TestBuyRequiresToken(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products/buy", "", map[string]any{
		"ids": []string{"some-id"},
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestBuyReturnsPendingThenCompletes(t *testing.T) {
	app := setupApp(t)
	token := validToken(t)

	create := doJSON(t, app.router, http.MethodPost, "/api/products", token, map[string]any{
		"name":        "Test Product CI",
		"description": "Description for CI test",
		"price":       99,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", create.Code)
	}
	var created productResponse
	_ = json.Unmarshal(create.Body.Bytes(), &created)

	buy := doJSON(t, app.router, http.MethodPost, "/api/products/buy", token, map[string]any{
		"ids": []string{created.ID},
	})
	if buy.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", buy.Code, buy.Body.String())
	}
	var placed buyResponse
	if err := json.Unmarshal(buy.Body.Bytes(), &placed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if placed.OrderID == "" {
		t.Fatalf("expected orderId in response")
	}
	if placed.Status != domainOrder.StatusPending {
		t.Fatalf("expected pending, got %s", placed.Status)
	}
	if len(placed.Products) != 1 {
		t.Fatalf("expected products array, got %+v", placed.Products)
	}

	waitForStatus(t, app, token, placed.OrderID, domainOrder.StatusCompleted)
}

func TestBuyMalformedProductID(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products/buy", validToken(t), map[string]any{
		"ids": []string{"invalid_id_format"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestBuyUnknownProductID(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products/buy", validToken(t), map[string]any{
		"ids": []string{id.NewUUIDGenerator().NewID()},
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestBuyEmptyIDs(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodPost, "/api/products/buy", validToken(t), map[string]any{
		"ids": []string{},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrderUnknownID(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodGet, "/api/orders/nope", validToken(t), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.router, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func waitForStatus(t *testing.T, app *testApp, token, orderID string, want domainOrder.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rr := doJSON(t, app.router, http.MethodGet, "/api/orders/"+orderID, token, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 reading order, got %d", rr.Code)
		}
		var got orderResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		if got.Status == want {
			if want == domainOrder.StatusCompleted && got.CompletedAt == nil {
				t.Fatalf("completed order missing completedAt")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("order %s never reached %s", orderID, want)
}
