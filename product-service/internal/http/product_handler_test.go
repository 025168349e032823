package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fjod/shopcart/product-service/internal/domain"
	"github.com/fjod/shopcart/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock repository for testing
type mockRepository struct {
	mu       sync.Mutex
	products []*domain.Product
	err      error
}

func (m *mockRepository) GetAllProducts(context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *mockRepository) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockRepository) CreateProduct(_ context.Context, p *domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	created := *p
	created.ID = int64(len(m.products) + 1)
	m.products = append(m.products, &created)
	return &created, nil
}

func newTestRouter(repo repository.RepoInterface) http.Handler {
	r := chi.NewRouter()
	NewProductHandler(repo, nil).Routes(r)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	h.ServeHTTP(recorder, request)
	return recorder
}

func TestList_Success(t *testing.T) {
	repo := &mockRepository{
		products: []*domain.Product{
			{ID: 1, Name: "Laptop", Price: 1299.99, Quantity: 3},
			{ID: 2, Name: "Mouse", Price: 29.99, Quantity: 40},
		},
	}

	recorder := serve(newTestRouter(repo), http.MethodGet, "/products", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	var response []ProductResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	require.Len(t, response, 2)
	assert.Equal(t, ProductResponse{ID: 1, Name: "Laptop", Price: 1299.99, Quantity: 3}, response[0])
	assert.Equal(t, "Mouse", response[1].Name)
}

func TestList_EmptyIsArray(t *testing.T) {
	recorder := serve(newTestRouter(&mockRepository{}), http.MethodGet, "/products", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `[]`, recorder.Body.String())
}

func TestList_RepoError(t *testing.T) {
	recorder := serve(newTestRouter(&mockRepository{err: errors.New("disk on fire")}), http.MethodGet, "/products", "")

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, recorder.Body.String())
}

func TestGet_Success(t *testing.T) {
	repo := &mockRepository{products: []*domain.Product{{ID: 7, Name: "Keyboard", Price: 49.5, Quantity: 2}}}

	recorder := serve(newTestRouter(repo), http.MethodGet, "/products/7", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"id":7,"name":"Keyboard","price":49.5,"quantity":2}`, recorder.Body.String())
}

func TestGet_NotFound(t *testing.T) {
	recorder := serve(newTestRouter(&mockRepository{}), http.MethodGet, "/products/42", "")

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.JSONEq(t, `{"error":"Product not found"}`, recorder.Body.String())
}

func TestGet_InvalidID(t *testing.T) {
	recorder := serve(newTestRouter(&mockRepository{}), http.MethodGet, "/products/abc", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreate_Success(t *testing.T) {
	repo := &mockRepository{}
	h := newTestRouter(repo)

	recorder := serve(h, http.MethodPost, "/products", `{"name":"Desk","price":0,"quantity":0}`)

	require.Equal(t, http.StatusCreated, recorder.Code)
	var created ProductResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Desk", created.Name)

	// Created product is retrievable with the same fields
	recorder = serve(h, http.MethodGet, "/products/1", "")
	assert.JSONEq(t, `{"id":1,"name":"Desk","price":0,"quantity":0}`, recorder.Body.String())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "missing name", body: `{"price":1,"quantity":1}`, wantMsg: "Name, Price, and Quantity are required"},
		{name: "missing price", body: `{"name":"x","quantity":1}`, wantMsg: "Name, Price, and Quantity are required"},
		{name: "missing quantity", body: `{"name":"x","price":1}`, wantMsg: "Name, Price, and Quantity are required"},
		{name: "blank name", body: `{"name":"  ","price":1,"quantity":1}`, wantMsg: "Name, Price, and Quantity are required"},
		{name: "negative price", body: `{"name":"x","price":-1,"quantity":1}`, wantMsg: "Price and Quantity must be non-negative"},
		{name: "negative quantity", body: `{"name":"x","price":1,"quantity":-3}`, wantMsg: "Price and Quantity must be non-negative"},
		{name: "malformed json", body: `{"name":`, wantMsg: "invalid JSON body"},
		{name: "trailing data", body: `{"name":"x","price":1,"quantity":1}garbage`, wantMsg: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			recorder := serve(newTestRouter(repo), http.MethodPost, "/products", tt.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			var response map[string]string
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
			assert.Equal(t, tt.wantMsg, response["error"])
			assert.Empty(t, repo.products)
		})
	}
}

func TestCreate_RepoError(t *testing.T) {
	repo := &mockRepository{err: errors.New("locked")}

	recorder := serve(newTestRouter(repo), http.MethodPost, "/products", `{"name":"x","price":1,"quantity":1}`)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}
