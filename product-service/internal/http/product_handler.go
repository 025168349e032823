package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/shopcart/pkg/httpx"
	"github.com/fjod/shopcart/product-service/internal/domain"
	"github.com/fjod/shopcart/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
)

const (
	msgProductNotFound = "Product not found"
	msgFieldsRequired  = "Name, Price, and Quantity are required"
	msgNegativeFields  = "Price and Quantity must be non-negative"
	msgInvalidBody     = "invalid JSON body"
	msgInvalidID       = "product id must be an integer"
	msgInternal        = "internal server error"
)

type ProductHandler struct {
	repo repository.RepoInterface
	log  *slog.Logger
}

func NewProductHandler(repo repository.RepoInterface, log *slog.Logger) *ProductHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProductHandler{
		repo: repo,
		log:  log,
	}
}

type ProductResponse struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// CreateProductRequest uses pointers so an absent field can be told apart
// from a zero value.
type CreateProductRequest struct {
	Name     *string  `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *int     `json:"quantity"`
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
	})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.GetAllProducts(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "list products failed", slog.Any("err", err))
		httpx.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = toResponse(p)
	}

	httpx.RespondJSON(w, http.StatusOK, out)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			httpx.RespondError(w, http.StatusNotFound, msgProductNotFound)
			return
		}
		h.log.ErrorContext(r.Context(), "get product failed", slog.Int64("product_id", id), slog.Any("err", err))
		httpx.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, toResponse(product))
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	product, msg := req.validate()
	if msg != "" {
		httpx.RespondError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.repo.CreateProduct(r.Context(), product)
	if err != nil {
		h.log.ErrorContext(r.Context(), "create product failed", slog.Any("err", err))
		httpx.RespondError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	h.log.InfoContext(r.Context(), "product created", slog.Int64("product_id", created.ID))
	httpx.RespondJSON(w, http.StatusCreated, toResponse(created))
}

func (req CreateProductRequest) validate() (*domain.Product, string) {
	if req.Name == nil || req.Price == nil || req.Quantity == nil {
		return nil, msgFieldsRequired
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" {
		return nil, msgFieldsRequired
	}
	if *req.Price < 0 || *req.Quantity < 0 {
		return nil, msgNegativeFields
	}

	return &domain.Product{
		Name:     name,
		Price:    *req.Price,
		Quantity: *req.Quantity,
	}, ""
}

func toResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Quantity: p.Quantity,
	}
}
