package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fjod/shopcart/cart-service/internal/catalog"
	"github.com/fjod/shopcart/cart-service/internal/domain"
	"github.com/fjod/shopcart/cart-service/internal/repository"
	"github.com/fjod/shopcart/cart-service/internal/service"
	"github.com/fjod/shopcart/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

const (
	msgCartNotFound       = "Cart not found"
	msgItemNotInCart      = "Product not in cart"
	msgCatalogUnavailable = "Catalog service unavailable"
	msgInvalidQuantity    = "quantity must be between 1 and 2147483647"
	msgQuantityLimit      = "Cart quantity limit exceeded"
	msgInvalidProductID   = "product id must be an integer"
	msgInvalidBody        = "invalid JSON body"
	msgInternal           = "internal server error"
	msgAdded              = "Added to cart"
	msgRemoved            = "Removed from cart"
)

// CartService is implemented by service.CartService.
type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.PricedCart, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) (int, error)
	RemoveItem(ctx context.Context, userID string, productID int64, quantity int) (int, error)
}

type CartHandler struct {
	svc CartService
	log *slog.Logger
}

func NewCartHandler(svc CartService, log *slog.Logger) *CartHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CartHandler{svc: svc, log: log}
}

type CartResponse struct {
	UserID     string         `json:"user_id"`
	Items      map[string]int `json:"items"`
	TotalPrice float64        `json:"total_price"`
}

type AddResponse struct {
	Message         string `json:"message"`
	CurrentQuantity int    `json:"current_quantity"`
}

type RemoveResponse struct {
	Message           string `json:"message"`
	RemainingQuantity int    `json:"remaining_quantity"`
}

// QuantityRequest is the optional body of add and remove. An absent body or
// an absent field means 1.
type QuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/cart/{user_id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/add/{product_id}", h.Add)
		r.Post("/remove/{product_id}", h.Remove)
	})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	cart, err := h.svc.GetCart(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, "get cart", err)
		return
	}

	items := make(map[string]int, len(cart.Items))
	for _, it := range cart.Items {
		items[strconv.FormatInt(it.ProductID, 10)] = it.Quantity
	}

	total, _ := cart.TotalPrice.Float64()
	httpx.RespondJSON(w, http.StatusOK, CartResponse{
		UserID:     cart.UserID,
		Items:      items,
		TotalPrice: total,
	})
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, productID, quantity, ok := h.parseMutation(w, r)
	if !ok {
		return
	}

	current, err := h.svc.AddItem(r.Context(), userID, productID, quantity)
	if err != nil {
		h.respondServiceError(w, r, "add item", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, AddResponse{Message: msgAdded, CurrentQuantity: current})
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, productID, quantity, ok := h.parseMutation(w, r)
	if !ok {
		return
	}

	remaining, err := h.svc.RemoveItem(r.Context(), userID, productID, quantity)
	if err != nil {
		h.respondServiceError(w, r, "remove item", err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, RemoveResponse{Message: msgRemoved, RemainingQuantity: remaining})
}

func (h *CartHandler) parseMutation(w http.ResponseWriter, r *http.Request) (string, int64, int, bool) {
	userID := chi.URLParam(r, "user_id")

	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidProductID)
		return "", 0, 0, false
	}

	var req QuantityRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return "", 0, 0, false
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > domain.MaxQuantity {
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidQuantity)
		return "", 0, 0, false
	}

	return userID, productID, quantity, true
}

func (h *CartHandler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var notFound *catalog.NotFoundError

	switch {
	case errors.As(err, &notFound):
		httpx.RespondError(w, http.StatusNotFound, notFound.Message)
	case errors.Is(err, repository.ErrCartNotFound):
		httpx.RespondError(w, http.StatusNotFound, msgCartNotFound)
	case errors.Is(err, repository.ErrItemNotFound):
		httpx.RespondError(w, http.StatusNotFound, msgItemNotInCart)
	case errors.Is(err, service.ErrInvalidQuantity):
		httpx.RespondError(w, http.StatusBadRequest, msgInvalidQuantity)
	case errors.Is(err, repository.ErrQuantityLimit):
		httpx.RespondError(w, http.StatusBadRequest, msgQuantityLimit)
	case errors.Is(err, catalog.ErrUnavailable):
		h.log.WarnContext(r.Context(), op+" failed: catalog unavailable", slog.Any("err", err))
		httpx.RespondError(w, http.StatusServiceUnavailable, msgCatalogUnavailable)
	default:
		h.log.ErrorContext(r.Context(), op+" failed", slog.Any("err", err))
		httpx.RespondError(w, http.StatusInternalServerError, msgInternal)
	}
}
