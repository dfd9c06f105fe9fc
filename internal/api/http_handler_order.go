package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"bookstore-service/internal/domain"
	"bookstore-service/internal/store"
)

// OrderResponse is the transport view of an order. Total is computed from
// the products' current prices at serialization time; it is never read from
// storage.
type OrderResponse struct {
	ID        int64            `json:"id"`
	Owner     int64            `json:"owner"`
	Products  []domain.Product `json:"products"`
	Total     float64          `json:"total"`
	CreatedAt string           `json:"created_at"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	products := o.Products
	if products == nil {
		products = []domain.Product{}
	}
	return OrderResponse{
		ID:        o.ID,
		Owner:     o.OwnerID,
		Products:  products,
		Total:     o.Total(),
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// loadOwnedOrder fetches an order and verifies it belongs to the caller.
// Responds with 404/403/500 on failure and returns nil.
func (h *HTTPHandler) loadOwnedOrder(w http.ResponseWriter, r *http.Request, orderID, ownerID int64) *domain.Order {
	order, err := h.orderStore.GetOrderByID(r.Context(), orderID)
	if err != nil {
		h.log.Errorf("GetOrderByID store operation for ID %d failed: %v", orderID, err)
		if errors.Is(err, store.ErrOrderNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrOrderNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve order")
		}
		return nil
	}
	if order.OwnerID != ownerID {
		h.log.Warnf("Owner %d attempted to access order %d owned by %d", ownerID, orderID, order.OwnerID)
		h.respondWithError(w, http.StatusForbidden, "Order belongs to another user")
		return nil
	}
	return order
}

// --- Order Handlers ---

// OrderCreateInput defines the expected input for creating an order. An
// order with zero products is permitted.
type OrderCreateInput struct {
	ProductIDs []int64 `json:"product_ids" validate:"omitempty,dive,gt=0"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	var input OrderCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	order, err := h.orderStore.CreateOrder(r.Context(), ownerID, input.ProductIDs)
	if err != nil {
		h.log.Errorf("CreateOrder store operation for owner %d failed: %v", ownerID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusBadRequest, "Invalid product_ids: product does not exist")
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	page, limit, offset := pageParams(r)

	orders, totalCount, err := h.orderStore.ListOrdersByOwner(r.Context(), store.ListOrdersParams{
		OwnerID: ownerID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.log.Errorf("ListOrdersByOwner store operation for owner %d failed: %v", ownerID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}

	data := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		data = append(data, toOrderResponse(&orders[i]))
	}

	response := struct {
		Data       []OrderResponse `json:"data"`
		Pagination Pagination      `json:"pagination"`
	}{
		Data:       data,
		Pagination: newPagination(page, limit, totalCount),
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	orderID, err := pathID(r, "orderId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order ID format")
		return
	}

	order := h.loadOwnedOrder(w, r, orderID, ownerID)
	if order == nil {
		return
	}

	h.respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	orderID, err := pathID(r, "orderId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order ID format")
		return
	}

	if order := h.loadOwnedOrder(w, r, orderID, ownerID); order == nil {
		return
	}

	if err := h.orderStore.DeleteOrder(r.Context(), orderID); err != nil {
		h.log.Errorf("DeleteOrder store operation for ID %d failed: %v", orderID, err)
		if errors.Is(err, store.ErrOrderNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrOrderNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to delete order")
		}
		return
	}

	h.respondWithJSON(w, http.StatusNoContent, nil)
}

func (h *HTTPHandler) AddOrderProduct(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	orderID, err := pathID(r, "orderId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order ID format")
		return
	}
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if order := h.loadOwnedOrder(w, r, orderID, ownerID); order == nil {
		return
	}

	if err := h.orderStore.AddProduct(r.Context(), orderID, productID); err != nil {
		h.log.Errorf("AddProduct store operation (%d, %d) failed: %v", orderID, productID, err)
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			h.respondWithError(w, http.StatusNotFound, store.ErrOrderNotFound.Error())
		case errors.Is(err, store.ErrProductNotFound):
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to add product to order")
		}
		return
	}

	order, err := h.orderStore.GetOrderByID(r.Context(), orderID)
	if err != nil {
		h.log.Errorf("AddProduct reload of order %d failed: %v", orderID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to reload order")
		return
	}
	h.respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) RemoveOrderProduct(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := OwnerFromContext(r.Context())
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return
	}

	orderID, err := pathID(r, "orderId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order ID format")
		return
	}
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	if order := h.loadOwnedOrder(w, r, orderID, ownerID); order == nil {
		return
	}

	if err := h.orderStore.RemoveProduct(r.Context(), orderID, productID); err != nil {
		h.log.Errorf("RemoveProduct store operation (%d, %d) failed: %v", orderID, productID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to remove product from order")
		return
	}

	order, err := h.orderStore.GetOrderByID(r.Context(), orderID)
	if err != nil {
		h.log.Errorf("RemoveProduct reload of order %d failed: %v", orderID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to reload order")
		return
	}
	h.respondWithJSON(w, http.StatusOK, toOrderResponse(order))
}
