package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"bookstore-service/internal/domain"
	"bookstore-service/internal/store"
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	orderStore    store.OrderStorer
	validate      *validator.Validate
	log           *logrus.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CategoryStorer, ps store.ProductStorer, os store.OrderStorer, logger *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		categoryStore: cs,
		productStore:  ps,
		orderStore:    os,
		validate:      validator.New(),
		log:           logger,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Pagination is the envelope metadata attached to every list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, limit, totalCount int) Pagination {
	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, TotalItems: totalCount, TotalPages: totalPages}
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Errorf("Failed to encode JSON response: %v", err)
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
		}
	}
}

// pageParams reads the page/limit query parameters with the usual defaults
// and caps.
func pageParams(r *http.Request) (page, limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	page, err = strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// --- Category Handlers ---

// CategoryCreateInput defines the expected input for creating a category.
type CategoryCreateInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Slug        string  `json:"slug" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty"`
	Active      *bool   `json:"active"` // Pointer to distinguish between not set and false
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	active := true // Default to true if not provided
	if input.Active != nil {
		active = *input.Active
	}

	category := &domain.Category{
		Title:       input.Title,
		Slug:        input.Slug,
		Description: input.Description,
		Active:      active,
	}

	created, err := h.categoryStore.CreateCategory(r.Context(), category)
	if err != nil {
		h.log.Errorf("CreateCategory store operation failed: %v", err)
		if errors.Is(err, store.ErrCategorySlugExists) {
			h.respondWithError(w, http.StatusConflict, store.ErrCategorySlugExists.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r)

	categories, totalCount, err := h.categoryStore.ListCategories(r.Context(), store.ListCategoriesParams{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.log.Errorf("ListCategories store operation failed: %v", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}

	response := struct {
		Data       []domain.Category `json:"data"`
		Pagination Pagination        `json:"pagination"`
	}{
		Data:       categories,
		Pagination: newPagination(page, limit, totalCount),
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	category, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID)
	if err != nil {
		h.log.Errorf("GetCategoryByID store operation for ID %d failed: %v", categoryID, err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, category)
}

// CategoryUpdateInput defines the expected input for updating a category.
// Every field is optional: only the fields present in the payload change.
type CategoryUpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty"`
	Active      *bool   `json:"active"`
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	var input CategoryUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	// Load the current record and merge only the provided fields.
	category, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID)
	if err != nil {
		h.log.Errorf("Category for update (ID %d) not found: %v", categoryID, err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Error checking category existence")
		}
		return
	}

	if input.Title != nil {
		category.Title = *input.Title
	}
	if input.Slug != nil {
		category.Slug = *input.Slug
	}
	if input.Description != nil {
		category.Description = input.Description
	}
	if input.Active != nil {
		category.Active = *input.Active
	}

	updated, err := h.categoryStore.UpdateCategory(r.Context(), category)
	if err != nil {
		h.log.Errorf("UpdateCategory store operation for ID %d failed: %v", categoryID, err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else if errors.Is(err, store.ErrCategorySlugExists) {
			h.respondWithError(w, http.StatusConflict, store.ErrCategorySlugExists.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to update category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	err = h.categoryStore.DeleteCategory(r.Context(), categoryID)
	if err != nil {
		h.log.Errorf("DeleteCategory store operation for ID %d failed: %v", categoryID, err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to delete category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Product Handlers ---

// ProductCreateInput defines the expected input for creating a product.
type ProductCreateInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty"`
	Price       float64 `json:"price" validate:"gte=0"`
	Active      *bool   `json:"active"`
	CategoryIDs []int64 `json:"category_ids" validate:"omitempty,dive,gt=0"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	product := &domain.Product{
		Title:       input.Title,
		Description: input.Description,
		Price:       input.Price,
		Active:      active,
	}

	created, err := h.productStore.CreateProduct(r.Context(), product, input.CategoryIDs)
	if err != nil {
		h.log.Errorf("CreateProduct store operation failed: %v", err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusBadRequest, "Invalid category_ids: category does not exist")
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := pageParams(r)

	params := store.ListProductsParams{Limit: limit, Offset: offset}

	qParams := r.URL.Query()
	if activeStr := qParams.Get("active"); activeStr != "" {
		b, err := strconv.ParseBool(activeStr)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid active value: must be true or false")
			return
		}
		params.Active = &b
	}
	if idStr := qParams.Get("category_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "Invalid category_id format")
			return
		}
		params.CategoryID = &id
	}

	products, totalCount, err := h.productStore.ListProducts(r.Context(), params)
	if err != nil {
		h.log.Errorf("ListProducts store operation failed: %v", err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	response := struct {
		Data       []domain.Product `json:"data"`
		Pagination Pagination       `json:"pagination"`
	}{
		Data:       products,
		Pagination: newPagination(page, limit, totalCount),
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		h.log.Errorf("GetProductByID store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		}
		return
	}
	h.respondWithJSON(w, http.StatusOK, product)
}

// ProductUpdateInput defines the expected input for updating a product.
// Every field is optional: only the fields present in the payload change.
type ProductUpdateInput struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description" validate:"omitempty"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Active      *bool    `json:"active"`
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var input ProductUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		h.log.Errorf("Product for update (ID %d) not found: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Error checking product existence")
		}
		return
	}

	if input.Title != nil {
		product.Title = *input.Title
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Active != nil {
		product.Active = *input.Active
	}

	updated, err := h.productStore.UpdateProduct(r.Context(), product)
	if err != nil {
		h.log.Errorf("UpdateProduct store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to update product")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	err = h.productStore.DeleteProduct(r.Context(), productID)
	if err != nil {
		h.log.Errorf("DeleteProduct store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			h.respondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		}
		return
	}

	h.respondWithJSON(w, http.StatusNoContent, nil)
}

func (h *HTTPHandler) AttachCategory(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	if err := h.productStore.AttachCategory(r.Context(), productID, categoryID); err != nil {
		h.log.Errorf("AttachCategory store operation (%d, %d) failed: %v", productID, categoryID, err)
		switch {
		case errors.Is(err, store.ErrProductNotFound):
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		case errors.Is(err, store.ErrCategoryNotFound):
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to attach category")
		}
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		h.log.Errorf("AttachCategory reload of product %d failed: %v", productID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to reload product")
		return
	}
	h.respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) DetachCategory(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	if err := h.productStore.DetachCategory(r.Context(), productID, categoryID); err != nil {
		h.log.Errorf("DetachCategory store operation (%d, %d) failed: %v", productID, categoryID, err)
		h.respondWithError(w, http.StatusInternalServerError, "Failed to detach category")
		return
	}

	h.respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service. Order routes sit
// behind the identity middleware; the catalog is globally visible.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Post("/", h.CreateCategory)
		r.Get("/", h.ListCategories)
		r.Route("/{categoryId}", func(r chi.Router) {
			r.Get("/", h.GetCategoryByID)
			r.Put("/", h.UpdateCategory)
			r.Delete("/", h.DeleteCategory)
		})
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
			r.Route("/categories/{categoryId}", func(r chi.Router) {
				r.Post("/", h.AttachCategory)
				r.Delete("/", h.DetachCategory)
			})
		})
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(RequireOwner(h.log))
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Route("/{orderId}", func(r chi.Router) {
			r.Get("/", h.GetOrderByID)
			r.Delete("/", h.DeleteOrder)
			r.Route("/products/{productId}", func(r chi.Router) {
				r.Post("/", h.AddOrderProduct)
				r.Delete("/", h.RemoveOrderProduct)
			})
		})
	})
}
