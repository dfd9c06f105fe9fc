package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookstore-service/internal/domain"
	"bookstore-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCategoryStorer is a mock implementation of store.CategoryStorer
type MockCategoryStorer struct {
	mock.Mock
}

func (m *MockCategoryStorer) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryStorer) GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryStorer) ListCategories(ctx context.Context, params store.ListCategoriesParams) ([]domain.Category, int, error) {
	args := m.Called(ctx, params)
	var categories []domain.Category
	if arg0 := args.Get(0); arg0 != nil {
		categories = arg0.([]domain.Category)
	}
	return categories, args.Int(1), args.Error(2)
}

func (m *MockCategoryStorer) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryStorer) DeleteCategory(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T, cs store.CategoryStorer, ps store.ProductStorer, os store.OrderStorer) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHTTPHandler(cs, ps, os, logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return httptest.NewServer(router)
}

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}

func TestHTTPHandler_CreateCategory_Success(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	now := time.Now().Truncate(time.Millisecond)
	inputPayload := CategoryCreateInput{
		Title:       "Peripherals",
		Slug:        "peripherals",
		Description: PtrTo("Mice and keyboards"),
	}
	expectedCreated := &domain.Category{
		ID:          1,
		Title:       inputPayload.Title,
		Slug:        inputPayload.Slug,
		Description: inputPayload.Description,
		Active:      true, // Defaults to active when not provided
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mockCatStore.On("CreateCategory", mock.Anything, mock.MatchedBy(func(cat *domain.Category) bool {
		return cat.Title == inputPayload.Title && cat.Slug == inputPayload.Slug && cat.Active
	})).Return(expectedCreated, nil).Once()

	reqBody, _ := json.Marshal(inputPayload)
	res, err := http.Post(server.URL+"/api/v1/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)

	var responseCategory domain.Category
	err = json.NewDecoder(res.Body).Decode(&responseCategory)
	require.NoError(t, err)
	assert.Equal(t, expectedCreated.ID, responseCategory.ID)
	assert.Equal(t, expectedCreated.Title, responseCategory.Title)
	assert.Equal(t, expectedCreated.Slug, responseCategory.Slug)
	assert.True(t, responseCategory.Active)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateCategory_MissingSlug_Validation(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	// Slug is required; omit it.
	inputPayload := CategoryCreateInput{Title: "No Slug"}
	reqBody, _ := json.Marshal(inputPayload)

	res, err := http.Post(server.URL+"/api/v1/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errResp ErrorResponse
	err = json.NewDecoder(res.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Contains(t, errResp.Error, "Validation failed", "Error message should indicate validation failure")

	mockCatStore.AssertNotCalled(t, "CreateCategory")
}

func TestHTTPHandler_CreateCategory_StoreError_SlugExists(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	inputPayload := CategoryCreateInput{Title: "Taken", Slug: "taken"}

	mockCatStore.On("CreateCategory", mock.Anything, mock.AnythingOfType("*domain.Category")).
		Return(nil, store.ErrCategorySlugExists).Once()

	reqBody, _ := json.Marshal(inputPayload)
	res, err := http.Post(server.URL+"/api/v1/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusConflict, res.StatusCode)
	var errResp ErrorResponse
	err = json.NewDecoder(res.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Equal(t, store.ErrCategorySlugExists.Error(), errResp.Error)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_ListCategories_Success(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	now := time.Now().Truncate(time.Millisecond)
	expectedCategories := []domain.Category{
		{ID: 1, Title: "Databases", Slug: "databases", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Title: "Peripherals", Slug: "peripherals", Active: true, CreatedAt: now, UpdatedAt: now},
	}
	expectedTotalCount := 2

	mockCatStore.On("ListCategories", mock.Anything, store.ListCategoriesParams{Limit: 10, Offset: 0}).
		Return(expectedCategories, expectedTotalCount, nil).Once()

	res, err := http.Get(server.URL + "/api/v1/categories?page=1&limit=10")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var responsePayload struct {
		Data       []domain.Category `json:"data"`
		Pagination Pagination        `json:"pagination"`
	}
	err = json.NewDecoder(res.Body).Decode(&responsePayload)
	require.NoError(t, err)

	assert.Len(t, responsePayload.Data, 2)
	assert.Equal(t, "databases", responsePayload.Data[0].Slug)
	assert.Equal(t, 1, responsePayload.Pagination.Page)
	assert.Equal(t, 10, responsePayload.Pagination.Limit)
	assert.Equal(t, expectedTotalCount, responsePayload.Pagination.TotalItems)
	assert.Equal(t, 1, responsePayload.Pagination.TotalPages)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_GetCategoryByID_NotFound(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	categoryID := int64(99)
	mockCatStore.On("GetCategoryByID", mock.Anything, categoryID).Return(nil, store.ErrCategoryNotFound).Once()

	res, err := http.Get(server.URL + fmt.Sprintf("/api/v1/categories/%d", categoryID))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var errResp ErrorResponse
	err = json.NewDecoder(res.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Equal(t, store.ErrCategoryNotFound.Error(), errResp.Error)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_UpdateCategory_MergesOnlyProvidedFields(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	categoryID := int64(1)
	now := time.Now().Truncate(time.Millisecond)
	existing := &domain.Category{
		ID:          categoryID,
		Title:       "Old Title",
		Slug:        "old-slug",
		Description: PtrTo("Old description"),
		Active:      true,
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now.Add(-time.Hour),
	}
	// Only the title is sent; slug, description and active must survive untouched.
	updatePayload := CategoryUpdateInput{Title: PtrTo("New Title")}

	mockCatStore.On("GetCategoryByID", mock.Anything, categoryID).Return(existing, nil).Once()
	mockCatStore.On("UpdateCategory", mock.Anything, mock.MatchedBy(func(cat *domain.Category) bool {
		return cat.ID == categoryID &&
			cat.Title == "New Title" &&
			cat.Slug == "old-slug" &&
			cat.Description != nil && *cat.Description == "Old description" &&
			cat.Active
	})).Return(&domain.Category{
		ID:          categoryID,
		Title:       "New Title",
		Slug:        "old-slug",
		Description: existing.Description,
		Active:      true,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   now,
	}, nil).Once()

	reqBody, _ := json.Marshal(updatePayload)
	req, err := http.NewRequest(http.MethodPut, server.URL+fmt.Sprintf("/api/v1/categories/%d", categoryID), bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var responseCategory domain.Category
	err = json.NewDecoder(res.Body).Decode(&responseCategory)
	require.NoError(t, err)
	assert.Equal(t, "New Title", responseCategory.Title)
	assert.Equal(t, "old-slug", responseCategory.Slug)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteCategory_Success(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	categoryID := int64(1)

	mockCatStore.On("DeleteCategory", mock.Anything, categoryID).Return(nil).Once()

	req, err := http.NewRequest(http.MethodDelete, server.URL+fmt.Sprintf("/api/v1/categories/%d", categoryID), nil)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteCategory_NotFound(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil, nil)
	defer server.Close()

	categoryID := int64(99)
	mockCatStore.On("DeleteCategory", mock.Anything, categoryID).Return(store.ErrCategoryNotFound).Once()

	req, err := http.NewRequest(http.MethodDelete, server.URL+fmt.Sprintf("/api/v1/categories/%d", categoryID), nil)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var errResp ErrorResponse
	err = json.NewDecoder(res.Body).Decode(&errResp)
	require.NoError(t, err)
	assert.Equal(t, store.ErrCategoryNotFound.Error(), errResp.Error)

	mockCatStore.AssertExpectations(t)
}
