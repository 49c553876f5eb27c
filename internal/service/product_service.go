package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
)

// ProductQuery shapes a catalog listing request.
type ProductQuery struct {
	Category  string
	Search    string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Page      int
	PageSize  int
	SortBy    string
	SortOrder repository.SortOrder
	// Admin reveals inactive and out-of-stock products.
	Admin bool
}

// ProductPage is a paginated catalog listing.
type ProductPage struct {
	Products      []*domain.Product `json:"products"`
	CurrentPage   int               `json:"current_page"`
	TotalPages    int               `json:"total_pages"`
	TotalProducts int               `json:"total_products"`
	HasNextPage   bool              `json:"has_next_page"`
	HasPrevPage   bool              `json:"has_prev_page"`
}

// ProductInput carries admin create/update fields.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Category    string
	Brand       string
	ImageURL    string
	Stock       int
	IsFeatured  bool
	IsActive    bool
}

// ProductService defines the catalog read side plus admin mutations.
type ProductService interface {
	List(ctx context.Context, query ProductQuery) (*ProductPage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Featured(ctx context.Context, limit int) ([]*domain.Product, error)
	Create(ctx context.Context, input ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type productService struct {
	productRepo repository.ProductRepository
}

// NewProductService creates a new instance of ProductService
func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

// List translates a catalog query into a shaped repository read.
// Non-administrative callers never see inactive or out-of-stock products.
func (s *productService) List(ctx context.Context, query ProductQuery) (*ProductPage, error) {
	page, pageSize := clampPage(query.Page, query.PageSize, 12, 50)

	filter := repository.ProductFilter{
		Category:      query.Category,
		Search:        query.Search,
		MinPrice:      query.MinPrice,
		MaxPrice:      query.MaxPrice,
		IncludeHidden: query.Admin,
	}

	products, total, err := s.productRepo.List(ctx, filter, page, pageSize, query.SortBy, query.SortOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &ProductPage{
		Products:      products,
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalProducts: total,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}, nil
}

// Get retrieves a single product by id.
func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, id)
}

// Featured retrieves the featured product shelf.
func (s *productService) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	if limit < 1 || limit > 20 {
		limit = 8
	}
	return s.productRepo.Featured(ctx, limit)
}

// Create adds a new catalog product.
func (s *productService) Create(ctx context.Context, input ProductInput) (*domain.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Discount:    input.Discount,
		Category:    input.Category,
		Brand:       input.Brand,
		ImageURL:    input.ImageURL,
		Stock:       input.Stock,
		IsFeatured:  input.IsFeatured,
		IsActive:    input.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// Update edits an existing product. Sold count and ratings are not
// admin-editable; they only move through sales and reviews.
func (s *productService) Update(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.Discount = input.Discount
	product.Category = input.Category
	product.Brand = input.Brand
	product.ImageURL = input.ImageURL
	product.Stock = input.Stock
	product.IsFeatured = input.IsFeatured
	product.IsActive = input.IsActive
	product.UpdatedAt = time.Now()

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// Deactivate soft-deletes a product.
func (s *productService) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.productRepo.Deactivate(ctx, id)
}

func validateProductInput(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if input.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if input.Discount.IsNegative() || input.Discount.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidProduct)
	}
	if input.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	return nil
}
