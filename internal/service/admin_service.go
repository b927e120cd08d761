package service

import (
	"context"
	"errors"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

// AdminService backs the administration endpoints.
type AdminService struct {
	store    *store.Store
	products *ProductService
	orders   *OrderService
	logger   *zap.Logger
	now      Clock
}

func NewAdminService(store *store.Store, products *ProductService, orders *OrderService) *AdminService {
	return &AdminService{
		store:    store,
		products: products,
		orders:   orders,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// UserPage is one page of users.
type UserPage struct {
	Users      []models.User `json:"users"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func (s *AdminService) ListUsers(ctx context.Context, f models.UserFilter) (*UserPage, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, Validation("invalid role %q", f.Role)
	}
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
	users, total, err := s.store.ListUsers(ctx, f)
	if err != nil {
		return nil, err
	}
	return &UserPage{
		Users:      users,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: totalPages(total, f.PageSize),
	}, nil
}

// FarmerPage is one page of farmers.
type FarmerPage struct {
	Farmers    []models.FarmerSummary `json:"farmers"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

func (s *AdminService) ListFarmers(ctx context.Context, page, pageSize int) (*FarmerPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	farmers, total, err := s.store.ListFarmers(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return &FarmerPage{
		Farmers:    farmers,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *AdminService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("user not found")
	}
	return user, err
}

// ChangeRole sets another user's role. Admins cannot change their own.
func (s *AdminService) ChangeRole(ctx context.Context, adminID, userID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, Validation("invalid role %q", role)
	}
	if adminID == userID {
		return nil, BusinessRule("you cannot change your own role")
	}
	if err := s.store.UpdateUserRole(ctx, userID, role, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("user not found")
		}
		return nil, err
	}
	s.logger.Info("User role changed",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("by", adminID))
	return s.GetUser(ctx, userID)
}

// DeleteUser removes another user's account.
func (s *AdminService) DeleteUser(ctx context.Context, adminID, userID string) error {
	if adminID == userID {
		return BusinessRule("you cannot delete your own account")
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("user not found")
		}
		return err
	}
	s.logger.Info("User deleted", zap.String("user_id", userID), zap.String("by", adminID))
	return nil
}

// ListProducts pages through every product.
func (s *AdminService) ListProducts(ctx context.Context, f models.ProductFilter) (*ProductPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, Validation("invalid status %q", f.Status)
	}
	f.Page, f.PageSize = normalizePage(f.Page, f.PageSize)
	products, total, err := s.store.ListAllProducts(ctx, f)
	if err != nil {
		return nil, err
	}
	return buildPage(ctx, s.store, products, total, f.Page, f.PageSize, s.now())
}

// UpdateProduct edits any product under the same version guard farmers use.
func (s *AdminService) UpdateProduct(ctx context.Context, productID string, in UpdateProductInput) (*ProductView, error) {
	return s.products.UpdateProduct(ctx, "", productID, in)
}

// DeleteProduct deletes any product without open orders.
func (s *AdminService) DeleteProduct(ctx context.Context, productID string) error {
	return s.products.DeleteProduct(ctx, "", productID)
}

// AdvanceOrder moves an order one step along its fulfilment path.
func (s *AdminService) AdvanceOrder(ctx context.Context, orderID, status string) (*models.Order, error) {
	return s.orders.AdvanceOrder(ctx, orderID, status)
}
