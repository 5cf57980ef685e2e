package service

import (
	"context"
	"fmt"
	"strings"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/events"
	"medimitra/backend/internal/store"
)

// ParseOrderStatus accepts any known status regardless of case.
func ParseOrderStatus(raw string) (domain.OrderStatus, error) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown order status %q", store.ErrInvalidRequest, raw)
	}
	return status, nil
}

func (s *Service) ListMyOrders(ctx context.Context) ([]domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	userID := actor.UserID
	return s.repo.ListOrders(ctx, domain.OrderFilter{UserID: &userID})
}

func (s *Service) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, domain.OrderFilter{})
}

// ListStoreOrders lists orders assigned to a store, optionally narrowed to one
// status. Store principals always see their own store; admins pick one.
func (s *Service) ListStoreOrders(ctx context.Context, storeID *int64, rawStatus string) ([]domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleStore, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	scope, err := storeScope(actor)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if storeID != nil && *storeID != *scope {
			return nil, fmt.Errorf("%w: store %d is not yours", store.ErrUnauthorized, *storeID)
		}
		storeID = scope
	}
	if storeID == nil {
		return nil, fmt.Errorf("%w: store id is required", store.ErrInvalidRequest)
	}

	filter := domain.OrderFilter{StoreID: storeID}
	if strings.TrimSpace(rawStatus) != "" {
		status, err := ParseOrderStatus(rawStatus)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if _, err := s.repo.GetStore(ctx, *storeID); err != nil {
		return nil, fmt.Errorf("store %d: %w", *storeID, err)
	}
	return s.repo.ListOrders(ctx, filter)
}

// GetOrder returns an order visible to the caller: its owner, the store it is
// assigned to, or an admin.
func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.Role == domain.RoleStore && actor.StoreID != 0 && order.AssignedTo(actor.StoreID):
	case order.UserID == actor.UserID && actor.UserID != 0:
	default:
		return domain.Order{}, fmt.Errorf("%w: order does not belong to this account", store.ErrUnauthorized)
	}
	return *order, nil
}

// SetOrderStatus sets an order's status. When storeID is non-nil the order must
// be assigned to that store. Any status may follow any other.
func (s *Service) SetOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus, storeID *int64) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidRequest, status)
	}

	updated, previous, err := s.repo.UpdateOrderStatus(ctx, orderID, status, storeID)
	if err != nil {
		return domain.Order{}, err
	}

	s.emit(ctx, events.EventOrderStatusChanged, updated.ID, events.OrderStatusChanged{
		OrderID: updated.ID,
		StoreID: updated.StoreID,
		From:    string(previous),
		To:      string(updated.Status),
	})
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, rawStatus string) (domain.Order, error) {
	actor, err := requireRole(ctx, domain.RoleStore, domain.RoleAdmin)
	if err != nil {
		return domain.Order{}, err
	}
	scope, err := storeScope(actor)
	if err != nil {
		return domain.Order{}, err
	}
	status, err := ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, err
	}
	return s.SetOrderStatus(ctx, orderID, status, scope)
}

// DeleteOrderForUser deletes an order owned by userID. Stock is not restored.
func (s *Service) DeleteOrderForUser(ctx context.Context, orderID int64, userID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order does not belong to this user", store.ErrUnauthorized)
	}
	return s.deleteOrder(ctx, *order, domain.RoleUser)
}

// DeleteOrderForStore deletes an order assigned to storeID, or any order when
// storeID is nil. Stock is not restored.
func (s *Service) DeleteOrderForStore(ctx context.Context, orderID int64, storeID *int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if storeID != nil && !order.AssignedTo(*storeID) {
		return fmt.Errorf("%w: order does not belong to this store", store.ErrUnauthorized)
	}
	deletedBy := domain.RoleAdmin
	if storeID != nil {
		deletedBy = domain.RoleStore
	}
	return s.deleteOrder(ctx, *order, deletedBy)
}

func (s *Service) DeleteMyOrder(ctx context.Context, orderID int64) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	return s.DeleteOrderForUser(ctx, orderID, actor.UserID)
}

func (s *Service) DeleteStoreOrder(ctx context.Context, orderID int64) error {
	actor, err := requireRole(ctx, domain.RoleStore, domain.RoleAdmin)
	if err != nil {
		return err
	}
	scope, err := storeScope(actor)
	if err != nil {
		return err
	}
	return s.DeleteOrderForStore(ctx, orderID, scope)
}

func (s *Service) deleteOrder(ctx context.Context, order domain.Order, deletedBy string) error {
	if err := s.repo.DeleteOrder(ctx, order.ID); err != nil {
		return err
	}
	s.emit(ctx, events.EventOrderDeleted, order.ID, events.OrderDeleted{
		OrderID:   order.ID,
		StoreID:   order.StoreID,
		Status:    string(order.Status),
		DeletedBy: deletedBy,
	})
	s.invalidateDashboard(ctx)
	return nil
}

// storeScope is the store a principal may act on: its own for STORE, none
// (unscoped) for ADMIN.
func storeScope(actor domain.Actor) (*int64, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil, nil
	case domain.RoleStore:
		if actor.StoreID == 0 {
			return nil, fmt.Errorf("%w: account is not linked to a store", store.ErrUnauthorized)
		}
		id := actor.StoreID
		return &id, nil
	}
	return nil, fmt.Errorf("%w: store role required", store.ErrUnauthorized)
}
