package service

import (
	"context"
	"fmt"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

// GetCart returns the caller's cart, creating an empty one on first access.
func (s *Service) GetCart(ctx context.Context) (domain.CartView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	cart, err := s.repo.GetOrCreateCart(ctx, actor.UserID)
	if err != nil {
		return domain.CartView{}, err
	}
	return domain.CartView{Cart: *cart, Subtotal: cart.Subtotal()}, nil
}

// AddItem adds quantity of a medicine to the caller's cart. A medicine already
// in the cart has its line quantity increased. Stock is not checked here.
func (s *Service) AddItem(ctx context.Context, req domain.CartItemRequest) (domain.CartView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	if req.Quantity < 1 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalidRequest)
	}
	if _, err := s.repo.GetMedicine(ctx, req.MedicineID); err != nil {
		return domain.CartView{}, fmt.Errorf("medicine %d: %w", req.MedicineID, err)
	}

	cart, err := s.repo.GetOrCreateCart(ctx, actor.UserID)
	if err != nil {
		return domain.CartView{}, err
	}
	if _, err := s.repo.AddCartItem(ctx, cart.ID, req.MedicineID, req.Quantity); err != nil {
		return domain.CartView{}, err
	}
	return s.GetCart(ctx)
}

func (s *Service) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (domain.CartView, error) {
	if quantity < 1 {
		return domain.CartView{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalidRequest)
	}
	if _, err := s.ownedCartItem(ctx, itemID); err != nil {
		return domain.CartView{}, err
	}
	if _, err := s.repo.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return domain.CartView{}, err
	}
	return s.GetCart(ctx)
}

func (s *Service) RemoveItem(ctx context.Context, itemID int64) (domain.CartView, error) {
	if _, err := s.ownedCartItem(ctx, itemID); err != nil {
		return domain.CartView{}, err
	}
	if err := s.repo.DeleteCartItem(ctx, itemID); err != nil {
		return domain.CartView{}, err
	}
	return s.GetCart(ctx)
}

// ClearCart empties the caller's cart. The cart itself is kept.
func (s *Service) ClearCart(ctx context.Context) (domain.CartView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	cart, err := s.repo.GetOrCreateCart(ctx, actor.UserID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := s.repo.ClearCart(ctx, cart.ID); err != nil {
		return domain.CartView{}, err
	}
	return s.GetCart(ctx)
}

// ownedCartItem rejects items that live in another user's cart.
func (s *Service) ownedCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetCartItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.GetOrCreateCart(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if item.CartID != cart.ID {
		return nil, fmt.Errorf("%w: cart item does not belong to this account", store.ErrUnauthorized)
	}
	return item, nil
}
