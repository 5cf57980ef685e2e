package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/events"
	"medimitra/backend/internal/store"
	"medimitra/backend/internal/xid"
)

// Checkout turns the caller's cart into a PENDING order. Stock for every line
// is decremented together with the order insert; if any line is short the
// whole checkout fails and nothing changes. The ordered lines are then taken
// out of the cart; anything added to the cart meanwhile stays.
//
// Checkout is not idempotent: resubmitting after success places a second order.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if req.AddressID == nil {
		return domain.Order{}, fmt.Errorf("%w: address id is required for checkout", store.ErrInvalidRequest)
	}
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		return domain.Order{}, fmt.Errorf("%w: payment method is required for checkout", store.ErrInvalidRequest)
	}

	cart, err := s.repo.GetOrCreateCart(ctx, actor.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: cart is empty", store.ErrInvalidRequest)
	}

	address, err := s.repo.GetAddress(ctx, *req.AddressID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("address %d: %w", *req.AddressID, err)
	}
	if address.UserID != actor.UserID {
		return domain.Order{}, fmt.Errorf("%w: address does not belong to this account", store.ErrUnauthorized)
	}

	items, total := priceLines(cart.Items)

	storeID, err := s.resolveStore(ctx, *address, req.StoreID)
	if err != nil {
		return domain.Order{}, err
	}

	createdAt := s.now().UTC()
	placed, err := s.repo.PlaceOrder(ctx, domain.Order{
		Reference:     xid.NewReference("ORD", createdAt),
		UserID:        actor.UserID,
		StoreID:       storeID,
		AddressID:     address.ID,
		PaymentMethod: paymentMethod,
		Status:        domain.OrderStatusPending,
		TotalAmount:   total,
		Items:         items,
		CreatedAt:     createdAt,
	})
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.repo.RemoveCartLines(ctx, cart.ID, cart.Items); err != nil {
		log.Printf("[service] WARN: order %d placed but cart %d was not cleared: %v", placed.ID, cart.ID, err)
	}

	s.emit(ctx, events.EventOrderPlaced, placed.ID, events.NewOrderPlaced(*placed))
	s.invalidateDashboard(ctx)

	return *placed, nil
}

// priceLines freezes each cart line's current price into an order line and
// sums the exact total.
func priceLines(cartItems []domain.CartItem) ([]domain.OrderItem, decimal.Decimal) {
	items := make([]domain.OrderItem, 0, len(cartItems))
	total := decimal.Zero
	for _, ci := range cartItems {
		items = append(items, domain.OrderItem{
			MedicineID:   ci.MedicineID,
			MedicineName: ci.MedicineName,
			Quantity:     ci.Quantity,
			Price:        ci.Price,
		})
		total = total.Add(ci.LineTotal())
	}
	return items, total
}
