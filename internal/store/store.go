package store

import (
	"context"
	"errors"
	"fmt"

	"medimitra/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError names the medicine whose stock could not cover an order line.
type InsufficientStockError struct {
	MedicineID int64
	Name       string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Name)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type Repository interface {
	ListMedicines(ctx context.Context, filter domain.MedicineFilter) ([]domain.Medicine, error)
	GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	DeleteMedicine(ctx context.Context, id int64) error
	CountMedicines(ctx context.Context) (int64, error)
	CountLowStockMedicines(ctx context.Context, threshold int) (int64, error)

	ListStores(ctx context.Context, filter domain.StoreFilter) ([]domain.Store, error)
	GetStore(ctx context.Context, id int64) (*domain.Store, error)
	GetStoreByEmail(ctx context.Context, email string) (*domain.Store, error)
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	DeleteStore(ctx context.Context, id int64) error
	CountStores(ctx context.Context, status string) (int64, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	CountUsers(ctx context.Context) (int64, error)

	ListAddresses(ctx context.Context, userID int64) ([]domain.Address, error)
	GetAddress(ctx context.Context, id int64) (*domain.Address, error)
	CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error)
	UpdateAddress(ctx context.Context, address domain.Address) (*domain.Address, error)
	DeleteAddress(ctx context.Context, id int64) error

	GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error)
	GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error)
	AddCartItem(ctx context.Context, cartID int64, medicineID int64, qty int) (*domain.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) (*domain.CartItem, error)
	DeleteCartItem(ctx context.Context, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error
	// RemoveCartLines takes each line's quantity off the matching cart item and
	// deletes items that reach zero. Items added after lines were read survive.
	RemoveCartLines(ctx context.Context, cartID int64, lines []domain.CartItem) error

	// PlaceOrder decrements stock for every line and persists the order in one
	// unit. On any shortfall nothing is written.
	PlaceOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// UpdateOrderStatus sets the status and returns the updated order with the
	// status it replaced. A non-nil storeID is checked against the order's store
	// in the same write; a mismatch is ErrUnauthorized and nothing changes.
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, storeID *int64) (*domain.Order, domain.OrderStatus, error)
	DeleteOrder(ctx context.Context, id int64) error
	CountOrders(ctx context.Context) (int64, error)
}
