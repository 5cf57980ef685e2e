package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "USER"
	RoleStore = "STORE"
	RoleAdmin = "ADMIN"
)

const (
	StoreStatusActive   = "Active"
	StoreStatusInactive = "Inactive"
)

// LowStockThreshold is the stock level under which a medicine counts as low on the dashboard.
const LowStockThreshold = 50

type Actor struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	StoreID int64  `json:"store_id,omitempty"`
}

type Medicine struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Category             string          `json:"category"`
	Description          string          `json:"description"`
	Manufacturer         string          `json:"manufacturer"`
	ImageURL             string          `json:"image_url,omitempty"`
	Price                decimal.Decimal `json:"price"`
	Stock                int             `json:"stock"`
	PrescriptionRequired bool            `json:"prescription_required"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type MedicineFilter struct {
	Query    string
	Category string
}

type MedicineRequest struct {
	Name                 string          `json:"name"`
	Category             string          `json:"category"`
	Description          string          `json:"description"`
	Manufacturer         string          `json:"manufacturer"`
	ImageURL             string          `json:"image_url"`
	Price                decimal.Decimal `json:"price"`
	Stock                int             `json:"stock"`
	PrescriptionRequired bool            `json:"prescription_required"`
}

type Store struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	Phone         string    `json:"phone"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Timings       string    `json:"timings"`
	Status        string    `json:"status"`
	MedicineCount int       `json:"medicine_count"`
	Email         string    `json:"email,omitempty"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s Store) Active() bool {
	return s.Status == StoreStatusActive
}

type StoreFilter struct {
	Status string
	City   string
	Query  string
}

type StoreRequest struct {
	Name          string  `json:"name"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	Phone         string  `json:"phone"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Timings       string  `json:"timings"`
	Status        string  `json:"status"`
	MedicineCount int     `json:"medicine_count"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
}

type StoreCredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Address struct {
	ID           int64    `json:"id"`
	UserID       int64    `json:"user_id"`
	FullName     string   `json:"full_name"`
	Phone        string   `json:"phone"`
	AddressLine1 string   `json:"address_line1"`
	AddressLine2 string   `json:"address_line2,omitempty"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Country      string   `json:"country"`
	IsDefault    bool     `json:"is_default"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

type AddressRequest struct {
	FullName     string   `json:"full_name"`
	Phone        string   `json:"phone"`
	AddressLine1 string   `json:"address_line1"`
	AddressLine2 string   `json:"address_line2"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Country      string   `json:"country"`
	IsDefault    bool     `json:"is_default"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Subtotal prices the cart at current catalog prices.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

type CartItem struct {
	ID           int64           `json:"id"`
	CartID       int64           `json:"cart_id"`
	MedicineID   int64           `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CartView struct {
	Cart     Cart            `json:"cart"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CartItemRequest struct {
	MedicineID int64 `json:"medicine_id"`
	Quantity   int   `json:"quantity"`
}

type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusReceived  OrderStatus = "RECEIVED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusReceived, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CountsAsRevenue reports whether an order in this status contributes to sales figures.
func (s OrderStatus) CountsAsRevenue() bool {
	return s != OrderStatusCancelled
}

type Order struct {
	ID            int64           `json:"id"`
	Reference     string          `json:"reference"`
	UserID        int64           `json:"user_id"`
	StoreID       *int64          `json:"store_id"`
	AddressID     int64           `json:"address_id"`
	PaymentMethod string          `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AssignedTo reports whether the order is fulfilled by the given store.
func (o Order) AssignedTo(storeID int64) bool {
	return o.StoreID != nil && *o.StoreID == storeID
}

type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	MedicineID   int64           `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

type OrderFilter struct {
	UserID  *int64
	StoreID *int64
	Status  OrderStatus
}

type CheckoutRequest struct {
	AddressID     *int64 `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
	StoreID       *int64 `json:"store_id,omitempty"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type UserAccount struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	StoreID      *int64    `json:"store_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	StoreID     int64  `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type DashboardStats struct {
	TotalStores         int64           `json:"total_stores"`
	ActiveStores        int64           `json:"active_stores"`
	TotalMedicines      int64           `json:"total_medicines"`
	LowStockMedicines   int64           `json:"low_stock_medicines"`
	TotalUsers          int64           `json:"total_users"`
	TotalOrders         int64           `json:"total_orders"`
	TodayOrders         int64           `json:"today_orders"`
	MonthlyOrders       int64           `json:"monthly_orders"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	TodayRevenue        decimal.Decimal `json:"today_revenue"`
	AverageDailySales   decimal.Decimal `json:"average_daily_sales"`
	AverageMonthlySales decimal.Decimal `json:"average_monthly_sales"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

type DailyRevenue struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
}
