package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

type checkoutFixture struct {
	s         *Store
	userID    int64
	addressID int64
	medA      domain.Medicine
	medB      domain.Medicine
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()

	databaseURL := os.Getenv("MEDIMITRA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MEDIMITRA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	user, err := s.CreateUser(ctx, domain.UserAccount{
		Name:         "Checkout IT",
		Email:        fmt.Sprintf("checkout-it-%d@example.com", stamp),
		PasswordHash: "$2a$04$integrationtestintegrationtestintegrationte",
		Role:         domain.RoleUser,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	address, err := s.CreateAddress(ctx, domain.Address{UserID: user.ID, FullName: "Checkout IT", City: "Haldwani", IsDefault: true})
	if err != nil {
		t.Fatalf("create address: %v", err)
	}
	medA, err := s.CreateMedicine(ctx, domain.Medicine{Name: fmt.Sprintf("IT Paracetamol %d", stamp), Price: decimal.RequireFromString("50.00"), Stock: 5})
	if err != nil {
		t.Fatalf("create medicine A: %v", err)
	}
	medB, err := s.CreateMedicine(ctx, domain.Medicine{Name: fmt.Sprintf("IT Amoxicillin %d", stamp), Price: decimal.RequireFromString("120.00"), Stock: 1})
	if err != nil {
		t.Fatalf("create medicine B: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id IN (SELECT id FROM orders WHERE user_id = $1)`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE user_id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ANY($1)`, []int64{medA.ID, medB.ID})
		_, _ = s.db.ExecContext(ctx, `DELETE FROM addresses WHERE user_id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	})

	return checkoutFixture{s: s, userID: user.ID, addressID: address.ID, medA: *medA, medB: *medB}
}

func (f checkoutFixture) order(stamp string, lines ...domain.OrderItem) domain.Order {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return domain.Order{
		Reference:     "ORD-IT-" + stamp,
		UserID:        f.userID,
		AddressID:     f.addressID,
		PaymentMethod: "COD",
		TotalAmount:   total,
		Items:         lines,
	}
}

func (f checkoutFixture) stock(t *testing.T, id int64) int {
	t.Helper()
	m, err := f.s.GetMedicine(context.Background(), id)
	if err != nil {
		t.Fatalf("get medicine %d: %v", id, err)
	}
	return m.Stock
}

func TestPlaceOrderLeavesStockUntouchedOnShortfall(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.s.PlaceOrder(ctx, f.order(fmt.Sprint(time.Now().UnixNano()),
		domain.OrderItem{MedicineID: f.medA.ID, MedicineName: f.medA.Name, Quantity: 2, Price: f.medA.Price},
		domain.OrderItem{MedicineID: f.medB.ID, MedicineName: f.medB.Name, Quantity: 2, Price: f.medB.Price},
	))
	var shortfall *store.InsufficientStockError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if shortfall.MedicineID != f.medB.ID {
		t.Fatalf("expected shortfall on medicine %d, got %d", f.medB.ID, shortfall.MedicineID)
	}
	if got := f.stock(t, f.medA.ID); got != 5 {
		t.Fatalf("expected stock 5 after rollback, got %d", got)
	}

	placed, err := f.s.PlaceOrder(ctx, f.order(fmt.Sprint(time.Now().UnixNano()),
		domain.OrderItem{MedicineID: f.medA.ID, MedicineName: f.medA.Name, Quantity: 2, Price: f.medA.Price},
		domain.OrderItem{MedicineID: f.medB.ID, MedicineName: f.medB.Name, Quantity: 1, Price: f.medB.Price},
	))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if placed.Status != domain.OrderStatusPending || len(placed.Items) != 2 {
		t.Fatalf("unexpected placed order %+v", placed)
	}
	if got := f.stock(t, f.medA.ID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if got := f.stock(t, f.medB.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	loaded, err := f.s.GetOrder(ctx, placed.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !loaded.TotalAmount.Equal(decimal.RequireFromString("220.00")) {
		t.Fatalf("expected total 220.00, got %s", loaded.TotalAmount)
	}
}

func TestPlaceOrderConcurrentLastUnit(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	const buyers = 8
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.s.PlaceOrder(ctx, f.order(fmt.Sprintf("%d-%d", time.Now().UnixNano(), i),
				domain.OrderItem{MedicineID: f.medB.ID, MedicineName: f.medB.Name, Quantity: 1, Price: f.medB.Price},
			))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful order, got %d", succeeded)
	}
	if got := f.stock(t, f.medB.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestUpdateOrderStatusScopedToStore(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	st, err := f.s.CreateStore(ctx, domain.Store{Name: fmt.Sprintf("IT Store %d", time.Now().UnixNano()), Status: domain.StoreStatusActive})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = f.s.DeleteStore(context.Background(), st.ID) })

	order := f.order(fmt.Sprint(time.Now().UnixNano()),
		domain.OrderItem{MedicineID: f.medA.ID, MedicineName: f.medA.Name, Quantity: 1, Price: f.medA.Price},
	)
	order.StoreID = &st.ID
	placed, err := f.s.PlaceOrder(ctx, order)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	other := st.ID + 1_000_000
	if _, _, err := f.s.UpdateOrderStatus(ctx, placed.ID, domain.OrderStatusReceived, &other); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for another store, got %v", err)
	}
	updated, previous, err := f.s.UpdateOrderStatus(ctx, placed.ID, domain.OrderStatusReceived, &st.ID)
	if err != nil {
		t.Fatalf("scoped update: %v", err)
	}
	if previous != domain.OrderStatusPending || updated.Status != domain.OrderStatusReceived {
		t.Fatalf("expected PENDING -> RECEIVED, got %s -> %s", previous, updated.Status)
	}

	if err := f.s.DeleteStore(ctx, st.ID); err != nil {
		t.Fatalf("delete store: %v", err)
	}
	if _, _, err := f.s.UpdateOrderStatus(ctx, placed.ID, domain.OrderStatusDelivered, &st.ID); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after store delete, got %v", err)
	}
	if _, _, err := f.s.UpdateOrderStatus(ctx, -1, domain.OrderStatusDelivered, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveCartLinesKeepsNewerQuantities(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	cart, err := f.s.GetOrCreateCart(ctx, f.userID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if _, err := f.s.AddCartItem(ctx, cart.ID, f.medA.ID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	snapshot, err := f.s.GetOrCreateCart(ctx, f.userID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}

	if _, err := f.s.AddCartItem(ctx, cart.ID, f.medA.ID, 1); err != nil {
		t.Fatalf("add more: %v", err)
	}
	if _, err := f.s.AddCartItem(ctx, cart.ID, f.medB.ID, 1); err != nil {
		t.Fatalf("add other: %v", err)
	}

	if err := f.s.RemoveCartLines(ctx, cart.ID, snapshot.Items); err != nil {
		t.Fatalf("remove lines: %v", err)
	}
	after, err := f.s.GetOrCreateCart(ctx, f.userID)
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	left := make(map[int64]int)
	for _, item := range after.Items {
		left[item.MedicineID] = item.Quantity
	}
	if len(left) != 2 || left[f.medA.ID] != 1 || left[f.medB.ID] != 1 {
		t.Fatalf("expected one of each medicine left, got %v", left)
	}
}
