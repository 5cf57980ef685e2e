package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	var cart domain.Cart
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at)
		VALUES ($1, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at, updated_at
	`, userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, userID)
		}
		return nil, err
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.medicine_id, m.name, m.price, ci.quantity
		FROM cart_items ci
		JOIN medicines m ON m.id = ci.medicine_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart.Items = make([]domain.CartItem, 0, 8)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cart, nil
}

func scanCartItem(row rowScanner) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.CartID, &item.MedicineID, &item.MedicineName, &item.Price, &item.Quantity)
	return item, err
}

func (s *Store) GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	item, err := scanCartItem(s.db.QueryRowContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.medicine_id, m.name, m.price, ci.quantity
		FROM cart_items ci
		JOIN medicines m ON m.id = ci.medicine_id
		WHERE ci.id = $1
	`, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// AddCartItem adds qty to the cart line for medicineID, creating the line if needed.
func (s *Store) AddCartItem(ctx context.Context, cartID int64, medicineID int64, qty int) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	var itemID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, medicine_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, medicine_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id
	`, cartID, medicineID, qty).Scan(&itemID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	s.touchCart(ctx, cartID)
	return s.GetCartItem(ctx, itemID)
}

func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	var cartID int64
	err := s.db.QueryRowContext(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1 RETURNING cart_id`, itemID, qty).Scan(&cartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	s.touchCart(ctx, cartID)
	return s.GetCartItem(ctx, itemID)
}

func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return err
	}
	s.touchCart(ctx, cartID)
	return nil
}

func (s *Store) RemoveCartLines(ctx context.Context, cartID int64, lines []domain.CartItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = quantity - $3
			WHERE id = $1 AND cart_id = $2 AND quantity > $3
		`, line.ID, cartID, line.Quantity)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, line.ID, cartID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) touchCart(ctx context.Context, cartID int64) {
	_, _ = s.db.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
}

// PlaceOrder decrements stock with a guarded UPDATE per medicine and inserts
// the order in the same transaction. Medicines are locked in id order so two
// concurrent checkouts cannot deadlock on each other.
func (s *Store) PlaceOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrInvalidRequest)
	}

	required := make(map[int64]int, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
		required[item.MedicineID] += item.Quantity
	}
	medicineIDs := make([]int64, 0, len(required))
	for id := range required {
		medicineIDs = append(medicineIDs, id)
	}
	slices.Sort(medicineIDs)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, id := range medicineIDs {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE medicines
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, required[id], id)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			continue
		}

		var name string
		if err := pgTx.QueryRowContext(ctx, `SELECT name FROM medicines WHERE id = $1`, id).Scan(&name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, id)
			}
			return nil, err
		}
		return nil, &store.InsufficientStockError{MedicineID: id, Name: name}
	}

	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO orders (reference, user_id, store_id, address_id, payment_method, status, total_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING id
	`, order.Reference, order.UserID, nullInt64(order.StoreID), order.AddressID, order.PaymentMethod,
		string(order.Status), order.TotalAmount, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: order references a missing address, user or store", store.ErrNotFound)
		}
		return nil, err
	}

	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.OrderID = order.ID
		if err := pgTx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, medicine_id, medicine_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, item.OrderID, item.MedicineID, item.MedicineName, item.Quantity, item.Price).Scan(&item.ID); err != nil {
			return nil, err
		}
		items[i] = item
	}
	order.Items = items

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

const orderColumns = `id, reference, user_id, store_id, address_id, payment_method, status, total_amount, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var storeID sql.NullInt64
	var status string
	err := row.Scan(&o.ID, &o.Reference, &o.UserID, &storeID, &o.AddressID, &o.PaymentMethod,
		&status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if storeID.Valid {
		o.StoreID = &storeID.Int64
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	orders := []domain.Order{order}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.StoreID != nil {
		args = append(args, *filter.StoreID)
		conditions = append(conditions, fmt.Sprintf("store_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of every order in one query.
func (s *Store) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0, 4)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, medicine_id, medicine_name, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MedicineID, &item.MedicineName, &item.Quantity, &item.Price); err != nil {
			return err
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

// UpdateOrderStatus locks the order row, so the store check and the write see
// the same store_id even if the store is deleted concurrently.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, storeID *int64) (*domain.Order, domain.OrderStatus, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		WITH prev AS (
			SELECT id, status, store_id FROM orders WHERE id = $1 FOR UPDATE
		)
		UPDATE orders o SET status = $2, updated_at = now()
		FROM prev
		WHERE o.id = prev.id AND ($3::bigint IS NULL OR prev.store_id = $3)
		RETURNING prev.status
	`, id, string(status), nullInt64(storeID)).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, "", err
		}
		if !exists {
			return nil, "", store.ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: order is not assigned to store %d", store.ErrUnauthorized, *storeID)
	}
	if err != nil {
		return nil, "", err
	}

	updated, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return updated, domain.OrderStatus(previous), nil
}

// DeleteOrder removes an order and its lines. Stock is not restored.
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM orders`).Scan(&n)
	return n, err
}
