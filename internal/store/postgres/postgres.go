package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

// Store implements store.Repository on PostgreSQL. Tables are described in schema.sql.
type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const medicineColumns = `id, name, category, description, manufacturer, image_url, price, stock, prescription_required, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (domain.Medicine, error) {
	var m domain.Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Description, &m.Manufacturer, &m.ImageURL,
		&m.Price, &m.Stock, &m.PrescriptionRequired, &m.CreatedAt, &m.UpdatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, err
}

func (s *Store) ListMedicines(ctx context.Context, filter domain.MedicineFilter) ([]domain.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE true`
	args := make([]any, 0, 2)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 64)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) GetMedicine(ctx context.Context, id int64) (*domain.Medicine, error) {
	m, err := scanMedicine(s.db.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.Stock < 0 || medicine.Price.IsNegative() {
		return nil, store.ErrInvalidRequest
	}

	m, err := scanMedicine(s.db.QueryRowContext(ctx, `
		INSERT INTO medicines (name, category, description, manufacturer, image_url, price, stock, prescription_required, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+medicineColumns,
		medicine.Name, medicine.Category, medicine.Description, medicine.Manufacturer, medicine.ImageURL,
		medicine.Price, medicine.Stock, medicine.PrescriptionRequired))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.Stock < 0 || medicine.Price.IsNegative() {
		return nil, store.ErrInvalidRequest
	}

	m, err := scanMedicine(s.db.QueryRowContext(ctx, `
		UPDATE medicines
		SET name = $2, category = $3, description = $4, manufacturer = $5, image_url = $6,
			price = $7, stock = $8, prescription_required = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+medicineColumns,
		medicine.ID, medicine.Name, medicine.Category, medicine.Description, medicine.Manufacturer, medicine.ImageURL,
		medicine.Price, medicine.Stock, medicine.PrescriptionRequired))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// DeleteMedicine removes a medicine and any cart lines holding it. Medicines
// that appear on an order are kept.
func (s *Store) DeleteMedicine(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var referenced bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM order_items WHERE medicine_id = $1)`, id).Scan(&referenced); err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: medicine is referenced by an order", store.ErrInvalidRequest)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE medicine_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: medicine is referenced by an order", store.ErrInvalidRequest)
		}
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CountMedicines(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM medicines`).Scan(&n)
	return n, err
}

func (s *Store) CountLowStockMedicines(ctx context.Context, threshold int) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM medicines WHERE stock < $1`, threshold).Scan(&n)
	return n, err
}

const storeColumns = `id, name, address, city, phone, latitude, longitude, timings, status, medicine_count, email, password_hash, created_at`

func scanStore(row rowScanner) (domain.Store, error) {
	var st domain.Store
	var email sql.NullString
	err := row.Scan(&st.ID, &st.Name, &st.Address, &st.City, &st.Phone, &st.Latitude, &st.Longitude,
		&st.Timings, &st.Status, &st.MedicineCount, &email, &st.PasswordHash, &st.CreatedAt)
	st.Email = email.String
	st.CreatedAt = st.CreatedAt.UTC()
	return st, err
}

func (s *Store) ListStores(ctx context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE true`
	args := make([]any, 0, 3)
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.City != "" {
		args = append(args, filter.City)
		query += fmt.Sprintf(" AND city = $%d", len(args))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) GetStore(ctx context.Context, id int64) (*domain.Store, error) {
	return s.getStore(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
}

func (s *Store) GetStoreByEmail(ctx context.Context, email string) (*domain.Store, error) {
	return s.getStore(ctx, `SELECT `+storeColumns+` FROM stores WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getStore(ctx context.Context, query string, arg any) (*domain.Store, error) {
	st, err := scanStore(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidRequest
	}

	created, err := scanStore(s.db.QueryRowContext(ctx, `
		INSERT INTO stores (name, address, city, phone, latitude, longitude, timings, status, medicine_count, email, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		RETURNING `+storeColumns,
		st.Name, st.Address, st.City, st.Phone, st.Latitude, st.Longitude, st.Timings, st.Status,
		st.MedicineCount, nullIfEmpty(strings.ToLower(st.Email)), st.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: store email already in use", store.ErrInvalidRequest)
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidRequest
	}

	updated, err := scanStore(s.db.QueryRowContext(ctx, `
		UPDATE stores
		SET name = $2, address = $3, city = $4, phone = $5, latitude = $6, longitude = $7,
			timings = $8, status = $9, medicine_count = $10, email = $11, password_hash = $12
		WHERE id = $1
		RETURNING `+storeColumns,
		st.ID, st.Name, st.Address, st.City, st.Phone, st.Latitude, st.Longitude, st.Timings, st.Status,
		st.MedicineCount, nullIfEmpty(strings.ToLower(st.Email)), st.PasswordHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: store email already in use", store.ErrInvalidRequest)
		}
		return nil, err
	}
	return &updated, nil
}

// DeleteStore removes a store. Orders and accounts bound to it are unassigned
// in the same transaction.
func (s *Store) DeleteStore(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET store_id = NULL, updated_at = now() WHERE store_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET store_id = NULL WHERE store_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CountStores(ctx context.Context, status string) (int64, error) {
	var n int64
	var err error
	if status == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM stores`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM stores WHERE status = $1`, status).Scan(&n)
	}
	return n, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidRequest
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, store_id, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id, created_at
	`, user.Name, user.Email, user.PasswordHash, user.Role, nullInt64(user.StoreID)).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", store.ErrInvalidRequest)
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var storeID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, store_id, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &storeID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if storeID.Valid {
		user.StoreID = &storeID.Int64
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

const addressColumns = `id, user_id, full_name, phone, address_line1, address_line2, city, state, zip_code, country, is_default, latitude, longitude`

func scanAddress(row rowScanner) (domain.Address, error) {
	var a domain.Address
	var lat, lng sql.NullFloat64
	err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.AddressLine1, &a.AddressLine2,
		&a.City, &a.State, &a.ZipCode, &a.Country, &a.IsDefault, &lat, &lng)
	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lng.Valid {
		a.Longitude = &lng.Float64
	}
	return a, err
}

func (s *Store) ListAddresses(ctx context.Context, userID int64) ([]domain.Address, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]domain.Address, 0, 4)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (s *Store) GetAddress(ctx context.Context, id int64) (*domain.Address, error) {
	a, err := scanAddress(s.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAddress inserts an address. A new default clears the user's previous one.
func (s *Store) CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if address.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE addresses SET is_default = false WHERE user_id = $1 AND is_default`, address.UserID); err != nil {
			return nil, err
		}
	}
	created, err := scanAddress(tx.QueryRowContext(ctx, `
		INSERT INTO addresses (user_id, full_name, phone, address_line1, address_line2, city, state, zip_code, country, is_default, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+addressColumns,
		address.UserID, address.FullName, address.Phone, address.AddressLine1, address.AddressLine2,
		address.City, address.State, address.ZipCode, address.Country, address.IsDefault,
		nullFloat64(address.Latitude), nullFloat64(address.Longitude)))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, address.UserID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateAddress(ctx context.Context, address domain.Address) (*domain.Address, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var userID int64
	if err := tx.QueryRowContext(ctx, `SELECT user_id FROM addresses WHERE id = $1 FOR UPDATE`, address.ID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if address.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE addresses SET is_default = false WHERE user_id = $1 AND id <> $2 AND is_default`, userID, address.ID); err != nil {
			return nil, err
		}
	}
	updated, err := scanAddress(tx.QueryRowContext(ctx, `
		UPDATE addresses
		SET full_name = $2, phone = $3, address_line1 = $4, address_line2 = $5, city = $6, state = $7,
			zip_code = $8, country = $9, is_default = $10, latitude = $11, longitude = $12
		WHERE id = $1
		RETURNING `+addressColumns,
		address.ID, address.FullName, address.Phone, address.AddressLine1, address.AddressLine2,
		address.City, address.State, address.ZipCode, address.Country, address.IsDefault,
		nullFloat64(address.Latitude), nullFloat64(address.Longitude)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteAddress(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: address is referenced by an order", store.ErrInvalidRequest)
		}
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullFloat64(val *float64) any {
	if val == nil {
		return nil
	}
	return *val
}
