package memory

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	seq          int64
	medicines    map[int64]domain.Medicine
	stores       map[int64]domain.Store
	users        map[int64]domain.UserAccount
	userByEmail  map[string]int64
	addresses    map[int64]domain.Address
	carts        map[int64]domain.Cart
	cartByUser   map[int64]int64
	cartItems    map[int64]domain.CartItem
	orders       map[int64]domain.Order
	failClearFor map[int64]error
}

func New() *Store {
	return &Store{
		medicines:    make(map[int64]domain.Medicine),
		stores:       make(map[int64]domain.Store),
		users:        make(map[int64]domain.UserAccount),
		userByEmail:  make(map[string]int64),
		addresses:    make(map[int64]domain.Address),
		carts:        make(map[int64]domain.Cart),
		cartByUser:   make(map[int64]int64),
		cartItems:    make(map[int64]domain.CartItem),
		orders:       make(map[int64]domain.Order),
		failClearFor: make(map[int64]error),
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_STORE_PASSWORD and SEED_USER_PASSWORD, falling back to dev defaults.
func seedUsers(firstStoreID int64) []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	storePwd := envOr("SEED_STORE_PASSWORD", "store123")
	userPwd := envOr("SEED_USER_PASSWORD", "user123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STORE_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_STORE_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	storeID := firstStoreID
	accounts := make([]domain.UserAccount, 0, 3)
	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
		storeID  *int64
	}{
		{"Admin", "admin@medimitra.com", adminPwd, domain.RoleAdmin, nil},
		{"MediStore", "store@medimitra.com", storePwd, domain.RoleStore, &storeID},
		{"Demo User", "user@medimitra.com", userPwd, domain.RoleUser, nil},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		accounts = append(accounts, domain.UserAccount{
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			StoreID:      u.storeID,
		})
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding the demo catalog, stores and accounts.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	medicines := []struct {
		name, category, description, manufacturer string
		price                                     string
		stock                                     int
		rx                                        bool
	}{
		{"Paracetamol 500mg", "Pain Relief", "Fever and mild pain relief", "PharmaCo", "50.00", 100, false},
		{"Amoxicillin 250mg", "Antibiotic", "Broad-spectrum antibiotic", "MediLife", "120.00", 50, true},
		{"Cetirizine 10mg", "Allergy", "Antihistamine for allergy relief", "HealthCare", "80.00", 75, false},
		{"Omeprazole 20mg", "Digestive", "Reduces stomach acid", "WellMed", "150.00", 30, false},
		{"Aspirin 75mg", "Pain Relief", "Low-dose aspirin", "PharmaCo", "40.00", 120, false},
		{"Metformin 500mg", "Diabetes", "Blood sugar control", "DiabetCare", "200.00", 60, true},
		{"Vitamin D3 1000IU", "Supplements", "Vitamin D supplement", "VitaHealth", "180.00", 90, false},
		{"Ibuprofen 400mg", "Pain Relief", "Anti-inflammatory pain relief", "MediLife", "90.00", 0, false},
		{"Azithromycin 500mg", "Antibiotic", "Macrolide antibiotic", "PharmaCo", "250.00", 45, true},
		{"Loratadine 10mg", "Allergy", "Non-drowsy antihistamine", "HealthCare", "95.00", 80, false},
	}
	for _, m := range medicines {
		_, _ = s.CreateMedicine(ctx, domain.Medicine{
			Name:                 m.name,
			Category:             m.category,
			Description:          m.description,
			Manufacturer:         m.manufacturer,
			Price:                decimal.RequireFromString(m.price),
			Stock:                m.stock,
			PrescriptionRequired: m.rx,
		})
	}

	var firstStoreID int64
	for _, st := range []domain.Store{
		{Name: "MediMitra Haldwani Central", Address: "Nainital Road", City: "Haldwani", Phone: "+91 5946 220011", Latitude: 29.2205, Longitude: 79.5286, Timings: "8:00 AM - 10:00 PM", Status: domain.StoreStatusActive, MedicineCount: 10},
		{Name: "MediMitra Kathgodam", Address: "Station Road", City: "Haldwani", Phone: "+91 5946 220022", Latitude: 29.2652, Longitude: 79.5421, Timings: "9:00 AM - 9:00 PM", Status: domain.StoreStatusActive, MedicineCount: 8},
		{Name: "MediMitra Nainital", Address: "Mall Road", City: "Nainital", Phone: "+91 5942 230033", Latitude: 29.3919, Longitude: 79.4542, Timings: "9:00 AM - 8:00 PM", Status: domain.StoreStatusActive, MedicineCount: 6},
		{Name: "MediMitra Rudrapur", Address: "Kichha Road", City: "Rudrapur", Phone: "+91 5944 240044", Latitude: 28.9845, Longitude: 79.4141, Timings: "10:00 AM - 8:00 PM", Status: domain.StoreStatusInactive, MedicineCount: 0},
	} {
		created, err := s.CreateStore(ctx, st)
		if err == nil && firstStoreID == 0 {
			firstStoreID = created.ID
		}
	}

	for _, u := range seedUsers(firstStoreID) {
		created, err := s.CreateUser(ctx, u)
		if err != nil || created.Role != domain.RoleUser {
			continue
		}
		_, _ = s.CreateAddress(ctx, domain.Address{
			UserID:       created.ID,
			FullName:     created.Name,
			Phone:        "+91 90000 00000",
			AddressLine1: "12 Civil Lines",
			City:         "Haldwani",
			State:        "Uttarakhand",
			ZipCode:      "263139",
			Country:      "India",
			IsDefault:    true,
		})
	}

	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) ListMedicines(_ context.Context, filter domain.MedicineFilter) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	medicines := make([]domain.Medicine, 0, len(s.medicines))
	for _, m := range s.medicines {
		if query != "" && !strings.Contains(strings.ToLower(m.Name), query) {
			continue
		}
		if filter.Category != "" && m.Category != filter.Category {
			continue
		}
		medicines = append(medicines, m)
	}
	slices.SortFunc(medicines, func(a, b domain.Medicine) int { return cmp.Compare(a.ID, b.ID) })
	return medicines, nil
}

func (s *Store) GetMedicine(_ context.Context, id int64) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.Stock < 0 || medicine.Price.IsNegative() {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	medicine.ID = s.nextID()
	medicine.CreatedAt = now
	medicine.UpdatedAt = now
	s.medicines[medicine.ID] = medicine
	created := medicine
	return &created, nil
}

func (s *Store) UpdateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.Stock < 0 || medicine.Price.IsNegative() {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.medicines[medicine.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	medicine.CreatedAt = existing.CreatedAt
	medicine.UpdatedAt = time.Now().UTC()
	s.medicines[medicine.ID] = medicine
	updated := medicine
	return &updated, nil
}

func (s *Store) DeleteMedicine(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.medicines[id]; !ok {
		return store.ErrNotFound
	}
	for _, order := range s.orders {
		for _, item := range order.Items {
			if item.MedicineID == id {
				return fmt.Errorf("%w: medicine is referenced by order %d", store.ErrInvalidRequest, order.ID)
			}
		}
	}
	for itemID, item := range s.cartItems {
		if item.MedicineID == id {
			delete(s.cartItems, itemID)
		}
	}
	delete(s.medicines, id)
	return nil
}

func (s *Store) CountMedicines(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.medicines)), nil
}

func (s *Store) CountLowStockMedicines(_ context.Context, threshold int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.medicines {
		if m.Stock < threshold {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListStores(_ context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		if filter.City != "" && st.City != filter.City {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(st.Name), query) {
			continue
		}
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int { return cmp.Compare(a.ID, b.ID) })
	return stores, nil
}

func (s *Store) GetStore(_ context.Context, id int64) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) GetStoreByEmail(_ context.Context, email string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, store.ErrNotFound
	}
	for _, st := range s.stores {
		if strings.ToLower(st.Email) == email {
			found := st
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Email != "" && s.storeEmailTaken(st.Email, 0) {
		return nil, fmt.Errorf("%w: store email already in use", store.ErrInvalidRequest)
	}
	st.ID = s.nextID()
	st.CreatedAt = time.Now().UTC()
	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) UpdateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stores[st.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if st.Email != "" && s.storeEmailTaken(st.Email, st.ID) {
		return nil, fmt.Errorf("%w: store email already in use", store.ErrInvalidRequest)
	}
	st.CreatedAt = existing.CreatedAt
	s.stores[st.ID] = st
	updated := st
	return &updated, nil
}

func (s *Store) storeEmailTaken(email string, exceptID int64) bool {
	for id, st := range s.stores {
		if id != exceptID && strings.EqualFold(st.Email, email) {
			return true
		}
	}
	return false
}

// DeleteStore removes the store and unassigns every order and account that
// referenced it.
func (s *Store) DeleteStore(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[id]; !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	for orderID, order := range s.orders {
		if order.AssignedTo(id) {
			order.StoreID = nil
			order.UpdatedAt = now
			s.orders[orderID] = order
		}
	}
	for userID, user := range s.users {
		if user.StoreID != nil && *user.StoreID == id {
			user.StoreID = nil
			s.users[userID] = user
		}
	}
	delete(s.stores, id)
	return nil
}

func (s *Store) CountStores(_ context.Context, status string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, st := range s.stores {
		if status == "" || st.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userByEmail[user.Email]; exists {
		return nil, fmt.Errorf("%w: email already registered", store.ErrInvalidRequest)
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.ID = s.nextID()
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = user
	s.userByEmail[user.Email] = user.ID
	created := cloneUser(user)
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := cloneUser(s.users[id])
	return &user, nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) ListAddresses(_ context.Context, userID int64) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addresses := make([]domain.Address, 0, 4)
	for _, a := range s.addresses {
		if a.UserID == userID {
			addresses = append(addresses, cloneAddress(a))
		}
	}
	slices.SortFunc(addresses, func(a, b domain.Address) int { return cmp.Compare(a.ID, b.ID) })
	return addresses, nil
}

func (s *Store) GetAddress(_ context.Context, id int64) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneAddress(a)
	return &found, nil
}

func (s *Store) CreateAddress(_ context.Context, address domain.Address) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[address.UserID]; !ok {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, address.UserID)
	}
	address.ID = s.nextID()
	if address.IsDefault {
		s.clearDefaultAddress(address.UserID)
	}
	s.addresses[address.ID] = cloneAddress(address)
	created := cloneAddress(address)
	return &created, nil
}

func (s *Store) UpdateAddress(_ context.Context, address domain.Address) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.addresses[address.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	address.UserID = existing.UserID
	if address.IsDefault {
		s.clearDefaultAddress(address.UserID)
	}
	s.addresses[address.ID] = cloneAddress(address)
	updated := cloneAddress(address)
	return &updated, nil
}

func (s *Store) clearDefaultAddress(userID int64) {
	for id, a := range s.addresses {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			s.addresses[id] = a
		}
	}
}

func (s *Store) DeleteAddress(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[id]; !ok {
		return store.ErrNotFound
	}
	for _, order := range s.orders {
		if order.AddressID == id {
			return fmt.Errorf("%w: address is referenced by order %d", store.ErrInvalidRequest, order.ID)
		}
	}
	delete(s.addresses, id)
	return nil
}

func (s *Store) GetOrCreateCart(_ context.Context, userID int64) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, userID)
	}
	cartID, ok := s.cartByUser[userID]
	if !ok {
		now := time.Now().UTC()
		cartID = s.nextID()
		s.carts[cartID] = domain.Cart{ID: cartID, UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.cartByUser[userID] = cartID
	}
	cart := s.hydrateCart(s.carts[cartID])
	return &cart, nil
}

// hydrateCart attaches the cart's lines with current medicine name and price.
func (s *Store) hydrateCart(cart domain.Cart) domain.Cart {
	items := make([]domain.CartItem, 0, 8)
	for _, item := range s.cartItems {
		if item.CartID == cart.ID {
			items = append(items, s.hydrateItem(item))
		}
	}
	slices.SortFunc(items, func(a, b domain.CartItem) int { return cmp.Compare(a.ID, b.ID) })
	cart.Items = items
	return cart
}

func (s *Store) hydrateItem(item domain.CartItem) domain.CartItem {
	if m, ok := s.medicines[item.MedicineID]; ok {
		item.MedicineName = m.Name
		item.Price = m.Price
	}
	return item
}

func (s *Store) GetCartItem(_ context.Context, itemID int64) (*domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.cartItems[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.hydrateItem(item)
	return &found, nil
}

func (s *Store) AddCartItem(_ context.Context, cartID int64, medicineID int64, qty int) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.medicines[medicineID]; !ok {
		return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, medicineID)
	}

	var item domain.CartItem
	merged := false
	for id, existing := range s.cartItems {
		if existing.CartID == cartID && existing.MedicineID == medicineID {
			existing.Quantity += qty
			s.cartItems[id] = existing
			item = existing
			merged = true
			break
		}
	}
	if !merged {
		item = domain.CartItem{ID: s.nextID(), CartID: cartID, MedicineID: medicineID, Quantity: qty}
		s.cartItems[item.ID] = item
	}
	cart.UpdatedAt = time.Now().UTC()
	s.carts[cartID] = cart

	saved := s.hydrateItem(item)
	return &saved, nil
}

func (s *Store) UpdateCartItemQuantity(_ context.Context, itemID int64, qty int) (*domain.CartItem, error) {
	if qty < 1 {
		return nil, store.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItems[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item.Quantity = qty
	s.cartItems[itemID] = item
	s.touchCart(item.CartID)

	saved := s.hydrateItem(item)
	return &saved, nil
}

func (s *Store) DeleteCartItem(_ context.Context, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cartItems[itemID]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.cartItems, itemID)
	s.touchCart(item.CartID)
	return nil
}

func (s *Store) ClearCart(_ context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return store.ErrNotFound
	}
	if err := s.failClearFor[cartID]; err != nil {
		return err
	}
	for id, item := range s.cartItems {
		if item.CartID == cartID {
			delete(s.cartItems, id)
		}
	}
	s.touchCart(cartID)
	return nil
}

func (s *Store) RemoveCartLines(_ context.Context, cartID int64, lines []domain.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carts[cartID]; !ok {
		return store.ErrNotFound
	}
	if err := s.failClearFor[cartID]; err != nil {
		return err
	}
	for _, line := range lines {
		item, ok := s.cartItems[line.ID]
		if !ok || item.CartID != cartID {
			continue
		}
		if item.Quantity > line.Quantity {
			item.Quantity -= line.Quantity
			s.cartItems[line.ID] = item
			continue
		}
		delete(s.cartItems, line.ID)
	}
	s.touchCart(cartID)
	return nil
}

// FailClearCart makes every ClearCart and RemoveCartLines call for the cart
// return err until reset with nil.
func (s *Store) FailClearCart(cartID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failClearFor, cartID)
		return
	}
	s.failClearFor[cartID] = err
}

func (s *Store) touchCart(cartID int64) {
	if cart, ok := s.carts[cartID]; ok {
		cart.UpdatedAt = time.Now().UTC()
		s.carts[cartID] = cart
	}
}

func (s *Store) PlaceOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[order.AddressID]; !ok {
		return nil, fmt.Errorf("%w: address %d", store.ErrNotFound, order.AddressID)
	}
	if order.StoreID != nil {
		if _, ok := s.stores[*order.StoreID]; !ok {
			return nil, fmt.Errorf("%w: store %d", store.ErrNotFound, *order.StoreID)
		}
	}

	// Validate every line before touching any stock.
	for _, id := range medicineIDs {
		m, ok := s.medicines[id]
		if !ok {
			return nil, fmt.Errorf("%w: medicine %d", store.ErrNotFound, id)
		}
		if m.Stock < required[id] {
			return nil, &store.InsufficientStockError{MedicineID: id, Name: m.Name}
		}
	}

	now := time.Now().UTC()
	for _, id := range medicineIDs {
		m := s.medicines[id]
		m.Stock -= required[id]
		m.UpdatedAt = now
		s.medicines[id] = m
	}

	order.ID = s.nextID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.ID = s.nextID()
		item.OrderID = order.ID
		items[i] = item
	}
	order.Items = items

	s.orders[order.ID] = cloneOrder(order)
	placed := cloneOrder(order)
	return &placed, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneOrder(order)
	return &found, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.StoreID != nil && !order.AssignedTo(*filter.StoreID) {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, newestFirst)
	return orders, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus, storeID *int64) (*domain.Order, domain.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	if storeID != nil && !order.AssignedTo(*storeID) {
		return nil, "", fmt.Errorf("%w: order is not assigned to store %d", store.ErrUnauthorized, *storeID)
	}
	previous := order.Status
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	updated := cloneOrder(order)
	return &updated, previous, nil
}

func (s *Store) DeleteOrder(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) CountOrders(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	if src.StoreID != nil {
		storeID := *src.StoreID
		dup.StoreID = &storeID
	}
	dup.Items = slices.Clone(src.Items)
	return dup
}

func cloneUser(src domain.UserAccount) domain.UserAccount {
	dup := src
	if src.StoreID != nil {
		storeID := *src.StoreID
		dup.StoreID = &storeID
	}
	return dup
}

func cloneAddress(src domain.Address) domain.Address {
	dup := src
	if src.Latitude != nil {
		lat := *src.Latitude
		dup.Latitude = &lat
	}
	if src.Longitude != nil {
		lon := *src.Longitude
		dup.Longitude = &lon
	}
	return dup
}
