package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

func (s *Service) ListMedicines(ctx context.Context, filter domain.MedicineFilter) ([]domain.Medicine, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.Category = strings.TrimSpace(filter.Category)
	return s.repo.ListMedicines(ctx, filter)
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (domain.Medicine, error) {
	m, err := s.repo.GetMedicine(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *m, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineRequest) (domain.Medicine, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Medicine{}, err
	}
	medicine, err := medicineFromRequest(req)
	if err != nil {
		return domain.Medicine{}, err
	}

	created, err := s.repo.CreateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateMedicine(ctx context.Context, id int64, req domain.MedicineRequest) (domain.Medicine, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Medicine{}, err
	}
	medicine, err := medicineFromRequest(req)
	if err != nil {
		return domain.Medicine{}, err
	}
	medicine.ID = id

	updated, err := s.repo.UpdateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.DeleteMedicine(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func medicineFromRequest(req domain.MedicineRequest) (domain.Medicine, error) {
	m := domain.Medicine{
		Name:                 strings.TrimSpace(req.Name),
		Category:             strings.TrimSpace(req.Category),
		Description:          strings.TrimSpace(req.Description),
		Manufacturer:         strings.TrimSpace(req.Manufacturer),
		ImageURL:             strings.TrimSpace(req.ImageURL),
		Price:                req.Price.Round(2),
		Stock:                req.Stock,
		PrescriptionRequired: req.PrescriptionRequired,
	}
	if m.Name == "" || m.Category == "" {
		return domain.Medicine{}, fmt.Errorf("%w: name and category are required", store.ErrInvalidRequest)
	}
	if m.Price.IsNegative() {
		return domain.Medicine{}, fmt.Errorf("%w: price must not be negative", store.ErrInvalidRequest)
	}
	if m.Stock < 0 {
		return domain.Medicine{}, fmt.Errorf("%w: stock must not be negative", store.ErrInvalidRequest)
	}
	return m, nil
}

func (s *Service) ListStores(ctx context.Context, filter domain.StoreFilter) ([]domain.Store, error) {
	filter.Status = strings.TrimSpace(filter.Status)
	filter.City = strings.TrimSpace(filter.City)
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repo.ListStores(ctx, filter)
}

func (s *Service) ListActiveStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx, domain.StoreFilter{Status: domain.StoreStatusActive})
}

func (s *Service) GetStore(ctx context.Context, id int64) (domain.Store, error) {
	st, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	return *st, nil
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreRequest) (domain.Store, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Store{}, err
	}
	st, err := storeFromRequest(req)
	if err != nil {
		return domain.Store{}, err
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return domain.Store{}, err
		}
		st.PasswordHash = hash
	}

	created, err := s.repo.CreateStore(ctx, st)
	if err != nil {
		return domain.Store{}, err
	}
	s.invalidateDashboard(ctx)
	return *created, nil
}

// UpdateStore replaces the store's profile. Credentials are kept unless the
// request carries new ones.
func (s *Service) UpdateStore(ctx context.Context, id int64, req domain.StoreRequest) (domain.Store, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Store{}, err
	}
	existing, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	st, err := storeFromRequest(req)
	if err != nil {
		return domain.Store{}, err
	}
	st.ID = id
	st.PasswordHash = existing.PasswordHash
	if st.Email == "" {
		st.Email = existing.Email
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return domain.Store{}, err
		}
		st.PasswordHash = hash
	}

	updated, err := s.repo.UpdateStore(ctx, st)
	if err != nil {
		return domain.Store{}, err
	}
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) UpdateStoreCredentials(ctx context.Context, id int64, req domain.StoreCredentialsRequest) (domain.Store, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Store{}, err
	}
	st, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		st.Email = email
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return domain.Store{}, err
		}
		st.PasswordHash = hash
	}

	updated, err := s.repo.UpdateStore(ctx, *st)
	if err != nil {
		return domain.Store{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteStore(ctx context.Context, id int64) error {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func storeFromRequest(req domain.StoreRequest) (domain.Store, error) {
	st := domain.Store{
		Name:          strings.TrimSpace(req.Name),
		Address:       strings.TrimSpace(req.Address),
		City:          strings.TrimSpace(req.City),
		Phone:         strings.TrimSpace(req.Phone),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Timings:       strings.TrimSpace(req.Timings),
		Status:        strings.TrimSpace(req.Status),
		MedicineCount: req.MedicineCount,
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if st.Name == "" {
		return domain.Store{}, fmt.Errorf("%w: store name is required", store.ErrInvalidRequest)
	}
	if st.Status == "" {
		st.Status = domain.StoreStatusActive
	}
	if st.Latitude < -90 || st.Latitude > 90 || st.Longitude < -180 || st.Longitude > 180 {
		return domain.Store{}, fmt.Errorf("%w: coordinates out of range", store.ErrInvalidRequest)
	}
	return st, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < 6 {
		return "", fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
