package service

import (
	"context"
	"fmt"
	"strings"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/store"
)

func (s *Service) ListAddresses(ctx context.Context) ([]domain.Address, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAddresses(ctx, actor.UserID)
}

func (s *Service) CreateAddress(ctx context.Context, req domain.AddressRequest) (domain.Address, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	address, err := addressFromRequest(req)
	if err != nil {
		return domain.Address{}, err
	}
	address.UserID = actor.UserID

	existing, err := s.repo.ListAddresses(ctx, actor.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	if len(existing) == 0 {
		address.IsDefault = true
	}

	created, err := s.repo.CreateAddress(ctx, address)
	if err != nil {
		return domain.Address{}, err
	}
	return *created, nil
}

func (s *Service) UpdateAddress(ctx context.Context, id int64, req domain.AddressRequest) (domain.Address, error) {
	if _, err := s.ownedAddress(ctx, id); err != nil {
		return domain.Address{}, err
	}
	address, err := addressFromRequest(req)
	if err != nil {
		return domain.Address{}, err
	}
	address.ID = id

	updated, err := s.repo.UpdateAddress(ctx, address)
	if err != nil {
		return domain.Address{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteAddress(ctx context.Context, id int64) error {
	if _, err := s.ownedAddress(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteAddress(ctx, id)
}

// ownedAddress loads an address and checks it belongs to the calling user.
func (s *Service) ownedAddress(ctx context.Context, id int64) (*domain.Address, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	address, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	if address.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: address does not belong to this account", store.ErrUnauthorized)
	}
	return address, nil
}

func addressFromRequest(req domain.AddressRequest) (domain.Address, error) {
	a := domain.Address{
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		AddressLine1: strings.TrimSpace(req.AddressLine1),
		AddressLine2: strings.TrimSpace(req.AddressLine2),
		City:         strings.TrimSpace(req.City),
		State:        strings.TrimSpace(req.State),
		ZipCode:      strings.TrimSpace(req.ZipCode),
		Country:      strings.TrimSpace(req.Country),
		IsDefault:    req.IsDefault,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}
	if a.FullName == "" || a.AddressLine1 == "" || a.City == "" {
		return domain.Address{}, fmt.Errorf("%w: full name, address line 1 and city are required", store.ErrInvalidRequest)
	}
	if (a.Latitude == nil) != (a.Longitude == nil) {
		return domain.Address{}, fmt.Errorf("%w: latitude and longitude must be given together", store.ErrInvalidRequest)
	}
	return a, nil
}
