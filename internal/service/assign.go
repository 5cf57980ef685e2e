package service

import (
	"context"
	"fmt"
	"math"

	"medimitra/backend/internal/domain"
)

type Point struct {
	Lat float64
	Lon float64
}

// DefaultReferencePoint (Haldwani) is used for addresses that carry no coordinates.
var DefaultReferencePoint = Point{Lat: 29.2183, Lon: 79.5130}

func referencePoint(address domain.Address) Point {
	if address.Latitude != nil && address.Longitude != nil {
		return Point{Lat: *address.Latitude, Lon: *address.Longitude}
	}
	return DefaultReferencePoint
}

// planeDistance treats latitude and longitude as flat cartesian coordinates.
func planeDistance(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}

// nearestActiveStore returns the closest Active store, or nil when there is
// none. On equal distance the earlier store in the slice wins.
func nearestActiveStore(stores []domain.Store, from Point) *domain.Store {
	var best *domain.Store
	bestDistance := math.MaxFloat64
	for i := range stores {
		if !stores[i].Active() {
			continue
		}
		d := planeDistance(from, Point{Lat: stores[i].Latitude, Lon: stores[i].Longitude})
		if d < bestDistance {
			bestDistance = d
			best = &stores[i]
		}
	}
	return best
}

// resolveStore picks the fulfilling store for an order. An explicitly chosen
// store only has to exist.
func (s *Service) resolveStore(ctx context.Context, address domain.Address, requested *int64) (*int64, error) {
	if requested != nil {
		st, err := s.repo.GetStore(ctx, *requested)
		if err != nil {
			return nil, fmt.Errorf("store %d: %w", *requested, err)
		}
		id := st.ID
		return &id, nil
	}

	stores, err := s.repo.ListStores(ctx, domain.StoreFilter{Status: domain.StoreStatusActive})
	if err != nil {
		return nil, err
	}
	nearest := nearestActiveStore(stores, referencePoint(address))
	if nearest == nil {
		return nil, nil
	}
	id := nearest.ID
	return &id, nil
}
