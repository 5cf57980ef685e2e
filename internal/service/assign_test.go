package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimitra/backend/internal/domain"
)

func TestReferencePointFallsBackWithoutCoordinates(t *testing.T) {
	assert.Equal(t, DefaultReferencePoint, referencePoint(domain.Address{}))

	lat := 29.39
	assert.Equal(t, DefaultReferencePoint, referencePoint(domain.Address{Latitude: &lat}))

	lon := 79.45
	assert.Equal(t, Point{Lat: 29.39, Lon: 79.45}, referencePoint(domain.Address{Latitude: &lat, Longitude: &lon}))
}

func TestNearestActiveStoreSkipsInactive(t *testing.T) {
	stores := []domain.Store{
		{ID: 1, Latitude: 29.2183, Longitude: 79.5130, Status: domain.StoreStatusInactive},
		{ID: 2, Latitude: 29.3919, Longitude: 79.4542, Status: domain.StoreStatusActive},
		{ID: 3, Latitude: 29.2652, Longitude: 79.5421, Status: domain.StoreStatusActive},
	}

	best := nearestActiveStore(stores, DefaultReferencePoint)
	require.NotNil(t, best)
	assert.Equal(t, int64(3), best.ID)
}

func TestNearestActiveStoreTieKeepsFirst(t *testing.T) {
	stores := []domain.Store{
		{ID: 7, Latitude: 1, Longitude: 0, Status: domain.StoreStatusActive},
		{ID: 9, Latitude: -1, Longitude: 0, Status: domain.StoreStatusActive},
	}

	best := nearestActiveStore(stores, Point{})
	require.NotNil(t, best)
	assert.Equal(t, int64(7), best.ID)
}

func TestNearestActiveStoreNoneActive(t *testing.T) {
	assert.Nil(t, nearestActiveStore(nil, DefaultReferencePoint))
	assert.Nil(t, nearestActiveStore([]domain.Store{{ID: 1, Status: domain.StoreStatusInactive}}, DefaultReferencePoint))
}

func TestPlaneDistanceIsFlat(t *testing.T) {
	assert.InDelta(t, 5.0, planeDistance(Point{Lat: 0, Lon: 0}, Point{Lat: 3, Lon: 4}), 1e-9)
}
