package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundaryGeometry_RejectsDegenerateBoundary(t *testing.T) {
	farm := &Farm{ID: "farm-1", Boundary: []LatLng{{Lat: 29.5, Lng: 46.1}, {Lat: 29.6, Lng: 46.2}}}

	_, err := farm.BoundaryGeometry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than 3 points")
}

func TestBoundaryGeometry_ClosesOpenRing(t *testing.T) {
	farm := &Farm{ID: "farm-1", Boundary: []LatLng{
		{Lat: 29.5, Lng: 46.1}, {Lat: 29.5, Lng: 46.2}, {Lat: 29.6, Lng: 46.2},
	}}

	poly, err := farm.BoundaryGeometry()
	require.NoError(t, err)

	ring := poly.Coords()[0]
	require.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestCentroid_Square(t *testing.T) {
	farm := &Farm{ID: "farm-1", Boundary: []LatLng{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0},
	}}

	lat, lng, err := farm.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, lat, 1e-9)
	assert.InDelta(t, 0.5, lng, 1e-9)
}

func TestCentroid_DegenerateRingFallsBackToVertexMean(t *testing.T) {
	// Collinear points enclose zero area.
	farm := &Farm{ID: "farm-1", Boundary: []LatLng{
		{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 2, Lng: 2},
	}}

	lat, lng, err := farm.Centroid()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, lat, 1e-9)
	assert.InDelta(t, 1.0, lng, 1e-9)
}

func TestCentroid_EmptyBoundaryErrors(t *testing.T) {
	farm := &Farm{ID: "farm-1"}
	_, _, err := farm.Centroid()
	assert.Error(t, err)
}
