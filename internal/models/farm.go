package models

import (
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
)

// Farm run lifecycle states stored on the farm document.
const (
	FarmStatusPending = "pending"
	FarmStatusRunning = "running"
	FarmStatusDone    = "done"
	FarmStatusFailed  = "failed"
)

// LatLng is one boundary vertex in degrees.
type LatLng struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Farm is the farm document held in the document store. The analysis run
// reads the boundary and writes back status, the health payload and the
// alert set; read-state fields owned by the mobile app (alertsRead...) are
// never written from here.
type Farm struct {
	ID              string    `bson:"_id" json:"id"`
	Name            string    `bson:"name,omitempty" json:"name,omitempty"`
	OwnerID         string    `bson:"ownerId,omitempty" json:"owner_id,omitempty"`
	Boundary        []LatLng  `bson:"polygon" json:"polygon"`
	Status          string    `bson:"status,omitempty" json:"status,omitempty"`
	ErrorMessage    string    `bson:"errorMessage,omitempty" json:"error_message,omitempty"`
	HasUnreadAlerts bool      `bson:"hasUnreadAlerts,omitempty" json:"has_unread_alerts,omitempty"`
	UpdatedAt       time.Time `bson:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// BoundaryGeometry validates the boundary and returns it as a closed
// polygon in XY (lng, lat) order.
func (f *Farm) BoundaryGeometry() (*geom.Polygon, error) {
	if len(f.Boundary) < 3 {
		return nil, fmt.Errorf("farm %s boundary is missing or has fewer than 3 points", f.ID)
	}

	coords := make([]geom.Coord, 0, len(f.Boundary)+1)
	for _, p := range f.Boundary {
		coords = append(coords, geom.Coord{p.Lng, p.Lat})
	}
	// Close the ring if the caller stored an open one.
	first, last := coords[0], coords[len(coords)-1]
	if first[0] != last[0] || first[1] != last[1] {
		coords = append(coords, first)
	}

	poly := geom.NewPolygon(geom.XY)
	if _, err := poly.SetCoords([][]geom.Coord{coords}); err != nil {
		return nil, fmt.Errorf("farm %s boundary is not a valid polygon: %w", f.ID, err)
	}
	return poly, nil
}

// Centroid returns the shoelace centroid of the boundary. A degenerate
// (zero-area) ring falls back to the vertex mean.
func (f *Farm) Centroid() (lat, lng float64, err error) {
	if len(f.Boundary) == 0 {
		return 0, 0, fmt.Errorf("farm %s has an empty boundary", f.ID)
	}

	xs := make([]float64, 0, len(f.Boundary)+1)
	ys := make([]float64, 0, len(f.Boundary)+1)
	for _, p := range f.Boundary {
		xs = append(xs, p.Lng)
		ys = append(ys, p.Lat)
	}
	xs = append(xs, xs[0])
	ys = append(ys, ys[0])

	var area, cx, cy float64
	for i := 0; i < len(xs)-1; i++ {
		cross := xs[i]*ys[i+1] - xs[i+1]*ys[i]
		area += cross
		cx += (xs[i] + xs[i+1]) * cross
		cy += (ys[i] + ys[i+1]) * cross
	}
	area *= 0.5

	if area == 0 {
		var sumLat, sumLng float64
		for _, p := range f.Boundary {
			sumLat += p.Lat
			sumLng += p.Lng
		}
		n := float64(len(f.Boundary))
		return sumLat / n, sumLng / n, nil
	}

	cx /= 6.0 * area
	cy /= 6.0 * area
	return cy, cx, nil
}
