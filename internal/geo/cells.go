// Package geo resolves hexagonal cell identifiers to geometry and district
// metadata.
package geo

import (
	h3 "github.com/uber/h3-go/v4"

	"github.com/avelichko/waterline-monitor/internal/models"
)

// Resolve derives the center and boundary polygon for an H3 cell id.
// Returns ok=false when the identifier does not parse to a valid cell, in
// which case callers degrade to the district lookup table.
func Resolve(cellID string) (center models.LatLng, boundary []models.LatLng, ok bool) {
	cell := h3.Cell(h3.IndexFromString(cellID))
	if !cell.IsValid() {
		return models.LatLng{}, nil, false
	}

	ll, err := cell.LatLng()
	if err != nil {
		return models.LatLng{}, nil, false
	}
	ring, err := cell.Boundary()
	if err != nil {
		return models.LatLng{}, nil, false
	}

	center = models.LatLng{Lat: ll.Lat, Lng: ll.Lng}
	boundary = make([]models.LatLng, 0, len(ring))
	for _, v := range ring {
		boundary = append(boundary, models.LatLng{Lat: v.Lat, Lng: v.Lng})
	}
	return center, boundary, true
}

// IsValidCell reports whether the string parses to a valid H3 cell.
func IsValidCell(cellID string) bool {
	return h3.Cell(h3.IndexFromString(cellID)).IsValid()
}
