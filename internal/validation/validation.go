// Package validation checks request inputs before they reach the service
// layer. Errors map to 400 responses with stable error codes.
package validation

import (
	"errors"
	"strings"
	"time"

	"github.com/avelichko/waterline-monitor/internal/geo"
)

// ErrCellIDEmpty is returned when the cell id is empty or whitespace-only after trim.
var ErrCellIDEmpty = errors.New("cell id is required")

// ErrCellIDInvalid is returned when the cell id is not a valid H3 index.
var ErrCellIDInvalid = errors.New("cell id is not a valid H3 index")

// ErrYearOutOfRange is returned when the year is outside the supported range.
var ErrYearOutOfRange = errors.New("year out of range")

// ErrTooManyCells is returned when a batch request exceeds the cell limit.
var ErrTooManyCells = errors.New("too many cells in request")

// ErrBadTimestamp is returned when a now override cannot be parsed.
var ErrBadTimestamp = errors.New("timestamp must be RFC 3339")

const (
	// YearMin and YearMax bound the selectable dataset years.
	YearMin = 2000
	YearMax = 2100

	// MaxBatchCells bounds one descriptor batch. The map layer requests a
	// whole viewport at once; 512 covers several zoom levels of resolution-8
	// cells.
	MaxBatchCells = 512
)

// ValidateCellID trims the input and verifies it parses as an H3 cell.
// Returns the trimmed id. Case is preserved; H3 parsing is case-insensitive.
func ValidateCellID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrCellIDEmpty
	}
	if !geo.IsValidCell(s) {
		return "", ErrCellIDInvalid
	}
	return s, nil
}

// ValidateYear checks the year against the supported range.
func ValidateYear(year int) error {
	if year < YearMin || year > YearMax {
		return ErrYearOutOfRange
	}
	return nil
}

// ValidateCellBatch validates every id in a batch request, enforcing the
// batch size limit. Returns trimmed ids in input order; duplicates pass
// through untouched.
func ValidateCellBatch(ids []string) ([]string, error) {
	if len(ids) > MaxBatchCells {
		return nil, ErrTooManyCells
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		s, err := ValidateCellID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseNowOverride parses an optional reference-time override. Empty input
// returns fallback; anything else must be RFC 3339.
func ParseNowOverride(input string, fallback time.Time) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrBadTimestamp
	}
	return t.UTC(), nil
}
