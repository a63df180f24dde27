package validation

import (
	"errors"
	"testing"
	"time"
)

const validCell = "8611aa7afffffff"

func TestValidateCellID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid cell", validCell, validCell, nil},
		{"valid with whitespace", "  " + validCell + "  ", validCell, nil},
		{"empty", "", "", ErrCellIDEmpty},
		{"whitespace only", "   ", "", ErrCellIDEmpty},
		{"not hex", "not-a-cell-id!!", "", ErrCellIDInvalid},
		{"truncated index", "8611aa7", "", ErrCellIDInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCellID(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateCellID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateCellID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateYear(t *testing.T) {
	tests := []struct {
		year    int
		wantErr bool
	}{
		{2000, false},
		{2025, false},
		{2100, false},
		{1999, true},
		{2101, true},
		{0, true},
	}
	for _, tt := range tests {
		err := ValidateYear(tt.year)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateYear(%d) error = %v, wantErr %v", tt.year, err, tt.wantErr)
		}
	}
}

func TestValidateCellBatch(t *testing.T) {
	t.Run("valid batch keeps order", func(t *testing.T) {
		ids := []string{validCell, "8611aa797ffffff"}
		got, err := ValidateCellBatch(ids)
		if err != nil {
			t.Fatalf("ValidateCellBatch() error = %v", err)
		}
		if len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
			t.Errorf("ValidateCellBatch() = %v, want input order preserved", got)
		}
	})

	t.Run("one bad id fails the batch", func(t *testing.T) {
		_, err := ValidateCellBatch([]string{validCell, "bogus"})
		if !errors.Is(err, ErrCellIDInvalid) {
			t.Errorf("error = %v, want ErrCellIDInvalid", err)
		}
	})

	t.Run("oversize batch rejected", func(t *testing.T) {
		ids := make([]string, MaxBatchCells+1)
		for i := range ids {
			ids[i] = validCell
		}
		_, err := ValidateCellBatch(ids)
		if !errors.Is(err, ErrTooManyCells) {
			t.Errorf("error = %v, want ErrTooManyCells", err)
		}
	})
}

func TestParseNowOverride(t *testing.T) {
	fallback := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty uses fallback", func(t *testing.T) {
		got, err := ParseNowOverride("", fallback)
		if err != nil || !got.Equal(fallback) {
			t.Errorf("ParseNowOverride(\"\") = %v, %v; want fallback", got, err)
		}
	})

	t.Run("valid RFC 3339", func(t *testing.T) {
		got, err := ParseNowOverride("2025-03-15T09:30:00+03:00", fallback)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		want := time.Date(2025, 3, 15, 6, 30, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v (normalized to UTC)", got, want)
		}
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := ParseNowOverride("yesterday", fallback)
		if !errors.Is(err, ErrBadTimestamp) {
			t.Errorf("error = %v, want ErrBadTimestamp", err)
		}
	})
}
