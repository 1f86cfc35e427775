package datefmt_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_scraper/internal/datefmt"
	"review_scraper/internal/domain"
)

func TestNormalize_ISO8601(t *testing.T) {
	got, err := datefmt.Normalize("2024-03-15T10:00:00Z", datefmt.ISO8601)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)
}

func TestNormalize_ISO8601KeepsOffsetDate(t *testing.T) {
	got, err := datefmt.Normalize("2024-03-15T23:30:00-07:00", datefmt.ISO8601)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got)
}

func TestNormalize_Native(t *testing.T) {
	ts := time.Date(2023, 12, 31, 22, 0, 0, 0, time.UTC)

	got, err := datefmt.Normalize(ts, datefmt.Native)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", got)

	got, err = datefmt.Normalize(float64(ts.Unix()), datefmt.Native)
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", got)
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		format datefmt.Format
	}{
		{"empty string", "", datefmt.ISO8601},
		{"date only", "2024-03-15", datefmt.ISO8601},
		{"garbage", "yesterday", datefmt.ISO8601},
		{"wrong type for iso", 1710496800, datefmt.ISO8601},
		{"zero time", time.Time{}, datefmt.Native},
		{"string for native", "2024-03-15T10:00:00Z", datefmt.Native},
		{"negative unix", int64(-5), datefmt.Native},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := datefmt.Normalize(tt.raw, tt.format)
			if !errors.Is(err, domain.ErrDateParse) {
				t.Fatalf("expected ErrDateParse, got %v", err)
			}
		})
	}
}
