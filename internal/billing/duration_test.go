package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElapsedMinutes(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		end      *time.Time
		now      time.Time
		expected int
	}{
		{name: "closed interval", end: ptr(start.Add(95 * time.Minute)), now: start, expected: 95},
		{name: "partial minute is floored", end: ptr(start.Add(59*time.Second + 61*time.Minute)), now: start, expected: 61},
		{name: "open interval runs until now", end: nil, now: start.Add(42*time.Minute + 30*time.Second), expected: 42},
		{name: "empty interval", end: ptr(start), now: start, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ElapsedMinutes(start, tc.end, tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestElapsedMinutes_EndBeforeStart(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	_, err := ElapsedMinutes(start, ptr(start.Add(-time.Minute)), start)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = ElapsedMinutes(start, nil, start.Add(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func ptr[T any](v T) *T {
	return &v
}
