package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{"Zero time", time.Time{}, "N/A"},
		{"Seconds", now.Add(-30 * time.Second), "30s ago"},
		{"Minutes", now.Add(-15 * time.Minute), "15m ago"},
		{"Hours", now.Add(-5 * time.Hour), "5h ago"},
		{"Days", now.Add(-3 * 24 * time.Hour), "3d ago"},
		{"Weeks", now.Add(-15 * 24 * time.Hour), "2w ago"},
		{"Future", now.Add(time.Hour), "0s ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatAge(tt.t, now))
		})
	}
}

func TestParseAge(t *testing.T) {
	d, err := ParseAge("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = ParseAge(" 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	for _, bad := range []string{"", "7", "d", "1y", "-3h"} {
		_, err := ParseAge(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSince(t *testing.T) {
	got, err := ParseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, err = ParseSince("2024-03-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseSince("yesterday", now)
	assert.ErrorContains(t, err, "invalid since")

	_, err = ParseSince("  ", now)
	assert.Error(t, err)
}
