package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDailyTime(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantHour   int
		wantMinute int
		wantErr    bool
	}{
		{"evening", "23:00", 23, 0, false},
		{"single digit hour", "7:05", 7, 5, false},
		{"midnight", "00:00", 0, 0, false},
		{"surrounding spaces", " 09:30 ", 9, 30, false},
		{"hour out of range", "24:00", 0, 0, true},
		{"minute out of range", "12:60", 0, 0, true},
		{"single digit minute", "12:5", 0, 0, true},
		{"letters", "ab", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"seconds included", "12:00:00", 0, 0, true},
		{"negative", "-1:00", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hour, minute, err := ParseDailyTime(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHour, hour)
			assert.Equal(t, tt.wantMinute, minute)
		})
	}
}

func TestDailyCronSpec(t *testing.T) {
	spec, err := DailyCronSpec("23:15")
	require.NoError(t, err)
	assert.Equal(t, "15 23 * * *", spec)

	_, err = DailyCronSpec("25:00")
	assert.Error(t, err)
}
