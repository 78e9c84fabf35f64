package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckValueForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           any
		expectInjection bool
	}{
		// Clean values
		{"region name", "North", false},
		{"date string", "2024-01-15", false},
		{"multi-word value", "Modern Trade Outlets", false},
		{"apostrophe in name", "O'Brien", false},
		{"empty string", "", false},
		{"number", 100, false},
		{"float", 99.95, false},
		{"boolean", true, false},
		{"nil", nil, false},
		{"clean list", []any{"North", "South"}, false},

		// Injection payloads
		{"quote injection", "' OR '1'='1", true},
		{"drop table", "'; DROP TABLE users--", true},
		{"union select", "1 UNION SELECT * FROM passwords", true},
		{"comment injection", "admin'--", true},
		{"time-based blind", "1' AND SLEEP(5)--", true},
		{"payload hidden in list", []any{"North", "' OR 1=1--"}, true},
		{"payload in string list", []string{"South", "'; DROP TABLE users--"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckValueForInjection("filters[0].value", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.True(t, result.IsSQLi)
			assert.NotEmpty(t, result.Fingerprint)
			assert.Equal(t, "filters[0].value", result.Field)
		})
	}
}
