// Package sql screens untrusted filter values for SQL injection payloads
// before they are handed to the query engine.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that matched an injection pattern.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Intent location of the value, e.g. "filters[0].value"
	Value       any    // The value that was checked
}

// CheckValueForInjection runs libinjection over a filter value. Lists are
// checked element by element and the first hit is returned. Non-string
// scalars cannot carry a payload and are skipped.
//
// Returns nil when nothing is detected.
//
//	CheckValueForInjection("filters[0].value", "North")                 // nil
//	CheckValueForInjection("filters[0].value", "'; DROP TABLE users--") // IsSQLi, Fingerprint "s&1c" or similar
func CheckValueForInjection(field string, value any) *InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return &InjectionCheckResult{
				IsSQLi:      true,
				Fingerprint: string(fingerprint),
				Field:       field,
				Value:       v,
			}
		}
	case []any:
		for _, item := range v {
			if result := CheckValueForInjection(field, item); result != nil {
				return result
			}
		}
	case []string:
		for _, item := range v {
			if result := CheckValueForInjection(field, item); result != nil {
				return result
			}
		}
	}
	return nil
}
