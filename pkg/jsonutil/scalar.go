package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DateLayout is the format dates are rendered in.
const DateLayout = "2006-01-02"

// ScalarString renders a decoded JSON scalar the way the query engine expects
// filter values: strings as-is, whole numbers without a fraction, booleans as
// true/false and dates as YYYY-MM-DD. ok is false for lists, objects and nil.
func ScalarString(v any) (s string, ok bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return formatFloat(val), true
	case float32:
		return formatFloat(float64(val)), true
	case int:
		return strconv.Itoa(val), true
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val), true
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), true
	case bool:
		return strconv.FormatBool(val), true
	case time.Time:
		return val.Format(DateLayout), true
	}
	return "", false
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
