package candles

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToFloat coerces the numeric encodings seen in exchange payloads
// (JSON numbers, quoted decimal strings, json.Number) into a float64.
// nil maps to zero, matching venues that omit optional fields.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as number: %w", x, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// ToCount coerces a trade-count field into an integer. Some venues
// serialize counts as floats; those are rounded, never truncated, so a
// widen-then-narrow round trip is lossless.
func ToCount(v any) (uint64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case uint64:
		return x, nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative trade count %d", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative trade count %d", x)
		}
		return uint64(x), nil
	case float64:
		if x < 0 {
			return 0, fmt.Errorf("negative trade count %v", x)
		}
		return uint64(math.Round(x)), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return ToCount(n)
		}
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return ToCount(f)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as trade count: %w", x, err)
		}
		return ToCount(f)
	default:
		return 0, fmt.Errorf("cannot convert %T to trade count", v)
	}
}
