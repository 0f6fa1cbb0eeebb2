package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the text form of timestamps in storage.
const TimeLayout = "2006-01-02 15:04:05"

// Normalize converts a wire or storage value into the canonical Go value of
// the column: int64 for Integer, bool for Boolean, string for Text and
// int64 epoch seconds (or nil when unset) for Timestamp.
func (c Column) Normalize(v any) (any, error) {
	switch c.Type {
	case Integer:
		return toInt(v)
	case Boolean:
		return toBool(v)
	case Timestamp:
		return toEpoch(v)
	default:
		return toText(v), nil
	}
}

// WireValue converts a canonical value into its JSON form.
func (c Column) WireValue(v any) any {
	if c.Type == Timestamp && v == nil {
		return nil
	}
	return v
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return toInt(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported integer value %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "off", "no":
			return false, nil
		case "1", "true", "on", "yes":
			return true, nil
		}
		return false, fmt.Errorf("%q is not a boolean", x)
	case []byte:
		return toBool(string(x))
	}
	n, err := toInt(v)
	if err != nil {
		return false, fmt.Errorf("unsupported boolean value %T", v)
	}
	return n != 0, nil
}

func toEpoch(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.Unix(), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return toEpoch(*x)
	case []byte:
		return toEpoch(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		for _, layout := range []string{TimeLayout, time.RFC3339, "2006-01-02T15:04:05Z"} {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t.Unix(), nil
			}
		}
		return nil, fmt.Errorf("%q is not a timestamp", x)
	}
	n, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported timestamp value %T", v)
	}
	return n, nil
}

func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

// FormatValue renders a canonical value for display. Timestamps are shown
// in local time.
func (c Column) FormatValue(v any) string {
	switch c.Type {
	case Timestamp:
		n, ok := v.(int64)
		if !ok {
			return ""
		}
		return time.Unix(n, 0).Local().Format(TimeLayout)
	case Boolean:
		if b, _ := v.(bool); b {
			return "yes"
		}
		return "no"
	}
	return toText(v)
}
