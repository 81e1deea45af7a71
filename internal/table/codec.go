package table

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Coerce converts a raw cell (as read from SQLite, decoded from JSON or built in Go)
// into the canonical in-memory type of kind:
//
//	text    string
//	int     int64
//	decimal decimal.Decimal
//	bool    bool
//	date    time.Time, or the raw string when it is not a recognizable date
//	month   string (YYYY-MM)
//
// Empty strings and nil become nil (missing), except for booleans which read as false.
func Coerce(kind Kind, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return Column{Kind: kind}.Default(), nil
	case []byte:
		v = string(x)
	case json.Number:
		v = x.String()
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return Column{Kind: kind}.Default(), nil
		}
		v = s
	}

	switch kind {
	case KindText:
		return coerceText(v), nil
	case KindInt:
		return coerceInt(v)
	case KindDecimal:
		return coerceDecimal(v)
	case KindBool:
		return coerceBool(v)
	case KindDate:
		switch x := v.(type) {
		case time.Time:
			return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC), nil
		case string:
			if d, ok := ParseDate(x); ok {
				return d, nil
			}
			return x, nil
		}
	case KindMonth:
		switch x := v.(type) {
		case time.Time:
			return x.Format(MonthLayout), nil
		case string:
			if len(x) > len(MonthLayout) {
				if d, ok := ParseDate(x); ok {
					return d.Format(MonthLayout), nil
				}
			}
			return x, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}

func coerceText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(DateLayout)
	case decimal.Decimal:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func coerceInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != float64(int64(x)) {
			return nil, fmt.Errorf("%v is not a whole number", x)
		}
		return int64(x), nil
	case decimal.Decimal:
		if !x.Equal(x.Truncate(0)) {
			return nil, fmt.Errorf("%s is not a whole number", x)
		}
		return x.IntPart(), nil
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		d, err := decimal.NewFromString(x)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", x)
		}
		return coerceInt(d)
	}
	return nil, fmt.Errorf("cannot use %T as int", v)
}

func coerceDecimal(v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", x)
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot use %T as decimal", v)
}

func coerceBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", x)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot use %T as bool", v)
}

// Encode converts a canonical cell into the value stored in SQLite.
// Booleans become 0/1, decimals and dates become text.
func Encode(kind Kind, v any) (any, error) {
	c, err := Coerce(kind, v)
	if err != nil || c == nil {
		return nil, err
	}
	switch x := c.(type) {
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case decimal.Decimal:
		return x.String(), nil
	case time.Time:
		return x.Format(DateLayout), nil
	}
	return c, nil
}
