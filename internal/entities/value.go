package entities

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// IsZeroKey reports whether a key value counts as "not set".
// nil, empty strings and integer zero are unset.
func IsZeroKey(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if n, ok := toInteger(v); ok {
		return n.mag == 0
	}
	return false
}

// ValuesEqual compares two field values, treating all integer types alike
func ValuesEqual(a, b interface{}) bool {
	if cmp, ok := CompareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two scalar values. ok is false when they are not comparable.
// Two integers compare exactly; an integer and a float compare as floats.
func CompareValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if ai, ok := toInteger(a); ok {
		if bi, ok := toInteger(b); ok {
			return ai.compare(bi), true
		}
	}
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

// KeyString renders a value as an index key
func KeyString(v interface{}) string {
	if n, ok := toInteger(v); ok {
		return n.String()
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// AsInt64 converts any integer value fitting in int64
func AsInt64(v interface{}) (int64, bool) {
	return toInt64(v)
}

func toInt64(v interface{}) (int64, bool) {
	n, ok := toInteger(v)
	if !ok || (!n.neg && n.mag > math.MaxInt64) {
		return 0, false
	}
	if n.neg {
		return -int64(n.mag-1) - 1, true
	}
	return int64(n.mag), true
}

// integer is a sign and magnitude, wide enough for every int and uint type
type integer struct {
	neg bool
	mag uint64
}

func signed(n int64) integer {
	if n < 0 {
		return integer{neg: true, mag: uint64(-(n + 1)) + 1}
	}
	return integer{mag: uint64(n)}
}

func toInteger(v interface{}) (integer, bool) {
	switch n := v.(type) {
	case int:
		return signed(int64(n)), true
	case int8:
		return signed(int64(n)), true
	case int16:
		return signed(int64(n)), true
	case int32:
		return signed(int64(n)), true
	case int64:
		return signed(n), true
	case uint:
		return integer{mag: uint64(n)}, true
	case uint8:
		return integer{mag: uint64(n)}, true
	case uint16:
		return integer{mag: uint64(n)}, true
	case uint32:
		return integer{mag: uint64(n)}, true
	case uint64:
		return integer{mag: n}, true
	}
	return integer{}, false
}

func (a integer) compare(b integer) int {
	switch {
	case a.neg && !b.neg:
		return -1
	case !a.neg && b.neg:
		return 1
	}
	c := 0
	switch {
	case a.mag < b.mag:
		c = -1
	case a.mag > b.mag:
		c = 1
	}
	if a.neg {
		return -c
	}
	return c
}

func (a integer) String() string {
	s := strconv.FormatUint(a.mag, 10)
	if a.neg {
		return "-" + s
	}
	return s
}

func toFloat64(v interface{}) (float64, bool) {
	if n, ok := toInteger(v); ok {
		if n.neg {
			return -float64(n.mag), true
		}
		return float64(n.mag), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
