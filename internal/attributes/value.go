package attributes

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is one attribute value.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberValue returns a numeric Value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Any returns the value as a JSON-encodable Go value.
func (v Value) Any() any {
	if v.Kind == KindNumber {
		return v.Number
	}
	return v.Bool
}

// ParseValue decodes raw as a value of kind.
//
// Booleans accept true/false, the numbers 0 and 1, and the strings
// "true"/"false" (case-insensitive). Numbers accept JSON numbers and
// numeric strings. Non-finite numbers are rejected since they cannot be
// reported back as JSON.
func ParseValue(kind Kind, raw json.RawMessage) (Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	switch kind {
	case KindBool:
		switch x := v.(type) {
		case bool:
			return BoolValue(x), nil
		case float64:
			switch x {
			case 0:
				return BoolValue(false), nil
			case 1:
				return BoolValue(true), nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true":
				return BoolValue(true), nil
			case "false":
				return BoolValue(false), nil
			}
		}
	case KindNumber:
		switch x := v.(type) {
		case float64:
			return NumberValue(x), nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				return NumberValue(n), nil
			}
		}
	}
	return Value{}, fmt.Errorf("%w: %s is not a %s", ErrInvalidValue, raw, kind)
}
