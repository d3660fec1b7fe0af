package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsPattern    = regexp.MustCompile(`^\d+$`)
	separatorPattern = regexp.MustCompile(`[\s,]+`)
)

// WidgetID is a SCP identifier: a number when the input was purely numeric,
// text otherwise. Identity is always the string form.
type WidgetID struct {
	value   string
	numeric bool
}

// NumericID builds a numeric identifier.
func NumericID(n uint64) WidgetID {
	return WidgetID{value: strconv.FormatUint(n, 10), numeric: true}
}

// TextID builds a text identifier without coercion.
func TextID(s string) WidgetID {
	return WidgetID{value: s}
}

// ParseWidgetID trims the token and coerces pure digit text to a number.
func ParseWidgetID(token string) WidgetID {
	token = strings.TrimSpace(token)
	if digitsPattern.MatchString(token) {
		if n, err := strconv.ParseUint(token, 10, 64); err == nil {
			return NumericID(n)
		}
	}
	return TextID(token)
}

// ParseWidgetInput splits raw text on whitespace/comma runs and returns the
// identifiers in input order. Empty tokens are dropped.
func ParseWidgetInput(input string) []WidgetID {
	parts := separatorPattern.Split(input, -1)
	ids := make([]WidgetID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids = append(ids, ParseWidgetID(part))
	}
	return ids
}

// String returns the identity key of the id.
func (id WidgetID) String() string {
	return id.value
}

// IsNumeric reports whether the id was coerced to a number.
func (id WidgetID) IsNumeric() bool {
	return id.numeric
}

// IsZero reports whether the id is empty.
func (id WidgetID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON encodes numbers as JSON numbers and text as strings.
func (id WidgetID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *WidgetID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = WidgetID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TextID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tracker: widget id must be a number or string: %w", err)
	}
	literal := n.String()
	if u, err := strconv.ParseUint(literal, 10, 64); err == nil {
		*id = NumericID(u)
		return nil
	}
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		literal = strconv.FormatFloat(f, 'f', -1, 64)
		if u, err := strconv.ParseUint(literal, 10, 64); err == nil {
			*id = NumericID(u)
			return nil
		}
	}
	*id = WidgetID{value: literal, numeric: true}
	return nil
}
