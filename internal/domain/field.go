package domain

import (
	"strconv"
	"strings"
	"time"
)

// FieldKind identifies which variant of a FieldValue is active.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldSingleChoice
	FieldMultiChoice
	FieldDate
	FieldNumber
)

// String returns the GitHub dataType spelling of the kind.
func (k FieldKind) String() string {
	switch k {
	case FieldSingleChoice:
		return FieldTypeSingleSelect
	case FieldMultiChoice:
		return FieldTypeMultiSelect
	case FieldDate:
		return FieldTypeDate
	case FieldNumber:
		return FieldTypeNumber
	default:
		return FieldTypeText
	}
}

// DateLayout is the calendar-date form used for every date comparison.
const DateLayout = "2006-01-02"

// FieldValue is a single named attribute on an item. Exactly one variant is
// active, selected by Kind. A value that is unset keeps its Kind and reports
// IsEmpty; it is never represented by a missing map entry.
type FieldValue struct {
	Name    string    // Field name as shown by the tracker (e.g., "Target Date")
	Kind    FieldKind // Active variant
	Text    *string   // FieldText and FieldSingleChoice
	Choices []string  // FieldMultiChoice selected values
	Options []string  // Allowed options for FieldSingleChoice and FieldMultiChoice
	DateRaw *string   // FieldDate ISO-8601 value as returned by the API
	Date    *time.Time
	Number  *float64
}

// NewTextValue builds a Text field. An empty string is treated as unset.
func NewTextValue(name, value string) FieldValue {
	fv := FieldValue{Name: name, Kind: FieldText}
	if value != "" {
		fv.Text = &value
	}
	return fv
}

// NewSingleChoiceValue builds a SingleChoice field.
func NewSingleChoiceValue(name, value string, options []string) FieldValue {
	fv := FieldValue{Name: name, Kind: FieldSingleChoice, Options: options}
	if value != "" {
		fv.Text = &value
	}
	return fv
}

// NewMultiChoiceValue builds a MultiChoice field.
func NewMultiChoiceValue(name string, values []string, options []string) FieldValue {
	fv := FieldValue{Name: name, Kind: FieldMultiChoice, Options: options}
	if len(values) > 0 {
		fv.Choices = append([]string(nil), values...)
	}
	return fv
}

// NewDateValue builds a Date field from an ISO-8601 date or timestamp.
// Unparseable input leaves the calendar date unset but keeps the raw string.
func NewDateValue(name, raw string) FieldValue {
	fv := FieldValue{Name: name, Kind: FieldDate}
	if raw == "" {
		return fv
	}
	fv.DateRaw = &raw
	if t, ok := ParseDate(raw); ok {
		fv.Date = &t
	}
	return fv
}

// NewNumberValue builds a Number field.
func NewNumberValue(name string, value *float64) FieldValue {
	return FieldValue{Name: name, Kind: FieldNumber, Number: value}
}

// EmptyValue is the value reported for a field the item does not carry.
func EmptyValue(name string) FieldValue {
	return FieldValue{Name: name, Kind: FieldText}
}

// IsEmpty reports whether the field has no value.
func (f FieldValue) IsEmpty() bool {
	switch f.Kind {
	case FieldText, FieldSingleChoice:
		return f.Text == nil
	case FieldMultiChoice:
		return len(f.Choices) == 0
	case FieldDate:
		return f.DateRaw == nil
	case FieldNumber:
		return f.Number == nil
	}
	return true
}

// Values returns the field as a set of strings for filter matching.
// Dates are rendered as YYYY-MM-DD so they line up with filter values.
func (f FieldValue) Values() []string {
	switch f.Kind {
	case FieldText, FieldSingleChoice:
		if f.Text != nil {
			return []string{*f.Text}
		}
	case FieldMultiChoice:
		return f.Choices
	case FieldDate:
		if d := f.DateString(); d != "" {
			return []string{d}
		}
	case FieldNumber:
		if f.Number != nil {
			return []string{formatNumber(*f.Number)}
		}
	}
	return nil
}

// DateString returns the calendar date as YYYY-MM-DD, or "" when unset.
func (f FieldValue) DateString() string {
	if f.Date != nil {
		return f.Date.Format(DateLayout)
	}
	return ""
}

// String is the stringified view used by renderers. MultiChoice values are
// joined with ", ".
func (f FieldValue) String() string {
	switch f.Kind {
	case FieldMultiChoice:
		return strings.Join(f.Choices, ", ")
	case FieldDate:
		if f.DateRaw == nil {
			return ""
		}
		if d := f.DateString(); d != "" {
			return d
		}
		return *f.DateRaw
	default:
		values := f.Values()
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
}

// NormalizeFieldName maps a field name to its lookup key: lowercased, trimmed,
// with runs of whitespace replaced by a single hyphen.
func NormalizeFieldName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// ParseDate parses an ISO-8601 calendar date or RFC 3339 timestamp.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if len(raw) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, raw[:len(DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
