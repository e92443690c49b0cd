package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldValue_Empty(t *testing.T) {
	tests := []struct {
		name  string
		value FieldValue
	}{
		{"text", NewTextValue("Notes", "")},
		{"single choice", NewSingleChoiceValue("Status", "", []string{"Todo", "Done"})},
		{"multi choice", NewMultiChoiceValue("Areas", nil, []string{"api", "ui"})},
		{"date", NewDateValue("Target", "")},
		{"number", NewNumberValue("Estimate", nil)},
		{"missing", EmptyValue("Anything")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.value.IsEmpty())
			assert.Empty(t, tt.value.Values())
			assert.Equal(t, "", tt.value.String())
		})
	}
}

func TestFieldValue_String(t *testing.T) {
	estimate := 2.5

	assert.Equal(t, "hello", NewTextValue("Notes", "hello").String())
	assert.Equal(t, "Done", NewSingleChoiceValue("Status", "Done", nil).String())
	assert.Equal(t, "api, ui", NewMultiChoiceValue("Areas", []string{"api", "ui"}, nil).String())
	assert.Equal(t, "2024-03-05", NewDateValue("Target", "2024-03-05T10:00:00Z").String())
	assert.Equal(t, "2.5", NewNumberValue("Estimate", &estimate).String())
}

func TestFieldValue_Values(t *testing.T) {
	assert.Equal(t, []string{"api", "ui"}, NewMultiChoiceValue("Areas", []string{"api", "ui"}, nil).Values())
	assert.Equal(t, []string{"2024-03-05"}, NewDateValue("Target", "2024-03-05").Values())

	unparsed := NewDateValue("Target", "soon")
	assert.False(t, unparsed.IsEmpty(), "raw value is kept")
	assert.Empty(t, unparsed.Values(), "no calendar date to compare")
	assert.Equal(t, "soon", unparsed.String())
}

func TestNormalizeFieldName(t *testing.T) {
	assert.Equal(t, "target-date", NormalizeFieldName("Target Date"))
	assert.Equal(t, "target-date", NormalizeFieldName("  target   DATE "))
	assert.Equal(t, "status", NormalizeFieldName("Status"))
}

func TestFieldKind_String(t *testing.T) {
	assert.Equal(t, FieldTypeSingleSelect, FieldSingleChoice.String())
	assert.Equal(t, FieldTypeDate, FieldDate.String())
	assert.Equal(t, FieldTypeText, FieldText.String())
}
