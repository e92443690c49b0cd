package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestItem() *Item {
	return &Item{
		Key:       ItemKey{Organization: "acme", Repository: "api", Number: 7},
		Kind:      KindIssue,
		Title:     "Fix login",
		State:     StateOpen,
		Labels:    []string{"bug", "p1"},
		Assignees: []string{"octo"},
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		IssueFields: map[string]FieldValue{
			"status":    NewTextValue("Status", "native"),
			"milestone": NewTextValue("Milestone", "v1"),
		},
		ProjectFields: map[string]FieldValue{
			"status":      NewSingleChoiceValue("Status", "In Progress", []string{"Todo", "In Progress"}),
			"target-date": NewDateValue("Target Date", "2024-06-01"),
		},
	}
}

func TestItem_CustomFieldPrecedence(t *testing.T) {
	item := createTestItem()

	assert.Equal(t, "In Progress", item.CustomField("Status").String(), "project field wins")
	assert.Equal(t, "v1", item.CustomField("milestone").String(), "falls back to native field")

	missing := item.CustomField("Nonexistent")
	assert.True(t, missing.IsEmpty())
	assert.False(t, item.HasCustomField("Nonexistent"))
}

func TestItem_Field(t *testing.T) {
	item := createTestItem()

	assert.Equal(t, "Fix login", item.Field("title"))
	assert.Equal(t, "acme/api", item.Field("repository"))
	assert.Equal(t, "bug, p1", item.Field("labels"))
	assert.Equal(t, "2024-05-01", item.Field("updated"))
	assert.Equal(t, "2024-06-01", item.Field("Target Date"))
	assert.Equal(t, "", item.Field("closed"))
}

func TestItem_CommentsNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	item := &Item{Comments: []*Comment{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(48 * time.Hour)},
		{ID: "mid", CreatedAt: base.Add(24 * time.Hour)},
	}}

	sorted := item.CommentsNewestFirst()
	require.Len(t, sorted, 3)
	assert.Equal(t, "new", sorted[0].ID)
	assert.Equal(t, "mid", sorted[1].ID)
	assert.Equal(t, "old", sorted[2].ID)
	assert.Equal(t, "old", item.Comments[0].ID, "original order untouched")
}

func TestParseItemKey(t *testing.T) {
	key, err := ParseItemKey("acme/api#42")
	require.NoError(t, err)
	assert.Equal(t, ItemKey{Organization: "acme", Repository: "api", Number: 42}, key)
	assert.Equal(t, "acme/api#42", key.String())

	for _, bad := range []string{"acme/api", "acme#1", "acme/api#x", "/api#1"} {
		_, err := ParseItemKey(bad)
		assert.Error(t, err, bad)
	}
}
