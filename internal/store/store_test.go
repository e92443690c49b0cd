package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/fetch"
	"github.com/h0rv/rollup/internal/query"
	"github.com/h0rv/rollup/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher records requests and serves canned results per kind.
type mockFetcher struct {
	requests []fetch.Request
	keys     [][]domain.ItemKey
	results  map[fetch.Kind]map[domain.ItemKey]fetch.Result
	extra    map[domain.ItemKey]fetch.Result // Returned regardless of the requested keys
	err      error
}

func (m *mockFetcher) Fetch(_ context.Context, keys []domain.ItemKey, req fetch.Request) (map[domain.ItemKey]fetch.Result, error) {
	m.requests = append(m.requests, req)
	m.keys = append(m.keys, keys)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[domain.ItemKey]fetch.Result)
	for _, k := range keys {
		if r, ok := m.results[req.Kind][k]; ok {
			out[k] = r
		}
	}
	for k, r := range m.extra {
		out[k] = r
	}
	return out, nil
}

func key(n int) domain.ItemKey {
	return domain.ItemKey{Organization: "acme", Repository: "widgets", Number: n}
}

// Test fixtures
func createTestItems() []*domain.Item {
	return []*domain.Item{
		{Key: key(1), Kind: domain.KindIssue, Title: "Fix login bug", State: domain.StateOpen, Labels: []string{"bug"}},
		{Key: key(2), Kind: domain.KindIssue, Title: "Add dark mode", State: domain.StateOpen, Labels: []string{"feature", "ui"}},
		{Key: key(3), Kind: domain.KindIssue, Title: "Old cleanup", State: domain.StateClosed},
	}
}

func statusValue(v string) domain.FieldValue {
	return domain.NewSingleChoiceValue("Status", v, []string{"Todo", "In Progress", "Done"})
}

func createTestFetcher() *mockFetcher {
	return &mockFetcher{
		results: map[fetch.Kind]map[domain.ItemKey]fetch.Result{
			fetch.Comments: {
				key(1): {Comments: []*domain.Comment{{ID: "c1", Body: "Looking into it", CreatedAt: time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)}}},
				key(2): {Comments: []*domain.Comment{{ID: "c2", Body: "Shipped to beta", CreatedAt: time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)}}},
			},
			fetch.CustomFields: {
				key(1): {Fields: map[string]domain.FieldValue{"status": statusValue("In Progress")}},
				key(2): {Fields: map[string]domain.FieldValue{"status": statusValue("Todo")}},
			},
			fetch.IssueFields: {
				key(1): {Fields: map[string]domain.FieldValue{"issue-type": domain.NewSingleChoiceValue("Issue Type", "Bug", nil)}},
			},
		},
	}
}

// TestNew verifies list initialization
func TestNew(t *testing.T) {
	items := createTestItems()
	items = append(items, &domain.Item{Key: key(1), Title: "Duplicate"})

	l := New(items, &mockFetcher{})
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"Fix login bug", "Add dark mode", "Old cleanup"}, l.Titles())
}

// TestGet verifies item retrieval
func TestGet(t *testing.T) {
	l := New(createTestItems(), &mockFetcher{})

	t.Run("existing item", func(t *testing.T) {
		item, err := l.Get(key(2))
		require.NoError(t, err)
		assert.Equal(t, "Add dark mode", item.Title)
	})

	t.Run("nonexistent item", func(t *testing.T) {
		item, err := l.Get(key(99))
		assert.ErrorIs(t, err, ErrItemNotFound)
		assert.Nil(t, item)
	})
}

// TestItemsReturnsCopy verifies callers cannot reorder the list
func TestItemsReturnsCopy(t *testing.T) {
	l := New(createTestItems(), &mockFetcher{})
	items := l.Items()
	items[0] = nil
	assert.NotNil(t, l.Items()[0])
}

// TestFetchComments verifies comments are attached once
func TestFetchComments(t *testing.T) {
	f := createTestFetcher()
	l := New(createTestItems(), f)

	err := l.Fetch(context.Background(), FetchParams{Comments: 5})
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	assert.Equal(t, fetch.Request{Kind: fetch.Comments, Subject: domain.KindIssue, PageSize: 5}, f.requests[0])

	item, _ := l.Get(key(1))
	require.Len(t, item.Comments, 1)
	assert.Equal(t, "c1", item.Comments[0].ID)
	assert.True(t, item.CommentsFetched)

	// Missing from the response but still marked as fetched
	item3, _ := l.Get(key(3))
	assert.Empty(t, item3.Comments)
	assert.True(t, item3.CommentsFetched)

	// Second call makes no remote request
	err = l.Fetch(context.Background(), FetchParams{Comments: 5})
	require.NoError(t, err)
	assert.Len(t, f.requests, 1)
}

// TestFetchWithFilter verifies only matching items are fetched
func TestFetchWithFilter(t *testing.T) {
	f := createTestFetcher()
	l := New(createTestItems(), f)

	err := l.Fetch(context.Background(), FetchParams{
		Comments: 3,
		Filter:   func(i *domain.Item) bool { return i.IsOpen() },
	})
	require.NoError(t, err)

	require.Len(t, f.keys, 1)
	assert.Equal(t, []domain.ItemKey{key(1), key(2)}, f.keys[0])

	closed, _ := l.Get(key(3))
	assert.False(t, closed.CommentsFetched)
}

// TestFetchCustomFields verifies both field tiers are fetched
func TestFetchCustomFields(t *testing.T) {
	f := createTestFetcher()
	l := New(createTestItems(), f)

	err := l.Fetch(context.Background(), FetchParams{CustomFields: true})
	require.NoError(t, err)

	require.Len(t, f.requests, 2)
	assert.Equal(t, fetch.CustomFields, f.requests[0].Kind)
	assert.Equal(t, fetch.IssueFields, f.requests[1].Kind)

	item, _ := l.Get(key(1))
	assert.Equal(t, "In Progress", item.Field("Status"))
	assert.Equal(t, "Bug", item.Field("Issue Type"))
	assert.True(t, item.ProjectFieldsFetched)
	assert.True(t, item.IssueFieldsFetched)
}

// TestFetchDiscussionFields verifies discussions skip field fetches
func TestFetchDiscussionFields(t *testing.T) {
	f := createTestFetcher()
	items := []*domain.Item{{Key: key(10), Kind: domain.KindDiscussion, Title: "RFC: new API"}}
	l := New(items, f)

	err := l.Fetch(context.Background(), FetchParams{CustomFields: true})
	require.NoError(t, err)
	assert.Empty(t, f.requests)
	assert.True(t, items[0].ProjectFieldsFetched)
	assert.True(t, items[0].IssueFieldsFetched)

	err = l.Fetch(context.Background(), FetchParams{Comments: 2})
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, domain.KindDiscussion, f.requests[0].Subject)
}

// TestFetchRaceCondition verifies unknown keys in a response are fatal
func TestFetchRaceCondition(t *testing.T) {
	f := createTestFetcher()
	f.extra = map[domain.ItemKey]fetch.Result{key(42): {}}
	l := New(createTestItems(), f)

	err := l.Fetch(context.Background(), FetchParams{Comments: 1})
	var race *RaceConditionError
	require.True(t, errors.As(err, &race))
	assert.Equal(t, key(42), race.Key)
	assert.Equal(t, fetch.Comments, race.Kind)
}

// TestFetchError verifies fetcher errors are wrapped
func TestFetchError(t *testing.T) {
	f := &mockFetcher{err: fetch.ErrThrottleExhausted}
	l := New(createTestItems(), f)

	err := l.Fetch(context.Background(), FetchParams{Comments: 1})
	assert.ErrorIs(t, err, fetch.ErrThrottleExhausted)
	item, _ := l.Get(key(1))
	assert.False(t, item.CommentsFetched)
}

// TestApplyView verifies view scoping
func TestApplyView(t *testing.T) {
	parser := query.NewParser(func() (string, error) { return "octocat", nil }, func() time.Time {
		return time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	})

	t.Run("built-in keys only", func(t *testing.T) {
		f := createTestFetcher()
		l := New(createTestItems(), f)
		q, err := parser.Parse("is:open -label:ui")
		require.NoError(t, err)

		require.NoError(t, l.ApplyView(context.Background(), q))
		assert.Equal(t, []string{"Fix login bug"}, l.Titles())
		assert.Empty(t, f.requests)

		_, err = l.Get(key(2))
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("custom keys fetch fields first", func(t *testing.T) {
		f := createTestFetcher()
		l := New(createTestItems(), f)
		q, err := parser.Parse(`status:"In Progress",Todo`)
		require.NoError(t, err)

		require.NoError(t, l.ApplyView(context.Background(), q))
		assert.Equal(t, []string{"Fix login bug", "Add dark mode"}, l.Titles())
		assert.Len(t, f.requests, 2)
	})

	t.Run("empty query keeps everything", func(t *testing.T) {
		l := New(createTestItems(), &mockFetcher{})
		q, err := parser.Parse("")
		require.NoError(t, err)
		require.NoError(t, l.ApplyView(context.Background(), q))
		assert.Equal(t, 3, l.Len())
	})
}

// TestUpdates verifies comments are fetched and the chain resolved
func TestUpdates(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC) }
	engine := update.NewEngine([]update.Strategy{update.Timebox(update.TimeframeWeek), {Kind: update.KindBlame}}, now)

	f := createTestFetcher()
	l := New(createTestItems(), f)

	res, err := l.Updates(context.Background(), engine, 1, 10, nil)
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	assert.Equal(t, 10, f.requests[0].PageSize)

	require.Len(t, res[key(1)].Updates, 1)
	assert.Equal(t, "Looking into it", res[key(1)].Updates[0].Content)
	assert.True(t, res[key(3)].Blamed)
}

// TestUpdatesFailStrategy verifies the fail strategy aborts
func TestUpdatesFailStrategy(t *testing.T) {
	engine := update.NewEngine(nil, nil)
	l := New(createTestItems(), createTestFetcher())

	_, err := l.Updates(context.Background(), engine, 1, 5, []update.Strategy{update.Timebox(update.TimeframeToday), {Kind: update.KindFail}})
	var fail *update.FailStrategyError
	assert.True(t, errors.As(err, &fail))
}

// TestSortBy verifies ordering and empty-last placement
func TestSortBy(t *testing.T) {
	items := []*domain.Item{
		{Key: key(1), Title: "b", ProjectFields: map[string]domain.FieldValue{"estimate": domain.NewNumberValue("Estimate", ptr(10))}},
		{Key: key(2), Title: "a", ProjectFields: map[string]domain.FieldValue{"estimate": domain.NewNumberValue("Estimate", ptr(2))}},
		{Key: key(3), Title: "c"},
	}

	t.Run("numeric ascending", func(t *testing.T) {
		l := New(items, &mockFetcher{})
		l.SortBy("Estimate", false)
		assert.Equal(t, []string{"a", "b", "c"}, l.Titles())
	})

	t.Run("numeric descending keeps empty last", func(t *testing.T) {
		l := New(items, &mockFetcher{})
		l.SortBy("Estimate", true)
		assert.Equal(t, []string{"b", "a", "c"}, l.Titles())
	})

	t.Run("by title", func(t *testing.T) {
		l := New(items, &mockFetcher{})
		l.SortBy("title", false)
		assert.Equal(t, []string{"a", "b", "c"}, l.Titles())
	})
}

// TestGroupBy verifies option order and the no-value bucket
func TestGroupBy(t *testing.T) {
	items := createTestItems()
	items[0].ProjectFields = map[string]domain.FieldValue{"status": statusValue("Done")}
	items[1].ProjectFields = map[string]domain.FieldValue{"status": statusValue("Todo")}
	l := New(items, &mockFetcher{})

	t.Run("single choice field", func(t *testing.T) {
		groups := l.GroupBy("Status")
		require.Len(t, groups, 3)
		assert.Equal(t, "Todo", groups[0].Key)
		assert.Equal(t, "Done", groups[1].Key)
		assert.Equal(t, NoValueKey, groups[2].Key)
		assert.Equal(t, "Old cleanup", groups[2].Items[0].Title)
	})

	t.Run("labels put items in each bucket", func(t *testing.T) {
		groups := l.GroupBy("labels")
		keys := make([]string, len(groups))
		for i, g := range groups {
			keys[i] = g.Key
		}
		assert.Equal(t, []string{"bug", "feature", "ui", NoValueKey}, keys)
	})
}

// TestSelectGroupField verifies the default grouping heuristic
func TestSelectGroupField(t *testing.T) {
	status := &domain.FieldDef{Name: "status", Type: domain.FieldTypeSingleSelect}
	priority := &domain.FieldDef{Name: "Priority", Type: domain.FieldTypeSingleSelect}
	size := &domain.FieldDef{Name: "Size", Type: domain.FieldTypeSingleSelect}
	text := &domain.FieldDef{Name: "Notes", Type: domain.FieldTypeText}

	t.Run("auto-pick status case-insensitively", func(t *testing.T) {
		selected, candidates, err := SelectGroupField([]*domain.FieldDef{priority, status, text})
		require.NoError(t, err)
		assert.Equal(t, status, selected)
		assert.Nil(t, candidates)
	})

	t.Run("single select field", func(t *testing.T) {
		selected, _, err := SelectGroupField([]*domain.FieldDef{text, priority})
		require.NoError(t, err)
		assert.Equal(t, priority, selected)
	})

	t.Run("multiple candidates", func(t *testing.T) {
		selected, candidates, err := SelectGroupField([]*domain.FieldDef{priority, size})
		require.NoError(t, err)
		assert.Nil(t, selected)
		assert.Len(t, candidates, 2)
	})

	t.Run("no single select fields", func(t *testing.T) {
		_, _, err := SelectGroupField([]*domain.FieldDef{text})
		assert.ErrorIs(t, err, ErrNoGroupField)
	})
}

// TestFields verifies field definitions are collected from items
func TestFields(t *testing.T) {
	items := createTestItems()
	items[0].ProjectFields = map[string]domain.FieldValue{
		"status": statusValue("Done"),
		"notes":  domain.NewTextValue("Notes", "x"),
	}
	items[1].ProjectFields = map[string]domain.FieldValue{"status": statusValue("Todo")}

	defs := New(items, &mockFetcher{}).Fields()
	require.Len(t, defs, 2)
	assert.Equal(t, "Notes", defs[0].Name)
	assert.Equal(t, domain.FieldTypeText, defs[0].Type)
	assert.Equal(t, "Status", defs[1].Name)
	assert.Equal(t, []string{"Todo", "In Progress", "Done"}, defs[1].Options)

	selected, _, err := SelectGroupField(defs)
	require.NoError(t, err)
	assert.Equal(t, "Status", selected.Name)
}

func ptr(f float64) *float64 {
	return &f
}
