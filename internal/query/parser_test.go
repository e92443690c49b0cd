package query

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC)

func newTestParser() *Parser {
	return NewParser(
		func() (string, error) { return "octocat", nil },
		func() time.Time { return fixedNow },
	)
}

func TestParse_Filters(t *testing.T) {
	q, err := newTestParser().Parse(`is:open label:bug,"good first issue" -assignee:@me status:"In Progress" label:p1`)
	require.NoError(t, err)

	want := []Filter{
		{Key: "is", Values: []string{"open"}},
		{Key: "label", Values: []string{"bug", "good first issue"}},
		{Key: "assignee", Values: []string{"octocat"}, Exclude: true},
		{Key: "status", Values: []string{"In Progress"}},
		{Key: "label", Values: []string{"p1"}},
	}
	if diff := cmp.Diff(want, q.Filters); diff != "" {
		t.Errorf("filters mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, q.TitlePatterns)
}

func TestParse_RepeatedKeysStaySeparate(t *testing.T) {
	q, err := newTestParser().Parse("label:a label:b")
	require.NoError(t, err)

	filters := q.FiltersFor("label")
	require.Len(t, filters, 2)
	assert.Equal(t, []string{"a"}, filters[0].Values)
	assert.Equal(t, []string{"b"}, filters[1].Values)
}

func TestParse_TitlePatterns(t *testing.T) {
	q, err := newTestParser().Parse(`login "rate limit" title:^Epic -title:wip* Status:Done`)
	require.NoError(t, err)

	require.Len(t, q.TitlePatterns, 4)
	assert.Equal(t, "login", q.TitlePatterns[0].Source)
	assert.Equal(t, "rate limit", q.TitlePatterns[1].Source)
	assert.True(t, q.TitlePatterns[2].Regexp.MatchString("epic: auth"))
	assert.True(t, q.TitlePatterns[3].Negate)
	assert.True(t, q.TitlePatterns[3].Regexp.MatchString("WIP: draft"))

	require.Len(t, q.Filters, 1)
	assert.Equal(t, "Status", q.Filters[0].Key, "keys keep their case")
}

func TestParse_InvalidTitlePattern(t *testing.T) {
	_, err := newTestParser().Parse("title:(unclosed")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "(unclosed", perr.Token)
}

func TestParse_SingleQuotesAreLiteral(t *testing.T) {
	q, err := newTestParser().Parse("status:'In Progress'")
	require.NoError(t, err)

	require.Len(t, q.Filters, 1)
	assert.Equal(t, []string{"'In"}, q.Filters[0].Values)
	require.Len(t, q.TitlePatterns, 1)
	assert.Equal(t, "Progress'", q.TitlePatterns[0].Source)
}

func TestParse_UnterminatedQuote(t *testing.T) {
	_, err := newTestParser().Parse(`status:"In Progress`)
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestParse_EmptyValuesAreKept(t *testing.T) {
	q, err := newTestParser().Parse("label:")
	require.NoError(t, err)

	require.Len(t, q.Filters, 1)
	assert.Empty(t, q.Filters[0].Values)
}

func TestParse_Today(t *testing.T) {
	q, err := newTestParser().Parse("updated:>=@today-7d target:<=@today+2w")
	require.NoError(t, err)

	assert.Equal(t, []string{">=2024-05-08"}, q.Filters[0].Values)
	assert.Equal(t, []string{"<=2024-05-29"}, q.Filters[1].Values)
}

func TestParse_MeWithoutActor(t *testing.T) {
	p := NewParser(nil, nil)
	_, err := p.Parse("assignee:@me")
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestParse_ActorError(t *testing.T) {
	boom := errors.New("viewer lookup failed")
	p := NewParser(func() (string, error) { return "", boom }, nil)

	_, err := p.Parse("assignee:@me")
	assert.ErrorIs(t, err, boom)
}

func TestResolveRelativeDate(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"@today>=+0d", ">=2024-05-15"},
		{"@today<=-7d", "<=2024-05-08"},
		{">=@today", ">=2024-05-15"},
		{"=@today-1w", "=2024-05-08"},
		{"<=@today3d", "<=2024-05-18"},
		{">=@today-1m", ">=2024-04-15"},
		{">=@today+1y", ">=2025-05-15"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ResolveRelativeDate(tt.value, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRelativeDate_Errors(t *testing.T) {
	for _, value := range []string{
		"@today-7d",    // no comparator
		">@today-7d",   // unknown comparator
		">=@today-7",   // missing unit
		">=@today-7q",  // unknown unit
		">=@today>=1d", // two comparators
		">=@tomorrow",  // not an @today expression
	} {
		t.Run(value, func(t *testing.T) {
			_, err := ResolveRelativeDate(value, fixedNow)
			assert.Error(t, err)
		})
	}
}

func TestQuery_CustomKeys(t *testing.T) {
	q, err := newTestParser().Parse("is:open Status:Done priority:P1 no:Estimate Status:Todo has:label")
	require.NoError(t, err)

	assert.Equal(t, []string{"Status", "priority", "Estimate"}, q.CustomKeys())
}

func TestFilter_String(t *testing.T) {
	f := Filter{Key: "status", Values: []string{"In Progress", "Done"}, Exclude: true}
	assert.Equal(t, `-status:"In Progress",Done`, f.String())
}
