package update

import (
	"errors"
	"testing"
	"time"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(defaults ...Strategy) *Engine {
	return NewEngine(defaults, func() time.Time { return engineNow })
}

// createTestComments returns comments newest first.
func createTestComments() []*domain.Comment {
	return []*domain.Comment{
		{ID: "c4", Body: "thanks!", CreatedAt: engineNow.Add(-1 * time.Hour)},
		{ID: "c3", Body: "## Status\nOn track for Friday", CreatedAt: engineNow.AddDate(0, 0, -3)},
		{ID: "c2", Body: "Update: blocked on infra", CreatedAt: engineNow.AddDate(0, 0, -10)},
		{ID: "c1", Body: "## Status\nKickoff done", CreatedAt: engineNow.AddDate(0, 0, -40)},
	}
}

var subject = Subject{Title: "Ship it", URL: "https://github.com/acme/api/issues/1"}

func TestResolve_SectionAcrossAllComments(t *testing.T) {
	e := newTestEngine()

	updates, err := e.FindLatestUpdates(subject, createTestComments(), 5, []Strategy{Section("status", TimeframeNone)})
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, "c3", updates[0].Comment.ID)
	assert.Equal(t, "On track for Friday", updates[0].Content)
	assert.Equal(t, "c1", updates[1].Comment.ID)
}

func TestResolve_StrategyOrderWithinComment(t *testing.T) {
	e := newTestEngine()
	marker, err := Marker("^update:", TimeframeNone)
	require.NoError(t, err)

	u, err := e.FindUpdate(subject, createTestComments(), []Strategy{marker, Section("status", TimeframeNone)})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "c3", u.Comment.ID, "newest comment matching any strategy wins")
	assert.Equal(t, KindSection, u.Strategy.Kind)
}

func TestResolve_TimeframeLimitsSections(t *testing.T) {
	e := newTestEngine()

	updates, err := e.FindLatestUpdates(subject, createTestComments(), 5, []Strategy{Section("status", TimeframeMonth)})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "c3", updates[0].Comment.ID)
}

func TestResolve_Timebox(t *testing.T) {
	e := newTestEngine()

	updates, err := e.FindLatestUpdates(subject, createTestComments(), 3, []Strategy{Timebox(TimeframeWeek)})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "thanks!", updates[0].Content)
	assert.Equal(t, "c3", updates[1].Comment.ID)
}

func TestResolve_MarkerStrip(t *testing.T) {
	e := newTestEngine()
	keep, err := Marker("^update:", TimeframeNone)
	require.NoError(t, err)
	strip := keep
	strip.StripMarker = true

	u, err := e.FindUpdate(subject, createTestComments(), []Strategy{keep})
	require.NoError(t, err)
	assert.Equal(t, "Update: blocked on infra", u.Content)

	u, err = e.FindUpdate(subject, createTestComments(), []Strategy{strip})
	require.NoError(t, err)
	assert.Equal(t, "blocked on infra", u.Content)
}

func TestResolve_SkipReturnsNothing(t *testing.T) {
	e := newTestEngine()

	res, err := e.Resolve(subject, createTestComments(), 1, []Strategy{Section("eta", TimeframeNone), {Kind: KindSkip}})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.True(t, res.Skipped)
	assert.False(t, res.Blamed)
}

func TestResolve_Blame(t *testing.T) {
	e := newTestEngine()

	res, err := e.Resolve(subject, createTestComments(), 1, []Strategy{Section("eta", TimeframeNone), {Kind: KindBlame}})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.True(t, res.Blamed)
}

func TestResolve_Fail(t *testing.T) {
	e := newTestEngine()

	_, err := e.FindLatestUpdates(subject, createTestComments(), 1, []Strategy{Section("eta", TimeframeNone), {Kind: KindFail}})
	var failErr *FailStrategyError
	require.True(t, errors.As(err, &failErr))
	assert.Equal(t, "Ship it", failErr.Title)
	assert.Contains(t, err.Error(), "Ship it")
	assert.Contains(t, err.Error(), subject.URL)

	_, err = e.FindUpdate(subject, nil, []Strategy{{Kind: KindFail}})
	assert.True(t, errors.As(err, &failErr))
}

func TestResolve_FallsBackToLatestComments(t *testing.T) {
	e := newTestEngine()

	updates, err := e.FindLatestUpdates(subject, createTestComments(), 2, []Strategy{Section("eta", TimeframeNone)})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "c4", updates[0].Comment.ID)
	assert.Equal(t, Kind(""), updates[0].Strategy.Kind)
	assert.Equal(t, "c3", updates[1].Comment.ID)
}

func TestResolve_DefaultChain(t *testing.T) {
	e := newTestEngine(Section("status", TimeframeNone))

	u, err := e.FindUpdate(subject, createTestComments(), nil)
	require.NoError(t, err)
	assert.Equal(t, "c3", u.Comment.ID)

	raw := newTestEngine()
	u, err = raw.FindUpdate(subject, createTestComments(), nil)
	require.NoError(t, err)
	assert.Equal(t, "c4", u.Comment.ID, "no strategies means latest comment")
}

func TestResolve_EmptyBodiesNeverMatch(t *testing.T) {
	e := newTestEngine()
	comments := []*domain.Comment{
		{ID: "blank", Body: "<!-- bot marker -->", CreatedAt: engineNow},
	}

	res, err := e.Resolve(subject, comments, 1, []Strategy{Timebox(TimeframeAllTime), {Kind: KindBlame}})
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.True(t, res.Blamed)
}

func TestResolve_RawFallbackKeepsCommentsAsGiven(t *testing.T) {
	e := newTestEngine()
	comments := []*domain.Comment{
		{ID: "new", Body: "<!-- bot -->", CreatedAt: engineNow},
		{ID: "old", Body: "older text", CreatedAt: engineNow.Add(-time.Hour)},
	}

	u, err := e.FindUpdate(subject, comments, nil)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "new", u.Comment.ID)
	assert.Equal(t, "<!-- bot -->", u.Content)

	updates, err := e.FindLatestUpdates(subject, comments, 5, nil)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "old", updates[1].Comment.ID)
}

func TestExtract_Memoized(t *testing.T) {
	e := newTestEngine()
	calls := 0
	e.extract = func(c *domain.Comment, s Strategy, now time.Time) string {
		calls++
		return extract(c, s, now)
	}

	comments := createTestComments()
	status := Section("Status", TimeframeNone)

	first := e.Extract(comments[1], status)
	second := e.Extract(comments[1], status)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	// Same identity under a different spelling of the section name
	e.Extract(comments[1], Section("status:", TimeframeNone))
	assert.Equal(t, 1, calls)

	e.Extract(comments[1], Timebox(TimeframeWeek))
	assert.Equal(t, 2, calls)

	e.Reset()
	e.Extract(comments[1], status)
	assert.Equal(t, 3, calls)
}

func TestForItem_SortsComments(t *testing.T) {
	e := newTestEngine()
	comments := createTestComments()
	item := &domain.Item{
		Title:    "Ship it",
		Comments: []*domain.Comment{comments[3], comments[2], comments[1], comments[0]},
	}

	res, err := e.ForItem(item, 1, []Strategy{Section("status", TimeframeNone)})
	require.NoError(t, err)
	require.Len(t, res.Updates, 1)
	assert.Equal(t, "c3", res.Updates[0].Comment.ID)
}
