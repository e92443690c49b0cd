package update

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
		tf    Timeframe
		canon string
	}{
		{"timebox:last-week", KindTimebox, TimeframeWeek, "timebox:last-week"},
		{"timebox:week", KindTimebox, TimeframeWeek, "timebox:last-week"},
		{"section:Status", KindSection, TimeframeNone, "section:Status"},
		{"section:Next Steps|last-month", KindSection, TimeframeMonth, "section:Next Steps|last-month"},
		{"marker:^update", KindMarker, TimeframeNone, "marker:^update"},
		{"marker:!^update|today", KindMarker, TimeframeToday, "marker:!^update|today"},
		{"marker:a|b", KindMarker, TimeframeNone, "marker:a|b"},
		{"skip", KindSkip, TimeframeNone, "skip"},
		{" BLAME ", KindBlame, TimeframeNone, "blame"},
		{"fail", KindFail, TimeframeNone, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			st, err := ParseStrategy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, st.Kind)
			assert.Equal(t, tt.tf, st.Timeframe)
			assert.Equal(t, tt.canon, st.String())
		})
	}
}

func TestParseStrategy_Errors(t *testing.T) {
	for _, input := range []string{
		"timebox",
		"timebox:fortnight",
		"section:",
		"marker:",
		"marker:(unclosed",
		"skip:now",
		"guess:latest",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseStrategy(input)
			assert.Error(t, err)
		})
	}
}

func TestParseStrategies(t *testing.T) {
	chain, err := ParseStrategies([]string{"section:Status", "timebox:today", "skip"})
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.True(t, chain[2].IsControl())

	_, err = ParseStrategies([]string{"section:Status", "nope"})
	assert.Error(t, err)
}

func TestTimeframe_Contains(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

	assert.True(t, TimeframeToday.Contains(now.Add(-8*time.Hour), now))
	assert.False(t, TimeframeToday.Contains(now.Add(-10*time.Hour), now))
	assert.True(t, TimeframeWeek.Contains(now.AddDate(0, 0, -7), now))
	assert.False(t, TimeframeWeek.Contains(now.AddDate(0, 0, -8), now))
	assert.True(t, TimeframeMonth.Contains(now.AddDate(0, 0, -31), now))
	assert.False(t, TimeframeYear.Contains(now.AddDate(-2, 0, 0), now))
	assert.True(t, TimeframeAllTime.Contains(now.AddDate(-20, 0, 0), now))
	assert.True(t, TimeframeNone.Contains(now.AddDate(-20, 0, 0), now))
}

func TestStrategy_CacheKeyDistinguishesShapes(t *testing.T) {
	section := Section("status", TimeframeNone)
	marker, err := Marker("status", TimeframeNone)
	require.NoError(t, err)
	stripped := marker
	stripped.StripMarker = true

	assert.NotEqual(t, section.cacheKey(), marker.cacheKey())
	assert.NotEqual(t, marker.cacheKey(), stripped.cacheKey())
	assert.Equal(t, Section("Status:", TimeframeNone).cacheKey(), section.cacheKey())
	assert.NotEqual(t, Section("status", TimeframeWeek).cacheKey(), section.cacheKey())
}
