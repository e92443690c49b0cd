// Package update decides which comment represents an item's latest status update.
// Detection is driven by an ordered chain of strategies; the chain order is the
// main configuration surface.
package update

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/domain"
)

// Kind is the strategy discriminant.
type Kind string

const (
	KindTimebox Kind = "timebox"
	KindSection Kind = "section"
	KindMarker  Kind = "marker"
	KindSkip    Kind = "skip"
	KindBlame   Kind = "blame"
	KindFail    Kind = "fail"
)

// Timeframe bounds how old a comment may be to count as an update.
type Timeframe string

const (
	TimeframeNone    Timeframe = ""
	TimeframeToday   Timeframe = "today"
	TimeframeWeek    Timeframe = "last-week"
	TimeframeMonth   Timeframe = "last-month"
	TimeframeYear    Timeframe = "last-year"
	TimeframeAllTime Timeframe = "all-time"
)

var timeframeDays = map[Timeframe]int{
	TimeframeWeek:  7,
	TimeframeMonth: 31,
	TimeframeYear:  365,
}

// ParseTimeframe accepts the canonical names plus a few common aliases.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TimeframeNone, nil
	case "today", "day":
		return TimeframeToday, nil
	case "last-week", "week", "7d":
		return TimeframeWeek, nil
	case "last-month", "month", "31d":
		return TimeframeMonth, nil
	case "last-year", "year", "365d":
		return TimeframeYear, nil
	case "all-time", "all", "always":
		return TimeframeAllTime, nil
	}
	return TimeframeNone, fmt.Errorf("unknown timeframe %q", s)
}

// Contains reports whether t falls inside the timeframe measured back from now.
// TimeframeNone and TimeframeAllTime contain every instant.
func (tf Timeframe) Contains(t, now time.Time) bool {
	switch tf {
	case TimeframeNone, TimeframeAllTime:
		return true
	case TimeframeToday:
		local := t.In(now.Location())
		y1, m1, d1 := local.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	days, ok := timeframeDays[tf]
	if !ok {
		return false
	}
	return !t.Before(now.AddDate(0, 0, -days))
}

// Strategy is one link in the detection chain. Which fields apply depends on Kind:
// Timeframe for timebox (required), section and marker (optional); Section for
// section; Pattern and StripMarker for marker.
type Strategy struct {
	Kind        Kind
	Timeframe   Timeframe
	Section     string
	Pattern     *regexp.Regexp
	StripMarker bool
}

// Timebox builds a timebox strategy.
func Timebox(tf Timeframe) Strategy {
	return Strategy{Kind: KindTimebox, Timeframe: tf}
}

// Section builds a section strategy.
func Section(name string, tf Timeframe) Strategy {
	return Strategy{Kind: KindSection, Section: name, Timeframe: tf}
}

// Marker builds a marker strategy from a case-insensitive regular expression.
func Marker(pattern string, tf Timeframe) (Strategy, error) {
	re, err := compileMarker(pattern)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{Kind: KindMarker, Pattern: re, Timeframe: tf}, nil
}

// IsControl reports whether the strategy only decides what happens when no
// other strategy produced an update.
func (s Strategy) IsControl() bool {
	return s.Kind == KindSkip || s.Kind == KindBlame || s.Kind == KindFail
}

// String renders the strategy in the shorthand accepted by ParseStrategy.
func (s Strategy) String() string {
	var arg string
	switch s.Kind {
	case KindTimebox:
		return string(s.Kind) + ":" + string(s.Timeframe)
	case KindSection:
		arg = s.Section
	case KindMarker:
		if s.Pattern != nil {
			arg = strings.TrimPrefix(s.Pattern.String(), "(?i)")
		}
		if s.StripMarker {
			arg = "!" + arg
		}
	default:
		return string(s.Kind)
	}
	out := string(s.Kind) + ":" + arg
	if s.Timeframe != TimeframeNone {
		out += "|" + string(s.Timeframe)
	}
	return out
}

// ParseStrategy parses the shorthand form:
//
//	timebox:last-week
//	section:Status
//	section:Status|last-month
//	marker:^update|today
//	marker:!^update        (strip the matched marker from the update)
//	skip | blame | fail
func ParseStrategy(s string) (Strategy, error) {
	s = strings.TrimSpace(s)
	kindStr, arg, _ := strings.Cut(s, ":")
	kind := Kind(strings.ToLower(strings.TrimSpace(kindStr)))

	// A trailing "|timeframe" applies to section and marker
	var tf Timeframe
	if i := strings.LastIndex(arg, "|"); i >= 0 && (kind == KindSection || kind == KindMarker) {
		if parsed, err := ParseTimeframe(arg[i+1:]); err == nil {
			tf = parsed
			arg = arg[:i]
		}
	}

	switch kind {
	case KindTimebox:
		parsed, err := ParseTimeframe(arg)
		if err != nil {
			return Strategy{}, fmt.Errorf("strategy %q: %w", s, err)
		}
		if parsed == TimeframeNone {
			return Strategy{}, fmt.Errorf("strategy %q: timebox requires a timeframe", s)
		}
		return Timebox(parsed), nil
	case KindSection:
		if strings.TrimSpace(arg) == "" {
			return Strategy{}, fmt.Errorf("strategy %q: section requires a name", s)
		}
		return Section(strings.TrimSpace(arg), tf), nil
	case KindMarker:
		strip := strings.HasPrefix(arg, "!")
		arg = strings.TrimPrefix(arg, "!")
		if arg == "" {
			return Strategy{}, fmt.Errorf("strategy %q: marker requires a pattern", s)
		}
		st, err := Marker(arg, tf)
		if err != nil {
			return Strategy{}, fmt.Errorf("strategy %q: %w", s, err)
		}
		st.StripMarker = strip
		return st, nil
	case KindSkip, KindBlame, KindFail:
		if arg != "" {
			return Strategy{}, fmt.Errorf("strategy %q: %s takes no argument", s, kind)
		}
		return Strategy{Kind: kind}, nil
	}
	return Strategy{}, fmt.Errorf("unknown strategy kind %q", kindStr)
}

// ParseStrategies parses each entry in order.
func ParseStrategies(entries []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(entries))
	for _, e := range entries {
		st, err := ParseStrategy(e)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func compileMarker(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid marker pattern %q: %w", pattern, err)
	}
	return re, nil
}

// cacheKey is the structural identity of a strategy for memoization.
type cacheKey struct {
	kind      Kind
	timeframe Timeframe
	section   string
	pattern   string
	strip     bool
}

func (s Strategy) cacheKey() cacheKey {
	k := cacheKey{kind: s.Kind, timeframe: s.Timeframe, strip: s.StripMarker}
	switch s.Kind {
	case KindSection:
		k.section = domain.NormalizeSectionName(s.Section)
	case KindMarker:
		if s.Pattern != nil {
			k.pattern = s.Pattern.String()
		}
	}
	return k
}
