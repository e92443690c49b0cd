package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/domain"
)

const (
	metaMe    = "@me"
	metaToday = "@today"
)

// Comparators accepted in date values.
const (
	cmpGTE = ">="
	cmpLTE = "<="
	cmpEQ  = "="
)

var unitDays = map[string]int{
	"d": 1,
	"w": 7,
	"m": 30,
	"y": 365,
}

// relativeDatePattern accepts the comparator either before or after @today:
// ">=@today-7d" and "@today>=-7d" are equivalent.
var relativeDatePattern = regexp.MustCompile(`^([<>=]*)@today([<>=]*)(?:([+-]?)(\d+)([A-Za-z]*))?$`)

// ResolveRelativeDate expands "<cmp>@today<sign><N><unit>" into "<cmp>YYYY-MM-DD".
// The comparator must be one of >=, <= or =. A missing sign means add. The unit
// is one of d, w, m (30 days) or y (365 days) and is required when N is given.
func ResolveRelativeDate(value string, now time.Time) (string, error) {
	m := relativeDatePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", fmt.Errorf("malformed @today expression %q", value)
	}
	before, after, sign, amount, unit := m[1], m[2], m[3], m[4], m[5]

	var cmp string
	switch {
	case before != "" && after != "":
		return "", fmt.Errorf("@today expression %q has two comparators", value)
	case before != "":
		cmp = before
	default:
		cmp = after
	}
	switch cmp {
	case cmpGTE, cmpLTE, cmpEQ:
	case "":
		return "", fmt.Errorf("@today expression %q is missing a comparator (>=, <= or =)", value)
	default:
		return "", fmt.Errorf("@today expression %q has unknown comparator %q", value, cmp)
	}

	days := 0
	if amount != "" {
		if unit == "" {
			return "", fmt.Errorf("@today expression %q is missing a unit (d, w, m or y)", value)
		}
		perUnit, ok := unitDays[strings.ToLower(unit)]
		if !ok {
			return "", fmt.Errorf("@today expression %q has unknown unit %q", value, unit)
		}
		n, err := strconv.Atoi(amount)
		if err != nil {
			return "", fmt.Errorf("@today expression %q has bad amount: %w", value, err)
		}
		days = n * perUnit
		if sign == "-" {
			days = -days
		}
	}

	date := now.AddDate(0, 0, days)
	return cmp + date.Format(domain.DateLayout), nil
}

// splitComparator separates ">=2024-01-02" into ">=" and "2024-01-02".
// Values without a comparator compare for equality.
func splitComparator(value string) (string, string) {
	for _, cmp := range []string{cmpGTE, cmpLTE, cmpEQ} {
		if strings.HasPrefix(value, cmp) {
			return cmp, strings.TrimPrefix(value, cmp)
		}
	}
	return cmpEQ, value
}

// hasComparator reports whether a value is written as a date comparison.
func hasComparator(value string) bool {
	return strings.HasPrefix(value, cmpGTE) || strings.HasPrefix(value, cmpLTE) || strings.HasPrefix(value, cmpEQ)
}

// compareDate compares two YYYY-MM-DD strings. Fixed-width ISO dates order
// lexicographically, so plain string comparison is exact.
func compareDate(cmp, have, want string) bool {
	switch cmp {
	case cmpGTE:
		return have >= want
	case cmpLTE:
		return have <= want
	default:
		return have == want
	}
}
