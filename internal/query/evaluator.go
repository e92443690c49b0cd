package query

import (
	"time"

	"github.com/h0rv/rollup/internal/domain"
)

// Built-in keys evaluated against item attributes rather than custom fields.
const (
	keyIs        = "is"
	keyState     = "state"
	keyTitle     = "title"
	keyType      = "type"
	keyRepo      = "repo"
	keyAssignee  = "assignee"
	keyAssignees = "assignees"
	keyLabel     = "label"
	keyLabels    = "labels"
	keyAuthor    = "author"
	keyUpdated   = "updated"
	keyCreated   = "created"
	keyClosed    = "closed"
	keyNo        = "no"
	keyHas       = "has"
)

var builtinKeys = map[string]bool{
	keyIs: true, keyState: true, keyTitle: true, keyType: true, keyRepo: true,
	keyAssignee: true, keyAssignees: true, keyLabel: true, keyLabels: true,
	keyAuthor: true, keyUpdated: true, keyCreated: true, keyClosed: true,
	keyNo: true, keyHas: true,
}

// IsBuiltinKey reports whether key is evaluated against item attributes.
func IsBuiltinKey(key string) bool {
	return builtinKeys[key]
}

// Matches reports whether item satisfies every filter in q. Checks are
// conjunctive and stop at the first failure.
func Matches(item *domain.Item, q *Query) bool {
	if q == nil || q.Empty() {
		return true
	}
	return matchesTitle(item, q) &&
		CheckFilters(q.FiltersFor(keyIs), isValues(item)) &&
		CheckFilters(q.FiltersFor(keyState), []string{item.State}) &&
		CheckFilters(q.FiltersFor(keyType), nonEmpty(item.Type)) &&
		CheckFilters(q.FiltersFor(keyRepo), []string{item.Key.RepositoryFullName()}) &&
		CheckFilters(q.FiltersFor(keyAssignee), item.Assignees) &&
		CheckFilters(q.FiltersFor(keyAssignees), item.Assignees) &&
		CheckFilters(q.FiltersFor(keyLabel), item.Labels) &&
		CheckFilters(q.FiltersFor(keyLabels), item.Labels) &&
		CheckFilters(q.FiltersFor(keyAuthor), nonEmpty(item.Author)) &&
		CheckDateFilters(q.FiltersFor(keyUpdated), timePtr(item.UpdatedAt)) &&
		CheckDateFilters(q.FiltersFor(keyCreated), timePtr(item.CreatedAt)) &&
		CheckDateFilters(q.FiltersFor(keyClosed), item.ClosedAt) &&
		checkPresence(item, q.FiltersFor(keyNo), false) &&
		checkPresence(item, q.FiltersFor(keyHas), true) &&
		matchesCustomFields(item, q)
}

// Apply returns the items that match q, preserving order.
func Apply(items []*domain.Item, q *Query) []*domain.Item {
	out := make([]*domain.Item, 0, len(items))
	for _, item := range items {
		if Matches(item, q) {
			out = append(out, item)
		}
	}
	return out
}

// CheckFilters evaluates every occurrence of one key against the item's value
// set. An include filter fails when nothing intersects; an exclude filter
// fails when anything does. Filters with no values are no-ops.
func CheckFilters(filters []Filter, have []string) bool {
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		hit := intersects(have, f.Values)
		if f.Exclude && hit {
			return false
		}
		if !f.Exclude && !hit {
			return false
		}
	}
	return true
}

// CheckDateFilters evaluates ">=", "<=" and "=" date values against date.
// With no filters it passes; with filters, a missing date always fails.
func CheckDateFilters(filters []Filter, date *time.Time) bool {
	active := false
	for _, f := range filters {
		if len(f.Values) > 0 {
			active = true
			break
		}
	}
	if !active {
		return true
	}
	if date == nil {
		return false
	}
	return checkDateString(filters, date.Format(domain.DateLayout))
}

func checkDateString(filters []Filter, have string) bool {
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		hit := false
		for _, v := range f.Values {
			cmp, want := splitComparator(v)
			if compareDate(cmp, have, want) {
				hit = true
				break
			}
		}
		if f.Exclude == hit {
			return false
		}
	}
	return true
}

func matchesTitle(item *domain.Item, q *Query) bool {
	for _, p := range q.TitlePatterns {
		if p.Regexp.MatchString(item.Title) == p.Negate {
			return false
		}
	}
	return true
}

func matchesCustomFields(item *domain.Item, q *Query) bool {
	for _, key := range q.CustomKeys() {
		filters := q.FiltersFor(key)
		field := item.CustomField(key)
		// Comparator values are date filters; an absent field and an empty
		// one both fail them.
		if anyComparator(filters) {
			date := field.DateString()
			if date == "" {
				if !CheckDateFilters(filters, nil) {
					return false
				}
				continue
			}
			if !checkDateString(filters, date) {
				return false
			}
			continue
		}
		if !CheckFilters(filters, field.Values()) {
			return false
		}
	}
	return true
}

// checkPresence handles no:<field> and has:<field>. Each value names a field
// or a built-in list (label, assignee, type).
func checkPresence(item *domain.Item, filters []Filter, want bool) bool {
	for _, f := range filters {
		for _, name := range f.Values {
			present := hasValue(item, name)
			if f.Exclude {
				present = !present
			}
			if present != want {
				return false
			}
		}
	}
	return true
}

func hasValue(item *domain.Item, name string) bool {
	switch name {
	case keyLabel, keyLabels:
		return len(item.Labels) > 0
	case keyAssignee, keyAssignees:
		return len(item.Assignees) > 0
	case keyType:
		return item.Type != ""
	}
	return item.HasCustomField(name)
}

func isValues(item *domain.Item) []string {
	values := []string{item.State}
	if item.Kind != "" {
		values = append(values, string(item.Kind))
	}
	return values
}

func anyComparator(filters []Filter) bool {
	for _, f := range filters {
		for _, v := range f.Values {
			if hasComparator(v) {
				return true
			}
		}
	}
	return false
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
