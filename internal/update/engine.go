package update

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/h0rv/rollup/internal/domain"
)

// Update is the part of a comment judged to be an item's status update.
type Update struct {
	Comment  *domain.Comment
	Content  string
	Strategy Strategy // Zero value when the raw latest comment was used
}

// Subject identifies the item an update is being resolved for.
type Subject struct {
	Title string
	URL   string
}

// SubjectOf builds a Subject from an item.
func SubjectOf(item *domain.Item) Subject {
	return Subject{Title: item.Title, URL: item.URL}
}

// Resolution is the outcome of running the chain over one comment set.
type Resolution struct {
	Updates []Update
	Blamed  bool // A blame strategy fired: no update and the item should be flagged
	Skipped bool // A skip strategy fired: no update and nothing to report
}

type memoKey struct {
	comment  string
	strategy cacheKey
}

// Engine evaluates strategy chains. It holds the extraction cache for one
// report run; Reset clears it between runs.
type Engine struct {
	now      func() time.Time
	defaults []Strategy

	mu    sync.Mutex
	cache map[memoKey]string

	// extract is swapped in tests to count evaluations
	extract func(c *domain.Comment, s Strategy, now time.Time) string
}

// NewEngine creates an Engine. defaults is the chain used when a caller passes
// no strategies; a nil now defaults to time.Now.
func NewEngine(defaults []Strategy, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		now:      now,
		defaults: defaults,
		cache:    make(map[memoKey]string),
		extract:  extract,
	}
}

// Reset drops every memoized extraction.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[memoKey]string)
}

// Defaults returns the chain used when none is supplied.
func (e *Engine) Defaults() []Strategy {
	return e.defaults
}

// Extract evaluates one strategy against one comment, returning "" when it
// does not match. Results are memoized by comment ID and strategy identity.
func (e *Engine) Extract(c *domain.Comment, s Strategy) string {
	if s.IsControl() {
		return ""
	}
	key := memoKey{comment: commentIdentity(c), strategy: s.cacheKey()}

	e.mu.Lock()
	if content, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return content
	}
	e.mu.Unlock()

	content := e.extract(c, s, e.now())

	e.mu.Lock()
	e.cache[key] = content
	e.mu.Unlock()
	return content
}

// Resolve scans the comments (newest first) and keeps every comment for which
// some content strategy yields an extraction, returning the newest n of them.
// When none match, the first control strategy in the chain decides: skip and
// blame yield no update, fail returns a FailStrategyError. With no control
// strategy the newest n raw comments are returned.
func (e *Engine) Resolve(subject Subject, comments []*domain.Comment, n int, strategies []Strategy) (Resolution, error) {
	if n <= 0 {
		n = 1
	}
	if len(strategies) == 0 {
		strategies = e.defaults
	}

	var res Resolution
	for _, c := range comments {
		if u, ok := e.firstMatch(c, strategies); ok {
			res.Updates = append(res.Updates, u)
			if len(res.Updates) == n {
				return res, nil
			}
		}
	}
	if len(res.Updates) > 0 {
		return res, nil
	}

	for _, s := range strategies {
		switch s.Kind {
		case KindSkip:
			res.Skipped = true
			return res, nil
		case KindBlame:
			res.Blamed = true
			return res, nil
		case KindFail:
			return res, &FailStrategyError{Title: subject.Title, URL: subject.URL}
		}
	}

	for _, c := range comments {
		res.Updates = append(res.Updates, Update{Comment: c, Content: c.Body})
		if len(res.Updates) == n {
			break
		}
	}
	return res, nil
}

// FindLatestUpdates returns up to n updates, newest first.
func (e *Engine) FindLatestUpdates(subject Subject, comments []*domain.Comment, n int, strategies []Strategy) ([]Update, error) {
	res, err := e.Resolve(subject, comments, n, strategies)
	if err != nil {
		return nil, err
	}
	return res.Updates, nil
}

// FindUpdate returns the single latest update, or nil when there is none.
func (e *Engine) FindUpdate(subject Subject, comments []*domain.Comment, strategies []Strategy) (*Update, error) {
	updates, err := e.FindLatestUpdates(subject, comments, 1, strategies)
	if err != nil || len(updates) == 0 {
		return nil, err
	}
	return &updates[0], nil
}

// ForItem resolves updates for an item using its comments sorted newest first.
func (e *Engine) ForItem(item *domain.Item, n int, strategies []Strategy) (Resolution, error) {
	return e.Resolve(SubjectOf(item), item.CommentsNewestFirst(), n, strategies)
}

func (e *Engine) firstMatch(c *domain.Comment, strategies []Strategy) (Update, bool) {
	for _, s := range strategies {
		if s.IsControl() {
			continue
		}
		if content := e.Extract(c, s); content != "" {
			return Update{Comment: c, Content: content, Strategy: s}, true
		}
	}
	return Update{}, false
}

// extract is the uncached strategy evaluation.
func extract(c *domain.Comment, s Strategy, now time.Time) string {
	body := c.CleanBody()
	if body == "" {
		return ""
	}

	switch s.Kind {
	case KindTimebox:
		if s.Timeframe == TimeframeNone || !s.Timeframe.Contains(c.CreatedAt, now) {
			return ""
		}
		return body
	case KindMarker:
		if s.Pattern == nil || !s.Timeframe.Contains(c.CreatedAt, now) {
			return ""
		}
		if !s.Pattern.MatchString(body) {
			return ""
		}
		if s.StripMarker {
			return strings.TrimSpace(s.Pattern.ReplaceAllString(body, ""))
		}
		return body
	case KindSection:
		if !s.Timeframe.Contains(c.CreatedAt, now) {
			return ""
		}
		content, _ := c.Section(s.Section)
		return content
	}
	return ""
}

func commentIdentity(c *domain.Comment) string {
	switch {
	case c.ID != "":
		return c.ID
	case c.URL != "":
		return c.URL
	}
	return fmt.Sprintf("%p", c)
}
