// Package query parses saved view filter strings and evaluates them against items.
// The syntax follows the project board filter bar: whitespace-separated tokens,
// "key:v1,v2" filters, a leading "-" to exclude, and bare words matched against titles.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Filter is one "key:values" occurrence. Values within a filter are OR'ed;
// separate filters, even with the same key, are AND'ed.
type Filter struct {
	Key     string   // Key as written in the query (case-sensitive)
	Values  []string // Values with quotes stripped and metavariables resolved
	Exclude bool     // True when the key was prefixed with "-"
}

// TitlePattern is a compiled title matcher. Negated patterns come from "-title:".
type TitlePattern struct {
	Source string
	Regexp *regexp.Regexp
	Negate bool
}

// Query is a parsed filter string.
type Query struct {
	Raw           string
	Filters       []Filter
	TitlePatterns []TitlePattern
}

// Empty reports whether the query has no filters at all.
func (q *Query) Empty() bool {
	return len(q.Filters) == 0 && len(q.TitlePatterns) == 0
}

// FiltersFor returns every filter occurrence with the given key, in query order.
func (q *Query) FiltersFor(key string) []Filter {
	var out []Filter
	for _, f := range q.Filters {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// CustomKeys returns the distinct keys that are not built-in, in first-seen
// order. Keys named by no:/has: are included.
func (q *Query) CustomKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] && !IsBuiltinKey(k) {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, f := range q.Filters {
		if f.Key == keyNo || f.Key == keyHas {
			for _, v := range f.Values {
				add(v)
			}
			continue
		}
		add(f.Key)
	}
	return keys
}

// ActorFunc returns the login that "@me" resolves to.
type ActorFunc func() (string, error)

// Parser turns raw filter strings into Queries. Actor and Now are injected so
// parsing is deterministic under test.
type Parser struct {
	Actor ActorFunc
	Now   func() time.Time
}

// NewParser creates a Parser. A nil now defaults to time.Now.
func NewParser(actor ActorFunc, now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{Actor: actor, Now: now}
}

// Parse parses a raw filter string.
func (p *Parser) Parse(raw string) (*Query, error) {
	q := &Query{Raw: raw}
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, err
	}

	for _, token := range tokens {
		key, value, hasColon := splitKey(token)
		if !hasColon {
			pattern, err := compileTitlePattern(token, false)
			if err != nil {
				return nil, err
			}
			q.TitlePatterns = append(q.TitlePatterns, pattern)
			continue
		}

		exclude := false
		if strings.HasPrefix(key, "-") && len(key) > 1 {
			exclude = true
			key = key[1:]
		}
		key = unquote(key)

		if key == keyTitle {
			pattern, err := compileTitlePattern(unquote(value), exclude)
			if err != nil {
				return nil, err
			}
			q.TitlePatterns = append(q.TitlePatterns, pattern)
			continue
		}

		values, err := p.parseValues(token, value)
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, Filter{Key: key, Values: values, Exclude: exclude})
	}

	return q, nil
}

func (p *Parser) parseValues(token, value string) ([]string, error) {
	var values []string
	for _, v := range splitValues(value) {
		v = unquote(v)
		if v == "" {
			continue
		}
		resolved, err := p.resolve(token, v)
		if err != nil {
			return nil, err
		}
		values = append(values, resolved)
	}
	return values, nil
}

// resolve expands @me and @today metavariables.
func (p *Parser) resolve(token, value string) (string, error) {
	switch {
	case value == metaMe:
		if p.Actor == nil {
			return "", &ParseError{Token: token, Reason: "@me used but no current actor is available"}
		}
		actor, err := p.Actor()
		if err != nil {
			return "", &ParseError{Token: token, Reason: "resolving @me", Err: err}
		}
		return actor, nil
	case strings.Contains(value, metaToday):
		resolved, err := ResolveRelativeDate(value, p.Now())
		if err != nil {
			return "", &ParseError{Token: token, Reason: err.Error()}
		}
		return resolved, nil
	}
	return value, nil
}

// tokenize splits on whitespace outside double quotes. Quotes are kept inside
// a token so values can be split on commas later; a token that is entirely
// quoted has its quotes removed.
func tokenize(raw string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	started := false

	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
			started = true
		case !inQuote && isSpace(r):
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, &ParseError{Token: cur.String(), Reason: "unterminated double quote"}
	}
	if started {
		tokens = append(tokens, cur.String())
	}

	for i, t := range tokens {
		if isFullyQuoted(t) {
			tokens[i] = t[1 : len(t)-1]
		}
	}
	return tokens, nil
}

// splitKey splits on the first colon outside quotes.
func splitKey(token string) (key, value string, ok bool) {
	inQuote := false
	for i, r := range token {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ':' && !inQuote:
			return token[:i], token[i+1:], true
		}
	}
	return "", token, false
}

// splitValues splits a comma-separated value list, ignoring commas in quotes.
func splitValues(value string) []string {
	var values []string
	var cur strings.Builder
	inQuote := false
	for _, r := range value {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			values = append(values, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(values, cur.String())
}

func unquote(s string) string {
	if isFullyQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

func isFullyQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' && !strings.Contains(s[1:len(s)-1], `"`)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

const globOnlyChars = `\.+()[]{}|^$`

// compileTitlePattern compiles a title matcher. Tokens made only of literal
// text plus "*" and "?" are treated as globs; anything else is a regular
// expression. Matching is case-insensitive and unanchored.
func compileTitlePattern(source string, negate bool) (TitlePattern, error) {
	expr := source
	if strings.ContainsAny(source, "*?") && !strings.ContainsAny(source, globOnlyChars) {
		expr = globToRegexp(source)
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return TitlePattern{}, &ParseError{Token: source, Reason: "invalid title pattern", Err: err}
	}
	return TitlePattern{Source: source, Regexp: re, Negate: negate}, nil
}

func globToRegexp(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// String renders the filter back into query syntax.
func (f Filter) String() string {
	prefix := ""
	if f.Exclude {
		prefix = "-"
	}
	quoted := make([]string, len(f.Values))
	for i, v := range f.Values {
		if strings.ContainsAny(v, " ,") {
			v = fmt.Sprintf("%q", v)
		}
		quoted[i] = v
	}
	return prefix + f.Key + ":" + strings.Join(quoted, ",")
}
