package domain

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Comment represents a comment on an issue or discussion. It is immutable once
// fetched; the section views are derived lazily and memoized.
type Comment struct {
	ID        string    // GitHub comment node ID
	Author    string    // Author login (may be empty if user deleted)
	Body      string    // Comment body markdown
	CreatedAt time.Time // Creation timestamp
	UpdatedAt time.Time // Last edit timestamp
	URL       string    // Permalink to the comment

	once     sync.Once
	cleaned  string
	sections *Sections
}

// Sections are the three addressing schemes into a comment body. All maps are
// keyed by NormalizeSectionName.
type Sections struct {
	Data   map[string]string // <!-- data key="name" start --> ... <!-- data end -->
	Header map[string]string // "## Name" headings
	Bold   map[string]string // "**Name**" labels starting a line
}

var (
	dataStartPattern   = regexp.MustCompile(`(?i)<!--\s*data\s+key\s*=\s*"([^"]+)"\s+start\s*-->`)
	dataEndPattern     = regexp.MustCompile(`(?i)<!--\s*data\s+end\s*-->`)
	htmlCommentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
	headerPattern      = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)\s*#*\s*$`)
	boldPattern        = regexp.MustCompile(`^\s*(?:\*\*|__)(.+?)(?:\*\*|__)\s*:?\s*(.*)$`)
	fencePattern       = regexp.MustCompile("^\\s{0,3}(`{3,}|~{3,})")
)

// CleanBody returns the body with HTML comments removed, line endings
// normalized and surrounding whitespace trimmed.
func (c *Comment) CleanBody() string {
	c.derive()
	return c.cleaned
}

// Sections returns the memoized section views of the body.
func (c *Comment) Sections() *Sections {
	c.derive()
	return c.sections
}

// Section resolves a named section, trying data blocks, then headers, then
// bold labels. It reports false when no tier has non-empty content.
func (c *Comment) Section(name string) (string, bool) {
	key := NormalizeSectionName(name)
	s := c.Sections()
	for _, tier := range []map[string]string{s.Data, s.Header, s.Bold} {
		if content, ok := tier[key]; ok && content != "" {
			return content, true
		}
	}
	return "", false
}

func (c *Comment) derive() {
	c.once.Do(func() {
		body := strings.ReplaceAll(c.Body, "\r\n", "\n")
		c.cleaned = CleanMarkdown(body)
		c.sections = &Sections{
			Data:   parseDataBlocks(body),
			Header: parseHeaderSections(body),
			Bold:   parseBoldSections(body),
		}
	})
}

// CleanMarkdown strips HTML comments and trims surrounding whitespace.
func CleanMarkdown(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.TrimSpace(htmlCommentPattern.ReplaceAllString(body, ""))
}

// NormalizeSectionName lowercases a section name, collapses whitespace and
// drops a trailing colon, so "Status:", "status" and " STATUS " are equal.
func NormalizeSectionName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ":")
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func parseDataBlocks(body string) map[string]string {
	blocks := make(map[string]string)
	rest := body
	for {
		start := dataStartPattern.FindStringSubmatchIndex(rest)
		if start == nil {
			return blocks
		}
		key := NormalizeSectionName(rest[start[2]:start[3]])
		rest = rest[start[1]:]

		end := dataEndPattern.FindStringIndex(rest)
		content := rest
		if end != nil {
			content = rest[:end[0]]
			rest = rest[end[1]:]
		} else {
			rest = ""
		}
		// First block wins when a key repeats
		if _, exists := blocks[key]; !exists {
			blocks[key] = CleanMarkdown(content)
		}
	}
}

func parseHeaderSections(body string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf []string
	inSection := false

	flush := func() {
		if inSection {
			if _, exists := sections[current]; !exists {
				sections[current] = CleanMarkdown(strings.Join(buf, "\n"))
			}
		}
	}

	var fence codeFence
	for _, line := range strings.Split(body, "\n") {
		if fence.scan(line) {
			if inSection {
				buf = append(buf, line)
			}
			continue
		}
		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = NormalizeSectionName(stripEmphasis(m[1]))
			buf = buf[:0]
			inSection = true
			continue
		}
		if inSection {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func parseBoldSections(body string) map[string]string {
	sections := make(map[string]string)
	var current string
	var buf []string
	inSection := false

	flush := func() {
		if inSection {
			if _, exists := sections[current]; !exists {
				sections[current] = CleanMarkdown(strings.Join(buf, "\n"))
			}
		}
	}

	var fence codeFence
	for _, line := range strings.Split(body, "\n") {
		if fence.scan(line) {
			if inSection {
				buf = append(buf, line)
			}
			continue
		}
		if headerPattern.MatchString(line) {
			// A heading ends any bold-labelled section
			flush()
			inSection = false
			continue
		}
		if m := boldPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = NormalizeSectionName(m[1])
			buf = buf[:0]
			if m[2] != "" {
				buf = append(buf, m[2])
			}
			inSection = true
			continue
		}
		if inSection {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

// codeFence tracks whether a line scan is inside a fenced code block.
type codeFence struct {
	marker string // Opening fence run, empty when outside a block
}

// scan reports whether line is a fence line or lies inside a fenced block.
// A block closes on a fence of the same character at least as long.
func (f *codeFence) scan(line string) bool {
	m := fencePattern.FindStringSubmatch(line)
	if f.marker == "" {
		if m == nil {
			return false
		}
		f.marker = m[1]
		return true
	}
	if m != nil && m[1][0] == f.marker[0] && len(m[1]) >= len(f.marker) &&
		strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), m[1][:1])) == "" {
		f.marker = ""
	}
	return true
}

func stripEmphasis(s string) string {
	return strings.Trim(s, "*_ ")
}
