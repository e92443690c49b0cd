package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ItemKey is the global identity of an item. It is comparable and used as a
// map key everywhere items are looked up.
type ItemKey struct {
	Organization string
	Repository   string
	Number       int
}

// String renders the key as "org/repo#123".
func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Organization, k.Repository, k.Number)
}

// RepositoryFullName returns "org/repo".
func (k ItemKey) RepositoryFullName() string {
	return k.Organization + "/" + k.Repository
}

// ParseItemKey parses "org/repo#123".
func ParseItemKey(s string) (ItemKey, error) {
	repo, num, ok := strings.Cut(s, "#")
	if !ok {
		return ItemKey{}, fmt.Errorf("invalid item key %q: missing '#'", s)
	}
	org, name, ok := strings.Cut(repo, "/")
	if !ok || org == "" || name == "" {
		return ItemKey{}, fmt.Errorf("invalid item key %q: expected org/repo", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return ItemKey{}, fmt.Errorf("invalid item key %q: bad number", s)
	}
	return ItemKey{Organization: org, Repository: name, Number: n}, nil
}

// Item represents an issue or discussion. It is built from a listing response
// and then receives its comments and custom fields exactly once.
type Item struct {
	Key       ItemKey
	Kind      ItemKind
	Title     string
	Body      string
	URL       string
	State     string     // StateOpen or StateClosed
	Author    string     // Author login
	Type      string     // Issue type name, or discussion category
	CreatedAt time.Time  // Creation timestamp
	UpdatedAt time.Time  // Last-updated timestamp
	ClosedAt  *time.Time // Nil while open
	Labels    []string   // Label names
	Assignees []string   // Login names of assigned users

	Comments      []*Comment            // Oldest first, as returned by the API
	IssueFields   map[string]FieldValue // Native tracker fields, keyed by NormalizeFieldName
	ProjectFields map[string]FieldValue // Board fields, keyed by NormalizeFieldName

	CommentsFetched      bool
	IssueFieldsFetched   bool
	ProjectFieldsFetched bool
}

// CustomField looks a field up by name. Project fields take precedence over
// native issue fields; a field present in neither is reported as empty.
func (i *Item) CustomField(name string) FieldValue {
	key := NormalizeFieldName(name)
	if fv, ok := i.ProjectFields[key]; ok {
		return fv
	}
	if fv, ok := i.IssueFields[key]; ok {
		return fv
	}
	return EmptyValue(name)
}

// HasCustomField reports whether the item carries a non-empty value for name.
func (i *Item) HasCustomField(name string) bool {
	return !i.CustomField(name).IsEmpty()
}

// Field returns a stringified attribute. Built-in attributes are resolved
// first, then custom fields.
func (i *Item) Field(name string) string {
	switch NormalizeFieldName(name) {
	case "title":
		return i.Title
	case "body":
		return i.Body
	case "url":
		return i.URL
	case "number":
		return strconv.Itoa(i.Key.Number)
	case "state", "is":
		return i.State
	case "author":
		return i.Author
	case "type":
		return i.Type
	case "kind":
		return string(i.Kind)
	case "repo", "repository":
		return i.Key.RepositoryFullName()
	case "organization", "org", "owner":
		return i.Key.Organization
	case "labels", "label":
		return strings.Join(i.Labels, ", ")
	case "assignees", "assignee":
		return strings.Join(i.Assignees, ", ")
	case "created", "created-at":
		return formatDate(i.CreatedAt)
	case "updated", "updated-at":
		return formatDate(i.UpdatedAt)
	case "closed", "closed-at":
		if i.ClosedAt == nil {
			return ""
		}
		return formatDate(*i.ClosedAt)
	}
	return i.CustomField(name).String()
}

// CommentsNewestFirst returns the comments sorted by creation time, newest first.
// The item's own slice is left untouched.
func (i *Item) CommentsNewestFirst() []*Comment {
	sorted := make([]*Comment, len(i.Comments))
	copy(sorted, i.Comments)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].CreatedAt.After(sorted[b].CreatedAt)
	})
	return sorted
}

// IsOpen reports whether the item state is open.
func (i *Item) IsOpen() bool {
	return i.State == StateOpen
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
