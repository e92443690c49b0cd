// Package report renders a resolved ItemList as a markdown status summary.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/fetch"
	"github.com/h0rv/rollup/internal/store"
	"github.com/h0rv/rollup/internal/update"
	"github.com/muesli/reflow/wordwrap"
)

// Options controls report layout.
type Options struct {
	Title   string
	GroupBy string          // Field to group by; empty renders one flat list
	Width   int             // Wrap update text at this width; 0 disables wrapping
	Now     time.Time       // Generation timestamp shown in the header
	Stats   *fetch.Snapshot // Optional API cost footer
}

// Write renders every item in list with its resolved updates. Items whose
// resolution was skipped are left out; blamed items are collected under a
// trailing "Missing updates" heading.
func Write(w io.Writer, list *store.ItemList, updates map[domain.ItemKey]update.Resolution, opts Options) error {
	var b strings.Builder

	title := opts.Title
	if title == "" {
		title = "Status report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	var blamed []*domain.Item
	visible := 0
	for _, item := range list.Items() {
		res := updates[item.Key]
		switch {
		case res.Skipped:
		case res.Blamed:
			blamed = append(blamed, item)
		default:
			visible++
		}
	}

	if !opts.Now.IsZero() {
		fmt.Fprintf(&b, "_Generated %s. %d items, %d missing updates._\n\n",
			opts.Now.Format("2006-01-02 15:04 MST"), visible, len(blamed))
	}

	if opts.GroupBy == "" {
		for _, item := range list.Items() {
			writeItem(&b, item, updates[item.Key], opts.Width, "##")
		}
	} else {
		for _, g := range list.GroupBy(opts.GroupBy) {
			items := reportable(g.Items, updates)
			if len(items) == 0 {
				continue
			}
			heading := g.Key
			if heading == store.NoValueKey {
				heading = "No " + opts.GroupBy
			}
			fmt.Fprintf(&b, "## %s (%d)\n\n", heading, len(items))
			for _, item := range items {
				writeItem(&b, item, updates[item.Key], opts.Width, "###")
			}
		}
	}

	if len(blamed) > 0 {
		b.WriteString("## Missing updates\n\n")
		for _, item := range blamed {
			fmt.Fprintf(&b, "- %s (%s)\n", link(item.Title, item.URL), item.Key)
		}
		b.WriteString("\n")
	}

	if opts.Stats != nil {
		fmt.Fprintf(&b, "<!-- run %s: %d queries, cost %d, %d remaining, %d throttled -->\n",
			opts.Stats.RunID, opts.Stats.Queries, opts.Stats.Cost, opts.Stats.Remaining, opts.Stats.Throttled)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func reportable(items []*domain.Item, updates map[domain.ItemKey]update.Resolution) []*domain.Item {
	out := make([]*domain.Item, 0, len(items))
	for _, item := range items {
		res := updates[item.Key]
		if !res.Skipped && !res.Blamed {
			out = append(out, item)
		}
	}
	return out
}

func writeItem(b *strings.Builder, item *domain.Item, res update.Resolution, width int, level string) {
	if res.Skipped || res.Blamed {
		return
	}
	fmt.Fprintf(b, "%s %s\n\n", level, link(item.Title, item.URL))

	meta := []string{item.Key.String(), item.State}
	if len(item.Assignees) > 0 {
		meta = append(meta, "assigned to "+strings.Join(item.Assignees, ", "))
	}
	if len(item.Labels) > 0 {
		meta = append(meta, "labels: "+strings.Join(item.Labels, ", "))
	}
	fmt.Fprintf(b, "_%s_\n\n", strings.Join(meta, " · "))

	if len(res.Updates) == 0 {
		b.WriteString("No update.\n\n")
		return
	}
	for _, u := range res.Updates {
		b.WriteString(quote(u.Content, width))
		b.WriteString("\n")
		if u.Comment != nil {
			by := u.Comment.Author
			if by == "" {
				by = "ghost"
			}
			fmt.Fprintf(b, "%s\n\n", link(fmt.Sprintf("%s on %s", by, u.Comment.CreatedAt.Format(domain.DateLayout)), u.Comment.URL))
		}
	}
}

// quote renders text as a markdown blockquote.
func quote(text string, width int) string {
	if width > 2 {
		text = wordwrap.String(text, width-2)
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> " + line + "\n")
	}
	return b.String()
}

func link(text, url string) string {
	text = strings.ReplaceAll(text, "]", "\\]")
	if url == "" {
		return text
	}
	return fmt.Sprintf("[%s](%s)", text, url)
}
