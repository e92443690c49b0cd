// Package store provides the ItemList aggregate: an in-memory collection of
// issues or discussions that lazily attaches comments and custom fields through
// the batch fetcher, scopes itself to a saved view, and exposes the sort and
// grouping operations used by renderers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/fetch"
	"github.com/h0rv/rollup/internal/logger"
	"github.com/h0rv/rollup/internal/query"
	"github.com/h0rv/rollup/internal/update"
)

var (
	// ErrItemNotFound indicates the requested item is not in the list.
	ErrItemNotFound = errors.New("item not found")
	// ErrNoGroupField indicates no field could be chosen for grouping.
	ErrNoGroupField = errors.New("no grouping field available")
)

// NoValueKey is the group key used for items without a value for the grouping field.
const NoValueKey = "_no_value_"

// RaceConditionError reports auxiliary data returned for an item that is not
// in the list. It indicates a consistency bug and is never retried.
type RaceConditionError struct {
	Key  domain.ItemKey
	Kind fetch.Kind
}

func (e *RaceConditionError) Error() string {
	return fmt.Sprintf("race condition: %s returned for %s, which is not in the item list", e.Kind, e.Key)
}

// Fetcher retrieves auxiliary data in batches. *fetch.Orchestrator implements it.
type Fetcher interface {
	Fetch(ctx context.Context, keys []domain.ItemKey, req fetch.Request) (map[domain.ItemKey]fetch.Result, error)
}

// FetchParams selects what Fetch attaches. Items already carrying the data are
// skipped, so repeated calls are cheap.
type FetchParams struct {
	Comments     int  // Latest N comments per item; 0 skips comments
	CustomFields bool // Project fields and native issue fields
	Filter       func(*domain.Item) bool
}

// ItemList owns a collection of items. Items are attached auxiliary data in
// place and are read-only once fetched.
type ItemList struct {
	items   []*domain.Item
	index   map[domain.ItemKey]*domain.Item
	fetcher Fetcher
	log     logger.Logger
}

// Option configures an ItemList.
type Option func(*ItemList)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(l2 *ItemList) {
		l2.log = l
	}
}

// New creates an ItemList. Duplicate keys keep the first item.
func New(items []*domain.Item, fetcher Fetcher, opts ...Option) *ItemList {
	l := &ItemList{
		index:   make(map[domain.ItemKey]*domain.Item, len(items)),
		fetcher: fetcher,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, item := range items {
		if _, dup := l.index[item.Key]; dup {
			continue
		}
		l.index[item.Key] = item
		l.items = append(l.items, item)
	}
	return l
}

// Items returns the items in list order.
func (l *ItemList) Items() []*domain.Item {
	out := make([]*domain.Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of items.
func (l *ItemList) Len() int {
	return len(l.items)
}

// Get retrieves an item by key, returning ErrItemNotFound if it is absent.
func (l *ItemList) Get(key domain.ItemKey) (*domain.Item, error) {
	item, ok := l.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	return item, nil
}

// Titles returns every item title in list order.
func (l *ItemList) Titles() []string {
	titles := make([]string, len(l.items))
	for i, item := range l.items {
		titles[i] = item.Title
	}
	return titles
}

// Fetch attaches the requested auxiliary data to every item passing
// params.Filter. Each kind of data is fetched at most once per item.
func (l *ItemList) Fetch(ctx context.Context, params FetchParams) error {
	selected := l.items
	if params.Filter != nil {
		selected = make([]*domain.Item, 0, len(l.items))
		for _, item := range l.items {
			if params.Filter(item) {
				selected = append(selected, item)
			}
		}
	}

	if params.Comments > 0 {
		pending := pendingBy(selected, func(i *domain.Item) bool { return !i.CommentsFetched })
		if err := l.fetchKind(ctx, pending, fetch.Comments, params.Comments); err != nil {
			return err
		}
	}
	if params.CustomFields {
		pending := pendingBy(selected, func(i *domain.Item) bool { return !i.ProjectFieldsFetched })
		if err := l.fetchKind(ctx, pending, fetch.CustomFields, fetch.DefaultPageSize); err != nil {
			return err
		}
		pending = pendingBy(selected, func(i *domain.Item) bool { return !i.IssueFieldsFetched })
		if err := l.fetchKind(ctx, pending, fetch.IssueFields, fetch.DefaultPageSize); err != nil {
			return err
		}
	}
	return nil
}

// ApplyView narrows the list to the items matching q, preserving order. Custom
// fields are fetched first when q references any.
func (l *ItemList) ApplyView(ctx context.Context, q *query.Query) error {
	if q == nil || q.Empty() {
		return nil
	}
	if len(q.CustomKeys()) > 0 {
		if err := l.Fetch(ctx, FetchParams{CustomFields: true}); err != nil {
			return fmt.Errorf("failed to fetch custom fields for view: %w", err)
		}
	}

	before := len(l.items)
	matched := query.Apply(l.items, q)
	l.items = matched
	l.index = make(map[domain.ItemKey]*domain.Item, len(matched))
	for _, item := range matched {
		l.index[item.Key] = item
	}
	l.log.Debug("Applied view", "query", q.Raw, "before", before, "after", len(matched))
	return nil
}

// Updates fetches the latest comments and resolves the update chain for every
// item. A FailStrategyError aborts the whole call.
func (l *ItemList) Updates(ctx context.Context, engine *update.Engine, n, pageSize int, strategies []update.Strategy) (map[domain.ItemKey]update.Resolution, error) {
	if pageSize < n {
		pageSize = n
	}
	if err := l.Fetch(ctx, FetchParams{Comments: pageSize}); err != nil {
		return nil, err
	}
	out := make(map[domain.ItemKey]update.Resolution, len(l.items))
	for _, item := range l.items {
		res, err := engine.ForItem(item, n, strategies)
		if err != nil {
			return nil, err
		}
		out[item.Key] = res
	}
	return out, nil
}

// SortBy orders the list by the stringified field. Numeric values compare
// numerically, everything else lexically; items without a value sort last in
// either direction. The sort is stable.
func (l *ItemList) SortBy(field string, descending bool) {
	sort.SliceStable(l.items, func(a, b int) bool {
		va, vb := l.items[a].Field(field), l.items[b].Field(field)
		switch {
		case va == "":
			return false
		case vb == "":
			return true
		}
		if descending {
			return less(vb, va)
		}
		return less(va, vb)
	})
}

// Group is one bucket produced by GroupBy.
type Group struct {
	Key   string
	Items []*domain.Item
}

// GroupBy buckets items by the field's values. Choice fields follow their
// declared option order; other values appear in first-seen order. Items with a
// multi-choice value appear in each of their buckets. Items with no value go to
// a trailing NoValueKey group.
func (l *ItemList) GroupBy(field string) []Group {
	buckets := make(map[string][]*domain.Item)
	var order []string
	var options []string
	add := func(key string, item *domain.Item) {
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], item)
	}

	for _, item := range l.items {
		values := groupValues(item, field)
		if fv := item.CustomField(field); len(fv.Options) > 0 && options == nil {
			options = fv.Options
		}
		if len(values) == 0 {
			add(NoValueKey, item)
			continue
		}
		for _, v := range values {
			add(v, item)
		}
	}

	groups := make([]Group, 0, len(buckets))
	emitted := make(map[string]bool, len(buckets))
	emit := func(key string) {
		if items, ok := buckets[key]; ok && !emitted[key] {
			emitted[key] = true
			groups = append(groups, Group{Key: key, Items: items})
		}
	}
	for _, opt := range options {
		emit(opt)
	}
	for _, key := range order {
		if key != NoValueKey {
			emit(key)
		}
	}
	emit(NoValueKey)
	return groups
}

// Fields lists the custom field definitions observed on the items, in
// first-seen order.
func (l *ItemList) Fields() []*domain.FieldDef {
	seen := make(map[string]*domain.FieldDef)
	var defs []*domain.FieldDef
	for _, item := range l.items {
		keys := make([]string, 0, len(item.ProjectFields))
		for k := range item.ProjectFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fv := item.ProjectFields[k]
			if _, ok := seen[k]; ok {
				continue
			}
			def := &domain.FieldDef{Name: fv.Name, Type: fv.Kind.String(), Options: fv.Options}
			seen[k] = def
			defs = append(defs, def)
		}
	}
	return defs
}

// SelectGroupField picks the default grouping field:
// 1. a SINGLE_SELECT field named "Status" (case-insensitive)
// 2. else the only SINGLE_SELECT field
// 3. else every SINGLE_SELECT field is returned as a candidate
func SelectGroupField(fields []*domain.FieldDef) (selected *domain.FieldDef, candidates []*domain.FieldDef, err error) {
	var singleSelect []*domain.FieldDef
	for _, field := range fields {
		if field.Type == domain.FieldTypeSingleSelect {
			singleSelect = append(singleSelect, field)
		}
	}
	if len(singleSelect) == 0 {
		return nil, nil, ErrNoGroupField
	}
	for _, field := range singleSelect {
		if strings.EqualFold(field.Name, "Status") {
			return field, nil, nil
		}
	}
	if len(singleSelect) == 1 {
		return singleSelect[0], nil, nil
	}
	return nil, singleSelect, nil
}

func (l *ItemList) fetchKind(ctx context.Context, pending map[domain.ItemKind][]domain.ItemKey, kind fetch.Kind, pageSize int) error {
	for _, subject := range []domain.ItemKind{domain.KindIssue, domain.KindDiscussion} {
		keys := pending[subject]
		if len(keys) == 0 {
			continue
		}
		if subject == domain.KindDiscussion && kind != fetch.Comments {
			// Discussions carry no project or native fields
			for _, k := range keys {
				markFetched(l.index[k], kind)
			}
			continue
		}

		results, err := l.fetcher.Fetch(ctx, keys, fetch.Request{Kind: kind, Subject: subject, PageSize: pageSize})
		if err != nil {
			return fmt.Errorf("failed to fetch %s for %d %ss: %w", kind, len(keys), subject, err)
		}
		for key, res := range results {
			item, ok := l.index[key]
			if !ok {
				return &RaceConditionError{Key: key, Kind: kind}
			}
			attach(item, kind, res)
		}
		missing := 0
		for _, k := range keys {
			item := l.index[k]
			if _, ok := results[k]; !ok {
				missing++
			}
			markFetched(item, kind)
		}
		if missing > 0 {
			l.log.Warn("Items missing from fetch response", "kind", kind.String(), "missing", missing, "requested", len(keys))
		}
	}
	return nil
}

func pendingBy(items []*domain.Item, need func(*domain.Item) bool) map[domain.ItemKind][]domain.ItemKey {
	out := make(map[domain.ItemKind][]domain.ItemKey)
	for _, item := range items {
		if need(item) {
			kind := item.Kind
			if kind == "" {
				kind = domain.KindIssue
			}
			out[kind] = append(out[kind], item.Key)
		}
	}
	return out
}

func attach(item *domain.Item, kind fetch.Kind, res fetch.Result) {
	switch kind {
	case fetch.Comments:
		item.Comments = res.Comments
	case fetch.CustomFields:
		item.ProjectFields = res.Fields
	case fetch.IssueFields:
		item.IssueFields = res.Fields
	}
}

func markFetched(item *domain.Item, kind fetch.Kind) {
	switch kind {
	case fetch.Comments:
		item.CommentsFetched = true
	case fetch.CustomFields:
		item.ProjectFieldsFetched = true
	case fetch.IssueFields:
		item.IssueFieldsFetched = true
	}
}

func groupValues(item *domain.Item, field string) []string {
	switch domain.NormalizeFieldName(field) {
	case "label", "labels":
		return item.Labels
	case "assignee", "assignees":
		return item.Assignees
	}
	if fv := item.CustomField(field); !fv.IsEmpty() {
		return fv.Values()
	}
	if v := item.Field(field); v != "" {
		return []string{v}
	}
	return nil
}

func less(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}
