// Package domain defines the normalized types shared by the query, update and fetch layers.
// These types represent items, comments and field values independent of the GitHub GraphQL API structure.
package domain

// Project identifies a GitHub Project v2 board whose fields are attached to items.
type Project struct {
	Owner  string // Owner login (organization or user)
	Number int    // Project number within the owner's namespace
	Title  string // Project title
}

// FieldDef describes a custom field and, for choice fields, its allowed options.
type FieldDef struct {
	Name    string   // Field name (e.g., "Status")
	Type    string   // Field type (e.g., "SINGLE_SELECT", "TEXT", etc.)
	Options []string // Allowed option names for choice fields, in configured order
}

// View is a saved project view and its filter query.
type View struct {
	Project Project
	Number  int    // View number within the project
	Name    string // View name
	Filter  string // Raw filter query (e.g., "is:open label:bug status:Todo")
}

// ItemKind distinguishes the two item types the tracker exposes.
type ItemKind string

const (
	KindIssue      ItemKind = "issue"
	KindDiscussion ItemKind = "discussion"
)

// FieldType constants for GitHub field data types.
const (
	FieldTypeSingleSelect = "SINGLE_SELECT"
	FieldTypeMultiSelect  = "MULTI_SELECT"
	FieldTypeText         = "TEXT"
	FieldTypeNumber       = "NUMBER"
	FieldTypeDate         = "DATE"
	FieldTypeIteration    = "ITERATION"
)

// Item states as normalized from the API (which returns OPEN/CLOSED).
const (
	StateOpen   = "open"
	StateClosed = "closed"
)
