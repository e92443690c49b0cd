// Package tui provides Bubble Tea models for browsing a report interactively.
package tui

// FieldSelectedMsg is emitted when the user selects a grouping field.
type FieldSelectedMsg struct {
	Field string
}

// ErrorMsg is emitted when an error occurs.
type ErrorMsg struct {
	Err error
}

// QuitMsg is emitted when the user requests to quit.
type QuitMsg struct{}
