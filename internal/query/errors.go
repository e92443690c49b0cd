package query

import "fmt"

// ParseError reports a malformed filter token.
type ParseError struct {
	Token  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid filter token %q: %s: %v", e.Token, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid filter token %q: %s", e.Token, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
