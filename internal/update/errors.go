package update

import "fmt"

// FailStrategyError is raised by a fail strategy when no update was found.
// It is meant to abort report generation.
type FailStrategyError struct {
	Title string
	URL   string
}

func (e *FailStrategyError) Error() string {
	return fmt.Sprintf("no update found for %q (%s)", e.Title, e.URL)
}
