package gh

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/h0rv/rollup/internal/fetch"
)

// throttleTransport turns rate-limit responses into *fetch.ThrottledError so
// the orchestrator can tell them apart from other failures.
type throttleTransport struct {
	base http.RoundTripper
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if te := throttleFromResponse(resp); te != nil {
		resp.Body.Close()
		return nil, te
	}
	return resp, nil
}

// throttleFromResponse detects primary (429, or 403 with no remaining budget)
// and secondary (403 mentioning a rate limit or carrying Retry-After) limits.
func throttleFromResponse(resp *http.Response) *fetch.ThrottledError {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &fetch.ThrottledError{
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header),
			Message:    "too many requests",
		}
	case http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))

		wait := retryAfter(resp.Header)
		if wait > 0 || resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			strings.Contains(strings.ToLower(string(body)), "rate limit") {
			return &fetch.ThrottledError{
				StatusCode: resp.StatusCode,
				RetryAfter: wait,
				Message:    firstLine(string(body)),
			}
		}
	}
	return nil
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
