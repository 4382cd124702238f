package httpclient

import "fmt"

// UpstreamError is returned when a provider responds with a non-2xx
// status. The raw body is kept so adapters can parse provider-specific
// error shapes.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}
