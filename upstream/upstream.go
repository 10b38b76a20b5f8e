// Package upstream holds the error shape shared by the HTTP backends.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody bounds how much of an error response is kept for logs and messages.
const maxBody = 2048

// APIError is a non-2xx answer from a backend.
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s error: %d %s", e.Service, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s error: %d %s", e.Service, e.Status, e.Body)
}

// Check returns nil for 2xx responses and an *APIError carrying the
// (truncated) body otherwise. The body is consumed in the error case.
func Check(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &APIError{
		Service: service,
		Status:  resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}
