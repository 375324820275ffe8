// Package channel holds the outbound senders and the inbound mention/search
// fetch used by the pipeline. The core only depends on the Sender capability;
// the concrete X and Moltbook clients are constructed from config without the
// core knowing credential shape.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sender is the outbound capability one channel provides. Receipts are the
// raw API response, stored opaquely on the executed job.
type Sender interface {
	Post(ctx context.Context, text string) (json.RawMessage, error)
	Reply(ctx context.Context, inReplyTo, text string) (json.RawMessage, error)
}

// APIError is a non-2xx response from a channel API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying: rate limiting and
// server-side errors are; other 4xx responses are permanent.
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient classifies an error from a channel call. Network-level failures
// (no response at all) count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
