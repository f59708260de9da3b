package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNoResponse = errors.New("no response")

// Response is the outcome of one call.
type Response struct {
	Method   string
	URL      string
	Status   int
	Body     []byte
	Duration time.Duration
	Err      error
}

// JSON decodes the body into v. Transport failures surface here too, so a
// single error check covers "no response" and "unparseable response".
func (r *Response) JSON(v any) error {
	if r == nil {
		return ErrNoResponse
	}
	if r.Err != nil {
		return fmt.Errorf("%s %s: %w", r.Method, r.URL, r.Err)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%s %s: decode body: %w", r.Method, r.URL, err)
	}
	return nil
}

// OK reports whether the call completed with the wanted status.
func (r *Response) OK(status int) bool {
	return r != nil && r.Err == nil && r.Status == status
}
