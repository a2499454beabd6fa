package gateway

import (
	"errors"
	"fmt"
)

// ErrLoginRequired maps a rejected or missing credential. It is actionable
// for the UI and must never be silently retried.
var ErrLoginRequired = errors.New("please login to manage your cart")

// RequestError is a failed cart operation. Message carries the server's
// own message when it supplied one, else a generic per-operation text.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}
