package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a backend failure
type Kind string

const (
	KindTransport Kind = "transport"
	KindNotFound  Kind = "not_found"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
)

// Error is returned by every Client operation
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindNotFound:
		if e.Detail != "" {
			return fmt.Sprintf("%s: not found: %s", e.Op, e.Detail)
		}
		return fmt.Sprintf("%s: not found", e.Op)
	case KindStatus:
		msg := fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return msg
	case KindMalformed:
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatusCode returns the response status, or 0 for transport failures
func (e *Error) HTTPStatusCode() int {
	return e.StatusCode
}

func kindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsMalformed reports whether the backend answered with a body that could not be decoded
func IsMalformed(err error) bool {
	return kindOf(err) == KindMalformed
}

// IsTransport reports whether the backend could not be reached
func IsTransport(err error) bool {
	return kindOf(err) == KindTransport
}
