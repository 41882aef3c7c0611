package chat

import (
	"errors"
	"time"
)

var (
	// ErrEmptyMessage is returned for blank or whitespace-only input
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrEmptyTitle is returned when renaming a session to a blank title
	ErrEmptyTitle = errors.New("session title is empty")
	// ErrNoSession is returned when an operation needs a session but none is active
	ErrNoSession = errors.New("no active session")
	// ErrStale is returned when a session load finished after a newer one started
	ErrStale = errors.New("session load superseded by a newer request")
)

// ErrorState is the user-visible, dismissible error banner
type ErrorState struct {
	Message string
	At      time.Time
}
