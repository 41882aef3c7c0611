package session

import "fmt"

// State is the conversation currently on screen
type State struct {
	SessionID string
	Messages  []Message
}

// Action is a change to State. Every action names the session it was
// produced for; Reduce drops actions that target a session other than the
// current one.
type Action interface {
	target() string
}

// Loaded replaces the current session and its history
type Loaded struct {
	SessionID string
	Messages  []Message
}

// Reset switches to a freshly created, empty session
type Reset struct {
	SessionID string
}

// UserSent appends the optimistic user entry
type UserSent struct {
	SessionID string
	Message   Message
}

// ReplyReceived appends the backend's reply
type ReplyReceived struct {
	SessionID string
	Message   Message
}

// ReplyFailed appends a synthetic assistant message describing the failure
type ReplyFailed struct {
	SessionID string
	Err       error
	Timestamp string
}

func (a Loaded) target() string        { return a.SessionID }
func (a Reset) target() string         { return a.SessionID }
func (a UserSent) target() string      { return a.SessionID }
func (a ReplyReceived) target() string { return a.SessionID }
func (a ReplyFailed) target() string   { return a.SessionID }

// Reduce applies a to s and returns the new state. s is never modified.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Loaded:
		msgs := make([]Message, len(a.Messages))
		copy(msgs, a.Messages)
		return State{SessionID: a.SessionID, Messages: msgs}
	case Reset:
		return State{SessionID: a.SessionID, Messages: []Message{}}
	}

	if a.target() != s.SessionID {
		return s
	}

	switch a := a.(type) {
	case UserSent:
		return appendMessage(s, a.Message)
	case ReplyReceived:
		msg := a.Message
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		return appendMessage(s, msg)
	case ReplyFailed:
		return appendMessage(s, Message{
			Speaker:   SpeakerAssistant,
			Content:   fmt.Sprintf("Sorry, the message could not be delivered: %v", a.Err),
			Timestamp: a.Timestamp,
			Metadata:  map[string]any{MetadataError: true},
		})
	}
	return s
}

func appendMessage(s State, msg Message) State {
	msgs := make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	return State{SessionID: s.SessionID, Messages: append(msgs, msg)}
}
