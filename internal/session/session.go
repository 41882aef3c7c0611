package session

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Speaker is the role that produced a message
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// Valid reports whether s is one of the known speaker roles
func (s Speaker) Valid() bool {
	switch s {
	case SpeakerUser, SpeakerAssistant, SpeakerSystem:
		return true
	}
	return false
}

const (
	previewLimit     = 30
	noPreview        = "No preview available"
	summaryDateStyle = "Jan 2, 2006 3:04 PM"
)

// Message represents a single turn in a conversation
type Message struct {
	Speaker   Speaker        `json:"speaker"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Time parses the message timestamp
func (m Message) Time() (time.Time, bool) {
	return ParseTimestamp(m.Timestamp)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. The backend emits naive
// local timestamps without an offset, so those are accepted too.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsError reports whether the message is a locally synthesized failure notice
func (m Message) IsError() bool {
	v, ok := m.Metadata[MetadataError].(bool)
	return ok && v
}

// MetadataError marks synthetic error messages
const MetadataError = "error"

// Session represents a chat session
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
}

// Summary is the sidebar view of a session
type Summary struct {
	ID        string
	CreatedAt time.Time
	Title     string
	Preview   string
}

// Label is what a session list shows for the entry: the title when set,
// otherwise the preview.
func (s Summary) Label() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	if s.Preview != "" {
		return s.Preview
	}
	return noPreview
}

// Preview returns the first user message truncated for display
func Preview(messages []Message) string {
	for _, msg := range messages {
		if msg.Speaker != SpeakerUser {
			continue
		}
		return Truncate(msg.Content, previewLimit)
	}
	return noPreview
}

// Truncate cuts s to limit runes and appends an ellipsis when it had to cut
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// FormatDate renders a session creation time for the session list
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(summaryDateStyle)
}
