package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"NewsletterChat/internal/cache"
	"NewsletterChat/internal/session"
)

const (
	ModeBlocks  = "blocks"
	ModeGlamour = "glamour"
)

// ValidMode reports whether mode names a supported render mode
func ValidMode(mode string) bool {
	return mode == ModeBlocks || mode == ModeGlamour
}

var (
	headingStyles = map[int]lipgloss.Style{
		1: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		2: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4FC3F7")),
		3: lipgloss.NewStyle().Bold(true),
	}
	speakerStyles = map[session.Speaker]lipgloss.Style{
		session.SpeakerUser:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4FC3F7")),
		session.SpeakerAssistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		session.SpeakerSystem:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9E9E9E")),
	}
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF5350"))
	timestampStyle = lipgloss.NewStyle().Faint(true)
)

// Terminal draws messages for a character terminal
type Terminal struct {
	mode  string
	width int
	cache *cache.Renders

	glamourOnce sync.Once
	glamour     *glamour.TermRenderer
	glamourErr  error
}

// NewTerminal creates a terminal renderer. An unknown mode falls back to
// blocks; width <= 0 disables wrapping in glamour mode.
func NewTerminal(mode string, width int, renders *cache.Renders) *Terminal {
	if !ValidMode(mode) {
		mode = ModeBlocks
	}
	if renders == nil {
		renders = cache.NewRenders(0)
	}
	return &Terminal{mode: mode, width: width, cache: renders}
}

// Mode returns the active render mode
func (t *Terminal) Mode() string {
	return t.mode
}

// Message renders a message with a speaker/time header. User content is
// shown verbatim; everything else goes through the content renderer.
func (t *Terminal) Message(msg session.Message) string {
	var b strings.Builder
	b.WriteString(speakerLabel(msg.Speaker))
	if ts, ok := msg.Time(); ok {
		b.WriteString(" ")
		b.WriteString(timestampStyle.Render(ts.Local().Format("3:04:05 PM")))
	}
	b.WriteString("\n")

	switch {
	case msg.IsError():
		b.WriteString(errorStyle.Render(msg.Content))
	case msg.Speaker == session.SpeakerUser:
		b.WriteString(msg.Content)
	default:
		b.WriteString(t.Content(msg.Content))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Content renders reply text according to the configured mode. Glamour
// failures fall back to block rendering.
func (t *Terminal) Content(content string) string {
	key := cache.GenerateCacheKey(t.mode, t.width, content)
	out, err := t.cache.GetOrRender(key, func() (string, error) {
		if t.mode == ModeGlamour {
			return t.renderGlamour(content)
		}
		return Blocks(Format(content)), nil
	})
	if err != nil {
		return Blocks(Format(content))
	}
	return out
}

func (t *Terminal) renderGlamour(content string) (string, error) {
	t.glamourOnce.Do(func() {
		opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
		if t.width > 0 {
			opts = append(opts, glamour.WithWordWrap(t.width))
		}
		t.glamour, t.glamourErr = glamour.NewTermRenderer(opts...)
	})
	if t.glamourErr != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", t.glamourErr)
	}
	out, err := t.glamour.Render(content)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// Blocks draws formatted blocks as terminal lines
func Blocks(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		switch blk.Kind {
		case KindHeading:
			style, ok := headingStyles[blk.Level]
			if !ok {
				style = headingStyles[3]
			}
			lines = append(lines, style.Render(blk.Text))
		case KindList:
			for _, item := range blk.Items {
				lines = append(lines, "  • "+item)
			}
		case KindBreak:
			lines = append(lines, "")
		default:
			lines = append(lines, blk.Text)
		}
	}
	return strings.Join(lines, "\n")
}

func speakerLabel(s session.Speaker) string {
	style, ok := speakerStyles[s]
	if !ok {
		style = speakerStyles[session.SpeakerSystem]
	}
	name := string(s)
	if name == "" {
		name = "unknown"
	}
	return style.Render(name)
}
