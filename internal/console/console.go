// Package console is the line-oriented chat loop with slash commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"NewsletterChat/internal/chat"
	"NewsletterChat/internal/health"
	"NewsletterChat/internal/render"
	"NewsletterChat/internal/session"
)

// Chat is the controller surface the console drives
type Chat interface {
	SessionID() string
	Messages() []session.Message
	CreateSession(ctx context.Context) error
	SwitchSession(ctx context.Context, id string) error
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	SendMessage(ctx context.Context, text string) (session.Message, error)
	ListSessions(ctx context.Context) ([]session.Summary, error)
	Err() *chat.ErrorState
	DismissError()
}

// Prober runs a health check
type Prober interface {
	Check(ctx context.Context) health.Report
}

// Console reads user input line by line and prints the conversation
type Console struct {
	chat     Chat
	probe    Prober
	renderer *render.Terminal
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	backend  string
}

// New creates a Console. backendURL is only shown in the banner.
func New(c Chat, probe Prober, renderer *render.Terminal, logger *slog.Logger, in io.Reader, out io.Writer, backendURL string) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		chat:     c,
		probe:    probe,
		renderer: renderer,
		logger:   logger,
		in:       in,
		out:      out,
		backend:  backendURL,
	}
}

// Run loops until /quit, end of input or ctx is cancelled
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "=== Newsletter Builder ===")
	fmt.Fprintf(c.out, "Session: %s\n", c.chat.SessionID())
	if c.backend != "" {
		fmt.Fprintf(c.out, "Backend: %s\n", c.backend)
	}
	fmt.Fprintln(c.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(c.out)

	if msgs := c.chat.Messages(); len(msgs) > 0 {
		c.printHistory(msgs)
	}

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprint(c.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := c.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
				c.logger.Error("command error", "command", strings.Fields(input)[0], "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		reply, err := c.chat.SendMessage(ctx, input)
		if err != nil {
			// the synthetic error reply is already in the history
			msgs := c.chat.Messages()
			if n := len(msgs); n > 0 && msgs[n-1].IsError() {
				fmt.Fprintln(c.out, c.renderer.Message(msgs[n-1]))
				fmt.Fprintln(c.out)
			} else {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			continue
		}

		fmt.Fprintln(c.out, c.renderer.Message(reply))
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(c.out, "Goodbye!")
	return nil
}

func (c *Console) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if err := c.chat.CreateSession(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "Started new session:", c.chat.SessionID())
		return false, nil

	case "/sessions":
		list, err := c.chat.ListSessions(ctx)
		if err != nil {
			return false, err
		}
		c.printSessions(list)
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, errors.New("usage: /switch <session-id>")
		}
		if err := c.chat.SwitchSession(ctx, parts[1]); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Switched to session %s\n\n", c.chat.SessionID())
		c.printHistory(c.chat.Messages())
		return false, nil

	case "/rename":
		if len(parts) < 3 {
			return false, errors.New("usage: /rename <session-id> <title>")
		}
		title := strings.Join(parts[2:], " ")
		if err := c.chat.RenameSession(ctx, parts[1], title); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Renamed session %s to %q\n", parts[1], title)
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, errors.New("usage: /delete <session-id>")
		}
		wasCurrent := parts[1] == c.chat.SessionID()
		if err := c.chat.DeleteSession(ctx, parts[1]); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "Deleted session %s\n", parts[1])
		if wasCurrent {
			fmt.Fprintln(c.out, "Started new session:", c.chat.SessionID())
		}
		return false, nil

	case "/health":
		if c.probe == nil {
			return false, errors.New("health check is not available")
		}
		fmt.Fprint(c.out, health.Format(c.probe.Check(ctx)))
		return false, nil

	case "/history":
		msgs := c.chat.Messages()
		if len(msgs) == 0 {
			fmt.Fprintln(c.out, "No messages yet.")
			return false, nil
		}
		c.printHistory(msgs)
		return false, nil

	case "/dismiss":
		if e := c.chat.Err(); e != nil {
			c.chat.DismissError()
			fmt.Fprintln(c.out, "Dismissed:", e.Message)
		}
		return false, nil

	case "/help":
		fmt.Fprintln(c.out, "Available commands:")
		fmt.Fprintln(c.out, "  /quit, /exit                 - Exit")
		fmt.Fprintln(c.out, "  /new-session                 - Start a new session")
		fmt.Fprintln(c.out, "  /sessions                    - List previous sessions")
		fmt.Fprintln(c.out, "  /switch <id>                 - Continue a previous session")
		fmt.Fprintln(c.out, "  /rename <id> <title>         - Rename a session")
		fmt.Fprintln(c.out, "  /delete <id>                 - Delete a session")
		fmt.Fprintln(c.out, "  /health                      - Check backend status")
		fmt.Fprintln(c.out, "  /history                     - Show the current conversation")
		fmt.Fprintln(c.out, "  /dismiss                     - Clear the last error")
		fmt.Fprintln(c.out, "  /help                        - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", parts[0])
	}
}

func (c *Console) printSessions(list []session.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No previous sessions.")
		return
	}
	current := c.chat.SessionID()
	fmt.Fprintln(c.out, "\nPrevious sessions:")
	for i, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %d. %s  %s", marker, i+1, s.ID, s.Label())
		if d := session.FormatDate(s.CreatedAt); d != "" {
			fmt.Fprintf(c.out, "  (%s)", d)
		}
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printHistory(msgs []session.Message) {
	for _, m := range msgs {
		fmt.Fprintln(c.out, c.renderer.Message(m))
		fmt.Fprintln(c.out)
	}
}
