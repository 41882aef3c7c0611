package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"NewsletterChat/internal/session"
)

func newSessionsCmd(o *options) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage newsletter sessions",
		Long: `List and manage sessions stored on the backend.

Subcommands:
  list     - List all sessions, newest first
  show     - Print a session's conversation
  rename   - Set a session's title
  delete   - Delete a session
  new      - Start a new session and make it current`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			list, err := a.controller.ListSessions(ctx)
			if err != nil {
				return err
			}
			current, _ := a.store.CurrentSessionID(ctx)
			printSessions(cmd, list, current)
			return nil
		}),
	}
	sessionsCmd.RunE = listCmd.RunE

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			sess, err := a.client.FetchSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			w := out(cmd)
			fmt.Fprintf(w, "Session %s", sess.ID)
			if sess.Title != "" {
				fmt.Fprintf(w, " - %s", sess.Title)
			}
			if d := session.FormatDate(sess.CreatedAt); d != "" {
				fmt.Fprintf(w, " (%s)", d)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w)
			if len(sess.Messages) == 0 {
				fmt.Fprintln(w, "No messages yet.")
				return nil
			}
			for _, m := range sess.Messages {
				fmt.Fprintln(w, a.renderer.Message(m))
				fmt.Fprintln(w)
			}
			return nil
		}),
	}

	renameCmd := &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Set a session's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			title := strings.Join(args[1:], " ")
			if err := a.controller.RenameSession(ctx, args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Renamed session %s to %q\n", args[0], title)
			return nil
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if err := a.controller.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			// forget it so the next chat does not try to restore it
			if current, _ := a.store.CurrentSessionID(ctx); current == args[0] {
				if err := a.store.SetCurrentSessionID(ctx, ""); err != nil {
					a.logger.Warn("failed to clear current session", "error", err)
				}
			}
			fmt.Fprintf(out(cmd), "Deleted session %s\n", args[0])
			return nil
		}),
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new session and make it current",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			if err := a.controller.CreateSession(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), a.controller.SessionID())
			return nil
		}),
	}

	sessionsCmd.AddCommand(listCmd, showCmd, renameCmd, deleteCmd, newCmd)
	return sessionsCmd
}

func printSessions(cmd *cobra.Command, list []session.Summary, current string) {
	w := out(cmd)
	if len(list) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}
	for _, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-36s  %-20s  %s\n", marker, s.ID, session.FormatDate(s.CreatedAt), s.Label())
	}
}
