package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"NewsletterChat/internal/console"
	"NewsletterChat/internal/tui"
)

func newChatCmd(o *options) *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the newsletter assistant",
		Long: `Starts an interactive chat. The last session is restored when it still
exists on the backend; otherwise a new one is created.

Use --tui for the full-screen interface with a session sidebar.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Use the full-screen terminal interface")

	cmd.RunE = withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
		// a failed start leaves the UI usable; the user can retry with a new session
		if err := a.controller.Initialize(ctx); err != nil {
			a.logger.Error("failed to initialize session", "error", err)
			if !useTUI {
				fmt.Fprintf(out(cmd), "Error: %v\n", err)
			}
		}

		if useTUI {
			return tui.Run(ctx, tui.New(ctx, a.controller, a.probe, a.renderer, a.logger))
		}
		c := console.New(a.controller, a.probe, a.renderer, a.logger, cmd.InOrStdin(), out(cmd), a.cfg.BackendURL)
		return c.Run(ctx)
	})
	return cmd
}
