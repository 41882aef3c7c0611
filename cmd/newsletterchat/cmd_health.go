package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"NewsletterChat/internal/health"
)

func newHealthCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend and its upstream model provider",
		Args:  cobra.NoArgs,
		RunE: withApp(o, func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			report := a.probe.Check(ctx)
			fmt.Fprint(out(cmd), health.Format(report))
			if !report.Healthy() {
				return errors.New("backend is not healthy")
			}
			return nil
		}),
	}
}
