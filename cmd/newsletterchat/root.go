package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "newsletterchat",
		Short: "Terminal client for the Newsletter Builder assistant",
		Long: `newsletterchat talks to a Newsletter Builder backend over HTTP.

Run without arguments to start a chat in the current session. The session
you were last working in is restored automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Path to config file (default ~/.config/newsletterchat/config.toml)")
	pf.StringVar(&o.backendURL, "backend-url", "", "Backend base URL (overrides config)")
	pf.StringVar(&o.sessionID, "session-id", "", "Load existing session by ID")
	pf.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&o.ephemeral, "ephemeral", false, "Do not remember the current session between runs")
	pf.BoolVar(&o.noTelemetry, "no-telemetry", false, "Disable trace and metric export")

	chatCmd := newChatCmd(o)
	rootCmd.RunE = chatCmd.RunE
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())

	rootCmd.AddCommand(chatCmd, newSessionsCmd(o), newHealthCmd(o))
	return rootCmd
}
