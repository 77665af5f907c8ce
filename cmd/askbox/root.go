package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "askbox",
		Short: "Ask an AI endpoint a question and stream the answer",
		Long: `askbox sends a question to an OpenAI-compatible chat endpoint and renders
the streamed answer as it arrives. When a display language is configured
the answer is translated after the stream ends and replayed.

Configuration is read from askbox.yaml (or --config / ASKBOX_CONFIG) and
ASKBOX_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to the config file")

	cmd.AddCommand(
		newAskCmd(opts),
		newHistoryCmd(opts),
		newEncryptCmd(),
	)
	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("ASKBOX_CONFIG"); p != "" {
		return p
	}
	return "askbox.yaml"
}
