// Taskd extracts action items from free text with an LLM and queues the
// uncertain ones for review.
//
// Usage:
//
//	# Run the HTTP API and note sweeper
//	taskd serve
//
//	# Preview tasks in a file, or persist them
//	taskd extract notes.md
//	cat notes.md | taskd extract --apply -
//
//	# Check the configured provider
//	taskd test-connection
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskd",
		Short: "AI task extraction and approval queue",
		Long: `taskd turns meeting notes and other free text into tasks using a local
model (Ollama), OpenAI, or an OpenAI-compatible gateway. Confident tasks are
created directly; the rest wait in an approval queue.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/taskd/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newTestConnectionCmd())
	root.AddCommand(newVersionCmd())
	return root
}
