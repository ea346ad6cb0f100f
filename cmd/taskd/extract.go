package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
)

func newExtractCmd() *cobra.Command {
	var (
		apply        bool
		systemPrompt string
	)
	cmd := &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Extract tasks from a file or stdin",
		Long: `Extract tasks from a file or stdin and print the triaged candidates as JSON.
Nothing is saved unless --apply is given.

Examples:
  # Preview tasks in a file
  taskd extract standup.md

  # Save them: confident tasks are created, the rest are queued
  cat standup.md | taskd extract --apply -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orch.Extract(cmd.Context(), extraction.Request{
				SourceText:           text,
				SystemPromptTemplate: systemPrompt,
			})
			if err != nil {
				return userError(err)
			}
			if apply {
				res, err = a.orch.Apply(cmd.Context(), res, extraction.Source{Origin: tasks.OriginManual})
				if err != nil {
					return fmt.Errorf("failed to save tasks: %w", err)
				}
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "save created tasks and queue the rest for approval")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "override the configured system prompt template")
	return cmd
}

func newTestConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the configured provider answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			client := a.orch.Client()
			if err := client.TestConnection(cmd.Context()); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s provider OK (%s)\n", client.Kind(), cfg.Provider.Model)
			return nil
		},
	}
}

// readInput reads the named file, or stdin for "-" or no argument.
func readInput(stdin io.Reader, args []string) (string, error) {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if strings.TrimSpace(string(content)) == "" {
		return "", errors.New("no content to extract from")
	}
	return string(content), nil
}

// userError keeps the cause for errors.Is while printing the friendly text.
func userError(err error) error {
	return fmt.Errorf("%s: %w", extraction.UserMessage(err), err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
