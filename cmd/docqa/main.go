// Package main provides the docqa CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/docqa/cli"
	"github.com/richinex/docqa/config"
	"github.com/richinex/docqa/tools"
)

var (
	// Global flags
	provider   string
	configPath string
	workspace  string
	verbose    bool
	debug      bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "Answer questions about a documentation tree",
		Long: `docqa answers natural-language questions about the documents under a
workspace directory. It plans searches with a language model, runs read-only
shell commands (find, grep, cat, ...) confined to the workspace, and
synthesizes an answer from what it read.

Every command is validated against an allowlist policy and recorded in an
audit trail before it runs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "",
		"LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Documentation root (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show commands, output and session stats")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(askCmd(ctx))
	rootCmd.AddCommand(chatCmd(ctx))
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(auditCmd(ctx))
	rootCmd.AddCommand(historyCmd(ctx))

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, tools.ErrPolicyDenied) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:   provider,
		ConfigPath: configPath,
		Workspace:  workspace,
		Verbose:    verbose,
		Debug:      debug,
	}
}

func askCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(ctx, strings.Join(args, " "), options())
		},
	}
}

func chatCmd(ctx context.Context) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question session",
		Long: `Start an interactive session. Documents read and searches run are cached
for the session, so follow-up questions are answered faster.

Commands inside the session: help, clear, stats, exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options()
			opts.SessionID = sessionID
			return cli.Chat(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to resume (question history is kept in the audit database)")

	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [command]",
		Short: "Check a shell command against the security policy without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Validate(strings.Join(args, " "), options())
		},
	}
}

func auditCmd(ctx context.Context) *cobra.Command {
	var sessionID string
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent command audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Audit(ctx, sessionID, limit, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only show records for this session ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")

	return cmd
}

func historyCmd(ctx context.Context) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List sessions, or show the questions asked in one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.History(ctx, sessionID, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to show")

	return cmd
}
