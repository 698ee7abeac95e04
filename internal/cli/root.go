// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/relaychat/internal/stream"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions carries the persistent flags and the injection points used by
// tests.
type rootOptions struct {
	configPath  string
	ephemeral   bool
	metricsAddr string
	logLevel    string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// provider replaces the configured completion client when set.
	provider stream.Provider
}

// NewRootCmd builds the relaychat command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "relaychat",
		Short: "Multi-conversation chat client for OpenAI-compatible streaming APIs",
		Long: `relaychat keeps a list of conversations and streams replies from an
OpenAI-compatible chat completion API (SiliconFlow by default).

Conversations are stored locally (file, sqlite, redis or in memory) and each
one remembers its own model. Only one reply streams at a time; press Ctrl+C
to stop it and keep the partial text.

Quick Start:
  relaychat chat                       # interactive session
  relaychat ask "what is a goroutine"  # one question, streamed to stdout
  relaychat list                       # conversations, * marks the active one
  relaychat export 2 --format md       # write a conversation to a file`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.in = cmd.InOrStdin()
			opts.out = cmd.OutOrStdout()
			opts.errOut = cmd.ErrOrStderr()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, chatOptions{})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.relaychat/config.toml)")
	flags.BoolVar(&opts.ephemeral, "ephemeral", false, "keep conversations in memory only for this run")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newSelectCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
		newExportCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
		newAuthCmd(opts),
	)
	return root
}

// Execute runs the root command. SIGTERM cancels the command context;
// SIGINT is left to the commands, which use it to stop a streaming reply.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		stop()
		os.Exit(1)
	}
}

// withApp runs fn with a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
