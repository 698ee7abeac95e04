// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask [question...]
//
// Examples:
//   relaychat ask "Explain channels"            Ask in the active conversation
//   relaychat ask --new "Start over: hello"     Ask in a fresh conversation
//   git diff | relaychat ask --new              Read the question from stdin
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/stream"
)

type askOptions struct {
	model        string
	newConv      bool
	conversation string
	quiet        bool
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var aopts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask one question and stream the reply to stdout",
		Long: `Ask one question and stream the reply to stdout.

The question is added to the active conversation unless --new or
--conversation is given. With no arguments the question is read from stdin.
Ctrl+C stops the reply and keeps the partial text.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(opts.in)
				if err != nil {
					return fmt.Errorf("read question: %w", err)
				}
				question = string(data)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, opts, aopts, question)
		},
	}
	cmd.Flags().StringVarP(&aopts.model, "model", "m", "", "model for the conversation")
	cmd.Flags().BoolVarP(&aopts.newConv, "new", "n", false, "ask in a new conversation")
	cmd.Flags().StringVar(&aopts.conversation, "conversation", "", "conversation index or id (default: active)")
	cmd.Flags().BoolVarP(&aopts.quiet, "quiet", "q", false, "print only the reply")
	return cmd
}

func runAsk(ctx context.Context, opts *rootOptions, aopts askOptions, question string) error {
	question = strings.TrimSpace(norm.NFC.String(question))
	if question == "" {
		return stream.ErrEmptyMessage
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireAuth(); err != nil {
		return err
	}

	var convID string
	switch {
	case aopts.newConv:
		convID = a.store.CreateConversation()
	case aopts.conversation != "":
		if convID, err = a.resolveConversation(aopts.conversation); err != nil {
			return err
		}
	default:
		convID = a.ensureActive()
	}

	if aopts.model != "" {
		if err := a.store.SetModel(convID, aopts.model); err != nil {
			return err
		}
		if _, ok := model.LookupModel(aopts.model); !ok {
			a.log.WithField("model", aopts.model).Warn("Model is not in the catalog")
		}
	}

	var notice *stream.Notice
	pipeline, err := a.newPipeline(func(n stream.Notice) { notice = &n })
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.serveMetrics(runCtx)

	printer := newDeltaPrinter(a.out)
	defer a.store.Subscribe(printer.Observe)()

	printer.Follow(convID)
	res, err := pipeline.Submit(runCtx, convID, question)
	if printer.Stop() {
		fmt.Fprintln(a.out)
	}
	if err != nil {
		return err
	}

	switch res.Status {
	case stream.StatusFailed:
		return res.Err
	case stream.StatusCancelled:
		if notice != nil && !aopts.quiet {
			fmt.Fprintf(a.errOut, "%s %s\n", WarningStyle.Render("[Stopped]"), notice.Text)
		}
	}
	return nil
}
