// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for relaychat.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   relaychat chat                                  Continue the active conversation
//   relaychat chat --new                            Start in a new conversation
//   relaychat chat --model Qwen/Qwen2.5-7B-Instruct Switch the active conversation's model
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /new, /n            Start a new conversation
//   /list, /ls          List conversations
//   /switch, /s REF     Switch to a conversation (index or id)
//   /delete [REF]       Delete a conversation (default: active)
//   /clear              Delete every conversation
//   /model [ID]         Show or change the model of the active conversation
//   /history            Show the active conversation
//   /export [FMT] [DIR] Export the active conversation (md, json, yaml)
//   /quit, /q           Exit chat
//   Ctrl+C              Stop the streaming reply
//   Ctrl+D              Exit chat
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/errs"
	"github.com/jeranaias/relaychat/internal/export"
	"github.com/jeranaias/relaychat/internal/logging"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/stream"
)

// =============================================================================
// COMMAND
// =============================================================================

type chatOptions struct {
	model   string
	newConv bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var copts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session in the active conversation.

Replies stream as they arrive. Ctrl+C stops the reply and keeps what was
received so far; type /help for the slash commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, copts)
		},
	}
	cmd.Flags().StringVarP(&copts.model, "model", "m", "", "model for the active conversation")
	cmd.Flags().BoolVarP(&copts.newConv, "new", "n", false, "start in a new conversation")
	return cmd
}

// =============================================================================
// INPUT
// =============================================================================

// errInputAborted is returned when Ctrl+C is pressed at the prompt.
var errInputAborted = errors.New("input aborted")

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// linerInput provides input history and line editing on a terminal.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput() *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &linerInput{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(in.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (l *linerInput) ReadLine(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInputAborted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (l *linerInput) Close() error {
	if err := os.MkdirAll(filepath.Dir(l.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			l.line.WriteHistory(f)
			f.Close()
		}
	}
	return l.line.Close()
}

// scanInput reads lines from a pipe or a test buffer. No prompt is shown.
type scanInput struct {
	sc *bufio.Scanner
}

func newScanInput(r io.Reader) *scanInput {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &scanInput{sc: sc}
}

func (s *scanInput) ReadLine(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanInput) Close() error { return nil }

// =============================================================================
// SESSION
// =============================================================================

// chatSession is one interactive run of the REPL.
type chatSession struct {
	app      *app
	pipeline *stream.Pipeline
	printer  *deltaPrinter
	md       *markdownRenderer
	input    lineReader
	out      io.Writer
	errOut   io.Writer
	width    int

	replies int
}

func newChatSession(a *app, input lineReader) (*chatSession, error) {
	width := terminalWidth(a.out)
	s := &chatSession{
		app:     a,
		printer: newDeltaPrinter(a.out),
		md:      newMarkdownRenderer(a.cfg.UI.Markdown, a.cfg.UI.Theme, width),
		input:   input,
		out:     a.out,
		errOut:  a.errOut,
		width:   width,
	}
	p, err := a.newPipeline(s.notice)
	if err != nil {
		return nil, err
	}
	s.pipeline = p
	return s, nil
}

func runChat(ctx context.Context, opts *rootOptions, copts chatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireAuth(); err != nil {
		return err
	}

	var input lineReader
	if isTerminal(opts.in) && isTerminal(opts.out) {
		input = newLinerInput()
	} else {
		input = newScanInput(opts.in)
	}
	defer input.Close()

	s, err := newChatSession(a, input)
	if err != nil {
		return err
	}
	defer a.store.Subscribe(s.printer.Observe)()

	if copts.newConv {
		a.store.CreateConversation()
	}
	convID := a.ensureActive()
	if copts.model != "" {
		if err := s.setModel(convID, copts.model); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.serveMetrics(runCtx)
	s.watchConfig(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-runCtx.Done():
				s.pipeline.Cancel()
				return
			case <-sigCh:
				if !s.pipeline.Cancel() {
					fmt.Fprintln(s.errOut, DimStyle.Render("\nNothing is streaming. Type /quit to exit."))
				}
			}
		}
	}()

	s.printWelcome()
	return s.loop(runCtx)
}

// loop reads input until EOF, /quit or Ctrl+C at the prompt.
func (s *chatSession) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := s.input.ReadLine(PromptStyle.Render("you> "))
		if err != nil {
			fmt.Fprintln(s.out)
			s.printExitSummary()
			if errors.Is(err, io.EOF) || errors.Is(err, errInputAborted) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(norm.NFC.String(line))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cont, err := s.handleSlashCommand(line)
			if err != nil {
				fmt.Fprintf(s.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if !cont {
				s.printExitSummary()
				return nil
			}
			continue
		}

		s.send(ctx, line)
	}
}

// send submits text to the active conversation and streams the reply.
func (s *chatSession) send(ctx context.Context, text string) {
	convID := s.app.ensureActive()

	fmt.Fprintln(s.out, AssistantStyle.Render("assistant>"))
	s.printer.Follow(convID)
	res, err := s.pipeline.Submit(ctx, convID, text)
	wrote := s.printer.Stop()
	if wrote {
		fmt.Fprintln(s.out)
	}
	if err != nil {
		fmt.Fprintf(s.errOut, "%s %s\n", ErrorStyle.Render("[Error]"), errs.UserMessage(err))
		return
	}

	if res.Status == stream.StatusCompleted && !res.ConversationGone {
		s.replies++
		elapsed := time.Since(res.StartedAt)
		if res.CompletedAt != nil {
			elapsed = res.CompletedAt.Sub(res.StartedAt)
		}
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("(%d chunks, %s)", res.Deltas, elapsed.Round(time.Millisecond))))
	}
	fmt.Fprintln(s.out)
}

// notice prints the end-of-stream notice from the pipeline.
func (s *chatSession) notice(n stream.Notice) {
	switch n.Level {
	case stream.NoticeError:
		fmt.Fprintf(s.errOut, "%s %s\n", ErrorStyle.Render("[Error]"), n.Text)
	default:
		fmt.Fprintf(s.errOut, "%s %s\n", WarningStyle.Render("[Stopped]"), n.Text)
	}
}

// watchConfig follows the config file so a new default model or log level
// applies without restarting.
func (s *chatSession) watchConfig(ctx context.Context) {
	path := s.app.configPath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			s.app.log.WithError(err).Warn("Config reload failed")
			return
		}
		s.app.store.SetDefaultModel(cfg.DefaultModel)
		if err := logging.ApplyLevel(s.app.log, cfg.Log.Level); err != nil {
			s.app.log.WithError(err).Warn("Ignoring reloaded log level")
		}
		s.app.log.WithField("model", cfg.DefaultModel).Info("Configuration reloaded")
	})
	if err != nil {
		s.app.log.WithError(err).Debug("Config watching disabled")
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs one slash command. It returns false when the
// session should end.
func (s *chatSession) handleSlashCommand(line string) (bool, error) {
	parts := strings.Fields(line)
	name := strings.ToLower(parts[0])
	args := parts[1:]
	store := s.app.store

	switch name {
	case "/help", "/h", "/?":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		store.CreateConversation()
		fmt.Fprintln(s.out, SuccessStyle.Render("Started a new conversation."))

	case "/list", "/ls":
		writeConversationList(s.out, store.Conversations(), store.ActiveID(), s.width)

	case "/switch", "/s":
		if len(args) == 0 {
			return true, fmt.Errorf("usage: /switch <index|id>")
		}
		id, err := s.app.resolveConversation(args[0])
		if err != nil {
			return true, err
		}
		if err := store.SelectConversation(id); err != nil {
			return true, err
		}
		conv, _ := store.Conversation(id)
		fmt.Fprintf(s.out, "Switched to %s\n", TitleStyle.Render(conv.Title))

	case "/delete", "/del":
		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		id, err := s.app.resolveConversation(ref)
		if err != nil {
			return true, err
		}
		store.DeleteConversation(id)
		s.app.ensureActive()
		fmt.Fprintln(s.out, SuccessStyle.Render("Conversation deleted."))

	case "/clear":
		store.ClearAll()
		s.app.ensureActive()
		fmt.Fprintln(s.out, SuccessStyle.Render("All conversations deleted."))

	case "/model", "/m":
		if len(args) == 0 {
			s.printModels()
			return true, nil
		}
		if err := s.setModel(s.app.ensureActive(), args[0]); err != nil {
			return true, err
		}

	case "/history":
		conv, err := store.Conversation(s.app.ensureActive())
		if err != nil {
			return true, err
		}
		writeHistory(s.out, conv, s.md)
		fmt.Fprintln(s.out)

	case "/export":
		format := "md"
		dir := "."
		if len(args) > 0 {
			format = args[0]
		}
		if len(args) > 1 {
			dir = args[1]
		}
		path, err := exportConversation(s.app, s.app.ensureActive(), format, dir)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("Exported to"), path)

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return true, nil
}

// setModel changes a conversation's model, warning about ids missing from
// the catalog.
func (s *chatSession) setModel(convID, modelID string) error {
	if err := s.app.store.SetModel(convID, modelID); err != nil {
		return err
	}
	if _, ok := model.LookupModel(modelID); !ok {
		fmt.Fprintf(s.errOut, "%s %q is not in the model catalog; requests may fail\n",
			WarningStyle.Render("[Warning]"), modelID)
	}
	fmt.Fprintf(s.out, "Model set to %s\n", TitleStyle.Render(modelID))
	return nil
}

func (s *chatSession) printModels() {
	current := ""
	if conv, err := s.app.store.Conversation(s.app.ensureActive()); err == nil {
		current = conv.Model
	}
	fmt.Fprintf(s.out, "Current model: %s\n\n", TitleStyle.Render(current))
	writeModelCatalog(s.out, current)
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) printWelcome() {
	conv, err := s.app.store.Conversation(s.app.ensureActive())
	if err != nil {
		return
	}
	fmt.Fprintln(s.out, TitleStyle.Render("relaychat "+Version))
	fmt.Fprintf(s.out, "%s %s  %s %s\n",
		DimStyle.Render("conversation:"), conv.Title,
		DimStyle.Render("model:"), conv.Model)
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands. Ctrl+C stops a reply, Ctrl+D exits."))
	fmt.Fprintln(s.out, RenderSeparator(min(s.width-4, 70)))
}

func (s *chatSession) printExitSummary() {
	if s.replies == 0 {
		return
	}
	fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("%d replies this session.", s.replies)))
}

func (s *chatSession) printHelp() {
	help := [][2]string{
		{"/new", "start a new conversation"},
		{"/list", "list conversations"},
		{"/switch REF", "switch to a conversation (index or id)"},
		{"/delete [REF]", "delete a conversation (default: active)"},
		{"/clear", "delete every conversation"},
		{"/model [ID]", "show or change the active conversation's model"},
		{"/history", "show the active conversation"},
		{"/export [FMT] [DIR]", "export the active conversation (md, json, yaml)"},
		{"/quit", "exit"},
	}
	for _, h := range help {
		fmt.Fprintf(s.out, "  %-22s %s\n", h[0], DimStyle.Render(h[1]))
	}
}

// exportConversation writes conversation id to dir in the named format.
func exportConversation(a *app, id, format, dir string) (string, error) {
	conv, err := a.store.Conversation(id)
	if err != nil {
		return "", err
	}
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	return export.ExportToFile(conv, exporter, opts)
}
