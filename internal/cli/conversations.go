// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/relaychat/internal/export"
)

// =============================================================================
// LIST / SHOW
// =============================================================================

// conversationSummary is the --json shape of list.
type conversationSummary struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Model    string `json:"model"`
	Messages int    `json:"messages"`
	Active   bool   `json:"active"`
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Long:    "List conversations in creation order. * marks the active one; the index can be used wherever a conversation is expected.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				convs := a.store.Conversations()
				active := a.store.ActiveID()
				if !asJSON {
					writeConversationList(a.out, convs, active, terminalWidth(a.out))
					return nil
				}
				out := make([]conversationSummary, len(convs))
				for i, c := range convs {
					out[i] = conversationSummary{
						Index:    i + 1,
						ID:       c.ID,
						Title:    c.Title,
						Model:    c.Model,
						Messages: c.MessageCount(),
						Active:   c.ID == active,
					}
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show [conversation]",
		Short: "Print a conversation (default: active)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				id, err := a.resolveConversation(firstArg(args))
				if err != nil {
					return err
				}
				conv, err := a.store.Conversation(id)
				if err != nil {
					return err
				}
				width := terminalWidth(a.out)
				writeHistory(a.out, conv, newMarkdownRenderer(a.cfg.UI.Markdown && !raw, a.cfg.UI.Theme, width))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print replies without markdown rendering")
	return cmd
}

// =============================================================================
// SELECT / DELETE / CLEAR
// =============================================================================

func newSelectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "select <conversation>",
		Aliases: []string{"switch"},
		Short:   "Make a conversation active",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				id, err := a.resolveConversation(args[0])
				if err != nil {
					return err
				}
				if err := a.store.SelectConversation(id); err != nil {
					return err
				}
				conv, _ := a.store.Conversation(id)
				fmt.Fprintf(a.out, "Active conversation: %s\n", TitleStyle.Render(conv.Title))
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <conversation>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				// Resolve everything first so indexes refer to the list as shown.
				ids := make([]string, 0, len(args))
				for _, ref := range args {
					id, err := a.resolveConversation(ref)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				for _, id := range ids {
					a.store.DeleteConversation(id)
				}
				a.ensureActive()
				fmt.Fprintf(a.out, "%s %d conversation(s)\n", SuccessStyle.Render("Deleted"), len(ids))
				return nil
			})
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("clear deletes every conversation; pass --force to confirm")
			}
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				n := a.store.Len()
				a.store.ClearAll()
				a.ensureActive()
				fmt.Fprintf(a.out, "%s %d conversation(s)\n", SuccessStyle.Render("Deleted"), n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm deleting everything")
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export [conversation]",
		Short: "Export a conversation to Markdown, JSON or YAML",
		Long: `Export a conversation (default: active) to a file.

Formats: md (Markdown with frontmatter), json (the stored shape), yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := export.ForFormat(format, nil); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				if err := a.requireAuth(); err != nil {
					return err
				}
				id, err := a.resolveConversation(firstArg(args))
				if err != nil {
					return err
				}
				path, err := exportConversation(a, id, format, outDir)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format (md, json, yaml)")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
