// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Authentication gate management.
//
// Command: auth [subcommand]
//
// Subcommands:
//   status (default)    Show whether chat features are allowed
//   login               Record an authenticated session in storage
//   logout              Remove the stored session
//
// relaychat does not verify identities. With auth.source = "backend" the
// gate reads an isAuthenticated entry from the storage backend, which login
// and logout write; with auth.source = "env" it reads
// RELAYCHAT_AUTHENTICATED instead.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/relaychat/internal/auth"
)

type authStatus struct {
	Required      bool   `json:"required"`
	Source        string `json:"source"`
	Authenticated bool   `json:"authenticated"`
}

func newAuthCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	status := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, func(a *app) error {
			st := authStatus{
				Required:      a.cfg.Auth.Required,
				Source:        a.cfg.Auth.Source,
				Authenticated: a.gate.IsAuthenticated(),
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			state := SuccessStyle.Render("allowed")
			if !st.Authenticated {
				state = ErrorStyle.Render("refused")
			}
			fmt.Fprintf(a.out, "Chat:     %s\n", state)
			fmt.Fprintf(a.out, "Required: %t\n", st.Required)
			fmt.Fprintf(a.out, "Source:   %s\n", st.Source)
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Show or change the authentication gate",
		Args:  cobra.NoArgs,
		RunE:  status,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "output status as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether chat features are allowed",
			Args:  cobra.NoArgs,
			RunE:  status,
		},
		newAuthSetCmd(opts, "login", "Record an authenticated session in storage", true),
		newAuthSetCmd(opts, "logout", "Remove the stored session", false),
	)
	return cmd
}

func newAuthSetCmd(opts *rootOptions, use, short string, ok bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if err := auth.SetAuthenticated(cmd.Context(), a.backend, ok); err != nil {
					return err
				}
				if a.cfg.Auth.Source != auth.SourceBackend {
					fmt.Fprintf(a.errOut, "%s auth.source is %q; the stored session is only read with source %q\n",
						WarningStyle.Render("[Warning]"), a.cfg.Auth.Source, auth.SourceBackend)
				}
				verb := "Logged in"
				if !ok {
					verb = "Logged out"
				}
				fmt.Fprintln(a.out, SuccessStyle.Render(verb))
				return nil
			})
		},
	}
}
