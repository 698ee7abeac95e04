// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/util"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the built-in model catalog",
		Long: `List the built-in model catalog.

Any model id the provider accepts can be used with --model or /model; the
catalog only lists the ones relaychat knows by name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			writeModelCatalog(opts.out, cfg.DefaultModel)
			return nil
		},
	}
}

// writeModelCatalog prints the catalog, marking current with "*".
func writeModelCatalog(w io.Writer, current string) {
	idWidth := 0
	for _, m := range model.Models {
		idWidth = max(idWidth, len(m.ID))
	}
	for _, m := range model.Models {
		marker := "  "
		id := util.PadWidth(m.ID, idWidth)
		if m.ID == current {
			marker = "* "
			id = ActiveStyle.Render(id)
		}
		fmt.Fprintf(w, "%s%s  %s\n", marker, id, DimStyle.Render(m.Description))
	}
	if _, ok := model.LookupModel(current); current != "" && !ok {
		fmt.Fprintf(w, "* %s  %s\n", ActiveStyle.Render(current), DimStyle.Render("(not in catalog)"))
	}
}
