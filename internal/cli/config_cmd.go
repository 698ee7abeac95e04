// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing.
//
// Command: config [subcommand]
//
// Subcommands:
//   show                Print the effective configuration (API key masked)
//   path                Print the config file path
//   init [--force]      Write a default config file
//   get <key>           Print one value
//   set <key> <value>   Change one value in the config file
//   keys                List every key
//
// Examples:
//   relaychat config set default_model Qwen/Qwen2.5-7B-Instruct
//   relaychat config set storage.backend sqlite
//   relaychat config get chat.history_window
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/relaychat/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(opts),
		newConfigPathCmd(opts),
		newConfigInitCmd(opts),
		newConfigGetCmd(opts),
		newConfigSetCmd(opts),
		newConfigKeysCmd(opts),
	)
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, DimStyle.Render("# "+path))
			fmt.Fprint(opts.out, cfg.String())
			return nil
		},
	}
}

func newConfigPathCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, path)
			return nil
		},
	}
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "%s %s\n", SuccessStyle.Render("Wrote"), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			v, err := cfg.Redacted().Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.out, v)
			return nil
		},
	}
}

func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the config file",
		Long: `Change one value in the config file.

Only the file is edited; environment overrides are not written back.
The result is validated before it is saved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return err
			}
			cfg, err := readConfigFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			check := cfg.Clone()
			check.SetDefaults()
			if err := check.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", args[0], err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "%s %s\n", SuccessStyle.Render("Set"), args[0])
			return nil
		},
	}
}

func newConfigKeysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(opts.out, strings.Join(config.Keys(), "\n"))
		},
	}
}

// configFilePath is --config or the default TOML path.
func configFilePath(opts *rootOptions) (string, error) {
	if opts.configPath != "" {
		return opts.configPath, nil
	}
	return config.ConfigPathTOML()
}

// readConfigFile decodes path over the defaults without environment
// overrides. A missing file yields the defaults.
func readConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	load := config.LoadTOML
	if strings.HasSuffix(path, ".json") {
		load = config.LoadJSON
	}
	if err := load(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
