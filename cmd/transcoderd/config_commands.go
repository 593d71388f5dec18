// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/transcoderd/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigDefaultsCommand())

	return configCmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load and validate the configuration",
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := ctx.loader.Path()
			if source == "" {
				source = "environment and defaults"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration OK (%s)\n", source)
			fmt.Fprintf(out, "codecs: %v\n", cfg.Codecs)
			fmt.Fprintf(out, "queue:  %s %s\n", cfg.Queue.Backend, cfg.Queue.Addr)
			fmt.Fprintf(out, "store:  %s %s\n", cfg.Store.Backend, cfg.Store.Path)
			fmt.Fprintf(out, "root:   %s\n", cfg.Root)
			return nil
		},
	}
}

func newConfigDefaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "defaults",
		Short:       "Print the built-in configuration as YAML",
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(config.Defaults()); err != nil {
				return fmt.Errorf("encode defaults: %w", err)
			}
			return enc.Close()
		},
	}
}
