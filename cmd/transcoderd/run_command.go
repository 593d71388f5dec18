// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/transcoderd/internal/config"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jobFiles []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume the configured codec queues until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := newDaemon(runCtx, config.NewHolder(cfg, ctx.loader))
			if err != nil {
				return err
			}
			defer d.close()

			for _, name := range jobFiles {
				raw, err := readPayload(cmd.InOrStdin(), name)
				if err != nil {
					return err
				}
				if err := d.seed(runCtx, raw); err != nil {
					return err
				}
			}
			return d.run(runCtx)
		},
	}

	cmd.Flags().StringArrayVar(&jobFiles, "job", nil, "Job payload to enqueue before consuming (memory backend only)")
	return cmd
}
