// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/transcoderd/internal/pipeline/planner"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var (
		height   int
		forced   []int
		produced []int
		resuming bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the renditions a source of the given height would get",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			plan, err := planner.PlanQualities(planner.Input{
				SourceHeight: height,
				Ladder:       cfg.Defaults.Qualities,
				Forced:       forced,
				Fallback:     cfg.Fallback,
				Resuming:     resuming,
				Produced:     produced,
			})
			if err != nil {
				return fmt.Errorf("plan qualities: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}

	cmd.Flags().IntVar(&height, "height", 0, "Source height in pixels")
	cmd.Flags().IntSliceVar(&forced, "force", nil, "Qualities to encode regardless of the source height")
	cmd.Flags().IntSliceVar(&produced, "produced", nil, "Qualities already uploaded")
	cmd.Flags().BoolVar(&resuming, "resuming", false, "Plan a run that resumes an interrupted attempt")
	_ = cmd.MarkFlagRequired("height")

	return cmd
}
