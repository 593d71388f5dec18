// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/transcoderd/internal/config"
	"github.com/ManuGH/transcoderd/internal/queue"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Enqueue or cancel jobs on the Redis transport",
	}
	jobCmd.AddCommand(newJobEnqueueCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	return jobCmd
}

func newJobEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <job.json|->",
		Short: "Validate a job payload and push it onto its codec queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			job, err := queue.NewValidator().DecodeJob(raw)
			if err != nil {
				return err
			}
			return withRedis(cmd.Context(), ctx, func(r *queue.Redis) error {
				if err := r.Push(cmd.Context(), job); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", job.ID, r.JobsKey(job.Data.Codec))
				return nil
			})
		},
	}
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>...",
		Short: "Broadcast a cancellation request to every worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRedis(cmd.Context(), ctx, func(r *queue.Redis) error {
				if err := r.Cancel(cmd.Context(), queue.CancelRequest{IDs: args}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %d job(s)\n", len(args))
				return nil
			})
		},
	}
}

func withRedis(ctx context.Context, cc *commandContext, fn func(*queue.Redis) error) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Queue.Backend != "redis" {
		return errors.New("job commands require the redis queue backend")
	}
	r, err := queue.NewRedis(ctx, redisConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return fn(r)
}

func redisConfig(cfg config.Config) queue.RedisConfig {
	return queue.RedisConfig{
		Addr:     cfg.Queue.Addr,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
		Prefix:   cfg.Queue.Prefix,
		Block:    cfg.Queue.Block,
		OwnerTTL: cfg.Queue.OwnerTTL,
	}
}

func readPayload(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	// #nosec G304 -- the payload path is supplied by the operator
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read job payload: %w", err)
	}
	return raw, nil
}
