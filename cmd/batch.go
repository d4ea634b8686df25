package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prospectly/leadgen-cli/internal/generator"
)

var (
	batchCustomers  []string
	batchSubscribed bool
	batchRestart    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run generation for multiple customers concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return processBatch(ctx, env.Generator, batchCustomers, targetFor(batchSubscribed), batchRestart, cfg.Generation.MaxConcurrentCustomers)
	},
}

// processBatch runs one generation per customer with bounded concurrency.
// Individual failures are logged, not fatal: each customer's run is
// independent and its own status row records the outcome.
func processBatch(ctx context.Context, gen *generator.Generator, customers []string, target int, restart bool, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	zap.L().Info("starting batch generation",
		zap.Int("customers", len(customers)),
		zap.Int("target", target),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, customerID := range customers {
		g.Go(func() error {
			log := zap.L().With(zap.String("customer_id", customerID))

			result, err := gen.Run(gctx, customerID, target, restart)
			if err != nil {
				failed.Add(1)
				log.Error("generation failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}
			succeeded.Add(1)
			log.Info("generation succeeded", zap.Int("created_leads", len(result.CreatedLeads)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("batch generation finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchCustomers, "customers", nil, "customer IDs (required)")
	batchCmd.Flags().BoolVar(&batchSubscribed, "subscribed", false, "use the subscribed-tier target")
	batchCmd.Flags().BoolVar(&batchRestart, "restart", false, "restart each customer's generation")
	_ = batchCmd.MarkFlagRequired("customers")
	rootCmd.AddCommand(batchCmd)
}
