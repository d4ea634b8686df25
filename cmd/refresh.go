package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	refreshCustomerID string
	refreshSubscribed bool
	refreshBypass     bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Consume refresh allowance and rerun generation",
	Long:  "Checks the customer's refresh allowance (with cooldown), and on success runs a restart generation: existing leads are wiped and the search starts over from page 1.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		dec, err := env.Gate.ConsumeRefresh(ctx, refreshCustomerID, refreshBypass)
		if err != nil {
			return eris.Wrap(err, "refresh allowance check")
		}
		if !dec.Allowed {
			if dec.RetryAt != nil {
				zap.L().Warn("refresh rejected, retry later",
					zap.String("customer_id", refreshCustomerID),
					zap.Time("retry_at", *dec.RetryAt),
				)
			} else {
				zap.L().Warn("refresh rejected, allowance exhausted",
					zap.String("customer_id", refreshCustomerID),
				)
			}
			os.Exit(1)
		}

		result, err := env.Generator.Run(ctx, refreshCustomerID, targetFor(refreshSubscribed), true)
		if err != nil {
			return eris.Wrap(err, "refresh generation run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshCustomerID, "customer", "", "customer ID (required)")
	refreshCmd.Flags().BoolVar(&refreshSubscribed, "subscribed", false, "use the subscribed-tier target")
	refreshCmd.Flags().BoolVar(&refreshBypass, "bypass", false, "skip allowance checks (internal use)")
	_ = refreshCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(refreshCmd)
}
