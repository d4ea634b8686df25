package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	generateCustomerID string
	generateTarget     int
	generateSubscribed bool
	generateRestart    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run lead generation for a single customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		target := generateTarget
		if target == 0 {
			target = targetFor(generateSubscribed)
		}

		result, err := env.Generator.Run(ctx, generateCustomerID, target, generateRestart)
		if err != nil {
			return eris.Wrap(err, "generation run")
		}

		zap.L().Info("generation complete",
			zap.String("customer_id", generateCustomerID),
			zap.Int("created_leads", len(result.CreatedLeads)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateCustomerID, "customer", "", "customer ID (required)")
	generateCmd.Flags().IntVar(&generateTarget, "target", 0, "lead count target (default from tier)")
	generateCmd.Flags().BoolVar(&generateSubscribed, "subscribed", false, "use the subscribed-tier target")
	generateCmd.Flags().BoolVar(&generateRestart, "restart", false, "wipe existing leads and restart from page 1")
	_ = generateCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(generateCmd)
}
