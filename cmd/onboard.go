package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
)

var (
	onboardCustomerID  string
	onboardOrgID       string
	onboardProfilePath string
	onboardGenerate    bool
	onboardSubscribed  bool
)

// onboardProfile is the JSON shape of the --profile file.
type onboardProfile struct {
	IdealCustomer model.PersonaCriteria `json:"ideal_customer"`
	BuyerPersona  model.PersonaCriteria `json:"buyer_persona"`
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Create a customer profile and optionally run initial generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		raw, err := os.ReadFile(onboardProfilePath)
		if err != nil {
			return eris.Wrap(err, "read profile file")
		}
		var op onboardProfile
		if err := json.Unmarshal(raw, &op); err != nil {
			return eris.Wrap(err, "parse profile file")
		}
		if op.BuyerPersona.Empty() && op.IdealCustomer.Empty() {
			return eris.New("profile file has no search criteria")
		}

		profile := &model.CustomerProfile{
			CustomerID:       onboardCustomerID,
			OrganizationID:   onboardOrgID,
			IdealCustomer:    op.IdealCustomer,
			BuyerPersona:     op.BuyerPersona,
			RefreshAllowance: cfg.Allowance.RefillAmount,
		}
		if err := env.Store.CreateProfile(ctx, profile); err != nil {
			return eris.Wrap(err, "create profile")
		}
		if err := env.Store.SeedQuota(ctx, onboardOrgID, model.MonthKey(time.Now()), cfg.Quota.MonthlyAllotment); err != nil {
			return eris.Wrap(err, "seed quota")
		}

		zap.L().Info("customer onboarded",
			zap.String("customer_id", onboardCustomerID),
			zap.String("organization_id", onboardOrgID),
		)

		if !onboardGenerate {
			return nil
		}

		result, err := env.Generator.Run(ctx, onboardCustomerID, targetFor(onboardSubscribed), false)
		if err != nil {
			return eris.Wrap(err, "initial generation run")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	onboardCmd.Flags().StringVar(&onboardCustomerID, "customer", "", "customer ID (required)")
	onboardCmd.Flags().StringVar(&onboardOrgID, "org", "", "organization ID (required)")
	onboardCmd.Flags().StringVar(&onboardProfilePath, "profile", "", "path to profile criteria JSON (required)")
	onboardCmd.Flags().BoolVar(&onboardGenerate, "generate", true, "run initial generation after onboarding")
	onboardCmd.Flags().BoolVar(&onboardSubscribed, "subscribed", false, "use the subscribed-tier target")
	_ = onboardCmd.MarkFlagRequired("customer")
	_ = onboardCmd.MarkFlagRequired("org")
	_ = onboardCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(onboardCmd)
}
