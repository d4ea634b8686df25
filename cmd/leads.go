package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/prospectly/leadgen-cli/internal/model"
)

var (
	leadsCustomerID string
	leadsMarkViewed string
	leadsSetStatus  string
	leadsLeadID     string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List or update a customer's leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if leadsMarkViewed != "" {
			if err := st.MarkLeadViewed(ctx, leadsMarkViewed, leadsCustomerID); err != nil {
				return eris.Wrap(err, "mark lead viewed")
			}
		}
		if leadsSetStatus != "" {
			if leadsLeadID == "" {
				return eris.New("--lead is required with --set-status")
			}
			status := model.LeadStatus(leadsSetStatus)
			switch status {
			case model.LeadStatusNew, model.LeadStatusViewed, model.LeadStatusSaved,
				model.LeadStatusDeleted, model.LeadStatusReserved:
			default:
				return eris.Errorf("invalid lead status: %s", leadsSetStatus)
			}
			if err := st.UpdateLeadStatus(ctx, leadsLeadID, leadsCustomerID, status); err != nil {
				return eris.Wrap(err, "update lead status")
			}
		}

		leads, err := st.ListLeads(ctx, leadsCustomerID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsCustomerID, "customer", "", "customer ID (required)")
	leadsCmd.Flags().StringVar(&leadsMarkViewed, "mark-viewed", "", "lead ID to mark viewed before listing")
	leadsCmd.Flags().StringVar(&leadsSetStatus, "set-status", "", "status to set on --lead before listing")
	leadsCmd.Flags().StringVar(&leadsLeadID, "lead", "", "lead ID for --set-status")
	_ = leadsCmd.MarkFlagRequired("customer")
	rootCmd.AddCommand(leadsCmd)
}
