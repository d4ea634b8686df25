package main

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospectly/leadgen-cli/internal/model"
)

var (
	exportCustomerID string
	exportOrgID      string
	exportOut        string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a customer's leads to CSV, consuming monthly quota",
	Long:  "Spends one unit of the organization's monthly quota per exported lead, writes the leads as CSV, and marks them reserved. Rejected exports consume nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		leads, err := env.Store.ListLeads(ctx, exportCustomerID)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		var exportable []model.Lead
		for _, l := range leads {
			if l.Status == model.LeadStatusDeleted || l.Status == model.LeadStatusReserved {
				continue
			}
			exportable = append(exportable, l)
		}
		if len(exportable) == 0 {
			zap.L().Info("nothing to export", zap.String("customer_id", exportCustomerID))
			return nil
		}

		dec, err := env.Gate.CheckAndDecrementQuota(ctx, exportOrgID, len(exportable))
		if err != nil {
			return eris.Wrap(err, "quota check")
		}
		if !dec.OK {
			zap.L().Warn("export rejected, quota insufficient",
				zap.String("organization_id", exportOrgID),
				zap.Int("requested", len(exportable)),
				zap.Int("remaining", dec.Remaining),
			)
			os.Exit(1)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close()
			out = f
		}

		w := csv.NewWriter(out)
		if err := w.Write([]string{"id", "first_name", "last_name", "title", "company", "email", "phone", "linkedin_url", "city", "country", "category", "score"}); err != nil {
			return eris.Wrap(err, "write csv header")
		}
		for _, l := range exportable {
			record := []string{
				l.ID, l.FirstName, l.LastName, l.Title, l.Company,
				l.Email, l.Phone, l.LinkedInURL, l.City, l.Country,
				string(l.Category), strconv.Itoa(l.Score),
			}
			if err := w.Write(record); err != nil {
				return eris.Wrap(err, "write csv record")
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return eris.Wrap(err, "flush csv")
		}

		for _, l := range exportable {
			if err := env.Store.UpdateLeadStatus(ctx, l.ID, exportCustomerID, model.LeadStatusReserved); err != nil {
				zap.L().Warn("failed to reserve exported lead",
					zap.String("lead_id", l.ID),
					zap.Error(err),
				)
			}
		}

		zap.L().Info("export complete",
			zap.String("customer_id", exportCustomerID),
			zap.Int("exported", len(exportable)),
			zap.Int("quota_remaining", dec.Remaining),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCustomerID, "customer", "", "customer ID (required)")
	exportCmd.Flags().StringVar(&exportOrgID, "org", "", "organization ID for quota (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("customer")
	_ = exportCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(exportCmd)
}
