package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/enrichment"
)

var (
	enrichPremium bool
	enrichTaxID   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <target-id>",
	Short: "Search for TOTVS evidence and score a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Service.Verify(ctx, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("verification complete",
			zap.String("target_id", report.TargetID),
			zap.Int("score", report.Breakdown.TotalScore),
			zap.String("temperature", string(report.Breakdown.Temperature)),
		)
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich <target-id>",
	Short: "Run the enrichment layers for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Service.Enrich(ctx, enrichment.Request{
			TargetID:       args[0],
			TaxID:          enrichTaxID,
			IncludePremium: enrichPremium,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichPremium, "premium", false, "include the quota-gated premium layer")
	enrichCmd.Flags().StringVar(&enrichTaxID, "tax-id", "", "CNPJ to record before enriching")
	rootCmd.AddCommand(verifyCmd, enrichCmd)
}
