package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/batch"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/store"
)

var (
	batchMode    string
	batchLimit   int
	batchStatus  string
	batchPremium bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [target-id...]",
	Short: "Verify or enrich many targets with pacing",
	Long:  "Runs verify or enrich over the given target ids, or over stored targets matching --status when none are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ids := args
		if len(ids) == 0 {
			ts, err := env.Service.Targets(ctx, store.TargetFilter{Status: model.Status(batchStatus), Limit: batchLimit})
			if err != nil {
				return err
			}
			for _, t := range ts {
				ids = append(ids, t.ID)
			}
		}

		var sum batch.Summary
		switch batchMode {
		case "verify":
			sum, err = env.Service.VerifyBatch(ctx, ids)
		case "enrich":
			sum, err = env.Service.EnrichBatch(ctx, ids, batchPremium)
		default:
			return eris.Errorf("batch: unknown mode %q (want verify or enrich)", batchMode)
		}
		if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil {
			return perr
		}
		if err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchMode, "mode", "verify", "verify or enrich")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max stored targets to process when no ids are given")
	batchCmd.Flags().StringVar(&batchStatus, "status", "", "only stored targets with this status")
	batchCmd.Flags().BoolVar(&batchPremium, "premium", false, "include the premium layer in enrich mode")
	rootCmd.AddCommand(batchCmd)
}
