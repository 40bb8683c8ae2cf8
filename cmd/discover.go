package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverLimit int

var discoverCmd = &cobra.Command{
	Use:   "discover <query>",
	Short: "Find candidate companies in search results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		found, err := env.Service.Discover(ctx, strings.Join(args, " "), discoverLimit)
		if err != nil {
			return err
		}
		zap.L().Info("discovery complete", zap.Int("candidates", len(found)))
		return printJSON(cmd.OutOrStdout(), found)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage [provider]",
	Short: "Show a gated provider's usage this period",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		provider := apolloProvider
		if len(args) == 1 {
			provider = args[0]
		}
		u, err := env.Service.Usage(ctx, provider)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"provider":  u.Provider,
			"used":      u.Used,
			"limit":     u.Limit,
			"remaining": u.Remaining(),
			"period":    u.Period,
		})
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 10, "search results to scan")
	rootCmd.AddCommand(discoverCmd, usageCmd)
}
