package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/store"
)

var (
	addInput      model.TargetInput
	listStatus    string
	listTemp      string
	listLimit     int
	historyLimit  int
	contactsOfTgt bool
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Register and inspect targets",
}

var targetsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a target, or merge into the matching existing one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		t, created, err := env.Service.Register(ctx, addInput)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"created": created, "target": t})
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List targets, best scores first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ts, err := env.Service.Targets(ctx, store.TargetFilter{
			Status:      model.Status(listStatus),
			Temperature: model.Temperature(listTemp),
			Limit:       listLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ts)
	},
}

var targetsShowCmd = &cobra.Command{
	Use:   "show <target-id>",
	Short: "Show a target with its history or contacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if contactsOfTgt {
			cs, err := env.Service.Contacts(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cs)
		}

		t, err := env.Service.Target(ctx, args[0])
		if err != nil {
			return err
		}
		recs, err := env.Service.History(ctx, args[0], historyLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"target": t, "history": recs})
	},
}

func init() {
	f := targetsAddCmd.Flags()
	f.StringVar(&addInput.Name, "name", "", "company name")
	f.StringVar(&addInput.TaxID, "tax-id", "", "CNPJ, formatted or digits only")
	f.StringVar(&addInput.Domain, "domain", "", "company website or domain")
	f.StringVar(&addInput.Industry, "industry", "", "industry")
	f.StringVar(&addInput.City, "city", "", "city")
	f.StringVar(&addInput.State, "state", "", "two-letter state code")

	targetsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (confirmed, probable, unverified, not_found)")
	targetsListCmd.Flags().StringVar(&listTemp, "temperature", "", "filter by temperature (hot, warm, cold)")
	targetsListCmd.Flags().IntVar(&listLimit, "limit", 100, "max targets to list")

	targetsShowCmd.Flags().IntVar(&historyLimit, "history", 10, "history records to include")
	targetsShowCmd.Flags().BoolVar(&contactsOfTgt, "contacts", false, "show decision makers instead")

	targetsCmd.AddCommand(targetsAddCmd, targetsListCmd, targetsShowCmd)
	rootCmd.AddCommand(targetsCmd)
}
