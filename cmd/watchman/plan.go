package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Melevir/opensource-watchman/internal/audit"
)

func newPlanCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan [rule-id...]",
		Short: "Show the steps evaluated for the given rules",
		Long: `Plan prints the execution levels of the computation graph needed to
evaluate the given rules, or every active rule when none is given. Steps on
the same level do not depend on each other.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ids, err := normalizeRuleIDs(args)
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}

			plan, err := audit.New(cfg).Plan(ids...)
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d steps for %d rules\n", plan.Len(), len(plan.Requested))
			fmt.Fprint(out, plan.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Audit configuration YAML file")

	return cmd
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the rule catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, rule := range audit.Rules() {
				fmt.Fprintf(out, "%s  %-8s  %s\n", rule.ID, rule.Severity, rule.Description)
			}
			return nil
		},
	}
}
