package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"retaincheck/internal/diag"
	"retaincheck/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate analysis policies",
}

var policyDumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Print the effective policy as TOML",
	Long:  "Print the policy that check would use for path (default: current directory).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd, settingsStart(args))
		if err != nil {
			return err
		}
		return policy.Encode(cmd.OutOrStdout(), settings.policy)
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <policy.toml>",
	Short: "Check a standalone policy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := policy.Load(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
		return nil
	},
}

var policyRulesCmd = &cobra.Command{
	Use:   "rules [path]",
	Short: "List rules with their effective settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd, settingsStart(args))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tALIAS\tENABLED\tSEVERITY\tTITLE")
		for _, code := range diag.AllRules {
			s := settings.policy.Rule(code)
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", code.ID(), code.Alias(), s.Enabled, diag.SeverityLabel(s.Severity), code.Title())
		}
		return tw.Flush()
	},
}

func init() {
	policyCmd.AddCommand(policyDumpCmd, policyValidateCmd, policyRulesCmd)
}
