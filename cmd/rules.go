package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"replybot/pkg/placeholder"
	"replybot/pkg/rule"
	"replybot/pkg/rulestore"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect reply rules",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the rules file and report rules that cannot fire",
	Long:  "Loads the rules file, prints how many rules each tier holds, and lists every rule that can never answer. Exits non-zero when any issue is found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		return checkRules(cmd.OutOrStdout(), cfg.Rules.Path, cfg.Engine.MaxPatternLength)
	},
}

var rulesPlaceholdersCmd = &cobra.Command{
	Use:   "placeholders",
	Short: "List the placeholder vocabulary",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		return writePlaceholders(cmd.OutOrStdout())
	},
}

var rulesInitForce bool

var rulesInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example rules file",
	Long:  "Writes a commented example rules file covering every rule type, to path or the configured rules path.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path = cfg.Rules.Path
		}

		if err := rulestore.WriteStarter(path, rulesInitForce); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd, rulesPlaceholdersCmd, rulesInitCmd)
	rulesInitCmd.Flags().BoolVarP(&rulesInitForce, "force", "f", false, "overwrite an existing file")
}

// checkRules prints a report for the rules file at path. It returns an error when
// the file cannot be loaded or some rule cannot fire.
func checkRules(out io.Writer, path string, maxPatternLength int) error {
	rules, err := rulestore.Load(path)
	if err != nil {
		return err
	}

	snap := rule.NewSnapshot(rules, rule.SnapshotOptions{MaxPatternLength: maxPatternLength, Source: path})
	counts := snap.Counts()

	fmt.Fprintf(out, "%s: %d rules\n", path, snap.Len())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, typ := range rule.Types() {
		fmt.Fprintf(tw, "  %s\t%d\n", typ, counts[typ])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !snap.HasFallback() {
		fmt.Fprintln(out, "warning: no default rule, unmatched messages get no reply")
	}

	issues := snap.Issues()
	if len(issues) == 0 {
		fmt.Fprintln(out, "ok")
		return nil
	}

	for _, issue := range issues {
		fmt.Fprintf(out, "issue: %v\n", issue)
	}

	return fmt.Errorf("%d rule(s) cannot fire", len(issues))
}

func writePlaceholders(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USAGE\tKIND")
	for _, token := range placeholder.Vocabulary() {
		fmt.Fprintf(tw, "%s\t%s\n", token.Usage, token.Kind)
	}

	return tw.Flush()
}
