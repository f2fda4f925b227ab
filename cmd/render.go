package cmd

import (
	"fmt"
	"io"
	"strings"

	"replybot/pkg/engine"
	"replybot/pkg/logger"
	"replybot/pkg/placeholder"
	"replybot/pkg/rule"

	"github.com/spf13/cobra"
)

var (
	renderMessage  string
	renderName     string
	renderCaptures []string
)

var renderCmd = &cobra.Command{
	Use:   "render TEMPLATE",
	Short: "Fill the placeholders of a reply template",
	Long:  "Renders TEMPLATE with the configured time zone and random settings, without matching any rule. Useful to try placeholders before adding them to the rules file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		resolver, err := newResolver(cfg, nil, logger.Discard())
		if err != nil {
			return err
		}

		return renderTemplate(cmd.OutOrStdout(), cmd.ErrOrStderr(), resolver, args[0], renderInput(renderMessage, renderName, renderCaptures))
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderMessage, "message", "m", "", "incoming message for %message% and %message_length%")
	renderCmd.Flags().StringVarP(&renderName, "name", "n", "", "display name for %name%, %first_name% and %last_name%")
	renderCmd.Flags().StringArrayVar(&renderCaptures, "capture", nil, "capture group value, repeat for %capturing_group_2% and up")
}

func renderInput(message string, name string, captures []string) placeholder.Input {
	first, last := splitName(name)
	return placeholder.Input{
		RuleID:   "cli",
		Message:  message,
		Captures: captures,
		Conversation: rule.Conversation{
			Name:      strings.TrimSpace(name),
			FirstName: first,
			LastName:  last,
			Channel:   consoleChannelName,
		},
	}
}

// renderTemplate writes the rendered template to out and any anomalies to errOut.
func renderTemplate(out io.Writer, errOut io.Writer, resolver *engine.Resolver, template string, in placeholder.Input) error {
	text, anomalies := resolver.Render(template, in)

	if _, err := fmt.Fprintln(out, text); err != nil {
		return err
	}
	for _, anomaly := range anomalies {
		fmt.Fprintf(errOut, "warning: %v\n", anomaly)
	}

	return nil
}
