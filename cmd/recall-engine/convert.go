package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/transcript"
)

var convertCmd = &cobra.Command{
	Use:   "convert <session.jsonl>",
	Short: "Convert a session log to handoff-ready markdown",
	Long: `Convert parses a Claude Code session log and prints it as the markdown
document the extraction stage works from: frontmatter with the session
metadata followed by the timestamped conversation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := pipelineConfig()

		tz, _ := cmd.Flags().GetString("timezone")
		if tz == "" {
			tz = cfg.Sessions.Timezone
		}

		markdown, err := transcript.ConvertFile(args[0], transcript.Location(tz))
		if err != nil {
			return err
		}
		fmt.Print(markdown)
		return nil
	},
}

func init() {
	convertCmd.Flags().String("timezone", "", "IANA timezone for timestamps (default: sessions.timezone)")

	rootCmd.AddCommand(convertCmd)
}
