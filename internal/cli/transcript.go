package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := apiClient.Transcript(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get transcript: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("%s %-6s %s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcriptCmd)
}
