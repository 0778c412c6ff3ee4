package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askCartridge string
	askAnalyze   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question as a cartridge would, without a session",
	Long: `Answer a question with the cartridge's persona and the documents
retrieved for it. Runs in process; no credits are charged and nothing is
persisted. Use 'chat' for a billed conversation through the server.

Examples:
  omnicall ask "Is breakfast included?" --cartridge h-concierge-1
  omnicall ask "I want to cancel my card" -c f-bank-1 --analyze`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	addCartridgeFlag(askCmd, &askCartridge)
	askCmd.Flags().BoolVar(&askAnalyze, "analyze", false, "also classify intent, sentiment and urgency")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if _, err := a.Catalog.Get(askCartridge); err != nil {
		return err
	}

	reply, err := a.Chat.Reply(ctx, askCartridge, "", args[0])
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Println(reply)

	if askAnalyze {
		in := a.Chat.Intent(ctx, askCartridge, args[0])
		fmt.Printf("\nintent=%s sentiment=%s urgency=%s entities=%v\n", in.Intent, in.Sentiment, in.Urgency, in.Entities)
	}
	return nil
}
