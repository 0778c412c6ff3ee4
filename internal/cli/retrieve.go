package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmbento/omnicall-ai/internal/models"
)

var (
	retrieveCartridge string
	retrieveLimit     int
	retrieveRemote    bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the document chunks a cartridge would use for a query",
	Long: `Show the stored paragraphs of one cartridge most similar to a query,
most similar first. Nothing is generated.

Examples:
  omnicall retrieve "late checkout" --cartridge h-concierge-1
  omnicall retrieve "wire transfer fees" -c f-bank-1 -n 3`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func init() {
	addCartridgeFlag(retrieveCmd, &retrieveCartridge)
	retrieveCmd.Flags().IntVarP(&retrieveLimit, "limit", "n", 5, "max chunks")
	retrieveCmd.Flags().BoolVar(&retrieveRemote, "remote", false, "query the server instead of the store")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var chunks []models.ChunkResult

	if retrieveRemote {
		res, err := apiClient.Retrieve(ctx, retrieveCartridge, args[0], retrieveLimit)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		chunks = res.Chunks
	} else {
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		chunks, err = a.Retriever.RetrieveChunks(ctx, retrieveCartridge, args[0], retrieveLimit)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
	}

	if len(chunks) == 0 {
		fmt.Println("No matching documents.")
		return nil
	}
	for i, c := range chunks {
		fmt.Printf("%d. [%.3f] %s\n", i+1, c.Similarity, c.Filename)
		fmt.Printf("   %s\n", strings.ReplaceAll(c.Text, "\n", "\n   "))
	}
	return nil
}
