package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/models"
)

var cartridgesRemote bool

var cartridgesCmd = &cobra.Command{
	Use:   "cartridges",
	Short: "List the available cartridges",
	Long: `List the cartridges: the persona, voice and tools of each vertical.
Reads the local catalog ($OMNICALL_CARTRIDGES_FILE or the built-in one)
unless --remote is given.`,
	Args: cobra.NoArgs,
	RunE: runCartridges,
}

func init() {
	cartridgesCmd.Flags().BoolVar(&cartridgesRemote, "remote", false, "list the server's cartridges")
	rootCmd.AddCommand(cartridgesCmd)
}

func runCartridges(cmd *cobra.Command, args []string) error {
	var list []models.Cartridge
	if cartridgesRemote {
		var err error
		if list, err = apiClient.Cartridges(cmd.Context()); err != nil {
			return fmt.Errorf("list cartridges: %w", err)
		}
	} else {
		catalog, err := cartridge.Load(cfg.CartridgesFile)
		if err != nil {
			return err
		}
		list = catalog.List()
	}

	fmt.Printf("%-14s %-8s %-8s %-7s %s\n", "ID", "VERTICAL", "VOICE", "ACTIVE", "TOOLS")
	for _, c := range list {
		fmt.Printf("%-14s %-8s %-8s %-7t %s\n", c.ID, c.Vertical, c.Voice, c.Active, strings.Join(c.Tools, ","))
		if verbose && c.Description != "" {
			fmt.Printf("  %s\n", c.Description)
		}
	}
	return nil
}
