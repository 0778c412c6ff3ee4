package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var deductReason string

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show or change a user's credit balance",
	Long: `Show or change the prepaid credit balance of --user.

Examples:
  omnicall credits get
  omnicall credits add 50 --user alice
  omnicall credits deduct 2 --reason "manual adjustment"`,
}

var creditsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := apiClient.Balance(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("get credits: %w", err)
		}
		fmt.Printf("%s: %d credits", b.UserID, b.Balance)
		if !b.UpdatedAt.IsZero() {
			fmt.Printf(" (updated %s)", b.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Println()
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add <amount>",
	Short: "Add credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		balance, err := apiClient.AddCredits(cmd.Context(), userID, amount)
		if err != nil {
			return fmt.Errorf("add credits: %w", err)
		}
		fmt.Printf("Added %d. %s now has %d credits.\n", amount, userID, balance)
		return nil
	},
}

var creditsDeductCmd = &cobra.Command{
	Use:   "deduct <amount>",
	Short: "Deduct credits; fails when the balance is too low",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		balance, err := apiClient.DeductCredits(cmd.Context(), userID, amount, deductReason)
		if err != nil {
			return fmt.Errorf("deduct credits: %w", err)
		}
		fmt.Printf("Deducted %d. %s now has %d credits.\n", amount, userID, balance)
		return nil
	},
}

var callsLimit int

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List a user's recent calls",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient.ListCalls(cmd.Context(), userID, callsLimit)
		if err != nil {
			return fmt.Errorf("list calls: %w", err)
		}
		fmt.Printf("%-20s %-14s %-9s %-8s %s\n", "WHEN", "CARTRIDGE", "CHANNEL", "CREDITS", "DURATION")
		for _, c := range res.Calls {
			fmt.Printf("%-20s %-14s %-9s %-8d %ds\n", c.CreatedAt.Format("2006-01-02 15:04:05"),
				c.CartridgeID, c.Channel, c.CreditsUsed, c.DurationSeconds)
		}
		fmt.Printf("\n%d calls, %d credits, average %ds\n", res.Stats.Total, res.Stats.CreditsUsed, res.Stats.AvgDuration)
		return nil
	},
}

func parseAmount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return n, nil
}

func init() {
	creditsDeductCmd.Flags().StringVar(&deductReason, "reason", "cli", "reason recorded with the deduction")
	creditsCmd.AddCommand(creditsGetCmd, creditsAddCmd, creditsDeductCmd)
	callsCmd.Flags().IntVarP(&callsLimit, "limit", "n", 50, "max calls")
	rootCmd.AddCommand(creditsCmd, callsCmd)
}
