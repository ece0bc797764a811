package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	ledgerPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hookguard",
		Short: "hookguard - transfer-hook policy program",
		Long: `hookguard runs a transfer-hook program against a local account ledger.

Every transfer of a hooked mint is checked before it completes:
  - the amount must not exceed the per-transfer ceiling (50)
  - the destination must be on the source owner's allow-list
  - approved transfers increment the owner's transfer counter

Mints, token accounts and balances are local fixtures; the hook program's
own instructions are encoded and dispatched exactly as a runtime would.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (.yaml, .toml or .cue)")
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "ledger database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newKeygenCommand())
	rootCmd.AddCommand(newAirdropCommand())
	rootCmd.AddCommand(newMintCommand())
	rootCmd.AddCommand(newAccountCommand())
	rootCmd.AddCommand(newDescriptorCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newAllowCommand())
	rootCmd.AddCommand(newTransferCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
