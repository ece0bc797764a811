package commands

import (
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hook"
	"github.com/openfroyo/hookguard/pkg/instruction"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/spf13/cobra"
)

func newTransferCommand() *cobra.Command {
	var (
		flags  transferFlags
		amount uint64
		entry  string
	)

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Run the transfer check for a transfer",
		Long: `Resolve the accounts of a transfer and submit the hook's transfer check,
the way the token program does before moving funds. Balances are not moved.

--entry selects the instruction: "execute" (the transfer-hook interface call)
or "transfer_hook" (the program's own entry point). Both run the same check.`,
		Example: `  hookguard transfer --source <SRC> --mint <MINT> --destination <DST> --owner <OWNER> --amount 10`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			t, err := flags.accounts(nil)
			if err != nil {
				return err
			}

			build := instruction.NewExecute
			switch entry {
			case instruction.NameExecute:
			case instruction.NameTransferHook:
				build = instruction.NewTransferHook
			default:
				return fmt.Errorf("unknown --entry %q", entry)
			}

			var ix *solana.GenericInstruction
			err = rt.store.View(cmd.Context(), func(tx *ledger.Tx) error {
				ix, err = build(tx.Load, rt.programID(), t, amount)
				return err
			})
			if err != nil {
				return err
			}

			result, err := rt.submit(cmd.Context(), ix)
			if err != nil {
				return err
			}

			return writeTransfer(cmd, t, amount, result.Execute)
		}),
	}

	flags.register(cmd, true)
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to transfer")
	cmd.Flags().StringVar(&entry, "entry", instruction.NameExecute, "instruction to submit (execute or transfer_hook)")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func writeTransfer(cmd *cobra.Command, t hook.TransferAccounts, amount uint64, res *hook.ExecuteResult) error {
	return output(cmd, map[string]interface{}{
		"source":         t.Source,
		"destination":    t.Destination,
		"amount":         amount,
		"transfer_count": res.TransferCount,
		"warnings":       res.Warnings,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Transfer of %d approved\n", amount)
		fmt.Fprintf(w, "  Transfers approved for %s: %d\n", t.Owner, res.TransferCount)
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  ⚠ %s: %s\n", warning.Policy, warning.Message)
		}
	})
}
