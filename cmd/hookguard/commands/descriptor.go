package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/descriptor"
	"github.com/openfroyo/hookguard/pkg/hook"
	"github.com/openfroyo/hookguard/pkg/instruction"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/seeds"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/spf13/cobra"
)

func newDescriptorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "descriptor",
		Short: "Extra-account descriptors",
		Long: `Manage the extra-account descriptor of a mint.

The descriptor lists the accounts a transfer must carry for the hook to run.
For hookguard it holds one entry: the source owner's policy account, derived
from the seeds ["counter", owner].`,
	}

	cmd.AddCommand(newDescriptorInitCommand())
	cmd.AddCommand(newDescriptorShowCommand())

	return cmd
}

func newDescriptorInitCommand() *cobra.Command {
	var (
		payerPath string
		mintAddr  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a mint's descriptor",
		Long: `Submit initialize_extra_account_meta_list for --mint. The payer funds the
descriptor and, if it does not exist yet, the payer's policy account.`,
		Example: `  hookguard descriptor init --payer payer.json --mint <MINT>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			payer, err := loadKeypair("payer", payerPath)
			if err != nil {
				return err
			}
			mint, err := parseKey("mint", mintAddr)
			if err != nil {
				return err
			}

			ix, err := instruction.NewInitialize(rt.programID(), payer.PublicKey(), mint)
			if err != nil {
				return fmt.Errorf("failed to build instruction: %w", err)
			}
			result, err := rt.submit(cmd.Context(), ix)
			if err != nil {
				return err
			}
			res := result.Initialize

			return output(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Descriptor initialized: %s\n", res.Descriptor)
				if res.PolicyCreated {
					fmt.Fprintf(w, "✓ Created policy account: %s\n", res.Policy)
				} else {
					fmt.Fprintf(w, "  Policy account: %s (existing)\n", res.Policy)
				}
				writeSpecs(w, res.Specs)
			})
		}),
	}

	cmd.Flags().StringVar(&payerPath, "payer", "", "payer keypair file")
	cmd.Flags().StringVar(&mintAddr, "mint", "", "mint to hook")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("mint")

	return cmd
}

func newDescriptorShowCommand() *cobra.Command {
	var mintAddr string

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show a mint's descriptor",
		Example: `  hookguard descriptor show --mint <MINT>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			mint, err := parseKey("mint", mintAddr)
			if err != nil {
				return err
			}
			desc, err := address.Descriptor(mint, rt.programID())
			if err != nil {
				return err
			}

			acct, err := rt.store.GetAccount(cmd.Context(), desc.Address)
			if err != nil {
				return fmt.Errorf("mint %s has no descriptor: %w", mint, err)
			}
			specs, err := descriptor.Decode(acct.Data)
			if err != nil {
				return err
			}

			return output(cmd, map[string]interface{}{
				"address": desc.Address,
				"bump":    desc.Bump,
				"size":    len(acct.Data),
				"specs":   specs,
			}, func(w io.Writer) {
				fmt.Fprintf(w, "Descriptor %s (bump %d, %d bytes)\n", desc.Address, desc.Bump, len(acct.Data))
				writeSpecs(w, specs)
			})
		}),
	}

	cmd.Flags().StringVar(&mintAddr, "mint", "", "hooked mint")
	_ = cmd.MarkFlagRequired("mint")

	return cmd
}

// transferFlags are the four accounts every transfer check names.
type transferFlags struct {
	source, mint, destination, owner string
}

func (f *transferFlags) register(cmd *cobra.Command, withOwner bool) {
	cmd.Flags().StringVar(&f.source, "source", "", "source token account")
	cmd.Flags().StringVar(&f.mint, "mint", "", "mint being transferred")
	cmd.Flags().StringVar(&f.destination, "destination", "", "destination token account")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("destination")
	if withOwner {
		cmd.Flags().StringVar(&f.owner, "owner", "", "owner of the source account")
		_ = cmd.MarkFlagRequired("owner")
	}
}

func (f *transferFlags) accounts(owner *solana.PublicKey) (hook.TransferAccounts, error) {
	var (
		t   hook.TransferAccounts
		err error
	)
	if t.Source, err = parseKey("source", f.source); err != nil {
		return t, err
	}
	if t.Mint, err = parseKey("mint", f.mint); err != nil {
		return t, err
	}
	if t.Destination, err = parseKey("destination", f.destination); err != nil {
		return t, err
	}
	if owner != nil {
		t.Owner = *owner
		return t, nil
	}
	t.Owner, err = parseKey("owner", f.owner)
	return t, err
}

func newResolveCommand() *cobra.Command {
	var (
		flags  transferFlags
		amount uint64
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the accounts of a transfer check",
		Long: `Print the full account list an execute instruction needs for a transfer:
the four transfer accounts, the mint's descriptor, then every extra account
the descriptor resolves to.`,
		Example: `  hookguard resolve --source <SRC> --mint <MINT> --destination <DST> --owner <OWNER>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			t, err := flags.accounts(nil)
			if err != nil {
				return err
			}

			op := telemetry.StartOperation(cmd.Context(), "resolve", telemetry.AttrMint.String(t.Mint.String()))
			var ix *solana.GenericInstruction
			err = rt.store.View(op.Ctx, func(tx *ledger.Tx) error {
				ix, err = instruction.NewExecute(tx.Load, rt.programID(), t, amount)
				return err
			})
			op.End(err)
			if err != nil {
				return err
			}

			return output(cmd, ix.Accounts(), func(w io.Writer) {
				writeMetas(w, ix.Accounts())
			})
		}),
	}

	flags.register(cmd, true)
	cmd.Flags().Uint64Var(&amount, "amount", 0, "transfer amount (only matters to instruction-data seeds)")

	return cmd
}

var metaRoles = []string{"source", "mint", "destination", "owner", "descriptor"}

func writeMetas(w io.Writer, metas []*solana.AccountMeta) {
	for i, meta := range metas {
		role := "extra"
		if i < len(metaRoles) {
			role = metaRoles[i]
		}
		var flags []string
		if meta.IsSigner {
			flags = append(flags, "signer")
		}
		if meta.IsWritable {
			flags = append(flags, "writable")
		}
		fmt.Fprintf(w, "%2d  %-11s %s %s\n", i, role, meta.PublicKey, strings.Join(flags, ","))
	}
}

func writeSpecs(w io.Writer, specs []descriptor.AccountSpec) {
	fmt.Fprintf(w, "  Extra accounts: %d\n", len(specs))
	for i, spec := range specs {
		fmt.Fprintf(w, "  [%d] %s signer=%t writable=%t\n", i, describeSpec(spec), spec.IsSigner, spec.IsWritable)
	}
}

func describeSpec(spec descriptor.AccountSpec) string {
	if spec.Address != nil {
		return "fixed " + spec.Address.String()
	}

	parts := make([]string, len(spec.Seeds))
	for i, s := range spec.Seeds {
		switch s.Kind {
		case seeds.KindLiteral:
			parts[i] = fmt.Sprintf("%q", s.Bytes)
		case seeds.KindAccountKey:
			parts[i] = fmt.Sprintf("key(%d)", s.Index)
		case seeds.KindInstructionData:
			parts[i] = fmt.Sprintf("data[%d:%d]", s.Offset, int(s.Offset)+int(s.Length))
		case seeds.KindAccountData:
			parts[i] = fmt.Sprintf("account(%d)[%d:%d]", s.Index, s.Offset, int(s.Offset)+int(s.Length))
		default:
			parts[i] = s.Kind.String()
		}
	}
	return "derived [" + strings.Join(parts, ", ") + "]"
}
