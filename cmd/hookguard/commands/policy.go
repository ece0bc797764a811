package commands

import (
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Policy accounts and rules",
		Long: `Inspect policy accounts and the rules transfers are checked against.

The built-in rule rejects amounts above 50 and destinations missing from the
owner's allow-list. Operators may add Rego policies through policy.paths in
the configuration.`,
	}

	cmd.AddCommand(newPolicyShowCommand())
	cmd.AddCommand(newPolicyListCommand())
	cmd.AddCommand(newPolicyRuleCommand())
	cmd.AddCommand(newPolicyCheckCommand())

	return cmd
}

func newPolicyShowCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Show an owner's policy account",
		Example: `  hookguard policy show --owner <OWNER>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			key, err := parseKey("owner", owner)
			if err != nil {
				return err
			}
			record, addr, err := loadPolicyRecord(cmd, rt, key)
			if err != nil {
				return err
			}

			return output(cmd, map[string]interface{}{"address": addr, "policy": record}, func(w io.Writer) {
				fmt.Fprintf(w, "Policy account %s\n", addr)
				fmt.Fprintf(w, "  Authority:      %s\n", record.Authority)
				fmt.Fprintf(w, "  Transfer count: %d\n", record.TransferCount)
				fmt.Fprintf(w, "  Allow-list:     %d/%d\n", len(record.AllowList), policy.MaxAllowListEntries)
				for i, entry := range record.AllowList {
					fmt.Fprintf(w, "    [%d] %s\n", i, entry)
				}
			})
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner the policy account belongs to")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func loadPolicyRecord(cmd *cobra.Command, rt *runtime, owner solana.PublicKey) (*policy.Account, solana.PublicKey, error) {
	derived, err := address.Policy(owner, rt.programID())
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	acct, err := rt.store.GetAccount(cmd.Context(), derived.Address)
	if err != nil {
		return nil, derived.Address, fmt.Errorf("owner %s has no policy account: %w", owner, err)
	}
	record, err := policy.DecodeAccount(acct.Data)
	if err != nil {
		return nil, derived.Address, err
	}
	return record, derived.Address, nil
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the policies transfers are checked against",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			policies := rt.engine.ListPolicies()

			return output(cmd, policies, func(w io.Writer) {
				for _, p := range policies {
					kind := "operator"
					if p.Builtin {
						kind = "built-in"
					}
					state := "enabled"
					if !p.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(w, "%-28s %-9s %-8s %-8s %s\n", p.Name, kind, p.Severity, state, p.Description)
				}
			})
		}),
	}

	return cmd
}

func newPolicyRuleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rule NAME",
		Short:   "Print the Rego source of a policy",
		Args:    cobra.ExactArgs(1),
		Example: `  hookguard policy rule ` + policy.TransferPolicyName,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			p, err := rt.engine.GetPolicy(args[0])
			if err != nil {
				return err
			}
			return output(cmd, p, func(w io.Writer) {
				fmt.Fprint(w, p.Rego)
			})
		}),
	}

	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	var (
		flags  transferFlags
		amount uint64
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a transfer without recording it",
		Long: `Evaluate the policies for a prospective transfer against the owner's current
policy account. Nothing is written; the transfer counter does not change.`,
		Example: `  hookguard policy check --source <SRC> --mint <MINT> --destination <DST> --owner <OWNER> --amount 60`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			t, err := flags.accounts(nil)
			if err != nil {
				return err
			}
			record, _, err := loadPolicyRecord(cmd, rt, t.Owner)
			if err != nil {
				return err
			}

			op := telemetry.StartOperation(cmd.Context(), "policy.check",
				telemetry.AttrMint.String(t.Mint.String()),
				telemetry.AttrAmount.Int64(int64(amount)),
			)
			result, err := rt.engine.Evaluate(op.Ctx, &policy.TransferInput{
				Amount:        amount,
				Source:        t.Source,
				Mint:          t.Mint,
				Destination:   t.Destination,
				Owner:         t.Owner,
				TransferCount: record.TransferCount,
				AllowList:     record.AllowList,
			})
			op.End(err)
			if err != nil {
				return err
			}

			if err := output(cmd, result, func(w io.Writer) {
				if result.Allowed {
					fmt.Fprintf(w, "✓ Transfer of %d would be approved\n", amount)
				} else {
					fmt.Fprintf(w, "✗ Transfer of %d would be rejected\n", amount)
				}
				for _, v := range result.Violations {
					fmt.Fprintf(w, "  ✗ %s: %s\n", v.Policy, v.Message)
				}
				for _, v := range result.Warnings {
					fmt.Fprintf(w, "  ⚠ %s: %s\n", v.Policy, v.Message)
				}
			}); err != nil {
				return err
			}

			if !result.Allowed {
				return policy.RejectionError(result.Violations)
			}
			return nil
		}),
	}

	flags.register(cmd, true)
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to check")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
