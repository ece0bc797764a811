package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/token"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// The commands in this file set up the token side of a scenario. They write
// the ledger directly; only the hook program's instructions go through the
// dispatcher.

func newAirdropCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop <pubkey> <lamports>",
		Short: "Credit lamports to an address",
		Long: `Credit lamports to an address, creating a system account if none exists.
Payers need lamports to cover the rent of the accounts they create.`,
		Example: `  hookguard airdrop 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin 1000000000`,
		Args:    cobra.ExactArgs(2),
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			addr, err := parseKey("pubkey", args[0])
			if err != nil {
				return err
			}
			lamports, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lamports %q: %w", args[1], err)
			}

			var acct *ledger.Account
			err = rt.store.Update(cmd.Context(), func(tx *ledger.Tx) error {
				acct, err = tx.Airdrop(addr, lamports)
				return err
			})
			if err != nil {
				return err
			}

			log.Debug().Str("address", addr.String()).Uint64("lamports", lamports).Msg("Airdrop credited")

			return output(cmd, acct, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s balance: %d lamports\n", addr, acct.Lamports)
			})
		}),
	}

	return cmd
}

func newMintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Token mint fixtures",
	}

	cmd.AddCommand(newMintCreateCommand())

	return cmd
}

func newMintCreateCommand() *cobra.Command {
	var (
		payerPath string
		authority string
		address   string
		decimals  uint8
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mint",
		Long: `Create a token mint owned by the configured token program. The payer covers
rent and becomes the mint authority unless --authority is given.`,
		Example: `  hookguard mint create --payer payer.json --decimals 9`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			payer, err := loadKeypair("payer", payerPath)
			if err != nil {
				return err
			}

			auth := payer.PublicKey()
			if authority != "" {
				if auth, err = parseKey("authority", authority); err != nil {
					return err
				}
			}

			addr := solana.NewWallet().PublicKey()
			if address != "" {
				if addr, err = parseKey("address", address); err != nil {
					return err
				}
			}

			var mint *token.Mint
			err = rt.store.Update(cmd.Context(), func(tx *ledger.Tx) error {
				mint, err = token.CreateMint(tx, payer.PublicKey(), addr, auth, decimals, rt.tokenProgram())
				return err
			})
			if err != nil {
				return err
			}

			return output(cmd, map[string]interface{}{"address": addr, "mint": mint}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created mint: %s\n", addr)
				fmt.Fprintf(w, "  Authority: %s\n", auth)
				fmt.Fprintf(w, "  Decimals:  %d\n", decimals)
			})
		}),
	}

	cmd.Flags().StringVar(&payerPath, "payer", "", "payer keypair file")
	cmd.Flags().StringVar(&authority, "authority", "", "mint authority (default: payer)")
	cmd.Flags().StringVar(&address, "address", "", "mint address (default: random)")
	cmd.Flags().Uint8Var(&decimals, "decimals", 9, "token decimals")
	_ = cmd.MarkFlagRequired("payer")

	return cmd
}

func newAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Token account fixtures",
	}

	cmd.AddCommand(newAccountCreateCommand())

	return cmd
}

func newAccountCreateCommand() *cobra.Command {
	var (
		payerPath string
		mintAddr  string
		ownerAddr string
		address   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a token account",
		Long: `Create a token account holding --mint for --owner. The payer covers rent
and is the owner unless --owner is given.`,
		Example: `  # Source account owned by the payer
  hookguard account create --payer payer.json --mint <MINT>

  # Destination account owned by someone else
  hookguard account create --payer payer.json --mint <MINT> --owner <OWNER>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			payer, err := loadKeypair("payer", payerPath)
			if err != nil {
				return err
			}
			mint, err := parseKey("mint", mintAddr)
			if err != nil {
				return err
			}

			owner := payer.PublicKey()
			if ownerAddr != "" {
				if owner, err = parseKey("owner", ownerAddr); err != nil {
					return err
				}
			}

			addr := solana.NewWallet().PublicKey()
			if address != "" {
				if addr, err = parseKey("address", address); err != nil {
					return err
				}
			}

			var acct *token.Account
			err = rt.store.Update(cmd.Context(), func(tx *ledger.Tx) error {
				if _, err := token.LoadMint(tx, mint, rt.tokenProgram()); err != nil {
					return err
				}
				acct, err = token.CreateAccount(tx, payer.PublicKey(), addr, mint, owner, rt.tokenProgram())
				return err
			})
			if err != nil {
				return err
			}

			return output(cmd, map[string]interface{}{"address": addr, "account": acct}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created token account: %s\n", addr)
				fmt.Fprintf(w, "  Mint:  %s\n", mint)
				fmt.Fprintf(w, "  Owner: %s\n", owner)
			})
		}),
	}

	cmd.Flags().StringVar(&payerPath, "payer", "", "payer keypair file")
	cmd.Flags().StringVar(&mintAddr, "mint", "", "mint of the account")
	cmd.Flags().StringVar(&ownerAddr, "owner", "", "account owner (default: payer)")
	cmd.Flags().StringVar(&address, "address", "", "account address (default: random)")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("mint")

	return cmd
}
