package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	var (
		outfile string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a keypair file",
		Long: `Generate a new ed25519 keypair and write it in the solana-keygen JSON format.

Commands that need a signer (payer, authority, transfer owner) take the path
of such a file.`,
		Example: `  hookguard keygen --outfile payer.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(outfile); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", outfile)
				}
			}

			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}
			if err := writeKeypair(outfile, key); err != nil {
				return err
			}

			pub := key.PublicKey()
			return output(cmd, map[string]string{"pubkey": pub.String(), "path": outfile}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Wrote keypair: %s\n", outfile)
				fmt.Fprintf(w, "  Public key: %s\n", pub)
			})
		},
	}

	cmd.Flags().StringVarP(&outfile, "outfile", "o", "", "keypair file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	_ = cmd.MarkFlagRequired("outfile")

	return cmd
}

// writeKeypair stores key as a JSON array of its 64 bytes.
func writeKeypair(path string, key solana.PrivateKey) error {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return fmt.Errorf("failed to encode keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keypair: %w", err)
	}
	return nil
}
