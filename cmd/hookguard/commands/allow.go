package commands

import (
	"fmt"
	"io"

	"github.com/openfroyo/hookguard/pkg/instruction"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/spf13/cobra"
)

func newAllowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allow",
		Short: "Allow-list management",
		Long: fmt.Sprintf(`Manage the destinations an owner may transfer to.

Each owner has one allow-list of at most %d entries, shared by every hooked
mint. Only the owner that created the policy account may extend it.`, policy.MaxAllowListEntries),
	}

	cmd.AddCommand(newAllowAddCommand())

	return cmd
}

func newAllowAddCommand() *cobra.Command {
	var (
		authorityPath string
		destination   string
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add a destination to the allow-list",
		Example: `  hookguard allow add --authority payer.json --destination <TOKEN_ACCOUNT>`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			authority, err := loadKeypair("authority", authorityPath)
			if err != nil {
				return err
			}
			dest, err := parseKey("destination", destination)
			if err != nil {
				return err
			}

			ix, err := instruction.NewAddToWhiteList(rt.programID(), authority.PublicKey(), dest)
			if err != nil {
				return fmt.Errorf("failed to build instruction: %w", err)
			}
			result, err := rt.submit(cmd.Context(), ix)
			if err != nil {
				return err
			}
			record := result.Policy

			return output(cmd, record, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Allowed %s\n", dest)
				fmt.Fprintf(w, "  Allow-list: %d/%d entries\n", len(record.AllowList), policy.MaxAllowListEntries)
			})
		}),
	}

	cmd.Flags().StringVar(&authorityPath, "authority", "", "policy authority keypair file")
	cmd.Flags().StringVar(&destination, "destination", "", "destination token account to allow")
	_ = cmd.MarkFlagRequired("authority")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}
