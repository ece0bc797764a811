package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/openfroyo/hookguard/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCommand() *cobra.Command {
	var writeConfig string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create and migrate the ledger",
		Long: `Create the account ledger, apply its migrations and optionally write a
configuration file with every default spelled out.`,
		Example: `  # Create ./hookguard.db
  hookguard init

  # Create a ledger elsewhere and write a starting config
  hookguard init --ledger /var/lib/hookguard/ledger.db --write-config hookguard.yaml`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			if err := rt.store.HealthCheck(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("ledger", rt.cfg.Ledger.Path).Msg("Ledger ready")

			if writeConfig != "" {
				if err := writeDefaultConfig(writeConfig, rt.cfg); err != nil {
					return err
				}
			}

			return output(cmd, map[string]string{
				"ledger":     rt.cfg.Ledger.Path,
				"program_id": rt.programID().String(),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Ledger initialized: %s\n", rt.cfg.Ledger.Path)
				fmt.Fprintf(w, "  Program: %s\n", rt.programID())
				if writeConfig != "" {
					fmt.Fprintf(w, "✓ Created config file: %s\n", writeConfig)
				}
			})
		}),
	}

	cmd.Flags().StringVar(&writeConfig, "write-config", "", "write the effective configuration as YAML to this path")

	return cmd
}

func writeDefaultConfig(path string, cfg *config.Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte("# hookguard configuration\n"), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
