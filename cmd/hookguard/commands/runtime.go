package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/config"
	"github.com/openfroyo/hookguard/pkg/hook"
	"github.com/openfroyo/hookguard/pkg/instruction"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runtime is everything a command needs to read the ledger or submit
// instructions to the hook program.
type runtime struct {
	cfg        *config.Config
	tel        *telemetry.Telemetry
	store      *ledger.SQLiteStore
	engine     *policy.Engine
	processor  *hook.Processor
	dispatcher *instruction.Dispatcher
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	return cfg, nil
}

// openRuntime loads the configuration and opens the ledger, migrating it if
// needed.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &runtime{cfg: cfg, tel: tel}
	if err := rt.open(ctx); err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context) error {
	store, err := ledger.NewSQLiteStore(rt.cfg.LedgerConfig())
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to migrate ledger: %w", err)
	}
	rt.store = store

	engine, err := policy.NewEngine(rt.tel.Logger.NewComponentLogger("policy").Zerolog())
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create policy engine: %w", err)
	}
	rt.engine = engine
	if len(rt.cfg.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, rt.cfg.Policy.Paths); err != nil {
			_ = store.Close()
			return err
		}
	}
	if err := rt.disablePolicies(); err != nil {
		_ = store.Close()
		return err
	}

	rt.processor = hook.NewProcessor(rt.cfg.ProgramID(), engine,
		hook.WithTelemetry(rt.tel),
		hook.WithTokenProgram(rt.cfg.TokenProgramID()),
	)
	rt.dispatcher = instruction.NewDispatcher(store, rt.processor, rt.tel)

	return nil
}

// disablePolicies applies policy.disabled to the loaded operator policies.
func (rt *runtime) disablePolicies() error {
	for _, name := range rt.cfg.Policy.Disabled {
		if err := rt.engine.DisablePolicy(name); err != nil {
			return fmt.Errorf("policy.disabled: %w", err)
		}
	}
	return nil
}

// replacePolicies swaps in reloaded operator policies, keeping the disabled
// ones disabled.
func (rt *runtime) replacePolicies(ctx context.Context, policies []policy.Policy) error {
	disabled := make(map[string]bool, len(rt.cfg.Policy.Disabled))
	for _, name := range rt.cfg.Policy.Disabled {
		disabled[name] = true
	}
	for i := range policies {
		if disabled[policies[i].Name] {
			policies[i].Enabled = false
		}
	}
	return rt.engine.ReplacePolicies(ctx, policies)
}

func (rt *runtime) Close(ctx context.Context) {
	if err := rt.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ledger")
	}
	if err := rt.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func (rt *runtime) programID() solana.PublicKey {
	return rt.cfg.ProgramID()
}

func (rt *runtime) tokenProgram() solana.PublicKey {
	return rt.cfg.TokenProgramID()
}

// submit dispatches a built instruction.
func (rt *runtime) submit(ctx context.Context, ix *solana.GenericInstruction) (*instruction.Result, error) {
	return rt.dispatcher.ProcessInstruction(ctx, ix)
}

// withRuntime wraps a command body with runtime setup and teardown.
func withRuntime(fn func(cmd *cobra.Command, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))
		cmd.SetContext(rt.tel.WithContext(ctx))
		return fn(cmd, rt, args)
	}
}

func parseKey(name, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return key, nil
}

func loadKeypair(name, path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s keypair %s: %w", name, path, err)
	}
	return key, nil
}

// output writes v as indented JSON with --json, or calls text otherwise.
func output(cmd *cobra.Command, v interface{}, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
