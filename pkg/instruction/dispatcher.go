package instruction

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hook"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
)

// Result is what a processed instruction produced. Only the field matching
// the instruction is set.
type Result struct {
	Instruction string

	Initialize *hook.InitializeResult
	Execute    *hook.ExecuteResult
	Policy     *policy.Account
}

// Dispatcher decodes instructions and runs each one in its own ledger
// transaction.
type Dispatcher struct {
	store     ledger.Store
	processor *hook.Processor
	tel       *telemetry.Telemetry
}

// NewDispatcher creates a dispatcher. A nil tel disables telemetry.
func NewDispatcher(store ledger.Store, processor *hook.Processor, tel *telemetry.Telemetry) *Dispatcher {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &Dispatcher{store: store, processor: processor, tel: tel}
}

// ProcessInstruction runs ix if it is addressed to the processor's program.
func (d *Dispatcher) ProcessInstruction(ctx context.Context, ix solana.Instruction) (*Result, error) {
	if programID := ix.ProgramID(); !programID.Equals(d.processor.ProgramID()) {
		return nil, hookerr.Newf(hookerr.CodeUnsupportedInstruction, "instruction is addressed to program %s", programID)
	}

	data, err := ix.Data()
	if err != nil {
		return nil, hookerr.Wrap(hookerr.CodeMalformedInstruction, "failed to read instruction data", err)
	}

	return d.Process(ctx, data, ix.Accounts())
}

// Process decodes data and routes it with accounts. The whole instruction
// commits or nothing does.
func (d *Dispatcher) Process(ctx context.Context, data []byte, accounts []*solana.AccountMeta) (*Result, error) {
	ix, err := Decode(data)
	if err != nil {
		d.tel.Metrics.RecordInstruction("unknown", "error", 0)
		d.tel.Metrics.RecordError(string(hookerr.ClassOf(err)), string(hookerr.CodeOf(err)))
		return nil, err
	}

	result := &Result{Instruction: ix.Name()}
	err = d.tel.Instrument(ctx, ix.Name(), func(ctx context.Context) error {
		return d.store.Update(ctx, func(tx *ledger.Tx) error {
			return d.route(ctx, tx, ix, data, accounts, result)
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) route(ctx context.Context, tx *ledger.Tx, ix Instruction, data []byte, accounts []*solana.AccountMeta, result *Result) error {
	var err error

	switch ix := ix.(type) {
	case InitializeExtraAccountMetaList:
		result.Initialize, err = d.processor.InitializeDescriptor(ctx, tx, accounts)
	case TransferHook:
		result.Execute, err = d.processor.ExecuteHook(ctx, tx, accounts, data, ix.Amount)
	case Execute:
		result.Execute, err = d.processor.ExecuteHook(ctx, tx, accounts, data, ix.Amount)
	case AddToWhiteList:
		result.Policy, err = d.processor.AddAllowedDestination(ctx, tx, accounts, ix.Destination)
	case InitializeExtraAccountMetas, UpdateExtraAccountMetas:
		err = hookerr.Newf(hookerr.CodeUnsupportedInstruction, "%s is not supported; use %s", ix.Name(), NameInitializeExtraAccountMetaList)
	default:
		err = hookerr.Newf(hookerr.CodeUnsupportedInstruction, "no route for %s", ix.Name())
	}

	return err
}
