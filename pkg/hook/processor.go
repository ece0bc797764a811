package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/descriptor"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Processor runs the hook program's operations against a ledger
// transaction. It never commits: the caller owns the transaction and rolls it
// back when an operation fails.
type Processor struct {
	programID    solana.PublicKey
	tokenProgram solana.PublicKey
	binder       *Binder
	engine       *policy.Engine
	tel          *telemetry.Telemetry
	logger       zerolog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithTelemetry sets the telemetry used for logs, metrics, spans and events.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(p *Processor) {
		p.tel = tel
	}
}

// WithTokenProgram overrides the program that must own mints and token
// accounts. Defaults to the SPL token program.
func WithTokenProgram(program solana.PublicKey) Option {
	return func(p *Processor) {
		p.tokenProgram = program
	}
}

// NewProcessor creates a processor for the hook program deployed at
// programID that checks transfers with engine.
func NewProcessor(programID solana.PublicKey, engine *policy.Engine, opts ...Option) *Processor {
	p := &Processor{
		programID:    programID,
		tokenProgram: solana.TokenProgramID,
		engine:       engine,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tel == nil {
		p.tel = telemetry.NewNop()
	}
	p.binder = NewBinder(p.programID, p.tokenProgram)
	p.logger = p.tel.Logger.NewComponentLogger("hook").Zerolog()
	return p
}

// ProgramID returns the address the processor runs as.
func (p *Processor) ProgramID() solana.PublicKey {
	return p.programID
}

// InitializeResult reports what an initialization created.
type InitializeResult struct {
	Descriptor    solana.PublicKey
	Policy        solana.PublicKey
	PolicyCreated bool
	Specs         []descriptor.AccountSpec
}

// InitializeDescriptor writes the extra-account descriptor of a mint and
// lazily creates the payer's policy account. accounts is
// [payer, descriptor, mint, policy]. A mint that already has a descriptor
// fails with AlreadyInitialized.
func (p *Processor) InitializeDescriptor(ctx context.Context, tx *ledger.Tx, accounts []*solana.AccountMeta) (*InitializeResult, error) {
	bind, err := p.binder.BindInitialize(tx, accounts)
	if err != nil {
		return nil, err
	}

	exists, err := tx.Exists(bind.Descriptor)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, hookerr.New(hookerr.CodeAlreadyInitialized, "mint already has an extra-account descriptor").
			WithAccount(bind.Descriptor.String())
	}

	specs := descriptor.PolicySpecs()
	data, err := descriptor.Encode(specs)
	if err != nil {
		return nil, err
	}

	acct, err := tx.CreateAccount(bind.Payer, bind.Descriptor, p.programID, len(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor account: %w", err)
	}
	acct.Data = data
	if err := tx.PutAccount(acct); err != nil {
		return nil, err
	}

	created, err := p.ensurePolicyAccount(tx, bind.Payer, bind.Policy)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("mint", bind.Mint.String()).
		Str("descriptor", bind.Descriptor.String()).
		Str("policy", bind.Policy.String()).
		Bool("policy_created", created).
		Int("size", len(data)).
		Msg("Extra-account descriptor initialized")
	tx.OnCommit(func() {
		p.publish(p.tel.Events.PublishDescriptorInitialized(bind.Mint.String(), bind.Descriptor.String(), bind.Payer.String(), len(specs)))
	})

	return &InitializeResult{
		Descriptor:    bind.Descriptor,
		Policy:        bind.Policy,
		PolicyCreated: created,
		Specs:         specs,
	}, nil
}

// ensurePolicyAccount creates the authority's policy account if it does not
// exist yet. An existing account is left untouched.
func (p *Processor) ensurePolicyAccount(tx *ledger.Tx, authority, addr solana.PublicKey) (bool, error) {
	exists, err := tx.Exists(addr)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	data, err := policy.NewAccount(authority).Encode()
	if err != nil {
		return false, err
	}

	acct, err := tx.CreateAccount(authority, addr, p.programID, policy.AccountSize)
	if err != nil {
		return false, fmt.Errorf("failed to create policy account: %w", err)
	}
	acct.Data = data
	if err := tx.PutAccount(acct); err != nil {
		return false, err
	}
	return true, nil
}

// ExecuteResult reports an approved transfer.
type ExecuteResult struct {
	TransferCount uint64
	Warnings      []policy.Violation
}

// ExecuteHook checks a transfer of amount and records it. accounts is
// [source, mint, destination, owner, descriptor, policy, ...]. The amount
// ceiling is checked before the allow-list; on approval the owner's transfer
// counter grows by exactly one.
func (p *Processor) ExecuteHook(ctx context.Context, tx *ledger.Tx, accounts []*solana.AccountMeta, instructionData []byte, amount uint64) (*ExecuteResult, error) {
	bind, err := p.binder.BindExecute(tx, accounts, instructionData)
	if err != nil {
		p.tel.Metrics.RecordHookExecuted(telemetry.ResultFailed)
		return nil, err
	}

	ctx, span := p.tel.Tracer.StartHookSpan(ctx, bind.Mint.String(), bind.Owner.String(), amount)
	defer span.End()

	result, err := p.engine.Check(ctx, &policy.TransferInput{
		Amount:        amount,
		Source:        bind.Source,
		Mint:          bind.Mint,
		Destination:   bind.Destination,
		Owner:         bind.Owner,
		TransferCount: bind.Record.TransferCount,
		AllowList:     bind.Record.AllowList,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		p.reject(bind, amount, err)
		return nil, err
	}

	for _, w := range result.Warnings {
		p.logger.Warn().
			Str("policy", w.Policy).
			Str("code", w.Code).
			Str("owner", bind.Owner.String()).
			Msg(w.Message)
	}

	if err := bind.Record.RecordTransfer(); err != nil {
		telemetry.RecordError(span, err)
		p.tel.Metrics.RecordHookExecuted(telemetry.ResultFailed)
		return nil, err
	}

	data, err := bind.Record.Encode()
	if err != nil {
		return nil, err
	}
	bind.Policy.Data = data
	if err := tx.PutAccount(bind.Policy); err != nil {
		return nil, err
	}

	count := bind.Record.TransferCount
	p.logger.Info().
		Uint64("transfer_count", count).
		Str("owner", bind.Owner.String()).
		Str("mint", bind.Mint.String()).
		Uint64("amount", amount).
		Msg("transfer approved")

	telemetry.AddTransferEvent(ctx, bind.Destination.String(), count)
	telemetry.RecordSuccess(span)
	p.tel.Metrics.RecordHookExecuted(telemetry.ResultApproved)
	tx.OnCommit(func() {
		p.publish(p.tel.Events.PublishHookExecuted(bind.Mint.String(), bind.Owner.String(), bind.Destination.String(), amount, count))
	})

	return &ExecuteResult{TransferCount: count, Warnings: result.Warnings}, nil
}

func (p *Processor) reject(bind *ExecuteBinding, amount uint64, err error) {
	if !hookerr.IsPolicyViolation(err) {
		p.logger.Error().Err(err).Str("owner", bind.Owner.String()).Msg("Transfer check failed")
		p.tel.Metrics.RecordHookExecuted(telemetry.ResultFailed)
		return
	}

	code := string(hookerr.CodeOf(err))
	p.logger.Warn().
		Str("code", code).
		Str("owner", bind.Owner.String()).
		Str("destination", bind.Destination.String()).
		Uint64("amount", amount).
		Msg("transfer rejected")
	p.tel.Metrics.RecordHookExecuted(telemetry.ResultRejected)
	p.tel.Metrics.RecordPolicyRejection(code)
	p.publish(p.tel.Events.PublishHookRejected(bind.Mint.String(), bind.Owner.String(), bind.Destination.String(), code, err.Error()))
}

// AddAllowedDestination appends destination to the allow-list of the policy
// account in accounts[0]. accounts[1] must be the signing authority.
// Duplicates are kept; a full list fails with CapacityExceeded.
func (p *Processor) AddAllowedDestination(ctx context.Context, tx *ledger.Tx, accounts []*solana.AccountMeta, destination solana.PublicKey) (*policy.Account, error) {
	bind, err := p.binder.BindAllow(tx, accounts)
	if err != nil {
		return nil, err
	}

	if err := bind.Record.Allow(destination); err != nil {
		var herr *hookerr.Error
		if errors.As(err, &herr) {
			return nil, herr.WithAccount(bind.Policy.Address.String())
		}
		return nil, err
	}

	data, err := bind.Record.Encode()
	if err != nil {
		return nil, err
	}
	bind.Policy.Data = data
	if err := tx.PutAccount(bind.Policy); err != nil {
		return nil, err
	}

	size := len(bind.Record.AllowList)
	p.logger.Info().
		Str("authority", bind.Caller.String()).
		Str("destination", destination.String()).
		Int("size", size).
		Msg("Destination allowed")
	p.tel.Metrics.ObserveAllowListSize(size)
	tx.OnCommit(func() {
		p.publish(p.tel.Events.PublishAllowListUpdated(bind.Caller.String(), bind.Policy.Address.String(), destination.String(), size))
	})

	return bind.Record, nil
}

// publish logs an event that could not be queued. Events are best effort
// and never fail an operation. Success events are published from
// Tx.OnCommit so a rolled back instruction never reports one.
func (p *Processor) publish(err error) {
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish event")
	}
}
