package hook

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/discriminator"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/openfroyo/hookguard/pkg/token"
	"github.com/rs/zerolog"
)

var programID = address.DefaultProgramID

type fixture struct {
	t     *testing.T
	store *ledger.SQLiteStore
	proc  *Processor

	payer  solana.PublicKey
	mint   solana.PublicKey
	source solana.PublicKey
	dest   solana.PublicKey

	descriptor solana.PublicKey
	policy     solana.PublicKey
}

// newFixture creates a ledger holding a funded payer, a mint and two token
// accounts: source owned by the payer and dest owned by someone else.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := ledger.NewSQLiteStore(ledger.Config{Path: ledger.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	f := &fixture{
		t:      t,
		store:  store,
		proc:   NewProcessor(programID, engine, opts...),
		payer:  solana.NewWallet().PublicKey(),
		mint:   solana.NewWallet().PublicKey(),
		source: solana.NewWallet().PublicKey(),
		dest:   solana.NewWallet().PublicKey(),
	}

	desc, _ := address.Descriptor(f.mint, programID)
	pol, _ := address.Policy(f.payer, programID)
	f.descriptor, f.policy = desc.Address, pol.Address

	err = f.update(func(tx *ledger.Tx) error {
		if _, err := tx.Airdrop(f.payer, 1_000_000_000); err != nil {
			return err
		}
		if _, err := token.CreateMint(tx, f.payer, f.mint, f.payer, 6, solana.TokenProgramID); err != nil {
			return err
		}
		if _, err := token.CreateAccount(tx, f.payer, f.source, f.mint, f.payer, solana.TokenProgramID); err != nil {
			return err
		}
		_, err := token.CreateAccount(tx, f.payer, f.dest, f.mint, solana.NewWallet().PublicKey(), solana.TokenProgramID)
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}

	return f
}

func (f *fixture) update(fn func(tx *ledger.Tx) error) error {
	return f.store.Update(context.Background(), fn)
}

func (f *fixture) initMetas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.NewAccountMeta(f.payer, true, true),
		solana.NewAccountMeta(f.descriptor, true, false),
		solana.NewAccountMeta(f.mint, false, false),
		solana.NewAccountMeta(f.policy, true, false),
	}
}

func (f *fixture) initialize() (*InitializeResult, error) {
	var result *InitializeResult
	err := f.update(func(tx *ledger.Tx) error {
		var err error
		result, err = f.proc.InitializeDescriptor(context.Background(), tx, f.initMetas())
		return err
	})
	return result, err
}

func (f *fixture) mustInitialize() {
	f.t.Helper()
	if _, err := f.initialize(); err != nil {
		f.t.Fatalf("failed to initialize: %v", err)
	}
}

func (f *fixture) allowAs(caller solana.PublicKey, signer bool, dest solana.PublicKey) error {
	return f.update(func(tx *ledger.Tx) error {
		_, err := f.proc.AddAllowedDestination(context.Background(), tx, []*solana.AccountMeta{
			solana.NewAccountMeta(f.policy, true, false),
			solana.NewAccountMeta(caller, false, signer),
		}, dest)
		return err
	})
}

func (f *fixture) mustAllow(dest solana.PublicKey) {
	f.t.Helper()
	if err := f.allowAs(f.payer, true, dest); err != nil {
		f.t.Fatalf("failed to allow %s: %v", dest, err)
	}
}

func executeData(amount uint64) []byte {
	return binary.LittleEndian.AppendUint64(discriminator.Execute.Bytes(), amount)
}

func (f *fixture) transfer() TransferAccounts {
	return TransferAccounts{Source: f.source, Mint: f.mint, Destination: f.dest, Owner: f.payer}
}

// execute resolves the execute accounts the way a caller would, then runs
// the hook with them.
func (f *fixture) execute(amount uint64) (*ExecuteResult, error) {
	return f.executeWith(amount, func(metas []*solana.AccountMeta) []*solana.AccountMeta { return metas })
}

func (f *fixture) executeWith(amount uint64, edit func([]*solana.AccountMeta) []*solana.AccountMeta) (*ExecuteResult, error) {
	var result *ExecuteResult
	err := f.update(func(tx *ledger.Tx) error {
		data := executeData(amount)
		metas, err := ResolveExecuteAccounts(tx.Load, programID, f.transfer(), data)
		if err != nil {
			return err
		}
		result, err = f.proc.ExecuteHook(context.Background(), tx, edit(metas), data, amount)
		return err
	})
	return result, err
}

func (f *fixture) record() *policy.Account {
	f.t.Helper()

	acct, err := f.store.GetAccount(context.Background(), f.policy)
	if err != nil {
		f.t.Fatalf("failed to load policy account: %v", err)
	}
	record, err := policy.DecodeAccount(acct.Data)
	if err != nil {
		f.t.Fatalf("failed to decode policy account: %v", err)
	}
	return record
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)

	result, err := f.initialize()
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !result.PolicyCreated || !result.Policy.Equals(f.policy) {
		t.Errorf("unexpected initialize result %+v", result)
	}

	rec := f.record()
	if rec.TransferCount != 0 || len(rec.AllowList) != 0 || !rec.Authority.Equals(f.payer) {
		t.Fatalf("unexpected fresh record %+v", rec)
	}

	f.mustAllow(f.dest)
	if rec := f.record(); len(rec.AllowList) != 1 || !rec.AllowList[0].Equals(f.dest) {
		t.Fatalf("expected allow-list [dest], got %v", rec.AllowListStrings())
	}

	exec, err := f.execute(10)
	if err != nil {
		t.Fatalf("execute(10) failed: %v", err)
	}
	if exec.TransferCount != 1 || f.record().TransferCount != 1 {
		t.Errorf("expected count 1, got %d", f.record().TransferCount)
	}

	_, err = f.execute(100)
	if !errors.Is(err, hookerr.ErrAmountExceedsLimit) {
		t.Fatalf("expected AmountExceedsLimit, got %v", err)
	}
	if got := f.record().TransferCount; got != 1 {
		t.Errorf("expected count to stay 1, got %d", got)
	}
}

func TestExecuteAmounts(t *testing.T) {
	tests := []struct {
		amount  uint64
		wantErr error
	}{
		{0, nil},
		{1, nil},
		{50, nil},
		{51, hookerr.ErrAmountExceedsLimit},
		{1 << 40, hookerr.ErrAmountExceedsLimit},
	}

	for _, tt := range tests {
		f := newFixture(t)
		f.mustInitialize()
		f.mustAllow(f.dest)
		before := f.record()

		_, err := f.execute(tt.amount)
		after := f.record()

		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("amount %d: expected %v, got %v", tt.amount, tt.wantErr, err)
			}
			if after.TransferCount != before.TransferCount {
				t.Errorf("amount %d: count changed on failure", tt.amount)
			}
			continue
		}

		if err != nil {
			t.Errorf("amount %d: unexpected error %v", tt.amount, err)
			continue
		}
		if after.TransferCount != before.TransferCount+1 {
			t.Errorf("amount %d: expected count %d, got %d", tt.amount, before.TransferCount+1, after.TransferCount)
		}
		if !after.Authority.Equals(before.Authority) || len(after.AllowList) != len(before.AllowList) {
			t.Errorf("amount %d: fields other than the counter changed", tt.amount)
		}
	}
}

func TestExecuteDestinationNotAllowed(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()

	if _, err := f.execute(10); !errors.Is(err, hookerr.ErrDestinationNotAllowed) {
		t.Fatalf("expected DestinationNotAllowed with an empty list, got %v", err)
	}

	f.mustAllow(solana.NewWallet().PublicKey())
	if _, err := f.execute(10); !errors.Is(err, hookerr.ErrDestinationNotAllowed) {
		t.Fatalf("expected DestinationNotAllowed, got %v", err)
	}
	if !hookerr.IsRetryable(hookerr.ErrDestinationNotAllowed) {
		t.Error("policy rejections should be retryable")
	}
	if got := f.record().TransferCount; got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
}

func TestAddAllowedDestination(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()

	first := solana.NewWallet().PublicKey()
	second := solana.NewWallet().PublicKey()
	f.mustAllow(first)
	f.mustAllow(second)

	stranger := solana.NewWallet().PublicKey()
	if err := f.allowAs(stranger, true, stranger); !errors.Is(err, hookerr.ErrUnauthorized) {
		t.Errorf("expected Unauthorized for a non-authority, got %v", err)
	}
	if err := f.allowAs(f.payer, false, stranger); !errors.Is(err, hookerr.ErrUnauthorized) {
		t.Errorf("expected Unauthorized for an unsigned authority, got %v", err)
	}

	rec := f.record()
	if len(rec.AllowList) != 2 || !rec.AllowList[0].Equals(first) || !rec.AllowList[1].Equals(second) {
		t.Errorf("expected [first second], got %v", rec.AllowListStrings())
	}
}

func TestAllowListCapacity(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()

	for i := 0; i < policy.MaxAllowListEntries; i++ {
		f.mustAllow(solana.NewWallet().PublicKey())
	}

	err := f.allowAs(f.payer, true, solana.NewWallet().PublicKey())
	if !errors.Is(err, hookerr.ErrCapacityExceeded) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}
	if got := len(f.record().AllowList); got != policy.MaxAllowListEntries {
		t.Errorf("expected %d entries, got %d", policy.MaxAllowListEntries, got)
	}
}

func TestReinitializeFails(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()
	f.mustAllow(f.dest)

	before, err := f.store.GetAccount(context.Background(), f.descriptor)
	if err != nil {
		t.Fatalf("failed to load descriptor: %v", err)
	}

	if _, err := f.initialize(); !errors.Is(err, hookerr.ErrAlreadyInitialized) {
		t.Fatalf("expected AlreadyInitialized, got %v", err)
	}

	after, err := f.store.GetAccount(context.Background(), f.descriptor)
	if err != nil {
		t.Fatalf("failed to load descriptor: %v", err)
	}
	if !bytes.Equal(before.Data, after.Data) || before.Lamports != after.Lamports {
		t.Error("descriptor changed on re-initialization")
	}
	if len(f.record().AllowList) != 1 {
		t.Error("policy record changed on re-initialization")
	}
}

func TestInitializeSecondMintKeepsPolicy(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()
	f.mustAllow(f.dest)

	other := solana.NewWallet().PublicKey()
	desc, _ := address.Descriptor(other, programID)

	var result *InitializeResult
	err := f.update(func(tx *ledger.Tx) error {
		if _, err := token.CreateMint(tx, f.payer, other, f.payer, 0, solana.TokenProgramID); err != nil {
			return err
		}
		metas := f.initMetas()
		metas[1] = solana.NewAccountMeta(desc.Address, true, false)
		metas[2] = solana.NewAccountMeta(other, false, false)

		var err error
		result, err = f.proc.InitializeDescriptor(context.Background(), tx, metas)
		return err
	})
	if err != nil {
		t.Fatalf("failed to initialize second mint: %v", err)
	}
	if result.PolicyCreated {
		t.Error("expected existing policy account to be reused")
	}
	if len(f.record().AllowList) != 1 {
		t.Error("expected policy record to be untouched")
	}
}

func TestInitializeDescriptorContent(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()

	acct, err := f.store.GetAccount(context.Background(), f.descriptor)
	if err != nil {
		t.Fatalf("failed to load descriptor: %v", err)
	}
	if len(acct.Data) != 51 {
		t.Errorf("expected 51 byte descriptor, got %d", len(acct.Data))
	}
	if !acct.Owner.Equals(programID) {
		t.Errorf("expected descriptor owned by the program, got %s", acct.Owner)
	}
	if acct.Lamports != ledger.MinimumBalance(51) {
		t.Errorf("expected rent-exempt balance %d, got %d", ledger.MinimumBalance(51), acct.Lamports)
	}

	pol, err := f.store.GetAccount(context.Background(), f.policy)
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	if len(pol.Data) != policy.AccountSize || pol.Lamports != ledger.MinimumBalance(policy.AccountSize) {
		t.Errorf("unexpected policy allocation: %d bytes, %d lamports", len(pol.Data), pol.Lamports)
	}
}

func TestResolveExecuteAccounts(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()

	err := f.store.View(context.Background(), func(tx *ledger.Tx) error {
		metas, err := ResolveExecuteAccounts(tx.Load, programID, f.transfer(), executeData(1))
		if err != nil {
			return err
		}
		if len(metas) != FixedExecuteAccounts+1 {
			t.Fatalf("expected %d accounts, got %d", FixedExecuteAccounts+1, len(metas))
		}
		if !metas[IndexDescriptor].PublicKey.Equals(f.descriptor) {
			t.Errorf("expected descriptor at index %d", IndexDescriptor)
		}
		extra := metas[FixedExecuteAccounts]
		if !extra.PublicKey.Equals(f.policy) || !extra.IsWritable || extra.IsSigner {
			t.Errorf("expected writable policy account, got %+v", extra)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
}

func TestExecuteBindingErrors(t *testing.T) {
	f := newFixture(t)
	f.mustInitialize()
	f.mustAllow(f.dest)

	stranger, _ := address.Policy(solana.NewWallet().PublicKey(), programID)

	tests := []struct {
		name    string
		edit    func([]*solana.AccountMeta) []*solana.AccountMeta
		wantErr error
	}{
		{
			name:    "too few accounts",
			edit:    func(m []*solana.AccountMeta) []*solana.AccountMeta { return m[:FixedExecuteAccounts] },
			wantErr: hookerr.ErrNotEnoughAccounts,
		},
		{
			name: "policy of another owner",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[FixedExecuteAccounts] = solana.NewAccountMeta(stranger.Address, true, false)
				return m
			},
			wantErr: hookerr.ErrAccountMismatch,
		},
		{
			name: "read-only policy account",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[FixedExecuteAccounts].IsWritable = false
				return m
			},
			wantErr: hookerr.ErrAccountMismatch,
		},
		{
			name: "wrong descriptor",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[IndexDescriptor] = solana.NewAccountMeta(f.policy, false, false)
				return m
			},
			wantErr: hookerr.ErrAccountMismatch,
		},
		{
			name: "owner does not own source",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[IndexOwner] = solana.NewAccountMeta(solana.NewWallet().PublicKey(), false, false)
				return m
			},
			wantErr: hookerr.ErrAccountMismatch,
		},
		{
			name: "missing destination",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[IndexDestination] = solana.NewAccountMeta(solana.NewWallet().PublicKey(), false, false)
				return m
			},
			wantErr: hookerr.ErrAccountNotFound,
		},
		{
			name: "mint passed as source",
			edit: func(m []*solana.AccountMeta) []*solana.AccountMeta {
				m[IndexSource] = solana.NewAccountMeta(f.mint, false, false)
				return m
			},
			wantErr: hookerr.ErrAccountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.executeWith(10, tt.edit)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if got := f.record().TransferCount; got != 0 {
		t.Errorf("expected count 0 after failed executions, got %d", got)
	}
}

func TestExecuteBeforeInitialize(t *testing.T) {
	f := newFixture(t)

	_, err := f.execute(1)
	if !errors.Is(err, hookerr.ErrAccountNotFound) {
		t.Errorf("expected AccountNotFound for a mint without descriptor, got %v", err)
	}
}

func TestInitializeBindingErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		edit    func([]*solana.AccountMeta)
		wantErr error
	}{
		{"payer not signing", func(m []*solana.AccountMeta) { m[0].IsSigner = false }, hookerr.ErrUnauthorized},
		{"unknown payer", func(m []*solana.AccountMeta) {
			m[0] = solana.NewAccountMeta(solana.NewWallet().PublicKey(), true, true)
		}, hookerr.ErrAccountNotFound},
		{"descriptor of another mint", func(m []*solana.AccountMeta) {
			m[1] = solana.NewAccountMeta(f.policy, true, false)
		}, hookerr.ErrAccountMismatch},
		{"policy of another owner", func(m []*solana.AccountMeta) {
			m[3] = solana.NewAccountMeta(f.descriptor, true, false)
		}, hookerr.ErrAccountMismatch},
		{"token account as mint", func(m []*solana.AccountMeta) {
			desc, _ := address.Descriptor(f.source, programID)
			m[1] = solana.NewAccountMeta(desc.Address, true, false)
			m[2] = solana.NewAccountMeta(f.source, false, false)
		}, hookerr.ErrAccountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.update(func(tx *ledger.Tx) error {
				metas := f.initMetas()
				tt.edit(metas)
				_, err := f.proc.InitializeDescriptor(context.Background(), tx, metas)
				return err
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	err := f.update(func(tx *ledger.Tx) error {
		_, err := f.proc.InitializeDescriptor(context.Background(), tx, f.initMetas()[:3])
		return err
	})
	if !errors.Is(err, hookerr.ErrNotEnoughAccounts) {
		t.Errorf("expected NotEnoughAccounts, got %v", err)
	}
}

func TestExecutePublishesEvents(t *testing.T) {
	cfg := telemetry.DisabledConfig()
	cfg.Events.Enabled = true
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}

	var events []telemetry.Event
	tel.Events.Subscribe(func(e telemetry.Event) { events = append(events, e) }, nil)

	f := newFixture(t, WithTelemetry(tel))
	f.mustInitialize()
	f.mustAllow(f.dest)
	if _, err := f.execute(5); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	_, _ = f.execute(500)

	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []string{
		telemetry.EventTypeDescriptorInitialized,
		telemetry.EventTypeAllowListUpdated,
		telemetry.EventTypeHookExecuted,
		telemetry.EventTypeHookRejected,
	}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
	if events[2].Data["transfer_count"] != uint64(1) {
		t.Errorf("expected transfer_count 1, got %v", events[2].Data["transfer_count"])
	}
	if events[3].Data["code"] != string(hookerr.CodeAmountExceedsLimit) {
		t.Errorf("expected rejection code, got %v", events[3].Data["code"])
	}
}

func TestRolledBackExecutePublishesNothing(t *testing.T) {
	cfg := telemetry.DisabledConfig()
	cfg.Events.Enabled = true
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}

	f := newFixture(t, WithTelemetry(tel))
	f.mustInitialize()
	f.mustAllow(f.dest)

	var events []telemetry.Event
	tel.Events.Subscribe(func(e telemetry.Event) { events = append(events, e) }, nil)

	boom := errors.New("boom")
	err = f.update(func(tx *ledger.Tx) error {
		data := executeData(5)
		metas, err := ResolveExecuteAccounts(tx.Load, programID, f.transfer(), data)
		if err != nil {
			return err
		}
		if _, err := f.proc.ExecuteHook(context.Background(), tx, metas, data, 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if len(events) != 0 {
		t.Errorf("expected no events after rollback, got %d", len(events))
	}
	if got := f.record().TransferCount; got != 0 {
		t.Errorf("expected transfer count 0 after rollback, got %d", got)
	}
}
