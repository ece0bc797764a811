package hook

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/token"
)

// ExecuteBinding is the validated account set of an execute instruction.
type ExecuteBinding struct {
	TransferAccounts

	Descriptor solana.PublicKey
	Policy     *ledger.Account
	Record     *policy.Account
}

// InitializeBinding is the validated account set of a descriptor
// initialization: [payer, descriptor, mint, policy].
type InitializeBinding struct {
	Payer      solana.PublicKey
	Descriptor solana.PublicKey
	Mint       solana.PublicKey
	Policy     solana.PublicKey
}

// AllowBinding is the validated account set of an allow-list append:
// [policy, caller].
type AllowBinding struct {
	Policy *ledger.Account
	Record *policy.Account
	Caller solana.PublicKey
}

// Binder checks that the accounts supplied to an instruction are the ones
// the program expects before any state is touched.
type Binder struct {
	programID    solana.PublicKey
	tokenProgram solana.PublicKey
}

// NewBinder returns a Binder for the hook program and the token program
// whose accounts it guards.
func NewBinder(programID, tokenProgram solana.PublicKey) *Binder {
	return &Binder{programID: programID, tokenProgram: tokenProgram}
}

// BindExecute validates accounts 0..5 of an execute instruction: source,
// mint, destination, owner, descriptor and policy. The supplied extras must
// be exactly what the mint's descriptor resolves to.
func (b *Binder) BindExecute(tx *ledger.Tx, accounts []*solana.AccountMeta, instructionData []byte) (*ExecuteBinding, error) {
	if len(accounts) < FixedExecuteAccounts+1 {
		return nil, hookerr.Newf(hookerr.CodeNotEnoughAccounts, "execute needs %d accounts, got %d", FixedExecuteAccounts+1, len(accounts))
	}

	t := TransferAccounts{
		Source:      accounts[IndexSource].PublicKey,
		Mint:        accounts[IndexMint].PublicKey,
		Destination: accounts[IndexDestination].PublicKey,
		Owner:       accounts[IndexOwner].PublicKey,
	}

	if _, err := token.LoadMint(tx, t.Mint, b.tokenProgram); err != nil {
		return nil, err
	}
	source, err := token.LoadAccount(tx, t.Source, b.tokenProgram)
	if err != nil {
		return nil, err
	}
	dest, err := token.LoadAccount(tx, t.Destination, b.tokenProgram)
	if err != nil {
		return nil, err
	}

	if !source.Mint.Equals(t.Mint) {
		return nil, mismatch(t.Source, "source token account holds mint %s", source.Mint)
	}
	if !dest.Mint.Equals(t.Mint) {
		return nil, mismatch(t.Destination, "destination token account holds mint %s", dest.Mint)
	}
	if !source.Owner.Equals(t.Owner) {
		return nil, mismatch(t.Source, "source token account is owned by %s", source.Owner)
	}

	desc, err := address.Descriptor(t.Mint, b.programID)
	if err != nil {
		return nil, err
	}
	if got := accounts[IndexDescriptor].PublicKey; !got.Equals(desc.Address) {
		return nil, mismatch(got, "descriptor account is not derived from mint %s", t.Mint)
	}

	expected, err := ResolveExecuteAccounts(tx.Load, b.programID, t, instructionData)
	if err != nil {
		return nil, err
	}
	if len(accounts) < len(expected) {
		return nil, hookerr.Newf(hookerr.CodeNotEnoughAccounts, "descriptor resolves %d accounts, got %d", len(expected), len(accounts))
	}
	for i := FixedExecuteAccounts; i < len(expected); i++ {
		if !accounts[i].PublicKey.Equals(expected[i].PublicKey) {
			return nil, mismatch(accounts[i].PublicKey, "extra account %d does not match the descriptor", i-FixedExecuteAccounts)
		}
	}

	policyMeta := accounts[FixedExecuteAccounts]
	if !policyMeta.IsWritable {
		return nil, mismatch(policyMeta.PublicKey, "policy account must be writable")
	}
	policyKey := policyMeta.PublicKey
	derived, err := address.Policy(t.Owner, b.programID)
	if err != nil {
		return nil, err
	}
	if !policyKey.Equals(derived.Address) {
		return nil, mismatch(policyKey, "policy account is not derived from owner %s", t.Owner)
	}

	raw, record, err := b.loadPolicy(tx, policyKey)
	if err != nil {
		return nil, err
	}

	return &ExecuteBinding{
		TransferAccounts: t,
		Descriptor:       desc.Address,
		Policy:           raw,
		Record:           record,
	}, nil
}

// BindInitialize validates [payer, descriptor, mint, policy]. The payer must
// sign; a missing signature is Unauthorized.
func (b *Binder) BindInitialize(tx *ledger.Tx, accounts []*solana.AccountMeta) (*InitializeBinding, error) {
	if len(accounts) < 4 {
		return nil, hookerr.Newf(hookerr.CodeNotEnoughAccounts, "initialize needs 4 accounts, got %d", len(accounts))
	}

	bind := &InitializeBinding{
		Payer:      accounts[0].PublicKey,
		Descriptor: accounts[1].PublicKey,
		Mint:       accounts[2].PublicKey,
		Policy:     accounts[3].PublicKey,
	}

	if !accounts[0].IsSigner {
		return nil, hookerr.New(hookerr.CodeUnauthorized, "payer must sign").WithAccount(bind.Payer.String())
	}
	if _, err := tx.GetAccount(bind.Payer); errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, hookerr.New(hookerr.CodeAccountNotFound, "payer does not exist").WithAccount(bind.Payer.String())
	} else if err != nil {
		return nil, err
	}

	desc, err := address.Descriptor(bind.Mint, b.programID)
	if err != nil {
		return nil, err
	}
	if !bind.Descriptor.Equals(desc.Address) {
		return nil, mismatch(bind.Descriptor, "descriptor account is not derived from mint %s", bind.Mint)
	}

	if _, err := token.LoadMint(tx, bind.Mint, b.tokenProgram); err != nil {
		return nil, err
	}

	derived, err := address.Policy(bind.Payer, b.programID)
	if err != nil {
		return nil, err
	}
	if !bind.Policy.Equals(derived.Address) {
		return nil, mismatch(bind.Policy, "policy account is not derived from payer %s", bind.Payer)
	}

	return bind, nil
}

// BindAllow validates [policy, caller]. The caller must sign and be the
// record's authority, otherwise the append is Unauthorized.
func (b *Binder) BindAllow(tx *ledger.Tx, accounts []*solana.AccountMeta) (*AllowBinding, error) {
	if len(accounts) < 2 {
		return nil, hookerr.Newf(hookerr.CodeNotEnoughAccounts, "allow-list update needs 2 accounts, got %d", len(accounts))
	}

	raw, record, err := b.loadPolicy(tx, accounts[0].PublicKey)
	if err != nil {
		return nil, err
	}

	derived, err := address.Policy(record.Authority, b.programID)
	if err != nil {
		return nil, err
	}
	if !raw.Address.Equals(derived.Address) {
		return nil, mismatch(raw.Address, "policy account is not derived from its authority %s", record.Authority)
	}

	caller := accounts[1]
	if !caller.IsSigner || !caller.PublicKey.Equals(record.Authority) {
		return nil, hookerr.New(hookerr.CodeUnauthorized, "caller is not the policy authority").
			WithAccount(caller.PublicKey.String())
	}

	return &AllowBinding{Policy: raw, Record: record, Caller: caller.PublicKey}, nil
}

func (b *Binder) loadPolicy(tx *ledger.Tx, key solana.PublicKey) (*ledger.Account, *policy.Account, error) {
	raw, err := tx.GetAccount(key)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, nil, hookerr.New(hookerr.CodeAccountNotFound, "policy account does not exist").WithAccount(key.String())
	}
	if err != nil {
		return nil, nil, err
	}
	if !raw.Owner.Equals(b.programID) {
		return nil, nil, mismatch(key, "policy account is owned by %s", raw.Owner)
	}

	record, err := policy.DecodeAccount(raw.Data)
	if err != nil {
		var herr *hookerr.Error
		if errors.As(err, &herr) {
			return nil, nil, herr.WithAccount(key.String())
		}
		return nil, nil, err
	}
	return raw, record, nil
}

func mismatch(account solana.PublicKey, format string, args ...interface{}) error {
	return hookerr.Newf(hookerr.CodeAccountMismatch, format, args...).WithAccount(account.String())
}
