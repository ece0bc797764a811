package hook

import (
	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/descriptor"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/seeds"
)

// Positions of the fixed accounts of an execute instruction.
const (
	IndexSource = iota
	IndexMint
	IndexDestination
	IndexOwner
	IndexDescriptor

	// FixedExecuteAccounts is the number of accounts that precede the
	// resolved extras.
	FixedExecuteAccounts
)

// TransferAccounts names the accounts of a transfer the hook guards.
type TransferAccounts struct {
	Source      solana.PublicKey
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
}

// ResolveExecuteAccounts computes the full account list of an execute
// instruction without running any hook logic: the four transfer accounts,
// the mint's descriptor account, then every extra account the descriptor
// resolves to. load supplies stored account data; instructionData is the
// encoded execute instruction.
func ResolveExecuteAccounts(load descriptor.DataLoader, programID solana.PublicKey, t TransferAccounts, instructionData []byte) ([]*solana.AccountMeta, error) {
	desc, err := address.Descriptor(t.Mint, programID)
	if err != nil {
		return nil, err
	}

	data, ok := load(desc.Address)
	if !ok {
		return nil, hookerr.New(hookerr.CodeAccountNotFound, "mint has no extra-account descriptor").
			WithAccount(desc.Address.String())
	}

	specs, err := descriptor.Decode(data)
	if err != nil {
		return nil, err
	}

	keys := []solana.PublicKey{t.Source, t.Mint, t.Destination, t.Owner, desc.Address}
	known := make([]seeds.Account, len(keys))
	metas := make([]*solana.AccountMeta, len(keys), len(keys)+len(specs))
	for i, key := range keys {
		known[i] = seeds.Account{Key: key}
		if data, ok := load(key); ok {
			known[i].Data = data
		}
		metas[i] = solana.NewAccountMeta(key, false, false)
	}

	extras, err := descriptor.ResolveAll(specs, programID, known, instructionData, load)
	if err != nil {
		return nil, err
	}

	return append(metas, extras...), nil
}
