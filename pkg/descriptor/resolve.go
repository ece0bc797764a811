package descriptor

import (
	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/seeds"
)

// DataLoader returns the stored data of an account, or false if the caller
// does not hold it.
type DataLoader func(key solana.PublicKey) ([]byte, bool)

// Resolve computes the account meta of spec from the accounts known so far.
func (spec AccountSpec) Resolve(programID solana.PublicKey, accounts []seeds.Account, instructionData []byte) (*solana.AccountMeta, error) {
	if spec.Address != nil {
		return solana.NewAccountMeta(*spec.Address, spec.IsWritable, spec.IsSigner), nil
	}

	resolved, err := seeds.Resolve(spec.Seeds, accounts, instructionData)
	if err != nil {
		return nil, err
	}

	derived, err := address.Find(resolved, programID)
	if err != nil {
		return nil, err
	}

	return solana.NewAccountMeta(derived.Address, spec.IsWritable, spec.IsSigner), nil
}

// ResolveAll resolves specs in order. Each resolved account is appended to the
// known accounts so later specs may refer to it; load supplies its data when
// available.
func ResolveAll(specs []AccountSpec, programID solana.PublicKey, accounts []seeds.Account, instructionData []byte, load DataLoader) ([]*solana.AccountMeta, error) {
	known := append([]seeds.Account(nil), accounts...)
	metas := make([]*solana.AccountMeta, 0, len(specs))

	for _, spec := range specs {
		meta, err := spec.Resolve(programID, known, instructionData)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)

		next := seeds.Account{Key: meta.PublicKey}
		if load != nil {
			if data, ok := load(meta.PublicKey); ok {
				next.Data = data
			}
		}
		known = append(known, next)
	}

	return metas, nil
}

// PolicySpecs returns the descriptor content written for every mint: one
// writable, non-signer account derived from "counter" and the 32 bytes at
// offset 32 of account 0, which is the owner field of the source token account.
func PolicySpecs() []AccountSpec {
	return []AccountSpec{
		Derived([]seeds.Seed{
			seeds.Literal([]byte(address.PolicySeedPrefix)),
			seeds.AccountData(0, 32, 32),
		}, false, true),
	}
}
