package instruction

import (
	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/descriptor"
	"github.com/openfroyo/hookguard/pkg/hook"
)

// NewInitialize builds the descriptor initialization for mint, paid by payer.
// Accounts: [payer (signer), descriptor, mint, payer's policy account].
func NewInitialize(programID, payer, mint solana.PublicKey) (*solana.GenericInstruction, error) {
	desc, err := address.Descriptor(mint, programID)
	if err != nil {
		return nil, err
	}
	pol, err := address.Policy(payer, programID)
	if err != nil {
		return nil, err
	}

	data, err := Encode(InitializeExtraAccountMetaList{})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(desc.Address, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(pol.Address, true, false),
	}, data), nil
}

// NewAddToWhiteList builds an allow-list append signed by authority.
// Accounts: [authority's policy account, authority (signer)].
func NewAddToWhiteList(programID, authority, destination solana.PublicKey) (*solana.GenericInstruction, error) {
	pol, err := address.Policy(authority, programID)
	if err != nil {
		return nil, err
	}

	data, err := Encode(AddToWhiteList{Destination: destination})
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(pol.Address, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}

// NewExecute builds the interface execute instruction for a transfer,
// resolving its extra accounts from the mint's descriptor through load.
func NewExecute(load descriptor.DataLoader, programID solana.PublicKey, t hook.TransferAccounts, amount uint64) (*solana.GenericInstruction, error) {
	return newTransferCheck(load, programID, t, Execute{Amount: amount})
}

// NewTransferHook is NewExecute with the program's own transfer_hook entry
// point.
func NewTransferHook(load descriptor.DataLoader, programID solana.PublicKey, t hook.TransferAccounts, amount uint64) (*solana.GenericInstruction, error) {
	return newTransferCheck(load, programID, t, TransferHook{Amount: amount})
}

func newTransferCheck(load descriptor.DataLoader, programID solana.PublicKey, t hook.TransferAccounts, ix Instruction) (*solana.GenericInstruction, error) {
	data, err := Encode(ix)
	if err != nil {
		return nil, err
	}

	metas, err := hook.ResolveExecuteAccounts(load, programID, t, data)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(programID, metas, data), nil
}
