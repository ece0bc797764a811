package token

import (
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/ledger"
)

// CreateMint allocates an initialized mint at addr owned by program.
func CreateMint(tx *ledger.Tx, payer, addr, authority solana.PublicKey, decimals uint8, program solana.PublicKey) (*Mint, error) {
	acct, err := tx.CreateAccount(payer, addr, program, MintSize)
	if err != nil {
		return nil, err
	}

	m := &Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true}
	acct.Data = m.Encode()
	if err := tx.PutAccount(acct); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAccount allocates an initialized token account at addr holding mint
// for owner. The mint must already exist under program.
func CreateAccount(tx *ledger.Tx, payer, addr, mint, owner, program solana.PublicKey) (*Account, error) {
	if _, err := LoadMint(tx, mint, program); err != nil {
		return nil, err
	}

	acct, err := tx.CreateAccount(payer, addr, program, AccountSize)
	if err != nil {
		return nil, err
	}

	a := &Account{Mint: mint, Owner: owner, State: StateInitialized}
	acct.Data = a.Encode()
	if err := tx.PutAccount(acct); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadMint reads the mint at addr and checks it belongs to program.
func LoadMint(tx *ledger.Tx, addr, program solana.PublicKey) (*Mint, error) {
	acct, err := loadOwned(tx, addr, program, "mint")
	if err != nil {
		return nil, err
	}
	m, err := DecodeMint(acct.Data)
	if err != nil {
		return nil, withAccount(err, addr)
	}
	return m, nil
}

// LoadAccount reads the token account at addr and checks it belongs to program.
func LoadAccount(tx *ledger.Tx, addr, program solana.PublicKey) (*Account, error) {
	acct, err := loadOwned(tx, addr, program, "token account")
	if err != nil {
		return nil, err
	}
	a, err := DecodeAccount(acct.Data)
	if err != nil {
		return nil, withAccount(err, addr)
	}
	return a, nil
}

func loadOwned(tx *ledger.Tx, addr, program solana.PublicKey, what string) (*ledger.Account, error) {
	acct, err := tx.GetAccount(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, hookerr.Newf(hookerr.CodeAccountNotFound, "%s does not exist", what).
			WithAccount(addr.String())
	}
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(program) {
		return nil, hookerr.Newf(hookerr.CodeAccountMismatch, "%s is owned by %s, want %s", what, acct.Owner, program).
			WithAccount(addr.String())
	}
	return acct, nil
}

func withAccount(err error, addr solana.PublicKey) error {
	var herr *hookerr.Error
	if errors.As(err, &herr) {
		return herr.WithAccount(addr.String())
	}
	return err
}
