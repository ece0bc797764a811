package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Tx is an open ledger transaction. It is only valid inside the function
// passed to Update or View.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	onCommit []func()
}

// OnCommit registers fn to run after the transaction commits. It never runs
// for a rolled back or read-only transaction.
func (t *Tx) OnCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// Context returns the context the transaction was opened with.
func (t *Tx) Context() context.Context {
	return t.ctx
}

// GetAccount retrieves an account by address
func (t *Tx) GetAccount(addr solana.PublicKey) (*Account, error) {
	return getAccount(t.ctx, t.tx, addr)
}

// Exists reports whether addr holds an account.
func (t *Tx) Exists(addr solana.PublicKey) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM accounts WHERE address = ?`, addr.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return n > 0, nil
}

// Load returns the data of addr, or false if no account exists there.
func (t *Tx) Load(addr solana.PublicKey) ([]byte, bool) {
	acct, err := t.GetAccount(addr)
	if err != nil {
		return nil, false
	}
	return acct.Data, true
}

// CreateAccount allocates a zeroed account of size bytes at addr owned by
// owner. The rent-exempt minimum is moved from payer to the new account.
func (t *Tx) CreateAccount(payer, addr, owner solana.PublicKey, size int) (*Account, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid account size %d", size)
	}

	exists, err := t.Exists(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}

	payerAcct, err := t.GetAccount(payer)
	if err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}

	rent := MinimumBalance(size)
	if payerAcct.Lamports < rent {
		return nil, fmt.Errorf("%w: payer %s holds %d, needs %d", ErrInsufficientFunds, payer, payerAcct.Lamports, rent)
	}

	payerAcct.Lamports -= rent
	if err := t.PutAccount(payerAcct); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acct := &Account{
		Address:   addr,
		Owner:     owner,
		Lamports:  rent,
		Data:      make([]byte, size),
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO accounts (address, owner, lamports, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = t.tx.ExecContext(t.ctx, query,
		acct.Address.String(),
		acct.Owner.String(),
		int64(acct.Lamports),
		acct.Data,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return acct, nil
}

// PutAccount writes the owner, balance and data of an existing account.
func (t *Tx) PutAccount(acct *Account) error {
	if acct.Lamports > math.MaxInt64 {
		return fmt.Errorf("balance %d of %s exceeds storable range", acct.Lamports, acct.Address)
	}

	query := `
		UPDATE accounts
		SET owner = ?, lamports = ?, data = ?, updated_at = ?
		WHERE address = ?
	`

	acct.UpdatedAt = time.Now().UTC()
	result, err := t.tx.ExecContext(t.ctx, query,
		acct.Owner.String(),
		int64(acct.Lamports),
		acct.Data,
		acct.UpdatedAt,
		acct.Address.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, acct.Address)
	}

	return nil
}

// Airdrop credits lamports to addr, creating an empty system account if
// nothing exists there yet.
func (t *Tx) Airdrop(addr solana.PublicKey, lamports uint64) (*Account, error) {
	acct, err := t.GetAccount(addr)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		now := time.Now().UTC()
		acct = &Account{
			Address:   addr,
			Owner:     solana.SystemProgramID,
			Data:      []byte{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = t.tx.ExecContext(t.ctx, `
			INSERT INTO accounts (address, owner, lamports, data, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?, ?)
		`, addr.String(), acct.Owner.String(), acct.Data, acct.CreatedAt, acct.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
	case err != nil:
		return nil, err
	}

	if lamports > math.MaxInt64-acct.Lamports {
		return nil, fmt.Errorf("airdrop of %d overflows balance of %s", lamports, addr)
	}
	acct.Lamports += lamports

	if err := t.PutAccount(acct); err != nil {
		return nil, err
	}
	return acct, nil
}
