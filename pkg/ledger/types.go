package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound is returned when an address holds no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInUse is returned when creating an account at an occupied address.
	ErrAccountInUse = errors.New("account already in use")

	// ErrInsufficientFunds is returned when a payer cannot cover rent.
	ErrInsufficientFunds = errors.New("insufficient funds for rent")
)

// Account is an addressable record: an owning program, a balance and an
// opaque byte payload whose size is fixed at creation.
type Account struct {
	Address   solana.PublicKey `json:"address"`
	Owner     solana.PublicKey `json:"owner"`
	Lamports  uint64           `json:"lamports"`
	Data      []byte           `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store defines the interface for the account ledger.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transactions. fn's changes are committed only if it returns nil.
	Update(ctx context.Context, fn func(tx *Tx) error) error
	View(ctx context.Context, fn func(tx *Tx) error) error

	// Reads outside a transaction
	GetAccount(ctx context.Context, addr solana.PublicKey) (*Account, error)
	ListAccounts(ctx context.Context, owner *solana.PublicKey, limit, offset int) ([]*Account, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
