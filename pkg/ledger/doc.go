// Package ledger provides the account store the hook runs against. Accounts
// live in SQLite and every instruction executes inside one transaction, so a
// failed instruction leaves no partial writes behind.
package ledger
