// Package address derives the deterministic account addresses used by the
// transfer hook. Derivation is a pure keyed hash of the seed list and the
// owning program, so the same inputs always produce the same address.
package address

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed prefixes for the two program-owned account kinds.
const (
	DescriptorSeedPrefix = "extra-account-metas"
	PolicySeedPrefix     = "counter"
)

// DefaultProgramID is the address the hook program is deployed at.
var DefaultProgramID = solana.MustPublicKeyFromBase58("DrWbQtYJGtsoRwzKqAbHKHKsCJJfpysudF39GBVFSxub")

// Derived is a program-derived address with its bump.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Find derives the address for seeds under programID.
func Find(seeds [][]byte, programID solana.PublicKey) (Derived, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return Derived{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}

// DescriptorSeeds returns the seeds of the descriptor account for mint.
func DescriptorSeeds(mint solana.PublicKey) [][]byte {
	return [][]byte{[]byte(DescriptorSeedPrefix), mint.Bytes()}
}

// PolicySeeds returns the seeds of the policy account for owner.
func PolicySeeds(owner solana.PublicKey) [][]byte {
	return [][]byte{[]byte(PolicySeedPrefix), owner.Bytes()}
}

// Descriptor derives the descriptor account address for mint.
func Descriptor(mint, programID solana.PublicKey) (Derived, error) {
	return Find(DescriptorSeeds(mint), programID)
}

// Policy derives the policy account address for owner.
func Policy(owner, programID solana.PublicKey) (Derived, error) {
	return Find(PolicySeeds(owner), programID)
}
