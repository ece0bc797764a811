package policy

import (
	"encoding/binary"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

const (
	// MaxAllowListEntries is the allow-list capacity of a policy account.
	MaxAllowListEntries = 8

	// accountHeaderSize covers the counter, the authority and the list length.
	accountHeaderSize = 8 + 32 + 4

	// AccountSize is the allocated size of a policy account.
	AccountSize = accountHeaderSize + MaxAllowListEntries*32
)

// Account is the per-authority policy record: a transfer counter and the
// destinations the authority allows transfers to.
//
// Layout: [u64 transfer_count][32-byte authority][u32 len][len x 32-byte entry],
// little endian, zero padded to AccountSize.
type Account struct {
	TransferCount uint64             `json:"transfer_count"`
	Authority     solana.PublicKey   `json:"authority"`
	AllowList     []solana.PublicKey `json:"allow_list"`
}

// NewAccount returns an empty record governed by authority.
func NewAccount(authority solana.PublicKey) *Account {
	return &Account{Authority: authority, AllowList: []solana.PublicKey{}}
}

// Encode serializes the account into AccountSize bytes.
func (a *Account) Encode() ([]byte, error) {
	if len(a.AllowList) > MaxAllowListEntries {
		return nil, hookerr.Newf(hookerr.CodeCapacityExceeded,
			"allow-list holds %d entries, capacity is %d", len(a.AllowList), MaxAllowListEntries)
	}

	buf := make([]byte, AccountSize)
	binary.LittleEndian.PutUint64(buf[0:8], a.TransferCount)
	copy(buf[8:40], a.Authority.Bytes())
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(a.AllowList)))

	off := accountHeaderSize
	for _, entry := range a.AllowList {
		copy(buf[off:off+32], entry.Bytes())
		off += 32
	}
	return buf, nil
}

// DecodeAccount parses policy account data.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) < accountHeaderSize {
		return nil, hookerr.Newf(hookerr.CodeAccountMismatch, "policy account of %d bytes is shorter than its header", len(data))
	}

	n := binary.LittleEndian.Uint32(data[40:44])
	if uint64(n)*32 > uint64(len(data)-accountHeaderSize) {
		return nil, hookerr.Newf(hookerr.CodeAccountMismatch, "policy account of %d bytes cannot hold %d entries", len(data), n)
	}

	a := &Account{
		TransferCount: binary.LittleEndian.Uint64(data[0:8]),
		Authority:     solana.PublicKeyFromBytes(data[8:40]),
		AllowList:     make([]solana.PublicKey, 0, n),
	}

	off := accountHeaderSize
	for i := uint32(0); i < n; i++ {
		a.AllowList = append(a.AllowList, solana.PublicKeyFromBytes(data[off:off+32]))
		off += 32
	}
	return a, nil
}

// Allows reports whether dest is on the allow-list.
func (a *Account) Allows(dest solana.PublicKey) bool {
	for _, entry := range a.AllowList {
		if entry.Equals(dest) {
			return true
		}
	}
	return false
}

// Allow appends dest to the allow-list. Duplicates are kept.
func (a *Account) Allow(dest solana.PublicKey) error {
	if len(a.AllowList) >= MaxAllowListEntries {
		return hookerr.Newf(hookerr.CodeCapacityExceeded,
			"allow-list is full at %d entries", MaxAllowListEntries)
	}
	a.AllowList = append(a.AllowList, dest)
	return nil
}

// RecordTransfer increments the transfer counter.
func (a *Account) RecordTransfer() error {
	if a.TransferCount == math.MaxUint64 {
		return hookerr.New(hookerr.CodeArithmeticOverflow, "transfer counter overflow")
	}
	a.TransferCount++
	return nil
}

// AllowListStrings returns the allow-list as base58 strings.
func (a *Account) AllowListStrings() []string {
	out := make([]string, len(a.AllowList))
	for i, entry := range a.AllowList {
		out[i] = entry.String()
	}
	return out
}
