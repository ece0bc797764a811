// Package token holds the mint and token account layouts of the token engine
// that invokes the hook, and helpers to create those accounts in a ledger.
// Balance movement belongs to the token engine and is not modelled here.
package token

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

const (
	// MintSize is the encoded size of a Mint.
	MintSize = 82

	// AccountSize is the encoded size of a token Account.
	AccountSize = 165

	// OwnerOffset is the byte offset of the owner field in a token Account.
	OwnerOffset = 32
)

// AccountState is the lifecycle state of a token account.
type AccountState uint8

const (
	StateUninitialized AccountState = 0
	StateInitialized   AccountState = 1
	StateFrozen        AccountState = 2
)

// Mint describes a token.
type Mint struct {
	MintAuthority   *solana.PublicKey `json:"mint_authority,omitempty"`
	Supply          uint64            `json:"supply"`
	Decimals        uint8             `json:"decimals"`
	IsInitialized   bool              `json:"is_initialized"`
	FreezeAuthority *solana.PublicKey `json:"freeze_authority,omitempty"`
}

// Account is a holding of one mint by one owner.
type Account struct {
	Mint            solana.PublicKey  `json:"mint"`
	Owner           solana.PublicKey  `json:"owner"`
	Amount          uint64            `json:"amount"`
	Delegate        *solana.PublicKey `json:"delegate,omitempty"`
	State           AccountState      `json:"state"`
	IsNative        *uint64           `json:"is_native,omitempty"`
	DelegatedAmount uint64            `json:"delegated_amount"`
	CloseAuthority  *solana.PublicKey `json:"close_authority,omitempty"`
}

// Encode serializes the mint into MintSize bytes.
func (m *Mint) Encode() []byte {
	buf := make([]byte, MintSize)
	putOptionKey(buf[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(buf[36:44], m.Supply)
	buf[44] = m.Decimals
	if m.IsInitialized {
		buf[45] = 1
	}
	putOptionKey(buf[46:82], m.FreezeAuthority)
	return buf
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, hookerr.Newf(hookerr.CodeAccountMismatch, "mint data of %d bytes, want %d", len(data), MintSize)
	}
	m := &Mint{
		MintAuthority:   optionKey(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] != 0,
		FreezeAuthority: optionKey(data[46:82]),
	}
	if !m.IsInitialized {
		return nil, hookerr.New(hookerr.CodeAccountMismatch, "mint is not initialized")
	}
	return m, nil
}

// Encode serializes the account into AccountSize bytes.
func (a *Account) Encode() []byte {
	buf := make([]byte, AccountSize)
	copy(buf[0:32], a.Mint.Bytes())
	copy(buf[32:64], a.Owner.Bytes())
	binary.LittleEndian.PutUint64(buf[64:72], a.Amount)
	putOptionKey(buf[72:108], a.Delegate)
	buf[108] = byte(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(buf[109:113], 1)
		binary.LittleEndian.PutUint64(buf[113:121], *a.IsNative)
	}
	binary.LittleEndian.PutUint64(buf[121:129], a.DelegatedAmount)
	putOptionKey(buf[129:165], a.CloseAuthority)
	return buf
}

// DecodeAccount parses token account data.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, hookerr.Newf(hookerr.CodeAccountMismatch, "token account data of %d bytes, want %d", len(data), AccountSize)
	}
	a := &Account{
		Mint:            solana.PublicKeyFromBytes(data[0:32]),
		Owner:           solana.PublicKeyFromBytes(data[32:64]),
		Amount:          binary.LittleEndian.Uint64(data[64:72]),
		Delegate:        optionKey(data[72:108]),
		State:           AccountState(data[108]),
		DelegatedAmount: binary.LittleEndian.Uint64(data[121:129]),
		CloseAuthority:  optionKey(data[129:165]),
	}
	if binary.LittleEndian.Uint32(data[109:113]) == 1 {
		v := binary.LittleEndian.Uint64(data[113:121])
		a.IsNative = &v
	}
	if a.State == StateUninitialized {
		return nil, hookerr.New(hookerr.CodeAccountMismatch, "token account is not initialized")
	}
	return a, nil
}

// putOptionKey writes a 4-byte tag followed by the key, or zeros for none.
func putOptionKey(dst []byte, key *solana.PublicKey) {
	if key == nil {
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], key.Bytes())
}

func optionKey(src []byte) *solana.PublicKey {
	if binary.LittleEndian.Uint32(src[0:4]) != 1 {
		return nil
	}
	k := solana.PublicKeyFromBytes(src[4:36])
	return &k
}
