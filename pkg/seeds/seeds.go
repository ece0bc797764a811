// Package seeds resolves the seed lists that derive extra account addresses.
//
// A seed is either fixed bytes or a reference into data the caller already
// holds when it assembles a transfer: a slice of the instruction data, the key
// of an earlier account, or a byte range of an earlier account's stored data.
// Resolution is pure: it reads its inputs and returns fresh byte slices.
package seeds

import (
	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

// ConfigSize is the size of the packed seed configuration of one account spec.
const ConfigSize = 32

// Kind tags a seed variant. The values are the tags used in the packed form.
type Kind uint8

const (
	KindLiteral         Kind = 1
	KindInstructionData Kind = 2
	KindAccountKey      Kind = 3
	KindAccountData     Kind = 4
)

// String returns the seed kind name.
func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindInstructionData:
		return "instruction_data"
	case KindAccountKey:
		return "account_key"
	case KindAccountData:
		return "account_data"
	default:
		return "unknown"
	}
}

// Seed is one element of a derivation rule.
type Seed struct {
	Kind Kind `json:"kind"`

	// Bytes holds the literal value for KindLiteral.
	Bytes []byte `json:"bytes,omitempty"`

	// Index is the account position for KindAccountKey and KindAccountData.
	Index uint8 `json:"index,omitempty"`

	// Offset is the first byte read for KindInstructionData and KindAccountData.
	Offset uint8 `json:"offset,omitempty"`

	// Length is the number of bytes read for KindInstructionData and KindAccountData.
	Length uint8 `json:"length,omitempty"`
}

// Literal returns a seed with fixed bytes.
func Literal(b []byte) Seed {
	return Seed{Kind: KindLiteral, Bytes: append([]byte(nil), b...)}
}

// InstructionData returns a seed reading length bytes of instruction data at offset.
func InstructionData(offset, length uint8) Seed {
	return Seed{Kind: KindInstructionData, Offset: offset, Length: length}
}

// AccountKey returns a seed yielding the key of the account at index.
func AccountKey(index uint8) Seed {
	return Seed{Kind: KindAccountKey, Index: index}
}

// AccountData returns a seed reading length bytes at offset of the data of the account at index.
func AccountData(index, offset, length uint8) Seed {
	return Seed{Kind: KindAccountData, Index: index, Offset: offset, Length: length}
}

// Account is an account known to the caller at resolution time.
type Account struct {
	Key  solana.PublicKey
	Data []byte
}

// Resolve returns the bytes of the seed.
func (s Seed) Resolve(accounts []Account, instructionData []byte) ([]byte, error) {
	switch s.Kind {
	case KindLiteral:
		return append([]byte(nil), s.Bytes...), nil

	case KindInstructionData:
		b, herr := slice(instructionData, s.Offset, s.Length, "instruction data")
		if herr != nil {
			return nil, herr
		}
		return b, nil

	case KindAccountKey:
		if int(s.Index) >= len(accounts) {
			return nil, hookerr.Newf(hookerr.CodeOutOfRange,
				"account index %d outside %d supplied accounts", s.Index, len(accounts))
		}
		return accounts[s.Index].Key.Bytes(), nil

	case KindAccountData:
		if int(s.Index) >= len(accounts) {
			return nil, hookerr.Newf(hookerr.CodeOutOfRange,
				"account index %d outside %d supplied accounts", s.Index, len(accounts))
		}
		acct := accounts[s.Index]
		b, herr := slice(acct.Data, s.Offset, s.Length, "account data")
		if herr != nil {
			return nil, herr.WithAccount(acct.Key.String())
		}
		return b, nil

	default:
		return nil, hookerr.Newf(hookerr.CodeMalformedDescriptor, "unknown seed kind %d", s.Kind)
	}
}

// Resolve resolves every seed in order.
func Resolve(list []Seed, accounts []Account, instructionData []byte) ([][]byte, error) {
	out := make([][]byte, 0, len(list))
	for _, s := range list {
		b, err := s.Resolve(accounts, instructionData)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func slice(data []byte, offset, length uint8, what string) ([]byte, *hookerr.Error) {
	end := int(offset) + int(length)
	if end > len(data) {
		return nil, hookerr.Newf(hookerr.CodeOutOfRange,
			"%s range [%d, %d) exceeds size %d", what, offset, end, len(data))
	}
	out := make([]byte, length)
	copy(out, data[offset:end])
	return out, nil
}
