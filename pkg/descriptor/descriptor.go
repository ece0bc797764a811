// Package descriptor implements the extra-accounts descriptor: the list of
// account specifications a caller reads before building a transfer so that it
// can attach every account the hook will need.
//
// Layout:
//
//	[8-byte execute discriminator][u32 length][u32 count][count x 35-byte entry]
//
// where length covers the count field and the entries, and an entry is
//
//	[u8 kind][32-byte address config][u8 is_signer][u8 is_writable]
//
// All integers are little endian.
package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/discriminator"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/seeds"
)

const (
	// HeaderSize covers the discriminator, the length and the entry count.
	HeaderSize = discriminator.Size + 4 + 4

	// EntrySize is the encoded size of one AccountSpec.
	EntrySize = 1 + seeds.ConfigSize + 1 + 1
)

// Entry kinds.
const (
	KindFixed          uint8 = 0
	KindProgramDerived uint8 = 1
)

// AccountSpec describes one extra account.
type AccountSpec struct {
	// Address is set for a fixed account; nil means the address is derived
	// from Seeds under the hook program.
	Address *solana.PublicKey `json:"address,omitempty"`

	// Seeds is the derivation rule of a program-derived account.
	Seeds []seeds.Seed `json:"seeds,omitempty"`

	IsSigner   bool `json:"is_signer"`
	IsWritable bool `json:"is_writable"`
}

// Fixed returns a spec for a known address.
func Fixed(addr solana.PublicKey, isSigner, isWritable bool) AccountSpec {
	return AccountSpec{Address: &addr, IsSigner: isSigner, IsWritable: isWritable}
}

// Derived returns a spec for an address derived from list.
func Derived(list []seeds.Seed, isSigner, isWritable bool) AccountSpec {
	return AccountSpec{Seeds: list, IsSigner: isSigner, IsWritable: isWritable}
}

// SizeOf returns the account size needed to hold n specs.
func SizeOf(n int) int {
	return HeaderSize + n*EntrySize
}

// Encode serializes specs into a buffer of exactly SizeOf(len(specs)) bytes.
func Encode(specs []AccountSpec) ([]byte, error) {
	buf := make([]byte, SizeOf(len(specs)))

	copy(buf[0:discriminator.Size], discriminator.Execute[:])
	binary.LittleEndian.PutUint32(buf[8:12], uint32(4+len(specs)*EntrySize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(specs)))

	off := HeaderSize
	for i, spec := range specs {
		if err := putEntry(buf[off:off+EntrySize], spec); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		off += EntrySize
	}

	return buf, nil
}

// EncodeEntry serializes one spec into its 35-byte entry.
func EncodeEntry(spec AccountSpec) ([]byte, error) {
	entry := make([]byte, EntrySize)
	if err := putEntry(entry, spec); err != nil {
		return nil, err
	}
	return entry, nil
}

func putEntry(entry []byte, spec AccountSpec) error {
	if spec.Address != nil {
		entry[0] = KindFixed
		copy(entry[1:33], spec.Address.Bytes())
	} else {
		config, err := seeds.Pack(spec.Seeds)
		if err != nil {
			return err
		}
		entry[0] = KindProgramDerived
		copy(entry[1:33], config[:])
	}
	entry[33] = boolByte(spec.IsSigner)
	entry[34] = boolByte(spec.IsWritable)
	return nil
}

// Decode parses a descriptor account's data.
func Decode(data []byte) ([]AccountSpec, error) {
	if len(data) < HeaderSize {
		return nil, hookerr.Newf(hookerr.CodeMalformedDescriptor, "descriptor of %d bytes is shorter than its header", len(data))
	}
	if !discriminator.Execute.Matches(data) {
		return nil, hookerr.New(hookerr.CodeMalformedDescriptor, "descriptor is not bound to the execute instruction")
	}

	length := binary.LittleEndian.Uint32(data[8:12])
	count := binary.LittleEndian.Uint32(data[12:16])
	if uint64(length) != 4+uint64(count)*EntrySize {
		return nil, hookerr.Newf(hookerr.CodeMalformedDescriptor, "length %d does not match %d entries", length, count)
	}
	if uint64(len(data)) < uint64(HeaderSize)+uint64(count)*EntrySize {
		return nil, hookerr.Newf(hookerr.CodeMalformedDescriptor, "descriptor of %d bytes cannot hold %d entries", len(data), count)
	}

	specs := make([]AccountSpec, 0, count)
	off := HeaderSize
	for i := uint32(0); i < count; i++ {
		spec, err := DecodeEntry(data[off : off+EntrySize])
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
		off += EntrySize
	}

	return specs, nil
}

// DecodeEntry parses one 35-byte entry.
func DecodeEntry(entry []byte) (AccountSpec, error) {
	if len(entry) != EntrySize {
		return AccountSpec{}, hookerr.Newf(hookerr.CodeMalformedDescriptor, "entry of %d bytes, want %d", len(entry), EntrySize)
	}

	spec := AccountSpec{
		IsSigner:   entry[33] != 0,
		IsWritable: entry[34] != 0,
	}

	switch entry[0] {
	case KindFixed:
		addr := solana.PublicKeyFromBytes(entry[1:33])
		spec.Address = &addr
	case KindProgramDerived:
		var config [seeds.ConfigSize]byte
		copy(config[:], entry[1:33])
		list, err := seeds.Unpack(config)
		if err != nil {
			return AccountSpec{}, err
		}
		spec.Seeds = list
	default:
		return AccountSpec{}, hookerr.Newf(hookerr.CodeMalformedDescriptor, "unsupported entry kind %d", entry[0])
	}

	return spec, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
