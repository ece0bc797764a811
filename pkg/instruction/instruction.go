// Package instruction decodes, encodes and dispatches the hook program's
// instructions.
//
// Two families share one decoder. Program instructions are prefixed with
// sha256("global:<name>")[:8]; transfer-hook interface instructions with
// sha256("spl-transfer-hook-interface:<name>")[:8]. Anything else, and any
// payload of the wrong length, is MalformedInstruction.
package instruction

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/descriptor"
	"github.com/openfroyo/hookguard/pkg/discriminator"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

// Instruction names.
const (
	NameInitializeExtraAccountMetaList = "initialize_extra_account_meta_list"
	NameTransferHook                   = "transfer_hook"
	NameAddToWhiteList                 = "add_to_white_list"
	NameExecute                        = "execute"
	NameInitializeExtraAccountMetas    = "initialize-extra-account-metas"
	NameUpdateExtraAccountMetas        = "update-extra-account-metas"
)

// Program instruction discriminators.
var (
	InitializeExtraAccountMetaListDiscriminator = discriminator.New(discriminator.NamespaceGlobal, NameInitializeExtraAccountMetaList)
	TransferHookDiscriminator                   = discriminator.New(discriminator.NamespaceGlobal, NameTransferHook)
	AddToWhiteListDiscriminator                 = discriminator.New(discriminator.NamespaceGlobal, NameAddToWhiteList)
)

// Instruction is one decoded instruction. The concrete types below are the
// only implementations.
type Instruction interface {
	Name() string
	Discriminator() discriminator.Discriminator
	payload() ([]byte, error)
}

// InitializeExtraAccountMetaList writes a mint's descriptor and creates the
// payer's policy account.
type InitializeExtraAccountMetaList struct{}

// TransferHook is the program's own entry point for a transfer check.
type TransferHook struct {
	Amount uint64
}

// AddToWhiteList appends a destination to the caller's allow-list.
type AddToWhiteList struct {
	Destination solana.PublicKey
}

// Execute is the transfer-hook interface entry point called by the token
// program during a transfer.
type Execute struct {
	Amount uint64
}

// InitializeExtraAccountMetas is the interface's generic descriptor
// initialization. It decodes but is not supported.
type InitializeExtraAccountMetas struct {
	Specs []descriptor.AccountSpec
}

// UpdateExtraAccountMetas is the interface's descriptor update. It decodes
// but is not supported; descriptors are immutable.
type UpdateExtraAccountMetas struct {
	Specs []descriptor.AccountSpec
}

func (InitializeExtraAccountMetaList) Name() string { return NameInitializeExtraAccountMetaList }
func (TransferHook) Name() string                   { return NameTransferHook }
func (AddToWhiteList) Name() string                 { return NameAddToWhiteList }
func (Execute) Name() string                        { return NameExecute }
func (InitializeExtraAccountMetas) Name() string    { return NameInitializeExtraAccountMetas }
func (UpdateExtraAccountMetas) Name() string        { return NameUpdateExtraAccountMetas }

func (InitializeExtraAccountMetaList) Discriminator() discriminator.Discriminator {
	return InitializeExtraAccountMetaListDiscriminator
}
func (TransferHook) Discriminator() discriminator.Discriminator { return TransferHookDiscriminator }
func (AddToWhiteList) Discriminator() discriminator.Discriminator {
	return AddToWhiteListDiscriminator
}
func (Execute) Discriminator() discriminator.Discriminator { return discriminator.Execute }
func (InitializeExtraAccountMetas) Discriminator() discriminator.Discriminator {
	return discriminator.InitializeExtraMetas
}
func (UpdateExtraAccountMetas) Discriminator() discriminator.Discriminator {
	return discriminator.UpdateExtraMetas
}

func (InitializeExtraAccountMetaList) payload() ([]byte, error) { return nil, nil }
func (ix TransferHook) payload() ([]byte, error)              { return encodeAmount(ix.Amount), nil }
func (ix AddToWhiteList) payload() ([]byte, error)            { return ix.Destination.Bytes(), nil }
func (ix Execute) payload() ([]byte, error)                   { return encodeAmount(ix.Amount), nil }
func (ix InitializeExtraAccountMetas) payload() ([]byte, error) {
	return encodeSpecs(ix.Specs)
}
func (ix UpdateExtraAccountMetas) payload() ([]byte, error) { return encodeSpecs(ix.Specs) }

// Encode serializes ix with its discriminator.
func Encode(ix Instruction) ([]byte, error) {
	body, err := ix.payload()
	if err != nil {
		return nil, err
	}
	d := ix.Discriminator()
	return append(d.Bytes(), body...), nil
}

// Decode parses instruction data.
func Decode(data []byte) (Instruction, error) {
	if len(data) < discriminator.Size {
		return nil, hookerr.Newf(hookerr.CodeMalformedInstruction, "instruction data of %d bytes has no discriminator", len(data))
	}

	var d discriminator.Discriminator
	copy(d[:], data[:discriminator.Size])
	body := data[discriminator.Size:]

	switch d {
	case InitializeExtraAccountMetaListDiscriminator:
		if err := expectLen(NameInitializeExtraAccountMetaList, body, 0); err != nil {
			return nil, err
		}
		return InitializeExtraAccountMetaList{}, nil

	case TransferHookDiscriminator:
		amount, err := decodeAmount(NameTransferHook, body)
		if err != nil {
			return nil, err
		}
		return TransferHook{Amount: amount}, nil

	case AddToWhiteListDiscriminator:
		if err := expectLen(NameAddToWhiteList, body, solana.PublicKeyLength); err != nil {
			return nil, err
		}
		return AddToWhiteList{Destination: solana.PublicKeyFromBytes(body)}, nil

	case discriminator.Execute:
		amount, err := decodeAmount(NameExecute, body)
		if err != nil {
			return nil, err
		}
		return Execute{Amount: amount}, nil

	case discriminator.InitializeExtraMetas:
		specs, err := decodeSpecs(NameInitializeExtraAccountMetas, body)
		if err != nil {
			return nil, err
		}
		return InitializeExtraAccountMetas{Specs: specs}, nil

	case discriminator.UpdateExtraMetas:
		specs, err := decodeSpecs(NameUpdateExtraAccountMetas, body)
		if err != nil {
			return nil, err
		}
		return UpdateExtraAccountMetas{Specs: specs}, nil
	}

	return nil, hookerr.Newf(hookerr.CodeMalformedInstruction, "unknown instruction discriminator %x", d[:])
}

func expectLen(name string, body []byte, n int) error {
	if len(body) != n {
		return hookerr.Newf(hookerr.CodeMalformedInstruction, "%s expects %d payload bytes, got %d", name, n, len(body))
	}
	return nil
}

func encodeAmount(amount uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, amount)
}

func decodeAmount(name string, body []byte) (uint64, error) {
	if err := expectLen(name, body, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(body), nil
}

// encodeSpecs writes [u32 count][count x 35-byte entries].
func encodeSpecs(specs []descriptor.AccountSpec) ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(specs)))
	for _, spec := range specs {
		entry, err := descriptor.EncodeEntry(spec)
		if err != nil {
			return nil, err
		}
		buf = append(buf, entry...)
	}
	return buf, nil
}

func decodeSpecs(name string, body []byte) ([]descriptor.AccountSpec, error) {
	if len(body) < 4 {
		return nil, hookerr.Newf(hookerr.CodeMalformedInstruction, "%s payload has no entry count", name)
	}
	count := binary.LittleEndian.Uint32(body[:4])
	if uint64(len(body)) != 4+uint64(count)*descriptor.EntrySize {
		return nil, hookerr.Newf(hookerr.CodeMalformedInstruction, "%s payload of %d bytes does not hold %d entries", name, len(body), count)
	}

	specs := make([]descriptor.AccountSpec, 0, count)
	for off := 4; off < len(body); off += descriptor.EntrySize {
		spec, err := descriptor.DecodeEntry(body[off : off+descriptor.EntrySize])
		if err != nil {
			return nil, hookerr.Wrap(hookerr.CodeMalformedInstruction, name+" entry is invalid", err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
