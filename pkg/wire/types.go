// Package wire defines the JSON-lines protocol spoken by "hookguard serve".
//
// Input is one Instruction per line. Output is one Message per line, each
// wrapping a READY, RESULT or EVENT payload.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

// MessageType is the kind of an output message.
type MessageType string

const (
	// MessageTypeReady is sent once before any instruction is read.
	MessageTypeReady MessageType = "READY"
	// MessageTypeResult answers one input instruction.
	MessageTypeResult MessageType = "RESULT"
	// MessageTypeEvent carries a published telemetry event.
	MessageTypeEvent MessageType = "EVENT"
)

// Validate checks that the message type is known.
func (t MessageType) Validate() error {
	switch t {
	case MessageTypeReady, MessageTypeResult, MessageTypeEvent:
		return nil
	default:
		return fmt.Errorf("unknown message type: %q", t)
	}
}

// Message is the envelope of every output line.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage announces the program the server dispatches for.
type ReadyMessage struct {
	Version   string           `json:"version"`
	ProgramID solana.PublicKey `json:"program_id"`
	PID       int              `json:"pid"`
}

// Account is one account meta of a submitted instruction.
type Account struct {
	Pubkey     solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"is_signer"`
	IsWritable bool             `json:"is_writable"`
}

// Instruction is one line of input. Data is base64 encoded.
type Instruction struct {
	ProgramID solana.PublicKey `json:"program_id"`
	Accounts  []Account        `json:"accounts"`
	Data      string           `json:"data"`
}

// FromInstruction converts a built instruction to its wire form.
func FromInstruction(ix solana.Instruction) (*Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction data: %w", err)
	}
	w := &Instruction{
		ProgramID: ix.ProgramID(),
		Accounts:  make([]Account, 0, len(ix.Accounts())),
		Data:      base64.StdEncoding.EncodeToString(data),
	}
	for _, meta := range ix.Accounts() {
		w.Accounts = append(w.Accounts, Account{
			Pubkey:     meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		})
	}
	return w, nil
}

// Solana converts the wire form back to an instruction the dispatcher
// accepts.
func (w *Instruction) Solana() (*solana.GenericInstruction, error) {
	data, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return nil, hookerr.Wrap(hookerr.CodeMalformedInstruction, "invalid instruction data encoding", err)
	}
	metas := make(solana.AccountMetaSlice, len(w.Accounts))
	for i, a := range w.Accounts {
		metas[i] = solana.NewAccountMeta(a.Pubkey, a.IsWritable, a.IsSigner)
	}
	return solana.NewInstruction(w.ProgramID, metas, data), nil
}

// Result answers the instruction read from Line.
type Result struct {
	Line        int          `json:"line"`
	Instruction string       `json:"instruction,omitempty"`
	OK          bool         `json:"ok"`
	Code        hookerr.Code `json:"code,omitempty"`
	Number      uint32       `json:"error_number,omitempty"`
	Error       string       `json:"error,omitempty"`
	Detail      interface{}  `json:"result,omitempty"`
}

// Failed builds the result for an instruction that returned err.
func Failed(line int, err error) *Result {
	res := &Result{
		Line:  line,
		Error: err.Error(),
		Code:  hookerr.CodeOf(err),
	}
	var herr *hookerr.Error
	if errors.As(err, &herr) {
		res.Number = herr.Number()
	}
	return res
}

// Succeeded builds the result for a dispatched instruction.
func Succeeded(line int, name string, detail interface{}) *Result {
	return &Result{Line: line, Instruction: name, OK: true, Detail: detail}
}
