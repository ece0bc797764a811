package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/telemetry"
)

// Encoder writes output messages to an io.Writer. It is safe for use by
// several goroutines.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one message line and flushes it.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}

	var dataBytes []byte
	if data != nil {
		var err error
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msgBytes, err := json.Marshal(Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// EncodeReady sends a READY message.
func (e *Encoder) EncodeReady(ready *ReadyMessage) error {
	return e.Encode(MessageTypeReady, ready)
}

// EncodeResult sends a RESULT message.
func (e *Encoder) EncodeResult(res *Result) error {
	return e.Encode(MessageTypeResult, res)
}

// EncodeEvent sends an EVENT message.
func (e *Encoder) EncodeEvent(event telemetry.Event) error {
	return e.Encode(MessageTypeEvent, event)
}

// Decoder reads input instructions from an io.Reader.
type Decoder struct {
	r    *bufio.Scanner
	line int
}

// NewDecoder creates a new decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	return &Decoder{r: scanner}
}

// Line returns the number of the last non-empty line read, starting at 1.
func (d *Decoder) Line() int {
	return d.line
}

// Decode reads the next instruction, skipping empty lines. It returns io.EOF
// at the end of input. A line that is not a valid instruction yields a
// MalformedInstruction error and leaves the decoder usable; any other error
// is fatal.
func (d *Decoder) Decode() (*Instruction, error) {
	for {
		if !d.r.Scan() {
			if err := d.r.Err(); err != nil {
				return nil, fmt.Errorf("scan error: %w", err)
			}
			return nil, io.EOF
		}
		if len(d.r.Bytes()) > 0 {
			break
		}
	}
	d.line++

	var ix Instruction
	if err := json.Unmarshal(d.r.Bytes(), &ix); err != nil {
		return nil, hookerr.Wrap(hookerr.CodeMalformedInstruction, "invalid instruction JSON", err)
	}
	return &ix, nil
}
