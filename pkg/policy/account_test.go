package policy

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

func TestAccountSize(t *testing.T) {
	if AccountSize != 300 {
		t.Errorf("expected 300 bytes, got %d", AccountSize)
	}
}

func TestAccountLayout(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()

	a := NewAccount(authority)
	a.TransferCount = 3
	if err := a.Allow(dest); err != nil {
		t.Fatalf("failed to allow: %v", err)
	}

	data, err := a.Encode()
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if len(data) != AccountSize {
		t.Fatalf("expected %d bytes, got %d", AccountSize, len(data))
	}
	if got := binary.LittleEndian.Uint64(data[0:8]); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
	if got := solana.PublicKeyFromBytes(data[8:40]); !got.Equals(authority) {
		t.Errorf("expected authority at 8..40, got %s", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 1 {
		t.Errorf("expected list length 1, got %d", got)
	}
	if got := solana.PublicKeyFromBytes(data[44:76]); !got.Equals(dest) {
		t.Errorf("expected entry at 44..76, got %s", got)
	}

	decoded, err := DecodeAccount(data)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.TransferCount != 3 || !decoded.Authority.Equals(authority) {
		t.Errorf("unexpected decoded account %+v", decoded)
	}
	if !decoded.Allows(dest) {
		t.Error("expected destination to be allowed")
	}
	if decoded.Allows(authority) {
		t.Error("expected authority not to be allowed")
	}
}

func TestAllowKeepsOrderAndDuplicates(t *testing.T) {
	a := NewAccount(solana.NewWallet().PublicKey())
	first := solana.NewWallet().PublicKey()
	second := solana.NewWallet().PublicKey()

	for _, d := range []solana.PublicKey{first, second, first} {
		if err := a.Allow(d); err != nil {
			t.Fatalf("failed to allow: %v", err)
		}
	}

	want := []solana.PublicKey{first, second, first}
	if len(a.AllowList) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(a.AllowList))
	}
	for i := range want {
		if !a.AllowList[i].Equals(want[i]) {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], a.AllowList[i])
		}
	}
}

func TestAllowCapacity(t *testing.T) {
	a := NewAccount(solana.NewWallet().PublicKey())
	for i := 0; i < MaxAllowListEntries; i++ {
		if err := a.Allow(solana.NewWallet().PublicKey()); err != nil {
			t.Fatalf("entry %d: unexpected error: %v", i, err)
		}
	}

	err := a.Allow(solana.NewWallet().PublicKey())
	if !errors.Is(err, hookerr.ErrCapacityExceeded) {
		t.Errorf("expected CapacityExceeded, got %v", err)
	}
	if len(a.AllowList) != MaxAllowListEntries {
		t.Errorf("expected list to stay at %d, got %d", MaxAllowListEntries, len(a.AllowList))
	}

	// A full list still fits the allocation.
	if _, err := a.Encode(); err != nil {
		t.Errorf("failed to encode full list: %v", err)
	}
}

func TestRecordTransfer(t *testing.T) {
	a := NewAccount(solana.NewWallet().PublicKey())
	if err := a.RecordTransfer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TransferCount != 1 {
		t.Errorf("expected count 1, got %d", a.TransferCount)
	}

	a.TransferCount = math.MaxUint64
	if err := a.RecordTransfer(); !errors.Is(err, hookerr.ErrArithmeticOverflow) {
		t.Errorf("expected ArithmeticOverflow, got %v", err)
	}
	if a.TransferCount != math.MaxUint64 {
		t.Error("counter must not wrap")
	}
}

func TestDecodeAccountRejects(t *testing.T) {
	tooMany := make([]byte, AccountSize)
	binary.LittleEndian.PutUint32(tooMany[40:44], MaxAllowListEntries+1)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 20)},
		{"list past end", tooMany},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeAccount(tt.data); !errors.Is(err, hookerr.ErrAccountMismatch) {
				t.Errorf("expected AccountMismatch, got %v", err)
			}
		})
	}
}
