package seeds

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

// tokenAccountData builds 165 bytes with the owner key at bytes 32..64.
func tokenAccountData(mint, owner solana.PublicKey) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint.Bytes())
	copy(data[32:64], owner.Bytes())
	return data
}

func TestResolveLiteral(t *testing.T) {
	s := Literal([]byte("counter"))

	got, err := s.Resolve(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "counter" {
		t.Errorf("expected %q, got %q", "counter", got)
	}

	// The returned slice must not alias the seed.
	got[0] = 'X'
	if string(s.Bytes) != "counter" {
		t.Error("resolving a literal must not expose its backing array")
	}
}

func TestResolveAccountDataReadsOwner(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	accounts := []Account{{Key: solana.NewWallet().PublicKey(), Data: tokenAccountData(mint, owner)}}

	s := AccountData(0, 32, 32)
	first, err := s.Resolve(accounts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Resolve(accounts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(first, owner.Bytes()) {
		t.Errorf("expected owner bytes, got %x", first)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected identical results for identical inputs")
	}
}

func TestResolveOutOfRange(t *testing.T) {
	accounts := []Account{{Key: solana.NewWallet().PublicKey(), Data: make([]byte, 40)}}

	tests := []struct {
		name string
		seed Seed
		data []byte
	}{
		{"account data past end", AccountData(0, 32, 32), nil},
		{"account index past list", AccountData(3, 0, 1), nil},
		{"account key index past list", AccountKey(1), nil},
		{"instruction data past end", InstructionData(4, 8), make([]byte, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.seed.Resolve(accounts, tt.data)
			if !errors.Is(err, hookerr.ErrOutOfRange) {
				t.Errorf("expected OutOfRange, got %v", err)
			}
		})
	}
}

func TestResolveList(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	accounts := []Account{{Key: source, Data: tokenAccountData(solana.PublicKey{}, owner)}}
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	got, err := Resolve([]Seed{
		Literal([]byte("counter")),
		AccountData(0, 32, 32),
		AccountKey(0),
		InstructionData(8, 2),
	}, accounts, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 seeds, got %d", len(got))
	}
	if !bytes.Equal(got[1], owner.Bytes()) {
		t.Errorf("expected owner bytes at position 1")
	}
	if !bytes.Equal(got[2], source.Bytes()) {
		t.Errorf("expected source key at position 2")
	}
	if !bytes.Equal(got[3], []byte{8, 9}) {
		t.Errorf("expected instruction bytes [8 9], got %v", got[3])
	}
}

func TestPackUnpack(t *testing.T) {
	list := []Seed{Literal([]byte("counter")), AccountData(0, 32, 32)}

	packed, err := Pack(list)
	if err != nil {
		t.Fatalf("failed to pack: %v", err)
	}

	want := []byte{1, 7, 'c', 'o', 'u', 'n', 't', 'e', 'r', 4, 0, 32, 32}
	if !bytes.Equal(packed[:len(want)], want) {
		t.Errorf("unexpected packed prefix %v", packed[:len(want)])
	}
	for i := len(want); i < ConfigSize; i++ {
		if packed[i] != 0 {
			t.Fatalf("expected zero padding at %d", i)
		}
	}

	unpacked, err := Unpack(packed)
	if err != nil {
		t.Fatalf("failed to unpack: %v", err)
	}
	if len(unpacked) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(unpacked))
	}
	if unpacked[0].Kind != KindLiteral || string(unpacked[0].Bytes) != "counter" {
		t.Errorf("unexpected first seed %+v", unpacked[0])
	}
	second := unpacked[1]
	if second.Kind != KindAccountData || second.Index != 0 || second.Offset != 32 || second.Length != 32 {
		t.Errorf("unexpected second seed %+v", unpacked[1])
	}
}

func TestPackTooLarge(t *testing.T) {
	_, err := Pack([]Seed{Literal(bytes.Repeat([]byte{'a'}, 31))})
	if !errors.Is(err, hookerr.ErrSeedConfigTooLarge) {
		t.Errorf("expected SeedConfigTooLarge, got %v", err)
	}
}

func TestUnpackMalformed(t *testing.T) {
	var config [ConfigSize]byte
	config[0] = 9

	_, err := Unpack(config)
	if !errors.Is(err, hookerr.ErrMalformedDescriptor) {
		t.Errorf("expected MalformedDescriptor, got %v", err)
	}

	config[0] = byte(KindLiteral)
	config[1] = 40
	_, err = Unpack(config)
	if !errors.Is(err, hookerr.ErrMalformedDescriptor) {
		t.Errorf("expected MalformedDescriptor for truncated literal, got %v", err)
	}
}
