package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func transferTo(dest solana.PublicKey, amount uint64, allow ...solana.PublicKey) *TransferInput {
	return &TransferInput{
		Amount:      amount,
		Source:      solana.NewWallet().PublicKey(),
		Mint:        solana.NewWallet().PublicKey(),
		Destination: dest,
		Owner:       solana.NewWallet().PublicKey(),
		AllowList:   allow,
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != 1 {
		t.Fatalf("expected 1 built-in policy, got %d", len(policies))
	}
	if policies[0].Name != TransferPolicyName || !policies[0].Builtin {
		t.Errorf("unexpected built-in policy %+v", policies[0])
	}
}

func TestCheckTransferLimits(t *testing.T) {
	eng := newTestEngine(t)
	dest := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	tests := []struct {
		name    string
		input   *TransferInput
		wantErr error
	}{
		{"zero amount allowed", transferTo(dest, 0, dest), nil},
		{"amount at ceiling allowed", transferTo(dest, 50, other, dest), nil},
		{"amount above ceiling", transferTo(dest, 51, dest), hookerr.ErrAmountExceedsLimit},
		{"huge amount", transferTo(dest, 1<<63, dest), hookerr.ErrAmountExceedsLimit},
		{"empty allow-list", transferTo(dest, 10), hookerr.ErrDestinationNotAllowed},
		{"destination missing", transferTo(dest, 10, other), hookerr.ErrDestinationNotAllowed},
		{"ceiling takes precedence", transferTo(dest, 100, other), hookerr.ErrAmountExceedsLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Check(context.Background(), tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !result.Allowed {
					t.Errorf("expected transfer to be allowed")
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !hookerr.IsPolicyViolation(err) {
				t.Errorf("expected a policy violation class, got %s", hookerr.ClassOf(err))
			}
			if result == nil || result.Allowed {
				t.Errorf("expected a rejected result")
			}
		})
	}
}

const volumePolicy = `package operator.volume

import rego.v1

# Caps the number of transfers per owner
deny contains v if {
	input.transfer_count >= 3
	v := {"code": "VOLUME", "message": "transfer volume reached", "severity": "error"}
}

deny contains "large transfer" if {
	input.amount > 40
}
`

func TestOperatorPolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	err := eng.AddPolicy(ctx, Policy{Name: "volume", Rego: volumePolicy, Enabled: true})
	if err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}

	dest := solana.NewWallet().PublicKey()

	// The string entry takes the policy's default severity, a warning.
	in := transferTo(dest, 45, dest)
	result, err := eng.Check(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Message != "large transfer" {
		t.Errorf("expected one warning, got %+v", result.Warnings)
	}

	in.TransferCount = 3
	_, err = eng.Check(ctx, in)
	if !errors.Is(err, hookerr.ErrPolicyViolation) {
		t.Fatalf("expected PolicyViolation, got %v", err)
	}

	var herr *hookerr.Error
	if !errors.As(err, &herr) || herr.Details["policy"] != "volume" || herr.Details["code"] != "VOLUME" {
		t.Errorf("expected policy details, got %+v", herr)
	}

	// Built-in codes still win over operator violations.
	in.Amount = 60
	_, err = eng.Check(ctx, in)
	if !errors.Is(err, hookerr.ErrAmountExceedsLimit) {
		t.Errorf("expected AmountExceedsLimit, got %v", err)
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.AddPolicy(ctx, Policy{Name: "volume", Rego: volumePolicy, Enabled: true}); err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}

	in := transferTo(solana.NewWallet().PublicKey(), 1)
	in.AllowList = []solana.PublicKey{in.Destination}
	in.TransferCount = 10

	if _, err := eng.Check(ctx, in); !errors.Is(err, hookerr.ErrPolicyViolation) {
		t.Fatalf("expected PolicyViolation while enabled, got %v", err)
	}
	if err := eng.DisablePolicy("volume"); err != nil {
		t.Fatalf("failed to disable: %v", err)
	}
	if _, err := eng.Check(ctx, in); err != nil {
		t.Errorf("expected disabled policy to be skipped, got %v", err)
	}

	if err := eng.DisablePolicy(TransferPolicyName); err == nil {
		t.Error("expected built-in policy to refuse disabling")
	}
	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestAddPolicyRejectsInvalid(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	if err := eng.AddPolicy(ctx, Policy{Name: "broken", Rego: "package broken\n\ndeny["}); err == nil {
		t.Error("expected parse error")
	}
	if err := eng.AddPolicy(ctx, Policy{Name: TransferPolicyName, Rego: volumePolicy}); err == nil {
		t.Error("expected refusal to replace built-in policy")
	}
}

func TestLoadPoliciesAndReplace(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "volume.rego"), []byte(volumePolicy), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	if _, err := eng.GetPolicy("volume"); err != nil {
		t.Fatalf("expected loaded policy: %v", err)
	}

	if err := eng.ReplacePolicies(ctx, nil); err != nil {
		t.Fatalf("failed to replace policies: %v", err)
	}
	if _, err := eng.GetPolicy("volume"); err == nil {
		t.Error("expected operator policy to be dropped")
	}
	if _, err := eng.GetPolicy(TransferPolicyName); err != nil {
		t.Errorf("expected built-in policy to survive: %v", err)
	}

	err := eng.ReplacePolicies(ctx, []Policy{{Name: "broken", Rego: "not rego"}})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if len(eng.ListPolicies()) != 1 {
		t.Error("expected a failed replace to leave policies untouched")
	}
}

const permissivePolicy = `package shadow

import rego.v1

deny contains "never" if {
	false
}
`

func TestOperatorPolicyCannotShadowBuiltin(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, TransferPolicyName+".rego"), []byte(permissivePolicy), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{dir}); err == nil {
		t.Error("expected a policy named after the built-in to be refused")
	}

	err := eng.ReplacePolicies(ctx, []Policy{{Name: TransferPolicyName, Rego: permissivePolicy, Enabled: true}})
	if err == nil {
		t.Error("expected reload with the built-in name to be refused")
	}

	in := transferTo(solana.NewWallet().PublicKey(), 1000)
	if _, err := eng.Check(ctx, in); !errors.Is(err, hookerr.ErrAmountExceedsLimit) {
		t.Errorf("expected the built-in ceiling to still apply, got %v", err)
	}

	p, err := eng.GetPolicy(TransferPolicyName)
	if err != nil || !p.Builtin {
		t.Errorf("expected the built-in policy to be intact, got %+v, %v", p, err)
	}
}

func TestLoadedPoliciesAreNeverBuiltin(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "claims.json")
	content := `{"name": "claims", "builtin": true, "rego": "package claims\n\nimport rego.v1\n\ndeny contains \"x\" if { false }\n"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{path}); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	p, err := eng.GetPolicy("claims")
	if err != nil {
		t.Fatalf("expected loaded policy: %v", err)
	}
	if p.Builtin {
		t.Error("a policy loaded from disk must not be marked built-in")
	}
	if err := eng.DisablePolicy("claims"); err != nil {
		t.Errorf("expected the loaded policy to be disableable: %v", err)
	}
}
