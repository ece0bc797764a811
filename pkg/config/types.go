package config

import (
	"fmt"
	"strings"

	"github.com/openfroyo/hookguard/pkg/telemetry"
)

// Config is the complete hookguard configuration.
type Config struct {
	Ledger    LedgerConfig     `yaml:"ledger" toml:"ledger" json:"ledger"`
	Program   ProgramConfig    `yaml:"program" toml:"program" json:"program"`
	Policy    PolicyConfig     `yaml:"policy" toml:"policy" json:"policy"`
	Telemetry telemetry.Config `yaml:"telemetry" toml:"telemetry" json:"telemetry" validate:"-"`
}

// LedgerConfig locates the account ledger.
type LedgerConfig struct {
	// Path is the SQLite database file, or ":memory:".
	Path string `yaml:"path" toml:"path" json:"path" validate:"required"`

	MaxOpenConns int `yaml:"max_open_conns" toml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
}

// ProgramConfig names the programs hookguard acts as and calls.
type ProgramConfig struct {
	// ID is the hook program's own identity, base58 encoded.
	ID string `yaml:"id" toml:"id" json:"id" validate:"required,pubkey"`

	// TokenProgram is the token engine that owns mints and token accounts.
	TokenProgram string `yaml:"token_program" toml:"token_program" json:"token_program" validate:"required,pubkey"`
}

// PolicyConfig lists operator policies evaluated next to the built-in one.
type PolicyConfig struct {
	// Paths are .rego or .json policy files, or directories holding them.
	Paths []string `yaml:"paths" toml:"paths" json:"paths" validate:"dive,required"`

	// Disabled names operator policies to load but skip. The built-in
	// transfer policy cannot be disabled.
	Disabled []string `yaml:"disabled" toml:"disabled" json:"disabled" validate:"dive,required"`

	// Watch reloads Paths when they change. Only long-running commands watch.
	Watch bool `yaml:"watch" toml:"watch" json:"watch"`
}

// ValidationError is a single configuration problem, with its source
// position when one is known.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in one configuration.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}
