package policy

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are logged but do not block a transfer.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that reject a transfer.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that reject a transfer and need attention.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity rejects a transfer.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Violation codes emitted by the built-in transfer policy.
const (
	CodeAmountExceedsLimit    = "AMOUNT_EXCEEDS_LIMIT"
	CodeDestinationNotAllowed = "DESTINATION_NOT_ALLOWED"
)

// MaxTransferAmount is the largest amount a single transfer may move.
const MaxTransferAmount uint64 = 50

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its deny set is evaluated.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks the transfer policy compiled into the program.
	Builtin bool `json:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single deny entry.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Code is the machine-readable reason, if the policy sets one.
	Code string `json:"code,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Details contains any other fields of the deny entry.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Result represents the result of evaluating a transfer.
type Result struct {
	// Allowed is false if any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that do not block.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// TransferInput describes a prospective transfer to the policies.
type TransferInput struct {
	Amount        uint64
	Source        solana.PublicKey
	Mint          solana.PublicKey
	Destination   solana.PublicKey
	Owner         solana.PublicKey
	TransferCount uint64
	AllowList     []solana.PublicKey
}

// regoInput returns the document bound to input in Rego. Integers are passed
// as json.Number so that values above 2^53 compare exactly.
func (in *TransferInput) regoInput() map[string]interface{} {
	allow := make([]interface{}, len(in.AllowList))
	for i, entry := range in.AllowList {
		allow[i] = entry.String()
	}

	return map[string]interface{}{
		"amount":         number(in.Amount),
		"max_amount":     number(MaxTransferAmount),
		"source":         in.Source.String(),
		"mint":           in.Mint.String(),
		"destination":    in.Destination.String(),
		"owner":          in.Owner.String(),
		"transfer_count": number(in.TransferCount),
		"allow_list":     allow,
		"context": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"operation": "transfer",
		},
	}
}

func number(v uint64) json.Number {
	return json.Number(strconv.FormatUint(v, 10))
}
