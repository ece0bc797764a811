package policy

import (
	"time"
)

// TransferPolicyName is the name of the built-in transfer policy.
const TransferPolicyName = "transfer-limits"

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		transferLimitsPolicy(),
	}
}

// transferLimitsPolicy enforces the amount ceiling and the destination
// allow-list.
func transferLimitsPolicy() Policy {
	return Policy{
		Name:        TransferPolicyName,
		Description: "Rejects transfers above the amount ceiling or to destinations missing from the owner's allow-list",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"transfer", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package hookguard.transfer

import rego.v1

# Amount must not exceed the ceiling
deny contains violation if {
	input.amount > input.max_amount
	violation := {
		"code": "AMOUNT_EXCEEDS_LIMIT",
		"message": sprintf("amount %v exceeds limit %v", [input.amount, input.max_amount]),
		"severity": "error",
	}
}

# Destination must be on the allow-list
deny contains violation if {
	not destination_allowed
	violation := {
		"code": "DESTINATION_NOT_ALLOWED",
		"message": sprintf("destination %s is not in the allow-list", [input.destination]),
		"severity": "error",
	}
}

destination_allowed if {
	some entry in input.allow_list
	entry == input.destination
}
`,
	}
}
