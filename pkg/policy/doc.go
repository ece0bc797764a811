// Package policy holds the per-authority policy record and the Open Policy
// Agent (OPA) engine that decides whether a transfer may proceed.
//
// # Policy record
//
// Every transfer authority owns one Account: a monotonically increasing
// transfer counter and an allow-list of destination token accounts. The
// record is stored in a fixed AccountSize allocation, which bounds the
// allow-list at MaxAllowListEntries.
//
// # Transfer policies
//
// The built-in transfer-limits policy rejects a transfer when
//
//   - the amount is above MaxTransferAmount (AMOUNT_EXCEEDS_LIMIT), or
//   - the destination is not on the owner's allow-list (DESTINATION_NOT_ALLOWED).
//
// When both apply, the amount ceiling is reported.
//
// Operators can add Rego policies from files or directories. Each policy
// contributes the deny set of its package; entries are either strings or
// objects with message, code and severity fields:
//
//	package operator.limits
//
//	import rego.v1
//
//	deny contains v if {
//	    input.transfer_count >= 1000
//	    v := {"message": "daily volume reached", "severity": "error"}
//	}
//
// Entries with severity error or critical reject the transfer as
// POLICY_VIOLATION; others are returned as warnings.
//
// A .json file holds one policy object or a bundle:
//
//	{"name": "ops", "version": "1.0.0", "policies": [{"name": "...", "rego": "..."}]}
//
// The input document carries amount, max_amount, source, mint, destination,
// owner, transfer_count and allow_list. Integers are exact.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := engine.LoadPolicies(ctx, []string{"/etc/hookguard/policies"}); err != nil {
//	    return err
//	}
//	result, err := engine.Check(ctx, &policy.TransferInput{...})
package policy
