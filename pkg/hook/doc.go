// Package hook implements the transfer hook itself: descriptor
// initialization, the per-transfer policy check and allow-list management.
//
// Every operation takes an open ledger transaction and the instruction's
// account list. A Binder validates the accounts first, so the operation body
// only ever sees a consistent set: token accounts of the right mint, the
// descriptor derived from that mint and the policy account derived from the
// source owner. Operations return an error without committing anything; the
// caller's transaction discards partial writes.
//
// Callers that build transfers use ResolveExecuteAccounts to learn the
// accounts an execute instruction needs, reading only the descriptor and the
// accounts it refers to.
package hook
