// Package config loads the hookguard configuration.
//
// A configuration file may be YAML (.yaml, .yml, .json), TOML (.toml) or
// CUE (.cue); the extension selects the parser. Values are laid over
// Default, so a file only names what it changes. HOOKGUARD_LEDGER_PATH and
// HOOKGUARD_LOG_LEVEL override the file.
//
// CUE documents are unified with a closed schema before decoding, so an
// unknown section or a malformed program id is reported with its position:
//
//	ledger: path: "/var/lib/hookguard/ledger.db"
//	program: id: "DrWbQtYJGtsoRwzKqAbHKHKsCJJfpysudF39GBVFSxub"
//	policy: paths: ["/etc/hookguard/policies"]
//	telemetry: logging: level: "debug"
//
// The equivalent YAML:
//
//	ledger:
//	  path: /var/lib/hookguard/ledger.db
//	policy:
//	  paths: [/etc/hookguard/policies]
//	telemetry:
//	  logging:
//	    level: debug
//
// Durations are written as strings such as "5s" in every format.
//
// Every loaded configuration is validated with struct tags; program ids
// must be base58 public keys. Problems are returned together as
// ValidationErrors.
package config
