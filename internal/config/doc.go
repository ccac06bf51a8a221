// Package config loads runtime configuration for the GophVault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. GOPHVAULT_FILE environment variable, overriding the vault file path.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-f string   path of the encrypted vault file
//	-d string   path of the verifier database
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
//	{
//	  "vault_path": "/home/alice/.gophvault/vault.bin",
//	  "verifier_path": "/home/alice/.gophvault/vault.db",
//	  "log_level": "info",
//	  "kdf": {"time": 3, "memory_kib": 65536, "threads": 4}
//	}
//
// Flags must come before the command word; everything from the first
// non-flag argument on is returned to the caller untouched.
package config
