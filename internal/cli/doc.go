// Package cli is the command-line front end of GophVault.
//
// It wires configuration, the verifier database, the gate and the credential
// store, and runs either a single command or an interactive REPL.
//
// Commands:
//   - init                         create the master password and an empty vault
//   - unlock                       open the vault (REPL keeps it open)
//   - lock                         close the vault and wipe the key
//   - add <site> <user> [secret]   store a credential; secret is prompted if omitted
//   - remove <site> <user>         delete a credential
//   - get <site> <user>            show one credential including its secret
//   - list [--show]                list credentials, secrets masked by default
//   - passwd                       change the master password
//   - version, help
//
// Every command returns a Result; rendering is the only place that talks to
// the terminal. The master password is read without echo and wiped after use.
package cli
