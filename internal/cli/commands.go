package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/buildinfo"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/gate"
	"github.com/dmitrijs2005/gophvault/internal/store"
)

const helpText = `Available commands:
  init                        create master password and empty vault
  unlock                      open the vault
  lock                        close the vault
  add <site> <user> [secret]  store a credential (secret prompted if omitted;
                              quote a secret containing spaces)
  remove <site> <user>        delete a credential
  get <site> <user>           show a credential
  list [--show]               list credentials
  passwd                      change the master password
  version                     print build information
  exit | quit                 leave the program`

// Execute runs one command. args[0] is the command word.
func (a *App) Execute(ctx context.Context, args []string) Result {
	if len(args) == 0 {
		return fail("", fmt.Errorf("%w: no command", ErrUsage))
	}

	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help":
		return ok(cmd, helpText)
	case "version":
		var b strings.Builder
		buildinfo.PrintBuildData(&b)
		return ok(cmd, strings.TrimRight(b.String(), "\n"))
	case "init":
		return a.initVault(ctx)
	case "unlock":
		return a.unlockVault(ctx)
	case "lock":
		return a.lockVault(ctx)
	case "add":
		return a.add(ctx, rest)
	case "remove", "rm", "delete":
		return a.remove(ctx, rest)
	case "get", "show":
		return a.get(ctx, rest)
	case "l", "list":
		return a.list(ctx, rest)
	case "passwd":
		return a.changePassword(ctx)
	default:
		return fail(cmd, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd))
	}
}

func usage(cmd, form string) Result {
	return fail(cmd, fmt.Errorf("%w: %s %s", ErrUsage, cmd, form))
}

// confirm asks a y/N question. End of input counts as no.
func (a *App) confirm(question string) (bool, error) {
	answer, err := GetSimpleText(a.reader, question+" [y/N]", a.out)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readNewPassword asks for a new master password twice.
func (a *App) readNewPassword(prompt string) ([]byte, error) {
	pw, err := a.password(prompt)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, ErrEmptyPassword
	}

	again, err := a.password("Repeat " + strings.ToLower(prompt[:1]) + prompt[1:])
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, ErrPasswordMismatch
	}
	return pw, nil
}

func (a *App) initVault(ctx context.Context) Result {
	const cmd = "init"

	if a.isUnlocked() {
		return fail(cmd, common.ErrAlreadyInitialized)
	}

	initialized, err := a.gate.IsInitialized(ctx)
	if err != nil {
		return fail(cmd, err)
	}
	if initialized {
		return fail(cmd, common.ErrAlreadyInitialized)
	}
	if _, err := os.Stat(a.config.VaultPath); err == nil {
		return fail(cmd, fmt.Errorf("%w: %s exists", common.ErrAlreadyInitialized, a.config.VaultPath))
	}

	pw, err := a.readNewPassword("New master password")
	if err != nil {
		return fail(cmd, err)
	}
	defer common.WipeByteArray(pw)

	v, err := a.gate.Initialize(ctx, pw)
	if err != nil {
		return fail(cmd, err)
	}

	s, err := store.Create(ctx, a.config.VaultPath, pw, v, a.log)
	if err != nil {
		if rerr := a.gate.Reset(ctx); rerr != nil {
			a.log.Error(ctx, "verifier stored but vault file not created", "error", rerr)
			return fail(cmd, errors.Join(err, rerr))
		}
		return fail(cmd, err)
	}

	a.store, a.verifier = s, v
	return ok(cmd, "Vault created at "+a.config.VaultPath)
}

func (a *App) unlock(ctx context.Context) error {
	pw, err := a.password("Master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	return a.openWith(ctx, pw)
}

func (a *App) openWith(ctx context.Context, pw []byte) error {
	var s *store.Store
	v, err := a.gate.UnlockWith(ctx, pw, func(v *gate.MasterVerifier) error {
		opened, err := store.Open(ctx, a.config.VaultPath, pw, v, a.log)
		if err != nil {
			return err
		}
		s = opened
		return nil
	})
	if err != nil {
		return err
	}

	a.store, a.verifier = s, v
	return nil
}

// ensureUnlocked prompts for the master password in one-shot mode. In the
// REPL the user has to run unlock first.
func (a *App) ensureUnlocked(ctx context.Context) error {
	if a.isUnlocked() {
		return nil
	}
	if a.interactive {
		return common.ErrVaultLocked
	}
	return a.unlock(ctx)
}

func (a *App) unlockVault(ctx context.Context) Result {
	const cmd = "unlock"

	if a.isUnlocked() {
		return ok(cmd, "Vault is already unlocked")
	}
	if err := a.unlock(ctx); err != nil {
		return fail(cmd, err)
	}
	return ok(cmd, fmt.Sprintf("Vault unlocked, %d credential(s)", a.store.Len()))
}

func (a *App) lockVault(ctx context.Context) Result {
	const cmd = "lock"

	if !a.isUnlocked() {
		return ok(cmd, "Vault is already locked")
	}
	if err := a.lock(); err != nil {
		a.log.Warn(ctx, "release vault lock", "error", err)
	}
	return ok(cmd, "Vault locked")
}

func (a *App) add(ctx context.Context, args []string) Result {
	const cmd = "add"

	if len(args) < 2 || len(args) > 3 {
		return usage(cmd, "<site> <user> [secret]")
	}
	if err := a.ensureUnlocked(ctx); err != nil {
		return fail(cmd, err)
	}

	site, user := args[0], args[1]
	var secret string
	if len(args) == 3 {
		secret = args[2]
	} else {
		b, err := a.password("Secret for " + user + "@" + site)
		if err != nil {
			return fail(cmd, err)
		}
		secret = string(b)
		common.WipeByteArray(b)
	}

	_, existed := a.store.Get(site, user)
	if existed {
		yes, err := a.confirm(fmt.Sprintf("Overwrite the secret of %s @ %s?", user, site))
		if err != nil {
			return fail(cmd, err)
		}
		if !yes {
			return ok(cmd, fmt.Sprintf("Kept existing %s @ %s", user, site))
		}
	}
	if err := a.store.Add(ctx, site, user, secret); err != nil {
		return fail(cmd, err)
	}
	if existed {
		return ok(cmd, fmt.Sprintf("Updated %s @ %s", user, site))
	}
	return ok(cmd, fmt.Sprintf("Added %s @ %s", user, site))
}

func (a *App) remove(ctx context.Context, args []string) Result {
	const cmd = "remove"

	if len(args) != 2 {
		return usage(cmd, "<site> <user>")
	}
	if err := a.ensureUnlocked(ctx); err != nil {
		return fail(cmd, err)
	}

	if _, found := a.store.Get(args[0], args[1]); !found {
		return ok(cmd, fmt.Sprintf("No credential for %s @ %s", args[1], args[0]))
	}
	yes, err := a.confirm(fmt.Sprintf("Remove %s @ %s?", args[1], args[0]))
	if err != nil {
		return fail(cmd, err)
	}
	if !yes {
		return ok(cmd, fmt.Sprintf("Kept %s @ %s", args[1], args[0]))
	}

	removed, err := a.store.Remove(ctx, args[0], args[1])
	if err != nil {
		return fail(cmd, err)
	}
	if !removed {
		return ok(cmd, fmt.Sprintf("No credential for %s @ %s", args[1], args[0]))
	}
	return ok(cmd, fmt.Sprintf("Removed %s @ %s", args[1], args[0]))
}

func (a *App) get(ctx context.Context, args []string) Result {
	const cmd = "get"

	if len(args) != 2 {
		return usage(cmd, "<site> <user>")
	}
	if err := a.ensureUnlocked(ctx); err != nil {
		return fail(cmd, err)
	}

	c, found := a.store.Get(args[0], args[1])
	if !found {
		return ok(cmd, fmt.Sprintf("No credential for %s @ %s", args[1], args[0]))
	}
	return Result{Command: cmd, OK: true, Credentials: []store.Credential{c}, Reveal: true}
}

func (a *App) list(ctx context.Context, args []string) Result {
	const cmd = "list"

	reveal := false
	for _, arg := range args {
		switch arg {
		case "--show", "-show", "-s":
			reveal = true
		default:
			return usage(cmd, "[--show]")
		}
	}
	if err := a.ensureUnlocked(ctx); err != nil {
		return fail(cmd, err)
	}

	creds := a.store.List()
	if len(creds) == 0 {
		return ok(cmd, "No credentials stored")
	}
	return Result{Command: cmd, OK: true, Credentials: creds, Reveal: reveal}
}

func (a *App) changePassword(ctx context.Context) Result {
	const cmd = "passwd"

	if !a.isUnlocked() && a.interactive {
		return fail(cmd, common.ErrVaultLocked)
	}

	old, err := a.password("Current master password")
	if err != nil {
		return fail(cmd, err)
	}
	defer common.WipeByteArray(old)

	if !a.isUnlocked() {
		if err := a.openWith(ctx, old); err != nil {
			return fail(cmd, err)
		}
	}

	next, err := a.readNewPassword("New master password")
	if err != nil {
		return fail(cmd, err)
	}
	defer common.WipeByteArray(next)

	v, err := a.gate.ChangePassword(ctx, old, next, func(pw []byte, v *gate.MasterVerifier) error {
		return a.store.Rekey(ctx, pw, v)
	})
	if err != nil {
		if !errors.Is(err, common.ErrWrongPassword) {
			a.log.Error(ctx, "change master password", "error", err)
		}
		return fail(cmd, err)
	}

	a.verifier = v
	return ok(cmd, "Master password changed")
}
