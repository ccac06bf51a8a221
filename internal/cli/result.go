package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/store"
	"github.com/fatih/color"
)

const mask = "********"

// Errors raised by the CLI itself, before any vault layer is involved.
var (
	ErrUsage            = errors.New("usage")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrEmptyPassword    = errors.New("master password must not be empty")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Result is what every command hands back to the presentation layer.
type Result struct {
	Command     string
	OK          bool
	Message     string
	Credentials []store.Credential
	Reveal      bool
	Err         error
}

func ok(cmd, msg string) Result {
	return Result{Command: cmd, OK: true, Message: msg}
}

func fail(cmd string, err error) Result {
	return Result{Command: cmd, Err: err}
}

// userErrors are shown verbatim; anything else is reported generically.
var userErrors = []error{
	common.ErrWrongPassword,
	common.ErrAlreadyInitialized,
	common.ErrNotInitialized,
	common.ErrFileNotFound,
	common.ErrUnsupportedVersion,
	common.ErrCorruptFile,
	common.ErrCorruptVerifier,
	common.ErrLocked,
	common.ErrClosed,
	common.ErrInvalidCredential,
	common.ErrVaultLocked,
	ErrPasswordMismatch,
	ErrEmptyPassword,
}

// UserMessage maps err to text fit for the user. Cipher and driver details
// never reach the terminal.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsage), errors.Is(err, ErrUnknownCommand), errors.Is(err, cryptox.ErrInvalidParams):
		return err.Error()
	case errors.Is(err, common.ErrNotSaved):
		return "could not write the vault file; the previous vault file was kept"
	case errors.Is(err, common.ErrIOFailure):
		return "could not read or write vault data, see log for details"
	}

	for _, known := range userErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "unexpected error, see log for details"
}

// Render prints r to w.
func Render(w io.Writer, r Result) {
	if r.Err != nil {
		color.New(color.FgRed).Fprintf(w, "error: %s\n", UserMessage(r.Err))
		return
	}

	if r.Message != "" {
		color.New(color.FgGreen).Fprintln(w, r.Message)
	}
	if len(r.Credentials) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tUSERNAME\tSECRET")
	for _, c := range r.Credentials {
		secret := mask
		if r.Reveal {
			secret = c.Secret
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Site, c.Username, secret)
	}
	_ = tw.Flush()
}
