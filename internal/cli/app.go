package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophvault/internal/config"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/gate"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/store"
)

// passwordFunc asks the user for a secret value without echo.
type passwordFunc func(prompt string) ([]byte, error)

// App is the CLI session. It owns the verifier database handle and, while
// the vault is unlocked, the open store. One App serves either a single
// command or a whole REPL session.
type App struct {
	config   *config.Config
	db       *sql.DB
	gate     *gate.Gate
	store    *store.Store
	verifier *gate.MasterVerifier
	log      logging.Logger
	reader   *bufio.Reader
	out      io.Writer
	password passwordFunc

	// interactive is set while the REPL runs; commands then require an
	// explicit unlock instead of prompting.
	interactive bool
}

// NewApp opens the verifier database named in c and returns an App reading
// from stdin and writing to stdout.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	for _, p := range []string{c.VaultPath, c.VerifierPath} {
		if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
			return nil, err
		}
	}

	db, err := storage.InitDatabase(ctx, c.VerifierPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.VerifierPath, "error", err)
		return nil, err
	}

	return newApp(c, db, log, bufio.NewReader(os.Stdin), os.Stdout), nil
}

func newApp(c *config.Config, db *sql.DB, log logging.Logger, reader *bufio.Reader, out io.Writer) *App {
	a := &App{
		config: c,
		db:     db,
		gate:   gate.New(db, c.KDF, log),
		log:    log.With("component", "cli"),
		reader: reader,
		out:    out,
	}
	a.password = func(prompt string) ([]byte, error) {
		return GetPassword(a.reader, a.out, prompt)
	}
	return a
}

func (a *App) isUnlocked() bool {
	return a.store != nil
}

func (a *App) status() string {
	if a.isUnlocked() {
		return fmt.Sprintf("(unlocked, %d)", a.store.Len())
	}
	return "(locked)"
}

// lock closes the open store, if any.
func (a *App) lock() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.verifier = nil
	return err
}

// Close locks the vault and closes the database.
func (a *App) Close() error {
	lerr := a.lock()
	if err := a.db.Close(); err != nil {
		return err
	}
	return lerr
}

// Run executes args as a single command, or starts the REPL when args is
// empty. It returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error(ctx, "close", "error", err)
		}
	}()

	if len(args) == 0 {
		a.interactive = true
		fmt.Fprintln(a.out, "Welcome to GophVault (type 'help' for commands)")
		runREPL(ctx, a, func(r Result) { Render(a.out, r) }, a.status, a.reader, a.out)
		return 0
	}

	r := a.Execute(ctx, args)
	Render(a.out, r)
	if r.Err != nil {
		return 1
	}
	return 0
}
