package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-f string   vault file path
//	-d string   verifier database path
//	-l string   log level
//
// Args are filtered with flagx.FilterArgs so that -c/-config, handled by
// parseJson, do not trip this flag set. A malformed flag panics.
func parseFlags(cfg *Config, args []string) {
	filtered := flagx.FilterArgs(args, []string{"-f", "-d", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.VaultPath, "f", cfg.VaultPath, "path of the encrypted vault file")
	fs.StringVar(&cfg.VerifierPath, "d", cfg.VerifierPath, "path of the verifier database")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	if err := fs.Parse(filtered); err != nil {
		panic(err)
	}
}
