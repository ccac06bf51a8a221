package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
)

// execIface is the command surface the REPL needs. *App satisfies it; tests
// provide a stub.
type execIface interface {
	Execute(ctx context.Context, args []string) Result
}

// splitArgs splits a command line into words. Quotes group words and a
// backslash escapes the next character outside single quotes. Unquoted
// shell operators (; & | < >) are refused rather than cutting the line.
func splitArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, err
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("unquoted %q, put the argument in single quotes", line[p.Position])
	}
	return args, nil
}

// runREPL reads commands line by line from reader, runs them through a and
// hands each Result to render. Lines are split with splitArgs, so
// quoted arguments may contain spaces. The prompt shows statusFn(). The loop
// ends on EOF, on a cancelled ctx, or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, render func(Result), statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Fprintf(out, "gv %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			fmt.Fprintln(out)
			return
		}

		parts, perr := splitArgs(line)
		if perr != nil {
			render(fail("", fmt.Errorf("%w: %v", ErrUsage, perr)))
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			render(a.Execute(ctx, parts))
		}
	}
}
