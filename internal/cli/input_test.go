package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTerminal(t *testing.T, terminal bool, pw []byte, err error) {
	t.Helper()
	origRead, origIs := readPassword, isTerminal
	readPassword = func(int) ([]byte, error) { return pw, err }
	isTerminal = func(int) bool { return terminal }
	t.Cleanup(func() { readPassword, isTerminal = origRead, origIs })
}

func TestGetSimpleText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "line", input: "example.com\n", want: "example.com"},
		{name: "trimmed", input: "  alice \r\n", want: "alice"},
		{name: "eof after text", input: "partial", want: "partial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetSimpleText(bufio.NewReader(strings.NewReader(tt.input)), "Site", &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Site\n> ", out.String())
		})
	}

	_, err := GetSimpleText(bufio.NewReader(strings.NewReader("")), "Site", &bytes.Buffer{})
	require.Error(t, err)
}

func TestGetPassword_Terminal(t *testing.T) {
	stubTerminal(t, true, []byte("hunter2"), nil)

	var out bytes.Buffer
	pw, err := GetPassword(bufio.NewReader(strings.NewReader("ignored\n")), &out, "Master password")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), pw)
	assert.Equal(t, "Master password: \n", out.String())
}

func TestGetPassword_TerminalError(t *testing.T) {
	boom := errors.New("tty gone")
	stubTerminal(t, true, nil, boom)

	_, err := GetPassword(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, "Master password")
	require.ErrorIs(t, err, boom)
}

func TestGetPassword_Pipe(t *testing.T) {
	stubTerminal(t, false, nil, errors.New("must not be called"))

	r := bufio.NewReader(strings.NewReader(" spaced pw \nsecond\n"))
	pw, err := GetPassword(r, &bytes.Buffer{}, "Master password")
	require.NoError(t, err)
	assert.Equal(t, []byte(" spaced pw "), pw, "only the line ending is stripped")

	pw, err = GetPassword(r, &bytes.Buffer{}, "Master password")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), pw)

	_, err = GetPassword(r, &bytes.Buffer{}, "Master password")
	require.Error(t, err)
}
