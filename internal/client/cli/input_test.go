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

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	require.Error(t, err)
}

func withTerminal(t *testing.T, tty bool, pw []byte, err error) {
	t.Helper()
	oldTTY, oldRead := isTerminal, readPassword
	t.Cleanup(func() { isTerminal, readPassword = oldTTY, oldRead })
	isTerminal = func(int) bool { return tty }
	readPassword = func(int) ([]byte, error) { return pw, err }
}

func TestGetSecret_Terminal(t *testing.T) {
	withTerminal(t, true, []byte("s3cret"), nil)
	var out bytes.Buffer
	got, err := GetSecret(rdr("ignored\n"), "Passphrase", &out)
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), got)
	assert.Equal(t, "Passphrase: \n", out.String())
}

func TestGetSecret_TerminalError(t *testing.T) {
	withTerminal(t, true, nil, errors.New("boom"))
	var out bytes.Buffer
	_, err := GetSecret(rdr(""), "Passphrase", &out)
	require.Error(t, err)
}

func TestGetSecret_Piped(t *testing.T) {
	withTerminal(t, false, nil, nil)
	var out bytes.Buffer
	got, err := GetSecret(rdr("from-pipe\r\nnext\n"), "Token", &out)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-pipe"), got)
}

func TestWipe(t *testing.T) {
	b := []byte("abc")
	wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
