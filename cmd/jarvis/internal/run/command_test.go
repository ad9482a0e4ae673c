package run

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedInput struct {
	lines []string
	end   error
}

func (s *scriptedInput) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", s.end
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type recorder struct{ got []string }

func (r *recorder) Handle(_ context.Context, command string) string {
	r.got = append(r.got, command)
	return "reply to " + command
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("memory"))
}

func TestRepl(t *testing.T) {
	in := &scriptedInput{lines: []string{"ping", "   ", " /mode x ", "quit", "never"}, end: io.EOF}
	h := &recorder{}
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), h, in, &out))
	assert.Equal(t, []string{"ping", "/mode x"}, h.got)
	assert.Equal(t, "reply to ping\nreply to /mode x\nExiting.\n", out.String())
}

func TestRepl_EndOfInput(t *testing.T) {
	for _, end := range []error{io.EOF, readline.ErrInterrupt} {
		var out bytes.Buffer
		require.NoError(t, repl(context.Background(), &recorder{}, &scriptedInput{end: end}, &out))
		assert.Equal(t, "\nExiting.\n", out.String())
	}

	boom := errors.New("terminal gone")
	assert.ErrorIs(t, repl(context.Background(), &recorder{}, &scriptedInput{end: boom}, io.Discard), boom)
}
