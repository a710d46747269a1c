package engine

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/domain"
)

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func newTestCommand(t *testing.T, cfg CommandConfig) *Command {
	t.Helper()
	c, err := NewCommand(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestCommand_CollectsOutputFiles(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	c := newTestCommand(t, CommandConfig{
		Path: sh,
		Args: []string{"-c", `tr a-z A-Z < "$1" > "$2/upper.txt" && printf 'x' > "$2/b.txt"`, "sh", PlaceholderInput, PlaceholderOutput},
	})

	artifacts, err := c.Run(context.Background(), []byte("hello"), JobContext{JobID: "job-1", ContentType: "text/plain"})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, "b.txt", artifacts[0].Name)
	assert.Equal(t, []byte("x"), artifacts[0].Data)
	assert.Equal(t, "upper.txt", artifacts[1].Name)
	assert.Equal(t, []byte("HELLO"), artifacts[1].Data)
	assert.Contains(t, artifacts[1].ContentType, "text/plain")
}

func TestCommand_NoOutputIsNoArtifacts(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	c := newTestCommand(t, CommandConfig{Path: sh, Args: []string{"-c", "true"}})
	artifacts, err := c.Run(context.Background(), []byte("x"), JobContext{JobID: "job-2"})
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestCommand_FailureIsProcessingError(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	c := newTestCommand(t, CommandConfig{Path: sh, Args: []string{"-c", "echo 'model exploded' >&2; exit 3"}})
	_, err := c.Run(context.Background(), []byte("x"), JobContext{JobID: "job-3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProcessing)
	assert.Contains(t, err.Error(), "model exploded")
}

func TestCommand_Timeout(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	c := newTestCommand(t, CommandConfig{Path: sh, Args: []string{"-c", "sleep 5"}, Timeout: 50 * time.Millisecond})
	_, err := c.Run(context.Background(), []byte("x"), JobContext{JobID: "job-4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProcessing)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCommand_DuplicateNamesInSubdirs(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)

	c := newTestCommand(t, CommandConfig{
		Path: sh,
		Args: []string{"-c", `mkdir -p "$1/a" "$1/b" && echo 1 > "$1/a/v.wav" && echo 2 > "$1/b/v.wav"`, "sh", PlaceholderOutput, PlaceholderInput},
	})
	_, err := c.Run(context.Background(), []byte("x"), JobContext{JobID: "job-5"})
	assert.ErrorIs(t, err, domain.ErrProcessing)
}

func TestExpandArgs(t *testing.T) {
	t.Parallel()

	c := &Command{cfg: CommandConfig{Args: []string{"--id={job_id}", "-o", "{output}"}}}
	assert.Equal(t, []string{"--id=j", "-o", "/out", "/in"}, c.expandArgs("/in", "/out", "j"))

	c = &Command{cfg: CommandConfig{Args: []string{"{input}", "{output}"}}}
	assert.Equal(t, []string{"/in", "/out"}, c.expandArgs("/in", "/out", "j"))
}

func TestNewCommand_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewCommand(CommandConfig{}, nil)
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	t.Parallel()

	var e Engine = Func(func(ctx context.Context, input []byte, jc JobContext) ([]domain.Artifact, error) {
		return []domain.Artifact{{Name: jc.JobID, Data: input}}, nil
	})
	out, err := e.Run(context.Background(), []byte("p"), JobContext{JobID: "n"})
	require.NoError(t, err)
	assert.Equal(t, "n", out[0].Name)
}
