package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// Placeholders substituted in command arguments.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderJobID  = "{job_id}"
)

// maxStderrInError bounds how much tool output ends up in a failure cause.
const maxStderrInError = 400

// CommandConfig configures a Command engine.
type CommandConfig struct {
	// Path is the executable to run.
	Path string
	// Args may contain {input}, {output} and {job_id} placeholders. When no
	// argument mentions {input}, the input file path is appended.
	Args []string
	// Timeout bounds one run; zero means no limit beyond the caller's context.
	Timeout time.Duration
	// WorkDir is where per-job scratch directories are created; defaults to
	// the system temp dir.
	WorkDir string
}

// Command runs an external tool once per job. The input is written to a
// scratch file; every regular file the tool leaves in the output directory,
// including nested ones, becomes an artifact named by its base name.
type Command struct {
	cfg    CommandConfig
	logger *slog.Logger
}

var _ Engine = (*Command)(nil)

// NewCommand validates cfg and returns a Command engine.
func NewCommand(cfg CommandConfig, logger *slog.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("engine command path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{cfg: cfg, logger: logger.With("component", "command_engine")}, nil
}

// Run implements Engine.
func (c *Command) Run(ctx context.Context, input []byte, jc JobContext) ([]domain.Artifact, error) {
	scratch, err := os.MkdirTemp(c.cfg.WorkDir, "job-"+safeSegment(jc.JobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			c.logger.Warn("failed to remove scratch dir", "job_id", jc.JobID, "dir", scratch, "error", rmErr)
		}
	}()

	inputPath := filepath.Join(scratch, "input"+extensionFor(jc.ContentType, input))
	if err := os.WriteFile(inputPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}
	outputDir := filepath.Join(scratch, "output")
	if err := os.Mkdir(outputDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	args := c.expandArgs(inputPath, outputDir, jc.JobID)
	cmd := exec.CommandContext(ctx, c.cfg.Path, args...)
	cmd.Dir = scratch
	// Children of a killed tool may hold the output pipes open.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	c.logger.Info("running engine command", "job_id", jc.JobID, "command", c.cfg.Path)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, domain.NewProcessingError(fmt.Errorf("command timed out after %s", c.cfg.Timeout))
		}
		return nil, domain.NewProcessingError(fmt.Errorf("command failed: %w: %s", err, tail(stderr.String(), maxStderrInError)))
	}
	c.logger.Info("engine command finished",
		"job_id", jc.JobID,
		"duration_ms", time.Since(start).Milliseconds(),
		"stdout_bytes", stdout.Len())

	return collectArtifacts(outputDir)
}

func (c *Command) expandArgs(inputPath, outputDir, jobID string) []string {
	replacer := strings.NewReplacer(
		PlaceholderInput, inputPath,
		PlaceholderOutput, outputDir,
		PlaceholderJobID, jobID,
	)

	args := make([]string, 0, len(c.cfg.Args)+1)
	sawInput := false
	for _, a := range c.cfg.Args {
		if strings.Contains(a, PlaceholderInput) {
			sawInput = true
		}
		args = append(args, replacer.Replace(a))
	}
	if !sawInput {
		args = append(args, inputPath)
	}
	return args
}

// collectArtifacts turns every file under dir into an artifact, sorted by
// name. Files with the same base name in different subdirectories would
// collide in the job's key space, so that is a processing error.
func collectArtifacts(dir string) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	seen := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if prev, dup := seen[name]; dup {
			return domain.NewProcessingError(fmt.Errorf("artifact name %q produced twice (%s, %s)", name, prev, path))
		}
		seen[name] = path

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, domain.Artifact{
			Name:        name,
			Data:        data,
			ContentType: mimetype.Detect(data).String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrProcessing) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to collect artifacts: %w", err)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

func extensionFor(contentType string, data []byte) string {
	if contentType != "" {
		if m := mimetype.Lookup(strings.Split(contentType, ";")[0]); m != nil {
			return m.Extension()
		}
	}
	return mimetype.Detect(data).Extension()
}

func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, s)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
