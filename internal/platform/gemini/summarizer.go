package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/engine"
)

//go:embed prompts/summarize.tmpl
var defaultPrompt string

// SummaryArtifactName is the name of the artifact a Summarizer produces.
const SummaryArtifactName = "summary.txt"

// Config holds the Summarizer settings.
type Config struct {
	APIKey       string
	ModelName    string
	MaxRetries   uint64
	RetryDelay   time.Duration
	MaxSentences int
	// MaxInputBytes truncates long inputs before they are sent.
	MaxInputBytes int
}

// contentGenerator is the part of the genai client the Summarizer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type promptData struct {
	Text         string
	MaxSentences int
}

// Summarizer is an engine.Engine producing a text summary of the input.
type Summarizer struct {
	cfg      Config
	models   contentGenerator
	template *template.Template
	logger   *slog.Logger
}

var _ engine.Engine = (*Summarizer)(nil)

// New creates a Summarizer connected to the Gemini API.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newSummarizer(cfg, client.Models, logger)
}

func newSummarizer(cfg Config, models contentGenerator, logger *slog.Logger) (*Summarizer, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = 512 << 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("summarize").Parse(defaultPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", ErrInvalidConfig, err)
	}

	return &Summarizer{
		cfg:      cfg,
		models:   models,
		template: tmpl,
		logger:   logger.With("component", "gemini_summarizer", "model", cfg.ModelName),
	}, nil
}

// Run implements engine.Engine.
func (s *Summarizer) Run(ctx context.Context, input []byte, jc engine.JobContext) ([]domain.Artifact, error) {
	prompt, err := s.createPrompt(input)
	if err != nil {
		return nil, domain.NewProcessingError(err)
	}

	summary, err := s.generateWithRetry(ctx, jc.JobID, prompt)
	if err != nil {
		return nil, domain.NewProcessingError(err)
	}

	return []domain.Artifact{{
		Name:        SummaryArtifactName,
		Data:        []byte(summary + "\n"),
		ContentType: "text/plain; charset=utf-8",
	}}, nil
}

func (s *Summarizer) createPrompt(input []byte) (string, error) {
	text := strings.TrimSpace(string(input))
	if text == "" {
		return "", ErrEmptyInput
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: input is not valid UTF-8 text", ErrEmptyInput)
	}
	if len(text) > s.cfg.MaxInputBytes {
		text = text[:s.cfg.MaxInputBytes]
		for !utf8.ValidString(text) {
			text = text[:len(text)-1]
		}
	}

	var buf bytes.Buffer
	if err := s.template.Execute(&buf, promptData{Text: text, MaxSentences: s.cfg.MaxSentences}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

func (s *Summarizer) generateWithRetry(ctx context.Context, jobID, prompt string) (string, error) {
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.WithJitterPercent(25, retry.NewExponential(s.cfg.RetryDelay)))

	attempt := 0
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s.logger.InfoContext(ctx, "calling gemini", "job_id", jobID, "attempt", attempt)

		resp, err := s.models.GenerateContent(ctx, s.cfg.ModelName, genai.Text(prompt), nil)
		if err != nil {
			s.logger.ErrorContext(ctx, "gemini call failed", "job_id", jobID, "attempt", attempt, "error", err)
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}

		text, err = extractText(resp)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return text, nil
}

// isTransient treats rate limits, server errors and transport failures as
// retryable; other API errors are not.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}
