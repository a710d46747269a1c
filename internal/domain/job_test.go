package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	input := Locator{Bucket: "inputs", Key: InputKey("abc")}

	t.Run("valid job", func(t *testing.T) {
		t.Parallel()
		cb := &Callback{URL: "http://example.com/hook", Data: json.RawMessage(`{"k":1}`)}
		job, err := NewJob("abc", input, cb)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Status != JobStatusQueued {
			t.Errorf("expected status %q, got %q", JobStatusQueued, job.Status)
		}
		if job.ResultRefs == nil || len(job.ResultRefs) != 0 {
			t.Errorf("expected empty non-nil result refs, got %#v", job.ResultRefs)
		}
		if job.CreatedAt.IsZero() || !job.CreatedAt.Equal(job.UpdatedAt) {
			t.Errorf("expected matching non-zero timestamps, got %v / %v", job.CreatedAt, job.UpdatedAt)
		}
		if job.Callback != cb {
			t.Errorf("expected callback to be kept")
		}
	})

	t.Run("empty id", func(t *testing.T) {
		t.Parallel()
		_, err := NewJob("", input, nil)
		if !errors.Is(err, ErrEmptyJobID) {
			t.Errorf("expected ErrEmptyJobID, got %v", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		_, err := NewJob("abc", Locator{}, nil)
		if !errors.Is(err, ErrEmptyInputRef) {
			t.Errorf("expected ErrEmptyInputRef, got %v", err)
		}
	})
}

func TestJobStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusProcessing, true},
		{JobStatusQueued, JobStatusCompleted, false},
		{JobStatusQueued, JobStatusFailed, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusQueued, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusFailed, JobStatusQueued, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}

	if JobStatusQueued.IsTerminal() || JobStatusProcessing.IsTerminal() {
		t.Error("queued and processing must not be terminal")
	}
	if !JobStatusCompleted.IsTerminal() || !JobStatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestParseJobStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseJobStatus("completed")
	if err != nil || status != JobStatusCompleted {
		t.Fatalf("expected completed, got %q (%v)", status, err)
	}

	_, err = ParseJobStatus("done")
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidJobStatus) {
		t.Errorf("expected validation error wrapping ErrInvalidJobStatus, got %v", err)
	}
}

func TestJobApplyAndClone(t *testing.T) {
	t.Parallel()

	job, err := NewJob("abc", Locator{Bucket: "inputs", Key: "abc.input"}, &Callback{URL: "http://x", Data: json.RawMessage(`"d"`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clone := job.Clone()
	later := job.UpdatedAt.Add(time.Second)
	clone.Apply(JobUpdate{AppendResultRefs: []Locator{{Bucket: "artifacts", Key: ArtifactKey("abc", "a.txt")}}}, later)
	clone.Apply(StatusUpdate(JobStatusCompleted), later)
	clone.Callback.Data[1] = 'x'

	if len(job.ResultRefs) != 0 {
		t.Errorf("original job mutated through clone: %v", job.ResultRefs)
	}
	if string(job.Callback.Data) != `"d"` {
		t.Errorf("original callback data mutated: %s", job.Callback.Data)
	}
	if clone.Status != JobStatusCompleted || len(clone.ResultRefs) != 1 || !clone.UpdatedAt.Equal(later) {
		t.Errorf("unexpected clone state: %+v", clone)
	}
	if clone.ResultRefs[0].String() != "artifacts/abc/a.txt" {
		t.Errorf("unexpected locator string %q", clone.ResultRefs[0].String())
	}

	failed := job.Clone()
	failed.Apply(FailureUpdate("boom"), later)
	if failed.Status != JobStatusFailed || failed.Error != "boom" {
		t.Errorf("unexpected failure state: %+v", failed)
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	if got := InputKey("j1"); got != "j1.input" {
		t.Errorf("InputKey: got %q", got)
	}
	if got := ArtifactKey("j1", "vocals.wav"); got != "j1/vocals.wav" {
		t.Errorf("ArtifactKey: got %q", got)
	}
}
