package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateArtifactName(t *testing.T) {
	t.Parallel()

	valid := []string{"vocals.wav", "summary.txt", "a", "no_ext"}
	for _, name := range valid {
		if err := ValidateArtifactName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}

	invalid := []string{"", ".", "..", "a/b", `a\b`, "../etc", strings.Repeat("x", 256)}
	for _, name := range invalid {
		err := ValidateArtifactName(name)
		if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidArtifactName) {
			t.Errorf("%q: expected invalid artifact name validation error, got %v", name, err)
		}
	}
}
