package domain

import (
	"errors"
	"strings"
)

// ErrInvalidArtifactName is returned when an artifact name cannot be used as
// the last segment of an object key.
var ErrInvalidArtifactName = errors.New("invalid artifact name")

// maxArtifactNameLength bounds artifact names so keys stay well under object
// store limits.
const maxArtifactNameLength = 255

// Artifact is one named output produced by processing a job.
type Artifact struct {
	Name        string
	Data        []byte
	ContentType string
}

// ValidateArtifactName checks that name is a single, non-traversing path segment.
func ValidateArtifactName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return NewValidationError("artifact_name", "must be a non-empty file name", ErrInvalidArtifactName)
	case len(name) > maxArtifactNameLength:
		return NewValidationError("artifact_name", "is too long", ErrInvalidArtifactName)
	case strings.ContainsAny(name, "/\\"):
		return NewValidationError("artifact_name", "must not contain path separators", ErrInvalidArtifactName)
	}
	return nil
}
