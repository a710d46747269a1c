package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/jobpipe/internal/api/shared"
	"github.com/phrazzld/jobpipe/internal/domain"
)

// pathParam extracts a required URL path parameter.
func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if value == "" {
		return "", domain.NewValidationError(name, "is required", nil)
	}
	return value, nil
}

// handleAPIError writes the status code and safe message for err and logs
// the redacted detail.
func handleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
}
