package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type errorEnvelope struct {
	Error *domain.APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, apiErr *domain.APIError) {
	AddError(r.Context(), apiErr)
	writeJSON(w, apiErr.HTTPStatusCode(), errorEnvelope{Error: apiErr})
}

// decodeJSON reads a single JSON document from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *domain.APIError {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.ErrInvalidRequest("request body is empty")
		case errors.As(err, &maxErr):
			return domain.ErrInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)).
				WithStatusCode(http.StatusRequestEntityTooLarge)
		default:
			return domain.ErrInvalidRequest("malformed JSON: " + err.Error())
		}
	}
	return nil
}

func notFound(msg string) *domain.APIError {
	return domain.ErrNotFound(msg)
}

func methodNotAllowed(msg string) *domain.APIError {
	return domain.ErrInvalidRequest(msg).WithStatusCode(http.StatusMethodNotAllowed)
}
