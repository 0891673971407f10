package handlers

import (
	"net/http"

	apperrors "github.com/artofficial/intake/internal/errors"
)

// ErrorResponder writes an error response for a failed request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// errorResponder is swapped by the server at construction so every handler
// shares the router's error writer.
var errorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder installs responder. Nil restores the envelope writer
// from internal/errors.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	errorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponder(w, r, err)
}
