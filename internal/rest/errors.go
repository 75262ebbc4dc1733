// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
)

// Common errors
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrMissingUsername = errors.New("missing username")
	ErrInvalidID       = errors.New("invalid id")
	ErrInternalError   = errors.New("internal server error")
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeErrorWithMessage writes an error response with a custom message.
func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, fido2.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, fido2.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingUsername),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, fido2.ErrNoChallengeInProgress),
		errors.Is(err, fido2.ErrMissingSessionState),
		errors.Is(err, fido2.ErrAttestationInvalid),
		errors.Is(err, fido2.ErrAssertionInvalid),
		errors.Is(err, fido2.ErrNoCredentials):
		return http.StatusBadRequest
	case errors.Is(err, fido2.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorType maps a ceremony error to a metrics label.
func errorType(err error) string {
	switch {
	case errors.Is(err, fido2.ErrNoChallengeInProgress):
		return "no_challenge"
	case errors.Is(err, fido2.ErrMissingSessionState):
		return "missing_session_state"
	case errors.Is(err, fido2.ErrAttestationInvalid):
		return "attestation_invalid"
	case errors.Is(err, fido2.ErrAssertionInvalid):
		return "assertion_invalid"
	case errors.Is(err, fido2.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, fido2.ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, fido2.ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, fido2.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// handleError maps the error to a status code and writes the error response.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, err, mapErrorToStatusCode(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
