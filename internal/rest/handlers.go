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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-fido2-server/internal/metrics"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/jeremyhahn/go-fido2-server/pkg/logging"
)

// maxRequestBody caps ceremony request bodies. Attestation responses with
// certificate chains stay well under this.
const maxRequestBody = 1 << 20

// HandlerContext holds the dependencies shared by all handlers.
type HandlerContext struct {
	service *fido2.Service
	logger  logging.Logger
	ready   func(r *http.Request) error
}

// NewHandlerContext creates a handler context for the ceremony service.
func NewHandlerContext(service *fido2.Service, log logging.Logger) *HandlerContext {
	ctx := &HandlerContext{
		service: service,
		logger:  log,
	}
	ctx.ready = ctx.defaultReadiness
	return ctx
}

func (h *HandlerContext) defaultReadiness(r *http.Request) error {
	_, err := h.service.ListCredentials(r.Context())
	return err
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// BeginRegistrationHandler handles POST /makeCredentialOptions.
func (h *HandlerContext) BeginRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RegistrationBeginRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.Username == "" {
		handleError(w, ErrMissingUsername)
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), req.Username, req.DisplayName)
	if err != nil {
		h.failCeremony(w, metrics.CeremonyRegistration, metrics.PhaseBegin, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseBegin,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, options.Response, http.StatusOK)
}

// FinishRegistrationHandler handles POST /makeCredential.
func (h *HandlerContext) FinishRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RegistrationFinishRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.Username == "" {
		handleError(w, ErrMissingUsername)
		return
	}
	if len(req.Attestation) == 0 {
		handleError(w, fmt.Errorf("%w: missing attestation", ErrInvalidRequest))
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), req.Username, req.DisplayName, req.Attestation)
	if err != nil {
		h.failCeremony(w, metrics.CeremonyRegistration, metrics.PhaseFinish, start, err)
		return
	}

	h.logger.Info("credential registered",
		logging.String("username", req.Username),
		logging.String("aaguid", result.AAGUID))
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseFinish,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, result, http.StatusOK)
}

// BeginAuthenticationHandler handles POST /assertionOptions.
func (h *HandlerContext) BeginAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AuthenticationBeginRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.Username == "" {
		handleError(w, ErrMissingUsername)
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), req.Username)
	if err != nil {
		h.failCeremony(w, metrics.CeremonyAuthentication, metrics.PhaseBegin, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseBegin,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, options.Response, http.StatusOK)
}

// FinishAuthenticationHandler handles POST /makeAssertion.
func (h *HandlerContext) FinishAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req fido2.AssertionFinishRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.ID == "" {
		handleError(w, fmt.Errorf("%w: missing credential id", ErrInvalidRequest))
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), &req)
	if err != nil {
		h.failCeremony(w, metrics.CeremonyAuthentication, metrics.PhaseFinish, start, err)
		return
	}

	h.logger.Info("user authenticated", logging.String("username", result.Username))
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseFinish,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, result, http.StatusOK)
}

// ListCredentialsHandler handles GET /passkeys.
func (h *HandlerContext) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListCredentials(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	metrics.SetCredentialsTotal(float64(len(summaries)))
	writeJSON(w, summaries, http.StatusOK)
}

// DeleteCredentialHandler handles DELETE /passkeys/{id}.
func (h *HandlerContext) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handleError(w, fmt.Errorf("%w: %v", ErrInvalidID, err))
		return
	}

	deleted, err := h.service.DeleteCredential(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	if !deleted {
		handleError(w, fido2.ErrCredentialNotFound)
		return
	}

	h.logger.Info("credential deleted", logging.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// HealthHandler handles GET /health. Plain text for load balancer checks.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte("Healthy")) //nolint:errcheck
	}
}

// LivenessHandler handles GET /health/live.
func (h *HandlerContext) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "alive"}, http.StatusOK)
}

// ReadinessHandler handles GET /health/ready. Reports unready when the
// credential store cannot be reached.
func (h *HandlerContext) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.ready(r); err != nil {
		writeJSON(w, HealthResponse{Status: "unready", Reason: err.Error()},
			http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, HealthResponse{Status: "ready"}, http.StatusOK)
}

// failCeremony records metrics for a failed ceremony phase and writes the
// error response.
func (h *HandlerContext) failCeremony(w http.ResponseWriter, ceremony, phase string, start time.Time, err error) {
	h.logger.Warn("ceremony failed",
		logging.String("ceremony", ceremony),
		logging.String("phase", phase),
		logging.Error(err))
	metrics.RecordCeremony(ceremony, phase, metrics.StatusError, time.Since(start).Seconds())
	metrics.RecordCeremonyError(ceremony, errorType(err))
	handleError(w, err)
}
