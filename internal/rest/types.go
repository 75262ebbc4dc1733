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

import "encoding/json"

// RegistrationBeginRequest starts a registration ceremony.
type RegistrationBeginRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// RegistrationFinishRequest completes a registration ceremony. Attestation is
// the raw authenticator response exactly as the browser produced it.
type RegistrationFinishRequest struct {
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
	Attestation json.RawMessage `json:"attestation"`
}

// AuthenticationBeginRequest starts an authentication ceremony.
type AuthenticationBeginRequest struct {
	Username string `json:"username"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
