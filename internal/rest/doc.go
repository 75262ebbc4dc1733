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

// Package rest exposes the FIDO2 ceremonies over HTTP.
//
// Ceremony endpoints:
//
//	POST /makeCredentialOptions  begin registration
//	POST /makeCredential         finish registration
//	POST /assertionOptions       begin authentication
//	POST /makeAssertion          finish authentication
//
// Management endpoints:
//
//	GET    /passkeys             list stored credentials
//	DELETE /passkeys/{id}        delete a credential by row ID
//
// Operational endpoints:
//
//	GET /health                  legacy health check, plain "Healthy"
//	GET /health/live             liveness probe
//	GET /health/ready            readiness probe (checks the store)
//	GET /metrics                 Prometheus metrics
package rest
