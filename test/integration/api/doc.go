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

// Package api contains end-to-end tests that drive the ceremony endpoints
// of a running fido2-server over HTTP with a virtual authenticator.
//
// The tests are excluded from normal runs; build with the integration tag:
//
//	go test -tags integration ./test/integration/api/
//
// Configuration via environment variables:
//
//	FIDO2_TEST_SERVER  base URL of the server under test (default http://localhost:8443)
//	FIDO2_TEST_RP_ID   relying party ID the server is configured with (default localhost)
//	FIDO2_TEST_ORIGIN  origin the server accepts (default https://localhost:8443)
//
package api
