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

// Package fido2 implements the WebAuthn/FIDO2 relying party core: the
// registration and authentication ceremonies, the challenge cache that holds
// per-ceremony server nonces, and the credential store contract.
//
// The package is organized around three injected capabilities:
//
//   - CredentialStore: durable storage for registered credentials, keyed by
//     credential ID. Owns the uniqueness invariant (a credential ID is
//     registered at most once) and the signature counter.
//
//   - ChallengeCache: short-lived single-use storage binding a ceremony slot
//     to a challenge value. Entries expire after a TTL and are consumed on
//     read, so a challenge can never be accepted twice.
//
//   - Verifier: the authenticator verification boundary. It generates
//     creation/assertion options and validates the raw attestation and
//     assertion responses returned by the client. The production
//     implementation (WebAuthnVerifier) is backed by go-webauthn; tests
//     substitute a deterministic fake.
//
// Service wires the three together. Ceremonies are stateless: all ephemeral
// state lives in the ChallengeCache and all durable state in the
// CredentialStore, so Service methods may be called concurrently.
//
// Basic usage:
//
//	cfg := &fido2.Config{
//		RPID:          "example.com",
//		RPDisplayName: "Example Corp",
//		RPOrigins:     []string{"https://example.com"},
//	}
//
//	verifier, err := fido2.NewWebAuthnVerifier(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc, err := fido2.NewService(fido2.ServiceParams{
//		Config:          cfg,
//		CredentialStore: memory.NewCredentialStore(),
//		ChallengeCache:  fido2.NewMemoryChallengeCache(cfg.ChallengeTTL),
//		Verifier:        verifier,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	options, err := svc.BeginRegistration(ctx, "alice", "Alice")
//	// send options to the browser, receive the attestation response,
//	// then:
//	result, err := svc.FinishRegistration(ctx, "alice", "Alice", attestationJSON)
package fido2
