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

package fido2

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// CredentialStore manages registered credential persistence. Implementations
// must enforce credential ID uniqueness at the storage layer so that two
// concurrent inserts of the same ID produce exactly one winner.
type CredentialStore interface {
	// ListCredentialIDs returns the base64-encoded credential IDs registered
	// for a user. An unknown user yields an empty slice, not an error.
	ListCredentialIDs(ctx context.Context, userID string) ([]string, error)

	// GetCredential retrieves a credential by its base64-encoded ID.
	// Returns ErrCredentialNotFound if the credential does not exist.
	GetCredential(ctx context.Context, credentialID string) (*Credential, error)

	// Exists reports whether a credential ID is registered.
	Exists(ctx context.Context, credentialID string) (bool, error)

	// Insert atomically stores a new credential. Returns ErrAlreadyRegistered
	// if the credential ID is already present; the existing row is untouched.
	Insert(ctx context.Context, cred *Credential) error

	// UpdateCounter overwrites the signature counter. Acceptability of the new
	// value is the verifier's responsibility, not the store's.
	// Returns ErrCredentialNotFound if the credential does not exist.
	UpdateCounter(ctx context.Context, credentialID string, counter uint32) error

	// ListAll returns summaries of every stored credential.
	ListAll(ctx context.Context) ([]CredentialSummary, error)

	// DeleteByID removes a credential by its row ID. Deleting an absent row
	// returns false, not an error.
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// ChallengeCache is the single-use challenge state for in-flight ceremonies.
// An absent slot is a normal outcome, reported via the bool return: the
// ceremony was never begun, expired, or the challenge was already consumed.
type ChallengeCache interface {
	// Put stores a value under a slot key, overwriting any existing value.
	// The entry becomes unreadable after ttl elapses.
	Put(ctx context.Context, slotKey, value string, ttl time.Duration) error

	// Take returns the value for a slot key and consumes it. Subsequent calls
	// for the same slot return absent until the next Put.
	Take(ctx context.Context, slotKey string) (string, bool, error)
}

// Verifier is the authenticator verification boundary. It produces the
// protocol payloads the client signs over and validates the raw responses.
// Tests substitute a deterministic fake; the production implementation is
// WebAuthnVerifier.
type Verifier interface {
	// NewRegistrationOptions generates credential creation options for the
	// user, excluding the given base64-encoded credential IDs so the same
	// authenticator cannot be registered twice.
	NewRegistrationOptions(ctx context.Context, user RelyingPartyUser, excludeCredentialIDs []string) (*protocol.CredentialCreation, error)

	// VerifyAttestation validates a raw attestation response against the
	// expected registration state. Returns ErrAttestationInvalid (wrapped)
	// on any verification failure.
	VerifyAttestation(ctx context.Context, response []byte, expected *ExpectedRegistration) (*VerifiedCredential, error)

	// NewAssertionOptions generates assertion options scoped to the given
	// base64-encoded credential IDs.
	NewAssertionOptions(ctx context.Context, allowCredentialIDs []string, uv protocol.UserVerificationRequirement) (*protocol.CredentialAssertion, error)

	// VerifyAssertion validates a raw assertion response against the expected
	// assertion state, including the signature counter check. Returns the new
	// counter value on success, ErrAssertionInvalid (wrapped) otherwise.
	VerifyAssertion(ctx context.Context, response *AssertionFinishRequest, expected *ExpectedAssertion) (uint32, error)
}

// TokenIssuer is an optional capability for minting a post-authentication
// token. When absent, authentication results carry no token.
type TokenIssuer interface {
	// IssueToken creates a signed token for the authenticated user.
	IssueToken(ctx context.Context, username string) (string, error)
}
