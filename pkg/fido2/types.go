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
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Credential is a registered authenticator public key plus bookkeeping.
//
// Binary fields (CredentialID, PublicKey) are kept base64-encoded, exactly as
// they cross the HTTP boundary, so the store never re-encodes them.
type Credential struct {
	// UserID is the opaque user identifier (username) owning the credential.
	UserID string `json:"userId"`

	// CredentialID is the authenticator-assigned identifier, base64-encoded.
	// Unique across all credentials; immutable after registration.
	CredentialID string `json:"credentialId"`

	// PublicKey is the COSE public key returned at registration, base64-encoded.
	PublicKey string `json:"publicKey"`

	// SignCount is the signature counter reported by the authenticator.
	SignCount uint32 `json:"signCount"`

	// AAGUID identifies the authenticator model.
	AAGUID string `json:"aaguid"`

	// CredType is the credential type, normally "public-key".
	CredType string `json:"credType"`

	// Format is the attestation statement format (e.g. "packed", "none").
	Format string `json:"format"`

	// DisplayName is the human-readable name supplied at registration.
	DisplayName string `json:"displayName"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"createdAt"`
}

// CredentialSummary is the fixed-shape listing record for administrative use.
type CredentialSummary struct {
	// ID is the store-assigned row identifier used for deletion.
	ID int64 `json:"id"`

	UserID       string    `json:"userId"`
	CredentialID string    `json:"credentialId"`
	DisplayName  string    `json:"displayName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// VerifiedCredential is the verifier's output for a valid attestation.
type VerifiedCredential struct {
	// CredentialID is the raw credential identifier.
	CredentialID []byte

	// PublicKey is the raw COSE public key.
	PublicKey []byte

	// SignCount is the initial signature counter.
	SignCount uint32

	// AAGUID is the authenticator model identifier in UUID text form.
	AAGUID string

	// CredType is the credential type, normally "public-key".
	CredType string

	// Format is the attestation statement format.
	Format string
}

// ExpectedRegistration is the server-side state an attestation response is
// verified against: the stored challenge and the relying party user the
// ceremony was begun for.
type ExpectedRegistration struct {
	// Challenge is the base64url-encoded challenge issued at begin.
	Challenge string

	// User is the user the creation options were issued for.
	User RelyingPartyUser
}

// ExpectedAssertion is the server-side state an assertion response is
// verified against: the stored challenge, the single-credential allow list
// and the stored public key and counter.
type ExpectedAssertion struct {
	// Challenge is the base64url-encoded challenge issued at begin.
	Challenge string

	// AllowedCredentialIDs holds the raw credential IDs the client may answer
	// with. Finish scopes this to exactly the one presented credential.
	AllowedCredentialIDs [][]byte

	// UserID is the user handle of the credential owner.
	UserID []byte

	// PublicKey is the stored raw COSE public key.
	PublicKey []byte

	// SignCount is the stored signature counter. The verifier rejects a
	// response whose counter is not strictly greater (unless both are zero,
	// which authenticators without counters report).
	SignCount uint32
}

// RegistrationResult is the public summary of a newly stored credential.
type RegistrationResult struct {
	CredentialID string `json:"credentialId"`
	PublicKey    string `json:"publicKey"`
	Counter      uint32 `json:"counter"`
	AAGUID       string `json:"aaguid"`
	CredType     string `json:"credType"`
}

// AuthenticationResult is returned after a successful authentication finish.
type AuthenticationResult struct {
	Status   string `json:"status"`
	Username string `json:"username"`

	// Token is a signed token for the authenticated user, present only when
	// the service is configured with a TokenIssuer.
	Token string `json:"token,omitempty"`
}

// AssertionFinishRequest is the authenticator's assertion response as
// submitted by the client. All binary fields are base64-encoded.
type AssertionFinishRequest struct {
	ID       string                `json:"id"`
	Type     string                `json:"type"`
	RawID    string                `json:"rawId"`
	Response AssertionResponseData `json:"response"`
}

// AssertionResponseData carries the signed portions of an assertion.
type AssertionResponseData struct {
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// RelyingPartyUser identifies a user to the verifier. The WebAuthn user
// handle is the UTF-8 bytes of the username.
type RelyingPartyUser struct {
	Name        string
	DisplayName string
}

// WebAuthnID returns the user handle.
func (u RelyingPartyUser) WebAuthnID() []byte {
	return []byte(u.Name)
}

// WebAuthnName returns the username.
func (u RelyingPartyUser) WebAuthnName() string {
	return u.Name
}

// WebAuthnDisplayName returns the display name, falling back to the username.
func (u RelyingPartyUser) WebAuthnDisplayName() string {
	if u.DisplayName == "" {
		return u.Name
	}
	return u.DisplayName
}

// WebAuthnCredentials returns no credentials; exclusion lists are supplied
// separately from the credential store.
func (u RelyingPartyUser) WebAuthnCredentials() []webauthn.Credential {
	return nil
}

// EncodeBase64 is the canonical store encoding for binary fields: standard
// base64 with padding, the same form the original wire format used.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard or URL-safe base64, padded or raw. Browsers
// emit base64url while the wire format here historically used standard
// base64; lookups must converge on one canonical form.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(s)
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
