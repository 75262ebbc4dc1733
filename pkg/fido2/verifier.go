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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// WebAuthnVerifier is the production Verifier backed by the go-webauthn
// library. It performs attestation statement and assertion signature
// validation, origin and RPID checks, and the signature counter check.
type WebAuthnVerifier struct {
	webauthn *webauthn.WebAuthn
	config   *Config
}

// NewWebAuthnVerifier creates a verifier from the relying party configuration.
func NewWebAuthnVerifier(cfg *Config) (*WebAuthnVerifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(cfg.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &WebAuthnVerifier{
		webauthn: wa,
		config:   cfg,
	}, nil
}

// NewRegistrationOptions generates credential creation options for the user.
func (v *WebAuthnVerifier) NewRegistrationOptions(ctx context.Context, user RelyingPartyUser, excludeCredentialIDs []string) (*protocol.CredentialCreation, error) {
	excludeList, err := descriptorsFromIDs(excludeCredentialIDs)
	if err != nil {
		return nil, WrapError("decode exclude list", err)
	}

	options, _, err := v.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	return options, nil
}

// VerifyAttestation validates a raw attestation response. The expected
// creation options are reconstructed from the stored challenge and the
// relying party configuration.
func (v *WebAuthnVerifier) VerifyAttestation(ctx context.Context, response []byte, expected *ExpectedRegistration) (*VerifiedCredential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, NewError("parse attestation", fmt.Errorf("%w: %v", ErrAttestationInvalid, err))
	}

	session := webauthn.SessionData{
		Challenge:        expected.Challenge,
		UserID:           expected.User.WebAuthnID(),
		UserVerification: protocol.VerificationPreferred,
	}

	credential, err := v.webauthn.CreateCredential(expected.User, session, parsed)
	if err != nil {
		return nil, NewError("verify attestation", fmt.Errorf("%w: %v", ErrAttestationInvalid, err))
	}

	return &VerifiedCredential{
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		AAGUID:       formatAAGUID(credential.Authenticator.AAGUID),
		CredType:     "public-key",
		Format:       credential.AttestationType,
	}, nil
}

// NewAssertionOptions generates assertion options scoped to the given
// credential IDs.
func (v *WebAuthnVerifier) NewAssertionOptions(ctx context.Context, allowCredentialIDs []string, uv protocol.UserVerificationRequirement) (*protocol.CredentialAssertion, error) {
	allowList, err := descriptorsFromIDs(allowCredentialIDs)
	if err != nil {
		return nil, WrapError("decode allow list", err)
	}

	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return nil, WrapError("create challenge", err)
	}

	return &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          challenge,
			Timeout:            int(v.config.Timeout.Milliseconds()),
			RelyingPartyID:     v.config.RPID,
			AllowedCredentials: allowList,
			UserVerification:   uv,
		},
	}, nil
}

// VerifyAssertion validates an assertion response against the stored public
// key and counter. A signature counter that fails to advance is reported as
// ErrAssertionInvalid; counters that are zero on both sides are accepted,
// since authenticators without counters report zero.
func (v *WebAuthnVerifier) VerifyAssertion(ctx context.Context, response *AssertionFinishRequest, expected *ExpectedAssertion) (uint32, error) {
	parsed, err := parseAssertionResponse(response)
	if err != nil {
		return 0, NewError("parse assertion", fmt.Errorf("%w: %v", ErrAssertionInvalid, err))
	}

	session := webauthn.SessionData{
		Challenge:            expected.Challenge,
		UserID:               expected.UserID,
		AllowedCredentialIDs: expected.AllowedCredentialIDs,
		UserVerification:     v.config.UserVerificationRequirement(),
	}

	holder := &credentialHolder{
		id: expected.UserID,
		credential: webauthn.Credential{
			ID:        parsed.RawID,
			PublicKey: expected.PublicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: expected.SignCount,
			},
		},
	}

	credential, err := v.webauthn.ValidateLogin(holder, session, parsed)
	if err != nil {
		return 0, NewError("verify assertion", fmt.Errorf("%w: %v", ErrAssertionInvalid, err))
	}

	if credential.Authenticator.CloneWarning {
		return 0, NewError("verify assertion",
			fmt.Errorf("%w: signature counter did not increase", ErrAssertionInvalid))
	}

	return credential.Authenticator.SignCount, nil
}

// parseAssertionResponse reconstructs the WebAuthn wire format from the
// base64 fields submitted by the client.
func parseAssertionResponse(req *AssertionFinishRequest) (*protocol.ParsedCredentialAssertionData, error) {
	rawID, err := DecodeBase64(req.RawID)
	if err != nil {
		return nil, fmt.Errorf("invalid rawId: %w", err)
	}
	clientDataJSON, err := DecodeBase64(req.Response.ClientDataJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid clientDataJSON: %w", err)
	}
	authenticatorData, err := DecodeBase64(req.Response.AuthenticatorData)
	if err != nil {
		return nil, fmt.Errorf("invalid authenticatorData: %w", err)
	}
	signature, err := DecodeBase64(req.Response.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	var userHandle []byte
	if req.Response.UserHandle != "" {
		userHandle, err = DecodeBase64(req.Response.UserHandle)
		if err != nil {
			return nil, fmt.Errorf("invalid userHandle: %w", err)
		}
	}

	car := protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(rawID),
				Type: req.Type,
			},
			RawID: rawID,
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: clientDataJSON,
			},
			AuthenticatorData: authenticatorData,
			Signature:         signature,
			UserHandle:        userHandle,
		},
	}

	return car.Parse()
}

// descriptorsFromIDs converts base64-encoded credential IDs to descriptors.
func descriptorsFromIDs(ids []string) ([]protocol.CredentialDescriptor, error) {
	descriptors := make([]protocol.CredentialDescriptor, 0, len(ids))
	for _, id := range ids {
		raw, err := DecodeBase64(id)
		if err != nil {
			return nil, fmt.Errorf("invalid credential id %q: %w", id, err)
		}
		descriptors = append(descriptors, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: raw,
		})
	}
	return descriptors, nil
}

// formatAAGUID renders a 16-byte AAGUID in UUID text form.
func formatAAGUID(aaguid []byte) string {
	id, err := uuid.FromBytes(aaguid)
	if err != nil {
		return ""
	}
	return id.String()
}

// credentialHolder satisfies webauthn.User for assertion validation with a
// single stored credential.
type credentialHolder struct {
	id         []byte
	credential webauthn.Credential
}

func (h *credentialHolder) WebAuthnID() []byte          { return h.id }
func (h *credentialHolder) WebAuthnName() string        { return string(h.id) }
func (h *credentialHolder) WebAuthnDisplayName() string { return string(h.id) }
func (h *credentialHolder) WebAuthnCredentials() []webauthn.Credential {
	return []webauthn.Credential{h.credential}
}
