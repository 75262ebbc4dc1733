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
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// Challenge slot keys. The registration slot and the assertion slots are
// process-global, matching single-instance deployment semantics; the cache
// is an injected capability so a shared store keyed per session can replace
// it without touching the ceremonies.
const (
	registrationChallengeSlot = "fido2.challenge"
	assertionChallengeSlot    = "fido2.assertion.challenge"
	assertionUsernameSlot     = "fido2.assertion.username"
)

// Service orchestrates the registration and authentication ceremonies over
// the credential store, the challenge cache and the verifier. It holds no
// ceremony state of its own and is safe for concurrent use.
type Service struct {
	config   *Config
	creds    CredentialStore
	cache    ChallengeCache
	verifier Verifier
	tokens   TokenIssuer // optional
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// CredentialStore is the durable credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeCache holds in-flight ceremony challenges (required).
	ChallengeCache ChallengeCache

	// Verifier performs the cryptographic validation (required).
	Verifier Verifier

	// TokenIssuer optionally mints a token after successful authentication.
	TokenIssuer TokenIssuer
}

// NewService creates a ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrNotConfigured)
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("%w: credential store is required", ErrNotConfigured)
	}
	if params.ChallengeCache == nil {
		return nil, fmt.Errorf("%w: challenge cache is required", ErrNotConfigured)
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("%w: verifier is required", ErrNotConfigured)
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		config:   params.Config,
		creds:    params.CredentialStore,
		cache:    params.ChallengeCache,
		verifier: params.Verifier,
		tokens:   params.TokenIssuer,
	}, nil
}

// BeginRegistration starts a registration ceremony. The returned creation
// options carry the challenge the authenticator must sign over; the same
// challenge is stored in the cache for the finish step.
func (s *Service) BeginRegistration(ctx context.Context, username, displayName string) (*protocol.CredentialCreation, error) {
	user := RelyingPartyUser{Name: username, DisplayName: displayName}

	existing, err := s.creds.ListCredentialIDs(ctx, username)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}

	options, err := s.verifier.NewRegistrationOptions(ctx, user, existing)
	if err != nil {
		return nil, WrapError("new registration options", err)
	}

	challenge := options.Response.Challenge.String()
	if err := s.cache.Put(ctx, registrationChallengeSlot, challenge, s.config.ChallengeTTL); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return options, nil
}

// FinishRegistration completes a registration ceremony. The stored challenge
// is consumed whether or not verification succeeds, so a signed response can
// never be replayed. On success the credential is stored atomically; nothing
// is persisted on any failure.
func (s *Service) FinishRegistration(ctx context.Context, username, displayName string, attestation []byte) (*RegistrationResult, error) {
	challenge, ok, err := s.cache.Take(ctx, registrationChallengeSlot)
	if err != nil {
		return nil, WrapError("read challenge", err)
	}
	if !ok {
		return nil, ErrNoChallengeInProgress
	}

	user := RelyingPartyUser{Name: username, DisplayName: displayName}
	verified, err := s.verifier.VerifyAttestation(ctx, attestation, &ExpectedRegistration{
		Challenge: challenge,
		User:      user,
	})
	if err != nil {
		return nil, err
	}

	credentialID := EncodeBase64(verified.CredentialID)

	exists, err := s.creds.Exists(ctx, credentialID)
	if err != nil {
		return nil, WrapError("check credential", err)
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}

	cred := &Credential{
		UserID:       username,
		CredentialID: credentialID,
		PublicKey:    EncodeBase64(verified.PublicKey),
		SignCount:    verified.SignCount,
		AAGUID:       verified.AAGUID,
		CredType:     verified.CredType,
		Format:       verified.Format,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.creds.Insert(ctx, cred); err != nil {
		return nil, WrapError("insert credential", err)
	}

	return &RegistrationResult{
		CredentialID: cred.CredentialID,
		PublicKey:    cred.PublicKey,
		Counter:      cred.SignCount,
		AAGUID:       cred.AAGUID,
		CredType:     cred.CredType,
	}, nil
}

// BeginAuthentication starts an authentication ceremony for a claimant.
// Fails with ErrNoCredentials when the user has nothing registered.
func (s *Service) BeginAuthentication(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	ids, err := s.creds.ListCredentialIDs(ctx, username)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoCredentials
	}

	options, err := s.verifier.NewAssertionOptions(ctx, ids, s.config.UserVerificationRequirement())
	if err != nil {
		return nil, WrapError("new assertion options", err)
	}

	challenge := options.Response.Challenge.String()
	if err := s.cache.Put(ctx, assertionChallengeSlot, challenge, s.config.ChallengeTTL); err != nil {
		return nil, WrapError("store challenge", err)
	}
	if err := s.cache.Put(ctx, assertionUsernameSlot, username, s.config.ChallengeTTL); err != nil {
		return nil, WrapError("store claimant", err)
	}

	return options, nil
}

// FinishAuthentication completes an authentication ceremony. The expected
// assertion options are rebuilt scoped to exactly the presented credential;
// the verifier owns the signature and counter checks. The counter is updated
// only after the verifier accepts the response.
func (s *Service) FinishAuthentication(ctx context.Context, req *AssertionFinishRequest) (*AuthenticationResult, error) {
	rawID, err := DecodeBase64(req.ID)
	if err != nil {
		return nil, NewError("decode credential id", fmt.Errorf("%w: %v", ErrAssertionInvalid, err))
	}
	credentialID := EncodeBase64(rawID)

	cred, err := s.creds.GetCredential(ctx, credentialID)
	if err != nil {
		return nil, WrapError("get credential", err)
	}

	// Both slots are consumed regardless of outcome; a finish without both
	// present is a hard ceremony failure, never an anonymous path.
	challenge, haveChallenge, err := s.cache.Take(ctx, assertionChallengeSlot)
	if err != nil {
		return nil, WrapError("read challenge", err)
	}
	claimant, haveClaimant, err := s.cache.Take(ctx, assertionUsernameSlot)
	if err != nil {
		return nil, WrapError("read claimant", err)
	}
	if !haveChallenge || !haveClaimant {
		return nil, ErrMissingSessionState
	}

	// The challenge was issued for the claimant's credentials. A credential
	// owned by anyone else was never in that ceremony's candidate list.
	if cred.UserID != claimant {
		return nil, NewError("verify claimant",
			fmt.Errorf("%w: credential not in ceremony allow list", ErrAssertionInvalid))
	}

	publicKey, err := DecodeBase64(cred.PublicKey)
	if err != nil {
		return nil, WrapError("decode stored public key", err)
	}

	newCount, err := s.verifier.VerifyAssertion(ctx, req, &ExpectedAssertion{
		Challenge:            challenge,
		AllowedCredentialIDs: [][]byte{rawID},
		UserID:               []byte(cred.UserID),
		PublicKey:            publicKey,
		SignCount:            cred.SignCount,
	})
	if err != nil {
		return nil, err
	}

	if err := s.creds.UpdateCounter(ctx, credentialID, newCount); err != nil {
		return nil, WrapError("update counter", err)
	}

	result := &AuthenticationResult{
		Status:   "ok",
		Username: cred.UserID,
	}
	if s.tokens != nil {
		token, err := s.tokens.IssueToken(ctx, cred.UserID)
		if err != nil {
			return nil, WrapError("issue token", err)
		}
		result.Token = token
	}

	return result, nil
}

// ListCredentials returns summaries of every stored credential.
func (s *Service) ListCredentials(ctx context.Context) ([]CredentialSummary, error) {
	return s.creds.ListAll(ctx)
}

// DeleteCredential removes a credential by its row ID. Idempotent: deleting
// an absent row returns false.
func (s *Service) DeleteCredential(ctx context.Context, id int64) (bool, error) {
	return s.creds.DeleteByID(ctx, id)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}
