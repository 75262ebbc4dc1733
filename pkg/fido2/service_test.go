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
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCredentialStore is a deterministic in-test CredentialStore.
type fakeCredentialStore struct {
	mu     sync.Mutex
	byID   map[string]*Credential
	rowIDs map[string]int64
	nextID int64
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		byID:   make(map[string]*Credential),
		rowIDs: make(map[string]int64),
		nextID: 1,
	}
}

func (s *fakeCredentialStore) ListCredentialIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id, cred := range s.byID {
		if cred.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeCredentialStore) GetCredential(ctx context.Context, credentialID string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[credentialID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	copy := *cred
	return &copy, nil
}

func (s *fakeCredentialStore) Exists(ctx context.Context, credentialID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byID[credentialID]
	return ok, nil
}

func (s *fakeCredentialStore) Insert(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[cred.CredentialID]; ok {
		return ErrAlreadyRegistered
	}
	copy := *cred
	s.byID[cred.CredentialID] = &copy
	s.rowIDs[cred.CredentialID] = s.nextID
	s.nextID++
	return nil
}

func (s *fakeCredentialStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.SignCount = counter
	return nil
}

func (s *fakeCredentialStore) ListAll(ctx context.Context) ([]CredentialSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := []CredentialSummary{}
	for id, cred := range s.byID {
		summaries = append(summaries, CredentialSummary{
			ID:           s.rowIDs[id],
			UserID:       cred.UserID,
			CredentialID: cred.CredentialID,
			DisplayName:  cred.DisplayName,
			CreatedAt:    cred.CreatedAt,
		})
	}
	return summaries, nil
}

func (s *fakeCredentialStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for credID, rowID := range s.rowIDs {
		if rowID == id {
			delete(s.byID, credID)
			delete(s.rowIDs, credID)
			return true, nil
		}
	}
	return false, nil
}

// fakeVerifier is a deterministic Verifier that issues a fixed challenge and
// returns configured results.
type fakeVerifier struct {
	challenge      string
	verified       *VerifiedCredential
	attestationErr error
	newCount       uint32
	assertionErr   error

	lastExpectedRegistration *ExpectedRegistration
	lastExpectedAssertion    *ExpectedAssertion
}

func (v *fakeVerifier) NewRegistrationOptions(ctx context.Context, user RelyingPartyUser, excludeCredentialIDs []string) (*protocol.CredentialCreation, error) {
	return &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			Challenge: protocol.URLEncodedBase64(v.challenge),
			User: protocol.UserEntity{
				DisplayName: user.WebAuthnDisplayName(),
				CredentialEntity: protocol.CredentialEntity{
					Name: user.WebAuthnName(),
				},
				ID: protocol.URLEncodedBase64(user.WebAuthnID()),
			},
		},
	}, nil
}

func (v *fakeVerifier) VerifyAttestation(ctx context.Context, response []byte, expected *ExpectedRegistration) (*VerifiedCredential, error) {
	v.lastExpectedRegistration = expected
	if v.attestationErr != nil {
		return nil, v.attestationErr
	}
	return v.verified, nil
}

func (v *fakeVerifier) NewAssertionOptions(ctx context.Context, allowCredentialIDs []string, uv protocol.UserVerificationRequirement) (*protocol.CredentialAssertion, error) {
	return &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:        protocol.URLEncodedBase64(v.challenge),
			UserVerification: uv,
		},
	}, nil
}

func (v *fakeVerifier) VerifyAssertion(ctx context.Context, response *AssertionFinishRequest, expected *ExpectedAssertion) (uint32, error) {
	v.lastExpectedAssertion = expected
	if v.assertionErr != nil {
		return 0, v.assertionErr
	}

	rawID, err := DecodeBase64(response.ID)
	if err != nil {
		return 0, NewError("decode id", ErrAssertionInvalid)
	}
	allowed := false
	for _, id := range expected.AllowedCredentialIDs {
		if bytes.Equal(id, rawID) {
			allowed = true
		}
	}
	if !allowed {
		return 0, NewError("allow list", ErrAssertionInvalid)
	}

	return v.newCount, nil
}

func testConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
}

func newTestService(t *testing.T, store CredentialStore, verifier Verifier, cache ChallengeCache) *Service {
	t.Helper()
	if cache == nil {
		cache = NewMemoryChallengeCache(5 * time.Minute)
	}
	svc, err := NewService(ServiceParams{
		Config:          testConfig(),
		CredentialStore: store,
		ChallengeCache:  cache,
		Verifier:        verifier,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewService(ServiceParams{Config: testConfig()})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewService(ServiceParams{
		Config:          &Config{},
		CredentialStore: newFakeCredentialStore(),
		ChallengeCache:  NewMemoryChallengeCache(time.Minute),
		Verifier:        &fakeVerifier{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRegistrationCeremony(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{
		challenge: "reg-challenge",
		verified: &VerifiedCredential{
			CredentialID: []byte("AAA"),
			PublicKey:    []byte("public-key-bytes"),
			SignCount:    0,
			AAGUID:       "01020304-0506-0708-090a-0b0c0d0e0f10",
			CredType:     "public-key",
			Format:       "packed",
		},
	}
	svc := newTestService(t, store, verifier, nil)

	options, err := svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)
	require.NotNil(t, options)
	assert.Equal(t, "alice", options.Response.User.Name)

	result, err := svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, EncodeBase64([]byte("AAA")), result.CredentialID)
	assert.Equal(t, uint32(0), result.Counter)
	assert.Equal(t, "public-key", result.CredType)

	// The verifier saw the stored challenge and the ceremony user.
	require.NotNil(t, verifier.lastExpectedRegistration)
	assert.Equal(t, protocol.URLEncodedBase64("reg-challenge").String(),
		verifier.lastExpectedRegistration.Challenge)
	assert.Equal(t, "alice", verifier.lastExpectedRegistration.User.Name)

	exists, err := store.Exists(ctx, result.CredentialID)
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := store.GetCredential(ctx, result.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)
	assert.Equal(t, "Alice", stored.DisplayName)
	assert.Equal(t, "packed", stored.Format)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestFinishRegistration_NoChallengeInProgress(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeCredentialStore(), &fakeVerifier{challenge: "c"}, nil)

	_, err := svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoChallengeInProgress)
}

func TestFinishRegistration_ChallengeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{
		challenge: "reg-challenge",
		verified:  &VerifiedCredential{CredentialID: []byte("AAA"), PublicKey: []byte("pk")},
	}
	svc := newTestService(t, store, verifier, nil)

	_, err := svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	require.NoError(t, err)

	// Replaying the same signed response must fail: the challenge was consumed.
	_, err = svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoChallengeInProgress)
}

func TestFinishRegistration_AlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{
		challenge: "reg-challenge",
		verified: &VerifiedCredential{
			CredentialID: []byte("AAA"),
			PublicKey:    []byte("original-key"),
			SignCount:    7,
		},
	}
	svc := newTestService(t, store, verifier, nil)

	_, err := svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)
	result, err := svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	require.NoError(t, err)

	// Second ceremony for the same physical authenticator.
	verifier.verified.PublicKey = []byte("tampered-key")
	verifier.verified.SignCount = 99
	_, err = svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)
	_, err = svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// The stored row is untouched.
	stored, err := store.GetCredential(ctx, result.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, EncodeBase64([]byte("original-key")), stored.PublicKey)
	assert.Equal(t, uint32(7), stored.SignCount)
}

func TestFinishRegistration_AttestationInvalid(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{
		challenge:      "reg-challenge",
		attestationErr: NewError("verify attestation", ErrAttestationInvalid),
	}
	svc := newTestService(t, store, verifier, nil)

	_, err := svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, "alice", "Alice", []byte(`{}`))
	assert.ErrorIs(t, err, ErrAttestationInvalid)

	// Nothing was persisted.
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBeginAuthentication_NoCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeCredentialStore(), &fakeVerifier{challenge: "c"}, nil)

	_, err := svc.BeginAuthentication(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func registerCredential(t *testing.T, svc *Service, store *fakeCredentialStore, verifier *fakeVerifier, username string, credID []byte) *RegistrationResult {
	t.Helper()
	ctx := context.Background()
	verifier.verified = &VerifiedCredential{
		CredentialID: credID,
		PublicKey:    []byte("public-key-bytes"),
		SignCount:    0,
		CredType:     "public-key",
	}
	_, err := svc.BeginRegistration(ctx, username, username)
	require.NoError(t, err)
	result, err := svc.FinishRegistration(ctx, username, username, []byte(`{}`))
	require.NoError(t, err)
	return result
}

func assertionRequest(credID []byte) *AssertionFinishRequest {
	encoded := EncodeBase64(credID)
	return &AssertionFinishRequest{
		ID:    encoded,
		Type:  "public-key",
		RawID: encoded,
		Response: AssertionResponseData{
			AuthenticatorData: EncodeBase64([]byte("authdata")),
			ClientDataJSON:    EncodeBase64([]byte(`{"type":"webauthn.get"}`)),
			Signature:         EncodeBase64([]byte("signature")),
		},
	}
}

func TestAuthenticationCeremony(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 12}
	svc := newTestService(t, store, verifier, nil)

	result := registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	options, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, options)

	authResult, err := svc.FinishAuthentication(ctx, assertionRequest([]byte("AAA")))
	require.NoError(t, err)
	assert.Equal(t, "ok", authResult.Status)
	assert.Equal(t, "alice", authResult.Username)
	assert.Empty(t, authResult.Token)

	// Counter equals the value the verifier accepted; nothing else changed.
	stored, err := store.GetCredential(ctx, result.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(12), stored.SignCount)
	assert.Equal(t, EncodeBase64([]byte("public-key-bytes")), stored.PublicKey)
	assert.Equal(t, "alice", stored.UserID)

	// The verifier received the stored counter and the one-credential scope.
	require.NotNil(t, verifier.lastExpectedAssertion)
	assert.Equal(t, uint32(0), verifier.lastExpectedAssertion.SignCount)
	require.Len(t, verifier.lastExpectedAssertion.AllowedCredentialIDs, 1)
	assert.Equal(t, []byte("AAA"), verifier.lastExpectedAssertion.AllowedCredentialIDs[0])
}

func TestFinishAuthentication_CredentialNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeCredentialStore(), &fakeVerifier{challenge: "c"}, nil)

	_, err := svc.FinishAuthentication(ctx, assertionRequest([]byte("nope")))
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestFinishAuthentication_MissingSessionState(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 1}
	svc := newTestService(t, store, verifier, nil)

	registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	// No begin: both assertion slots are empty.
	_, err := svc.FinishAuthentication(ctx, assertionRequest([]byte("AAA")))
	assert.ErrorIs(t, err, ErrMissingSessionState)
}

func TestFinishAuthentication_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 1}
	cache := NewMemoryChallengeCache(5 * time.Minute)
	svc, err := NewService(ServiceParams{
		Config: &Config{
			RPID:          "example.com",
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{"https://example.com"},
			ChallengeTTL:  10 * time.Millisecond,
		},
		CredentialStore: store,
		ChallengeCache:  cache,
		Verifier:        verifier,
	})
	require.NoError(t, err)

	registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	_, err = svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = svc.FinishAuthentication(ctx, assertionRequest([]byte("AAA")))
	assert.ErrorIs(t, err, ErrMissingSessionState)
}

func TestFinishAuthentication_AssertionInvalid(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 44}
	svc := newTestService(t, store, verifier, nil)

	result := registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	_, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	verifier.assertionErr = NewError("verify assertion", ErrAssertionInvalid)
	_, err = svc.FinishAuthentication(ctx, assertionRequest([]byte("AAA")))
	assert.ErrorIs(t, err, ErrAssertionInvalid)

	// Counter must not move on a rejected assertion.
	stored, err := store.GetCredential(ctx, result.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignCount)
}

func TestFinishAuthentication_CredentialOutsideCandidateList(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 5}
	svc := newTestService(t, store, verifier, nil)

	registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))
	bob := registerCredential(t, svc, store, verifier, "bob", []byte("BBB"))

	// Ceremony begun for alice, answered with bob's credential.
	_, err := svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, assertionRequest([]byte("BBB")))
	assert.ErrorIs(t, err, ErrAssertionInvalid)

	stored, err := store.GetCredential(ctx, bob.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignCount)
}

func TestFinishAuthentication_IssuesToken(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "auth-challenge", newCount: 3}

	issuer, err := NewJWTIssuer(&JWTIssuerConfig{SigningKey: []byte("0123456789abcdef")})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Config:          testConfig(),
		CredentialStore: store,
		ChallengeCache:  NewMemoryChallengeCache(time.Minute),
		Verifier:        verifier,
		TokenIssuer:     issuer,
	})
	require.NoError(t, err)

	registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	_, err = svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	result, err := svc.FinishAuthentication(ctx, assertionRequest([]byte("AAA")))
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	subject, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestDeleteCredential_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeCredentialStore()
	verifier := &fakeVerifier{challenge: "reg-challenge"}
	svc := newTestService(t, store, verifier, nil)

	registerCredential(t, svc, store, verifier, "alice", []byte("AAA"))

	all, err := svc.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	deleted, err := svc.DeleteCredential(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.DeleteCredential(ctx, all[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
