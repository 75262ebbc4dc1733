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

// Package memory provides an in-memory credential store. State is lost on
// restart; it exists for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
)

// CredentialStore is an in-memory implementation of fido2.CredentialStore.
// Safe for concurrent use.
type CredentialStore struct {
	mu     sync.RWMutex
	byID   map[string]*fido2.Credential
	rowIDs map[string]int64
	nextID int64
}

// NewCredentialStore creates an empty in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID:   make(map[string]*fido2.Credential),
		rowIDs: make(map[string]int64),
		nextID: 1,
	}
}

// ListCredentialIDs returns the credential IDs registered to a user.
func (s *CredentialStore) ListCredentialIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for id, cred := range s.byID {
		if cred.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetCredential looks up a credential by its canonical base64 ID.
func (s *CredentialStore) GetCredential(ctx context.Context, credentialID string) (*fido2.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[credentialID]
	if !ok {
		return nil, fido2.ErrCredentialNotFound
	}
	clone := *cred
	return &clone, nil
}

// Exists reports whether a credential ID is registered.
func (s *CredentialStore) Exists(ctx context.Context, credentialID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byID[credentialID]
	return ok, nil
}

// Insert stores a new credential. Returns fido2.ErrAlreadyRegistered when the
// credential ID is taken; concurrent inserts of the same ID have exactly one
// winner.
func (s *CredentialStore) Insert(ctx context.Context, cred *fido2.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[cred.CredentialID]; ok {
		return fido2.ErrAlreadyRegistered
	}

	clone := *cred
	s.byID[cred.CredentialID] = &clone
	s.rowIDs[cred.CredentialID] = s.nextID
	s.nextID++
	return nil
}

// UpdateCounter sets the signature counter for a credential.
func (s *CredentialStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[credentialID]
	if !ok {
		return fido2.ErrCredentialNotFound
	}
	cred.SignCount = counter
	return nil
}

// ListAll returns summaries for every stored credential, ordered by row ID.
func (s *CredentialStore) ListAll(ctx context.Context) ([]fido2.CredentialSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]fido2.CredentialSummary, 0, len(s.byID))
	for id, cred := range s.byID {
		summaries = append(summaries, fido2.CredentialSummary{
			ID:           s.rowIDs[id],
			UserID:       cred.UserID,
			CredentialID: cred.CredentialID,
			DisplayName:  cred.DisplayName,
			CreatedAt:    cred.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// DeleteByID removes a credential by its row ID. Returns false when no row
// matched.
func (s *CredentialStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
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

// Count returns the number of stored credentials.
func (s *CredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
