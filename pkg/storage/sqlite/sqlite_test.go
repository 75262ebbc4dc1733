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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *CredentialStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "fido2.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCredential(userID, credentialID string) *fido2.Credential {
	return &fido2.Credential{
		UserID:       userID,
		CredentialID: credentialID,
		PublicKey:    "cHVibGljLWtleQ==",
		SignCount:    0,
		AAGUID:       "01020304-0506-0708-090a-0b0c0d0e0f10",
		CredType:     "public-key",
		Format:       "packed",
		DisplayName:  userID,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	store := openStore(t)

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fido2.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, newCredential("alice", "cred-1")))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	cred, err := reopened.GetCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.UserID)
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	original := newCredential("alice", "cred-1")
	require.NoError(t, store.Insert(ctx, original))

	cred, err := store.GetCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, original.UserID, cred.UserID)
	assert.Equal(t, original.PublicKey, cred.PublicKey)
	assert.Equal(t, original.AAGUID, cred.AAGUID)
	assert.Equal(t, original.Format, cred.Format)
	assert.WithinDuration(t, original.CreatedAt, cred.CreatedAt, time.Millisecond)

	exists, err := store.Exists(ctx, "cred-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetCredential_NotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetCredential(context.Background(), "missing")
	assert.ErrorIs(t, err, fido2.ErrCredentialNotFound)
}

func TestInsert_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Insert(ctx, newCredential("alice", "cred-1")))

	err := store.Insert(ctx, newCredential("mallory", "cred-1"))
	assert.ErrorIs(t, err, fido2.ErrAlreadyRegistered)

	cred, err := store.GetCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.UserID)
}

func TestListCredentialIDs(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Insert(ctx, newCredential("alice", "a-1")))
	require.NoError(t, store.Insert(ctx, newCredential("alice", "a-2")))
	require.NoError(t, store.Insert(ctx, newCredential("bob", "b-1")))

	ids, err := store.ListCredentialIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2"}, ids)

	ids, err = store.ListCredentialIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpdateCounter(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Insert(ctx, newCredential("alice", "cred-1")))
	require.NoError(t, store.UpdateCounter(ctx, "cred-1", 42))

	cred, err := store.GetCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), cred.SignCount)

	err = store.UpdateCounter(ctx, "missing", 1)
	assert.ErrorIs(t, err, fido2.ErrCredentialNotFound)
}

func TestListAll_OrderedByRowID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Insert(ctx, newCredential("alice", "first")))
	require.NoError(t, store.Insert(ctx, newCredential("bob", "second")))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].CredentialID)
	assert.Equal(t, "second", all[1].CredentialID)
	assert.Less(t, all[0].ID, all[1].ID)
}

func TestDeleteByID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Insert(ctx, newCredential("alice", "cred-1")))
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	deleted, err := store.DeleteByID(ctx, all[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteByID(ctx, all[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.GetCredential(ctx, "cred-1")
	assert.ErrorIs(t, err, fido2.ErrCredentialNotFound)
}
