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

// Package sqlite provides the durable credential store backed by a SQLite
// database file. The driver is pure Go, so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed" // Load sqlite WASM binary

	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
)

// CredentialStore is a SQLite-backed implementation of fido2.CredentialStore.
type CredentialStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database file and ensures the schema exists.
func Open(filename string) (*CredentialStore, error) {
	query := "?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	connector, err := (&driver.SQLite{}).OpenConnector("file:" + filepath.Clean(filename) + query)
	if err != nil {
		return nil, fmt.Errorf("error creating sqlite connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New creates a CredentialStore over an existing database handle. The schema
// must already exist; in most cases Open should be used instead.
func New(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Init creates the credential table if it does not exist.
func Init(db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS fido_credentials
		( id INTEGER PRIMARY KEY AUTOINCREMENT
		, user_id TEXT NOT NULL
		, credential_id TEXT NOT NULL UNIQUE
		, public_key TEXT NOT NULL
		, counter INTEGER NOT NULL DEFAULT 0
		, aaguid TEXT NOT NULL DEFAULT ''
		, cred_type TEXT NOT NULL DEFAULT 'public-key'
		, format TEXT NOT NULL DEFAULT ''
		, display_name TEXT NOT NULL DEFAULT ''
		, created_at TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		return storeErr("create schema", err)
	}
	const index = `CREATE INDEX IF NOT EXISTS fido_credentials_user
		ON fido_credentials(user_id)`
	if _, err := db.Exec(index); err != nil {
		return storeErr("create index", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

// ListCredentialIDs returns the credential IDs registered to a user.
func (s *CredentialStore) ListCredentialIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT credential_id FROM fido_credentials WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, storeErr("list credential ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan credential id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list credential ids", err)
	}
	return ids, nil
}

// GetCredential looks up a credential by its canonical base64 ID.
func (s *CredentialStore) GetCredential(ctx context.Context, credentialID string) (*fido2.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, credential_id, public_key, counter, aaguid, cred_type, format, display_name, created_at
		 FROM fido_credentials WHERE credential_id = ?`, credentialID)

	var cred fido2.Credential
	var createdAt string
	err := row.Scan(&cred.UserID, &cred.CredentialID, &cred.PublicKey, &cred.SignCount,
		&cred.AAGUID, &cred.CredType, &cred.Format, &cred.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fido2.ErrCredentialNotFound
	}
	if err != nil {
		return nil, storeErr("get credential", err)
	}

	cred.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, storeErr("parse created_at", err)
	}
	return &cred, nil
}

// Exists reports whether a credential ID is registered.
func (s *CredentialStore) Exists(ctx context.Context, credentialID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM fido_credentials WHERE credential_id = ?`, credentialID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("check credential", err)
	}
	return true, nil
}

// Insert stores a new credential. The uniqueness constraint on credential_id
// makes the check-then-insert atomic: concurrent inserts of the same ID have
// exactly one winner, the rest fail with fido2.ErrAlreadyRegistered.
func (s *CredentialStore) Insert(ctx context.Context, cred *fido2.Credential) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO fido_credentials
		 (user_id, credential_id, public_key, counter, aaguid, cred_type, format, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(credential_id) DO NOTHING`,
		cred.UserID, cred.CredentialID, cred.PublicKey, cred.SignCount,
		cred.AAGUID, cred.CredType, cred.Format, cred.DisplayName,
		cred.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storeErr("insert credential", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("insert credential", err)
	}
	if affected == 0 {
		return fido2.ErrAlreadyRegistered
	}
	return nil
}

// UpdateCounter sets the signature counter for a credential.
func (s *CredentialStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE fido_credentials SET counter = ? WHERE credential_id = ?`, counter, credentialID)
	if err != nil {
		return storeErr("update counter", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("update counter", err)
	}
	if affected == 0 {
		return fido2.ErrCredentialNotFound
	}
	return nil
}

// ListAll returns summaries for every stored credential, ordered by row ID.
func (s *CredentialStore) ListAll(ctx context.Context) ([]fido2.CredentialSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, credential_id, display_name, created_at
		 FROM fido_credentials ORDER BY id`)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}
	defer rows.Close()

	summaries := []fido2.CredentialSummary{}
	for rows.Next() {
		var summary fido2.CredentialSummary
		var createdAt string
		if err := rows.Scan(&summary.ID, &summary.UserID, &summary.CredentialID,
			&summary.DisplayName, &createdAt); err != nil {
			return nil, storeErr("scan credential", err)
		}
		summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, storeErr("parse created_at", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list credentials", err)
	}
	return summaries, nil
}

// DeleteByID removes a credential by its row ID. Returns false when no row
// matched.
func (s *CredentialStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM fido_credentials WHERE id = ?`, id)
	if err != nil {
		return false, storeErr("delete credential", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, storeErr("delete credential", err)
	}
	return affected > 0, nil
}

// storeErr wraps a database error so callers can match fido2.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	return fido2.NewError(op, fmt.Errorf("%w: %v", fido2.ErrStoreUnavailable, err))
}
