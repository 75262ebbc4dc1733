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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and store operations.
var (
	// ErrNoChallengeInProgress is returned when a registration finish arrives
	// without a stored challenge (never started, expired, or already consumed).
	ErrNoChallengeInProgress = errors.New("no registration challenge in progress")

	// ErrMissingSessionState is returned when an authentication finish arrives
	// without a stored challenge or claimant.
	ErrMissingSessionState = errors.New("missing session state")

	// ErrAttestationInvalid is returned when the attestation response fails
	// verification.
	ErrAttestationInvalid = errors.New("attestation invalid")

	// ErrAssertionInvalid is returned when the assertion response fails
	// verification, including a signature counter that did not increase.
	ErrAssertionInvalid = errors.New("assertion invalid")

	// ErrAlreadyRegistered is returned when the credential ID is already
	// present in the store.
	ErrAlreadyRegistered = errors.New("credential already registered")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("no credentials found for user")

	// ErrStoreUnavailable is returned when the credential store fails with an
	// I/O error. Unlike the other sentinels this is an infrastructure fault.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrNotConfigured is returned when the service is missing a dependency.
	ErrNotConfigured = errors.New("fido2 service not configured")
)

// CeremonyError wraps an error with the operation that failed.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsAlreadyRegistered returns true if the error indicates a duplicate registration.
func IsAlreadyRegistered(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered)
}

// IsStoreUnavailable returns true if the error indicates a store I/O failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
