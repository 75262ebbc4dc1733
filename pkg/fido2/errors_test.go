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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCeremonyError(t *testing.T) {
	err := NewError("insert credential", ErrAlreadyRegistered)

	assert.Equal(t, "insert credential: credential already registered", err.Error())
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.NotErrorIs(t, err, ErrCredentialNotFound)

	var ceremonyErr *CeremonyError
	assert.ErrorAs(t, err, &ceremonyErr)
	assert.Equal(t, "insert credential", ceremonyErr.Op)
}

func TestCeremonyError_EmptyOp(t *testing.T) {
	err := NewError("", ErrNoCredentials)
	assert.Equal(t, ErrNoCredentials.Error(), err.Error())
}

func TestCeremonyError_UnwrapsChain(t *testing.T) {
	inner := fmt.Errorf("%w: disk full", ErrStoreUnavailable)
	err := WrapError("insert credential", inner)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, inner, errors.Unwrap(err))
}

func TestWrapError_Nil(t *testing.T) {
	assert.NoError(t, WrapError("anything", nil))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsCredentialNotFound(WrapError("get", ErrCredentialNotFound)))
	assert.False(t, IsCredentialNotFound(ErrAlreadyRegistered))

	assert.True(t, IsAlreadyRegistered(WrapError("insert", ErrAlreadyRegistered)))
	assert.False(t, IsAlreadyRegistered(ErrCredentialNotFound))

	assert.True(t, IsStoreUnavailable(WrapError("query", ErrStoreUnavailable)))
	assert.False(t, IsStoreUnavailable(ErrAssertionInvalid))
}
