package main

import (
	"bytes"
	"testing"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, []apierrors.DefinedError{apierrors.ErrFailedLogin, apierrors.ErrForbidden}))

	out := buf.String()
	assert.Contains(t, out, "# Перечень кодов ошибок")
	assert.Contains(t, out, "**1001**")
	assert.Contains(t, out, "401 *Unauthorized*")
	assert.Contains(t, out, "`Bad username or password.`")
	assert.Contains(t, out, "403 *Forbidden*")
}
