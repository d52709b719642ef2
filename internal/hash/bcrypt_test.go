package hash_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/opencrafts-io/parley/internal/hash"
)

func TestBcryptHashAndVerify(t *testing.T) {
	h := hash.NewBcrypt(bcrypt.MinCost)

	hashed, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hashed)

	assert.True(t, h.Verify("correct horse", hashed))
	assert.False(t, h.Verify("wrong horse", hashed))
	assert.False(t, h.Verify("correct horse", "not-a-hash"))
}

func TestBcryptRejectsOverlongPasswords(t *testing.T) {
	h := hash.NewBcrypt(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, hash.ErrPasswordTooLong)
}
