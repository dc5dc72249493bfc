package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("Passw0rd!")
	require.NoError(t, err)

	ok, err := Compare(string(hash), "Passw0rd!")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Compare(string(hash), "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompare_BadHash(t *testing.T) {
	_, err := Compare("not-a-hash", "x")
	assert.Error(t, err)
}
