package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLockerRejectsShortPassphrase(t *testing.T) {
	_, err := NewLocker("short")
	assert.Error(t, err)

	_, err = NewLocker("long-enough-passphrase")
	assert.NoError(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	locker, err := NewLocker("correct horse battery staple")
	require.NoError(t, err)

	payload := []byte("player: test\nlevel: 42\n")
	envelope, err := locker.Seal(payload)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(envelope), saltSize+nonceSize+len(payload))
	assert.False(t, bytes.Contains(envelope, payload))

	got, err := locker.Open(envelope)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSealIsRandomized(t *testing.T) {
	locker, err := NewLocker("correct horse battery staple")
	require.NoError(t, err)

	payload := []byte("same payload")
	a, err := locker.Seal(payload)
	require.NoError(t, err)
	b, err := locker.Seal(payload)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	locker, err := NewLocker("correct horse battery staple")
	require.NoError(t, err)
	envelope, err := locker.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := NewLocker("a different passphrase")
	require.NoError(t, err)

	_, err = other.Open(envelope)
	assert.ErrorIs(t, err, ErrPassphrase)
}

func TestOpenRejectsTampering(t *testing.T) {
	locker, err := NewLocker("correct horse battery staple")
	require.NoError(t, err)
	envelope, err := locker.Seal([]byte("secret"))
	require.NoError(t, err)

	envelope[len(envelope)-1] ^= 0x01
	_, err = locker.Open(envelope)
	assert.ErrorIs(t, err, ErrPassphrase)
}

func TestOpenRejectsTruncatedEnvelope(t *testing.T) {
	locker, err := NewLocker("correct horse battery staple")
	require.NoError(t, err)

	_, err = locker.Open(make([]byte, saltSize))
	assert.Error(t, err)
}
