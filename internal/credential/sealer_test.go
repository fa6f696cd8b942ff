package credential

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("1//refresh-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "refresh-token")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "1//refresh-token", plain)

	empty, err := s.Seal("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)
	sealed, err := s.Seal("token")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = s.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrUnseal)

	_, err = s.Open("not base64!")
	assert.ErrorIs(t, err, ErrUnseal)
}

func TestNewSealerKeyLength(t *testing.T) {
	_, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
