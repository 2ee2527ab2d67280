package wireguard

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func TestDecodeKeyValid(t *testing.T) {
	generated, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)

	key, err := DecodeKey(generated.String())
	require.NoError(t, err)
	assert.Equal(t, generated, key)
}

func TestDecodeKeyWrongLength(t *testing.T) {
	// "YWJjZA==" is 4 raw bytes.
	_, err := DecodeKey("YWJjZA==")
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	long := base64.StdEncoding.EncodeToString(make([]byte, 33))
	_, err = DecodeKey(long)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestDecodeKeyMalformedEncoding(t *testing.T) {
	_, err := DecodeKey("not*base64*at*all")
	assert.ErrorIs(t, err, ErrInvalidKeyEncoding)
}

func TestDecodeKeyExactly32Bytes(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	key, err := DecodeKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key[:])
}
