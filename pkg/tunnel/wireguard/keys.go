package wireguard

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Key decoding failures are configuration errors: fatal, never retried.
var (
	ErrInvalidKeyEncoding = errors.New("key is not valid base64")
	ErrInvalidKeyLength   = errors.New("key does not decode to 32 bytes")
)

// DecodeKey parses a base64-encoded Curve25519 key. Decoding succeeds iff
// the input decodes to exactly 32 raw bytes.
func DecodeKey(s string) (wgtypes.Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if len(raw) != wgtypes.KeyLen {
		return wgtypes.Key{}, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(raw))
	}
	key, err := wgtypes.NewKey(raw)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	return key, nil
}

// keyToHex renders a key the way the device IPC interface wants it.
func keyToHex(k wgtypes.Key) string {
	return hex.EncodeToString(k[:])
}
