package wgconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConf = `[Interface]
PrivateKey = cF9PsrN1MEwpkiBkYjlrN8tR0jmJ8f1zv2gjZ0OIOFM=
Address = 172.16.0.2/32, fd00::2/128
DNS = 1.1.1.1, 1.0.0.1
MTU = 1280

[Peer]
PublicKey = bmXOC+F1FxEMF9dyiK2H5/1SUtzH0JuVo51h2wPfgyo=
AllowedIPs = 0.0.0.0/0, ::/0
Endpoint = vpn.example.com:51820
PersistentKeepalive = 25
`

func TestParse(t *testing.T) {
	cfg, err := Parse("vpn-1", []byte(sampleConf))
	require.NoError(t, err)

	assert.Equal(t, "vpn-1", cfg.VPNID)
	assert.Equal(t, "cF9PsrN1MEwpkiBkYjlrN8tR0jmJ8f1zv2gjZ0OIOFM=", cfg.PrivateKey)
	assert.Equal(t, "bmXOC+F1FxEMF9dyiK2H5/1SUtzH0JuVo51h2wPfgyo=", cfg.PeerPublic)
	assert.Equal(t, "vpn.example.com:51820", cfg.Endpoint)
	assert.Equal(t, []string{"172.16.0.2/32", "fd00::2/128"}, cfg.Addresses)
	assert.Equal(t, []string{"1.1.1.1", "1.0.0.1"}, cfg.DNS)
	assert.Equal(t, []string{"0.0.0.0/0", "::/0"}, cfg.AllowedIPs)
	assert.Equal(t, 1280, cfg.MTU)
	assert.Equal(t, 25, cfg.Keepalive)
	assert.Empty(t, cfg.PresharedKey)
}

func TestParseMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"private key": "[Peer]\nPublicKey = x\nEndpoint = e:1\n",
		"public key":  "[Interface]\nPrivateKey = x\nAddress = 10.0.0.2\n[Peer]\nEndpoint = e:1\n",
		"endpoint":    "[Interface]\nPrivateKey = x\nAddress = 10.0.0.2\n[Peer]\nPublicKey = y\n",
		"address":     "[Interface]\nPrivateKey = x\n[Peer]\nPublicKey = y\nEndpoint = e:1\n",
	}
	for name, text := range cases {
		_, err := Parse("vpn-1", []byte(text))
		assert.Error(t, err, name)
	}
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("vpn-1", []byte("\x00\x01 not an ini ["))
	assert.Error(t, err)
}
