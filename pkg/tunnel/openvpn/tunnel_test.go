package openvpn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func TestLocateBinaryMissing(t *testing.T) {
	if _, err := LocateBinary(); err == nil {
		t.Skip("openvpn is installed on this host")
	}

	_, err := LocateBinary()
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrBinaryNotFound)
	// The error must carry a remediation hint.
	assert.Contains(t, err.Error(), "install OpenVPN")
}

func TestWriteConfigFile(t *testing.T) {
	tn := New(Config{VPNID: "vpn-1", ConfigText: "client\nremote vpn.example 1194\n"})

	path, err := tn.writeConfigFile()
	require.NoError(t, err)
	defer os.Remove(path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm()&0o077 != 0 {
		t.Errorf("config file is group/world accessible: %v", info.Mode())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, tn.cfg.ConfigText, string(data))
	assert.Equal(t, "relayd-openvpn", filepath.Base(filepath.Dir(path)))
}

func TestCapturedOutputBounded(t *testing.T) {
	tn := New(Config{VPNID: "vpn-1"})
	tn.captureOutput(strings.NewReader(strings.Repeat("line\n", maxCapturedLines*3)))

	tn.outMu.Lock()
	defer tn.outMu.Unlock()
	assert.LessOrEqual(t, len(tn.output), maxCapturedLines)
}

func TestCapturedOutputEmpty(t *testing.T) {
	tn := New(Config{VPNID: "vpn-1"})
	assert.Equal(t, "no output captured", tn.capturedOutput())
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	tn := New(Config{VPNID: "vpn-1"})
	assert.NoError(t, tn.Disconnect())
	assert.False(t, tn.IsConnected())
}
