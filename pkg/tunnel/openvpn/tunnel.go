package openvpn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

const (
	// startupDelay is how long Connect waits before checking whether the
	// process survived. The protocol is opaque at this layer, so "still
	// running" is the only success signal available.
	startupDelay = 2 * time.Second
	// stopGrace is how long Disconnect waits after SIGTERM before killing.
	stopGrace = 2 * time.Second
	// maxCapturedLines bounds the output ring kept for diagnostics.
	maxCapturedLines = 20
)

// commonBinaryPaths is checked before falling back to a PATH lookup.
var commonBinaryPaths = []string{
	"/usr/sbin/openvpn",
	"/usr/bin/openvpn",
	"/usr/local/sbin/openvpn",
	"/usr/local/bin/openvpn",
	"/opt/homebrew/sbin/openvpn",
	"/opt/homebrew/bin/openvpn",
	`C:\Program Files\OpenVPN\bin\openvpn.exe`,
}

// Config describes one OpenVPN tunnel.
type Config struct {
	VPNID string
	// ConfigText is the raw .ovpn contents, written verbatim to a private
	// temp file for the subprocess.
	ConfigText string
}

// Tunnel drives an external OpenVPN binary as a subprocess. Routing is
// established by OpenVPN's TUN interface at the OS level, so consumers
// reach destinations with plain outbound dials.
type Tunnel struct {
	cfg Config

	mu          sync.Mutex
	cmd         *exec.Cmd
	configPath  string
	connected   bool
	connectedAt time.Time
	exited      chan struct{}

	outMu    sync.Mutex
	output   []string
	sent     uint64
	received uint64
}

var _ tunnel.Tunnel = (*Tunnel)(nil)

// New creates a disconnected tunnel from the config.
func New(cfg Config) *Tunnel {
	return &Tunnel{cfg: cfg}
}

// LocateBinary finds an OpenVPN executable, checking common install paths
// before PATH. Absence is fatal and user-actionable.
func LocateBinary() (string, error) {
	for _, p := range commonBinaryPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	if p, err := exec.LookPath(openvpnExecutable()); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%w: install OpenVPN and make sure the openvpn binary is on PATH", tunnel.ErrBinaryNotFound)
}

func openvpnExecutable() string {
	if runtime.GOOS == "windows" {
		return "openvpn.exe"
	}
	return "openvpn"
}

// Connect writes the config to a private temp file, spawns the binary and
// treats "still running after the startup delay" as success.
func (t *Tunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	logger := log.WithTunnelID(t.cfg.VPNID)

	binary, err := LocateBinary()
	if err != nil {
		return err
	}

	configPath, err := t.writeConfigFile()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, binary, "--config", configPath, "--verb", "3")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(configPath)
		return fmt.Errorf("failed to pipe stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.Remove(configPath)
		return fmt.Errorf("failed to pipe stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		os.Remove(configPath)
		return fmt.Errorf("failed to start openvpn: %w", err)
	}
	logger.Info().Int("pid", cmd.Process.Pid).Str("binary", binary).Msg("openvpn process started")

	go t.captureOutput(stdout)
	go t.captureOutput(stderr)

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		// Died during startup: certificate and permission failures land
		// here. Surface the first captured lines.
		os.Remove(configPath)
		return fmt.Errorf("%w: %s", tunnel.ErrSubprocessExitedEarly, t.capturedOutput())
	case <-ctx.Done():
		cmd.Process.Kill()
		os.Remove(configPath)
		return ctx.Err()
	case <-time.After(startupDelay):
	}

	t.cmd = cmd
	t.configPath = configPath
	t.exited = exited
	t.connected = true
	t.connectedAt = time.Now()
	metrics.TunnelConnected.WithLabelValues(t.cfg.VPNID).Set(1)
	logger.Info().Msg("openvpn tunnel connected")
	return nil
}

// Disconnect terminates the subprocess gracefully, force-kills after the
// grace period, and always removes the temp config file.
func (t *Tunnel) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}

	defer func() {
		if t.configPath != "" {
			os.Remove(t.configPath)
			t.configPath = ""
		}
		t.cmd = nil
		t.connected = false
		metrics.TunnelConnected.WithLabelValues(t.cfg.VPNID).Set(0)
	}()

	if err := t.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Signal delivery is unsupported on some platforms; fall through
		// to a hard kill.
		t.cmd.Process.Kill()
	}

	select {
	case <-t.exited:
	case <-time.After(stopGrace):
		t.cmd.Process.Kill()
		<-t.exited
	}

	logger := log.WithTunnelID(t.cfg.VPNID)
	logger.Info().Msg("openvpn tunnel disconnected")
	return nil
}

// IsConnected reports whether the subprocess is believed to be running.
func (t *Tunnel) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return false
	}
	select {
	case <-t.exited:
		return false
	default:
		return true
	}
}

// Status returns a snapshot of the tunnel state.
func (t *Tunnel) Status() types.TunnelStatus {
	connected := t.IsConnected()

	t.mu.Lock()
	defer t.mu.Unlock()
	st := types.TunnelStatus{
		VPNID:     t.cfg.VPNID,
		Connected: connected,
	}
	if connected {
		connectedAt := t.connectedAt
		st.ConnectedAt = &connectedAt
	}
	t.outMu.Lock()
	st.BytesSent = t.sent
	st.BytesReceived = t.received
	t.outMu.Unlock()
	return st
}

func (t *Tunnel) BytesSent() uint64 {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	return t.sent
}

func (t *Tunnel) BytesReceived() uint64 {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	return t.received
}

// writeConfigFile writes the raw config text to a private temp file.
func (t *Tunnel) writeConfigFile() (string, error) {
	dir := filepath.Join(os.TempDir(), "relayd-openvpn")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "ovpn-*.conf")
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to restrict config file: %w", err)
	}
	if _, err := io.WriteString(f, t.cfg.ConfigText); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close config file: %w", err)
	}
	return f.Name(), nil
}

// captureOutput scans subprocess output into a bounded ring. The byte
// counters stay zero here: traffic flows through the OS TUN interface and
// is invisible to this layer.
func (t *Tunnel) captureOutput(r io.Reader) {
	logger := log.WithTunnelID(t.cfg.VPNID)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug().Str("openvpn", line).Msg("subprocess output")

		t.outMu.Lock()
		t.output = append(t.output, line)
		if len(t.output) > maxCapturedLines {
			t.output = t.output[1:]
		}
		t.outMu.Unlock()
	}
}

func (t *Tunnel) capturedOutput() string {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	n := len(t.output)
	if n == 0 {
		return "no output captured"
	}
	if n > 5 {
		n = 5
	}
	return strings.Join(t.output[:n], "; ")
}
