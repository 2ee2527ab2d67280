package relay

import (
	"context"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// startEchoServer returns the address of a loopback server echoing
// everything back unchanged.
func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()
	return ln.Addr().String()
}

// startRelay serves a relay on a loopback port and returns its address.
func startRelay(t *testing.T, dial DialFunc) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go New(dial).Serve(ctx, ln)
	return ln.Addr().String()
}

func TestRelayConnectEcho(t *testing.T) {
	echoAddr := startEchoServer(t)
	relayAddr := startRelay(t, nil)

	dialer, err := proxy.SOCKS5("tcp", relayAddr, nil, proxy.Direct)
	require.NoError(t, err)

	conn, err := dialer.Dial("tcp", echoAddr)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("ping through the relay")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}

func TestRelayConcurrentClients(t *testing.T) {
	echoAddr := startEchoServer(t)
	relayAddr := startRelay(t, nil)

	dialer, err := proxy.SOCKS5("tcp", relayAddr, nil, proxy.Direct)
	require.NoError(t, err)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			conn, err := dialer.Dial("tcp", echoAddr)
			if err != nil {
				done <- err
				return
			}
			defer conn.Close()

			msg := []byte{byte('a' + i)}
			if _, err := conn.Write(msg); err != nil {
				done <- err
				return
			}
			buf := make([]byte, 1)
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, err := io.ReadFull(conn, buf); err != nil {
				done <- err
				return
			}
			if buf[0] != msg[0] {
				done <- io.ErrUnexpectedEOF
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 4; i++ {
		assert.NoError(t, <-done)
	}
}

func TestRelayDialThroughCustomDialer(t *testing.T) {
	echoAddr := startEchoServer(t)

	// Stands in for the wireguard tunnel dialer: record the address and
	// dial the echo server regardless.
	var dialed string
	custom := func(ctx context.Context, network, address string) (net.Conn, error) {
		dialed = address
		return (&net.Dialer{}).DialContext(ctx, network, echoAddr)
	}
	relayAddr := startRelay(t, custom)

	dialer, err := proxy.SOCKS5("tcp", relayAddr, nil, proxy.Direct)
	require.NoError(t, err)

	conn, err := dialer.Dial("tcp", "10.99.0.1:8080")
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, "10.99.0.1:8080", dialed)
}

func TestRelayRejectsNonConnect(t *testing.T) {
	relayAddr := startRelay(t, nil)

	conn, err := net.Dial("tcp", relayAddr)
	require.NoError(t, err)
	defer conn.Close()

	// Greeting: version 5, one method, no-auth.
	_, err = conn.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)
	reply := make([]byte, 2)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00}, reply)

	// BIND request must be answered with command-not-supported.
	_, err = conn.Write([]byte{0x05, 0x02, 0x00, 0x01, 127, 0, 0, 1, 0x00, 0x50})
	require.NoError(t, err)
	resp := make([]byte, 10)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, byte(replyCmdNotSupported), resp[1])
}

func TestRelayRejectsUnknownAuth(t *testing.T) {
	relayAddr := startRelay(t, nil)

	conn, err := net.Dial("tcp", relayAddr)
	require.NoError(t, err)
	defer conn.Close()

	// Only GSSAPI offered.
	_, err = conn.Write([]byte{0x05, 0x01, 0x01})
	require.NoError(t, err)
	reply := make([]byte, 2)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, byte(methodNoAcceptable), reply[1])
}

func TestServeReleasesContextWatcher(t *testing.T) {
	before := runtime.NumGoroutine()
	ctx := context.Background()

	// Stop each Serve by closing the listener, never by cancelling the
	// context; the per-call watcher goroutine must still exit.
	for i := 0; i < 10; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		served := make(chan error, 1)
		go func() { served <- New(nil).Serve(ctx, ln) }()
		time.Sleep(10 * time.Millisecond)
		ln.Close()
		require.NoError(t, <-served)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 50*time.Millisecond, "listener watcher goroutines leaked")
}

func TestRelayDialFailureReply(t *testing.T) {
	// A dead port: bind then close.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().(*net.TCPAddr)
	dead.Close()

	relayAddr := startRelay(t, nil)
	conn, err := net.Dial("tcp", relayAddr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)
	reply := make([]byte, 2)
	_, err = io.ReadFull(conn, reply)
	require.NoError(t, err)

	ip := deadAddr.IP.To4()
	req := []byte{0x05, 0x01, 0x00, 0x01, ip[0], ip[1], ip[2], ip[3],
		byte(deadAddr.Port >> 8), byte(deadAddr.Port)}
	_, err = conn.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 10)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, byte(replyConnRefused), resp[1])
}
