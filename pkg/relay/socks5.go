package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
)

// SOCKS5 protocol constants, CONNECT subset only.
const (
	socksVersion = 0x05

	methodNoAuth       = 0x00
	methodNoAcceptable = 0xFF

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySuccess          = 0x00
	replyGeneralFailure   = 0x01
	replyConnRefused      = 0x05
	replyCmdNotSupported  = 0x07
	replyAddrNotSupported = 0x08
)

const dialTimeout = 10 * time.Second

// DialFunc opens the outbound connection to the requested destination.
// The default relies on OS routing (right for direct proxies and OpenVPN);
// WireGuard workers inject the tunnel's own dialer instead.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Relay is a minimal SOCKS5 listener: no-auth greeting, CONNECT only,
// IPv4 or domain addressing, then a bidirectional splice. Each client
// connection is handled independently; one failing never affects others.
type Relay struct {
	dial   DialFunc
	logger zerolog.Logger
}

// New creates a relay. A nil dial falls back to the OS dialer.
func New(dial DialFunc) *Relay {
	if dial == nil {
		d := &net.Dialer{Timeout: dialTimeout}
		dial = d.DialContext
	}
	return &Relay{dial: dial, logger: log.WithComponent("relay")}
}

// Serve accepts clients until the listener closes or ctx is done.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go r.handleConn(ctx, conn)
	}
}

func (r *Relay) handleConn(ctx context.Context, client net.Conn) {
	defer client.Close()

	metrics.RelayActiveConnections.Inc()
	defer metrics.RelayActiveConnections.Dec()

	if err := r.greet(client); err != nil {
		metrics.RelayConnectionsTotal.WithLabelValues("greeting_failed").Inc()
		r.logger.Debug().Err(err).Msg("greeting failed")
		return
	}

	dest, err := r.readRequest(client)
	if err != nil {
		metrics.RelayConnectionsTotal.WithLabelValues("bad_request").Inc()
		r.logger.Debug().Err(err).Msg("request rejected")
		return
	}

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	target, err := r.dial(dctx, "tcp", dest)
	cancel()
	if err != nil {
		writeReply(client, replyConnRefused)
		metrics.RelayConnectionsTotal.WithLabelValues("dial_failed").Inc()
		r.logger.Debug().Err(err).Str("dest", dest).Msg("destination dial failed")
		return
	}
	defer target.Close()

	if err := writeReply(client, replySuccess); err != nil {
		metrics.RelayConnectionsTotal.WithLabelValues("reply_failed").Inc()
		return
	}

	metrics.RelayConnectionsTotal.WithLabelValues("connected").Inc()
	splice(client, target)
}

// greet handles the method negotiation; only no-auth is offered.
func (r *Relay) greet(client net.Conn) error {
	var hdr [2]byte
	if _, err := io.ReadFull(client, hdr[:]); err != nil {
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	if hdr[0] != socksVersion {
		return fmt.Errorf("unsupported socks version %d", hdr[0])
	}

	methods := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(client, methods); err != nil {
		return fmt.Errorf("failed to read methods: %w", err)
	}

	for _, m := range methods {
		if m == methodNoAuth {
			_, err := client.Write([]byte{socksVersion, methodNoAuth})
			return err
		}
	}
	client.Write([]byte{socksVersion, methodNoAcceptable})
	return errors.New("client offered no acceptable auth method")
}

// readRequest parses the CONNECT request and returns the destination as
// host:port. Unsupported commands and address types are answered with
// their reply code before erroring out.
func (r *Relay) readRequest(client net.Conn) (string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(client, hdr[:]); err != nil {
		return "", fmt.Errorf("failed to read request: %w", err)
	}
	if hdr[0] != socksVersion {
		return "", fmt.Errorf("unsupported socks version %d", hdr[0])
	}
	if hdr[1] != cmdConnect {
		writeReply(client, replyCmdNotSupported)
		return "", fmt.Errorf("unsupported command %d", hdr[1])
	}

	var host string
	switch hdr[3] {
	case atypIPv4:
		var addr [4]byte
		if _, err := io.ReadFull(client, addr[:]); err != nil {
			return "", fmt.Errorf("failed to read ipv4 address: %w", err)
		}
		host = net.IP(addr[:]).String()
	case atypDomain:
		var n [1]byte
		if _, err := io.ReadFull(client, n[:]); err != nil {
			return "", fmt.Errorf("failed to read domain length: %w", err)
		}
		domain := make([]byte, int(n[0]))
		if _, err := io.ReadFull(client, domain); err != nil {
			return "", fmt.Errorf("failed to read domain: %w", err)
		}
		host = string(domain)
	case atypIPv6:
		writeReply(client, replyAddrNotSupported)
		return "", errors.New("ipv6 addressing not supported")
	default:
		writeReply(client, replyAddrNotSupported)
		return "", fmt.Errorf("unknown address type %d", hdr[3])
	}

	var portBytes [2]byte
	if _, err := io.ReadFull(client, portBytes[:]); err != nil {
		return "", fmt.Errorf("failed to read port: %w", err)
	}
	port := binary.BigEndian.Uint16(portBytes[:])

	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

// writeReply sends a reply with a zero bind address, which is all the
// CONNECT subset needs.
func writeReply(client net.Conn, code byte) error {
	_, err := client.Write([]byte{socksVersion, code, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0})
	return err
}

// splice copies bytes in both directions until either side closes.
func splice(client, target net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, _ := io.Copy(target, client)
		metrics.RelayBytesTotal.WithLabelValues("upstream").Add(float64(n))
		// Unblock the opposite copy.
		target.Close()
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(client, target)
		metrics.RelayBytesTotal.WithLabelValues("downstream").Add(float64(n))
		client.Close()
	}()

	wg.Wait()
}
