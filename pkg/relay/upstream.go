package relay

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// UpstreamDialer builds the outbound dialer for an upstream proxy URL.
// An empty or "direct://" URL means no upstream: destinations are dialed
// straight through the OS. SOCKS5 upstreams go through x/net/proxy; HTTP
// upstreams get a CONNECT handshake per destination.
func UpstreamDialer(rawURL string) (DialFunc, error) {
	if rawURL == "" {
		return nil, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "direct":
		return nil, nil
	case "socks5", "socks5h":
		fwd := &net.Dialer{Timeout: dialTimeout}
		d, err := proxy.FromURL(u, fwd)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", rawURL, err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			return cd.DialContext, nil
		}
		return func(ctx context.Context, network, address string) (net.Conn, error) {
			return d.Dial(network, address)
		}, nil
	case "http", "https":
		return httpConnectDialer(u), nil
	default:
		return nil, fmt.Errorf("unsupported upstream scheme %q", u.Scheme)
	}
}

// httpConnectDialer tunnels each destination through an HTTP proxy with a
// CONNECT request. TLS to the proxy itself is not supported; https:// is
// treated as plain CONNECT, which matches what most forward proxies expect.
func httpConnectDialer(u *url.URL) DialFunc {
	proxyAddr := u.Host
	if u.Port() == "" {
		proxyAddr = net.JoinHostPort(u.Hostname(), "8080")
	}

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		d := &net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", proxyAddr)
		if err != nil {
			return nil, err
		}

		req := &http.Request{
			Method: http.MethodConnect,
			URL:    &url.URL{Opaque: address},
			Host:   address,
			Header: make(http.Header),
		}
		if u.User != nil {
			pass, _ := u.User.Password()
			req.SetBasicAuth(u.User.Username(), pass)
			req.Header.Set("Proxy-Authorization", req.Header.Get("Authorization"))
			req.Header.Del("Authorization")
		}
		if err := req.Write(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("upstream CONNECT write: %w", err)
		}

		resp, err := http.ReadResponse(bufio.NewReader(conn), req)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("upstream CONNECT response: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			conn.Close()
			return nil, fmt.Errorf("upstream CONNECT refused: %s", resp.Status)
		}
		return conn, nil
	}
}
