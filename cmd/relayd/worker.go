package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
	"github.com/zhom/donutbrowser-sub002/pkg/registry"
	"github.com/zhom/donutbrowser-sub002/pkg/relay"
	"github.com/zhom/donutbrowser-sub002/pkg/supervisor"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel/openvpn"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel/wireguard"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
	"github.com/zhom/donutbrowser-sub002/pkg/wgconf"
)

// Worker entrypoints. These are spawned detached by the supervisor and are
// not meant to be invoked by hand; they log to stderr, which the supervisor
// redirects to the per-worker log file.
var proxyWorkerCmd = &cobra.Command{
	Use:    "proxy-worker",
	Short:  "Proxy worker process entrypoint",
	Hidden: true,
}

var proxyWorkerStartCmd = &cobra.Command{
	Use:   "start --id ID --port PORT",
	Short: "Run a proxy worker until terminated",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		port, _ := cmd.Flags().GetUint16("port")

		store, d, err := loadWorkerDescriptor(id)
		if err != nil {
			return err
		}

		dial, err := relay.UpstreamDialer(d.CorrelationKey)
		if err != nil {
			return err
		}
		return runRelayWorker(cmd.Context(), store, d, port, dial, nil)
	},
}

var vpnWorkerCmd = &cobra.Command{
	Use:    "vpn-worker",
	Short:  "VPN worker process entrypoint",
	Hidden: true,
}

var vpnWorkerStartCmd = &cobra.Command{
	Use:   "start --id ID --port PORT",
	Short: "Run a VPN tunnel worker until terminated",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		port, _ := cmd.Flags().GetUint16("port")

		store, d, err := loadWorkerDescriptor(id)
		if err != nil {
			return err
		}

		tun, err := buildTunnel(d)
		if err != nil {
			return err
		}
		mgr := tunnel.NewManager()
		mgr.Register(d.ID, tun)
		if err := mgr.Connect(cmd.Context(), d.ID); err != nil {
			return fmt.Errorf("tunnel connect: %w", err)
		}

		// WireGuard traffic must go through the tunnel's own netstack;
		// OpenVPN routes at the OS level, so the default dialer is right.
		var dial relay.DialFunc
		if td, ok := tun.(tunnel.Dialer); ok {
			dial = td.DialContext
		}
		return runRelayWorker(cmd.Context(), store, d, port, dial, mgr)
	},
}

func init() {
	proxyWorkerCmd.AddCommand(proxyWorkerStartCmd)
	vpnWorkerCmd.AddCommand(vpnWorkerStartCmd)

	for _, c := range []*cobra.Command{proxyWorkerStartCmd, vpnWorkerStartCmd} {
		c.Flags().String("id", "", "Worker id in the registry")
		c.Flags().Uint16("port", 0, "Pre-chosen local port to bind")
		c.MarkFlagRequired("id")
		c.MarkFlagRequired("port")
	}
}

// loadWorkerDescriptor opens the registry and reads this worker's own entry.
func loadWorkerDescriptor(id string) (registry.Store, *types.WorkerDescriptor, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("--id is required")
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	d, err := store.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, fmt.Errorf("no registry entry for worker %s", id)
	}
	return store, d, nil
}

// buildTunnel constructs the tunnel for a VPN descriptor from its profile
// config at <data-dir>/profiles/<profile>.conf.
func buildTunnel(d *types.WorkerDescriptor) (tunnel.Tunnel, error) {
	profile := d.ProfileID
	if profile == "" {
		profile = d.CorrelationKey
	}
	path := filepath.Join(cfg.ProfilesDir(), profile+".conf")
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile config %s: %w", path, err)
	}

	switch d.Kind {
	case types.WorkerKindWireGuard:
		wgCfg, err := wgconf.Parse(profile, text)
		if err != nil {
			return nil, err
		}
		return wireguard.New(wgCfg), nil
	case types.WorkerKindOpenVPN:
		return openvpn.New(openvpn.Config{VPNID: profile, ConfigText: string(text)}), nil
	default:
		return nil, fmt.Errorf("descriptor kind %q is not a tunnel", d.Kind)
	}
}

// runRelayWorker binds the pre-chosen port, publishes LocalPort/LocalURL to
// the registry and serves the SOCKS5 relay until SIGTERM/SIGINT. The port
// and URL fields are written here and only here; the supervisor owns the
// rest of the descriptor.
func runRelayWorker(ctx context.Context, store registry.Store, d *types.WorkerDescriptor, port uint16, dial relay.DialFunc, mgr *tunnel.Manager) error {
	logger := log.WithWorkerID(d.ID)

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", supervisor.ErrPortBindFailure, port, err)
	}
	defer ln.Close()

	if cfg.MetricsAddr != "" {
		if mln, merr := net.Listen("tcp", cfg.MetricsAddr); merr != nil {
			logger.Warn().Err(merr).Str("addr", cfg.MetricsAddr).Msg("metrics listener failed, continuing without")
		} else {
			msrv := &http.Server{Handler: metrics.Handler()}
			go msrv.Serve(mln)
			defer msrv.Close()
			logger.Info().Str("addr", mln.Addr().String()).Msg("metrics exposed")
		}
	}

	d.LocalPort = port
	d.LocalURL = fmt.Sprintf("socks5://127.0.0.1:%d", port)
	// The read above may predate the supervisor's pid write; writing our
	// own pid back keeps the whole-file save from losing it.
	d.PID = os.Getpid()
	if err := store.Save(d); err != nil {
		return fmt.Errorf("failed to publish local endpoint: %w", err)
	}
	logger.Info().Str("local_url", d.LocalURL).Str("kind", string(d.Kind)).Msg("worker serving")

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.New(dial).Serve(serveCtx, ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("worker shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("relay stopped")
		}
	}

	if mgr != nil {
		for _, derr := range mgr.DisconnectAll() {
			if derr != nil {
				logger.Error().Err(derr).Msg("tunnel disconnect failed")
			}
		}
	}
	return nil
}
