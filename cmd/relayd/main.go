package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhom/donutbrowser-sub002/pkg/config"
	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/registry"
	"github.com/zhom/donutbrowser-sub002/pkg/supervisor"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relayd",
	Short: "Relayd - out-of-process proxy and VPN tunnel workers",
	Long: `Relayd supervises detached worker processes, each exposing a local
SOCKS5 endpoint backed by a direct relay, an upstream proxy, a userspace
WireGuard tunnel or an OpenVPN subprocess. Workers coordinate with the
supervisor through a shared file registry, one file per worker.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.JSONLogs,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Relayd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (optional)")

	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(vpnCmd)
	rootCmd.AddCommand(proxyWorkerCmd)
	rootCmd.AddCommand(vpnWorkerCmd)
}

// openStore opens the shared worker registry under the data directory.
func openStore() (registry.Store, error) {
	return registry.NewFileStore(cfg.WorkersDir())
}

// newSupervisor builds a supervisor over the shared registry using the
// current binary as the worker entrypoint.
func newSupervisor(store registry.Store) *supervisor.Supervisor {
	return supervisor.New(store, supervisor.Options{
		LogsDir:       cfg.LogsDir(),
		ReadyAttempts: cfg.ReadyAttempts,
		ReadyInterval: cfg.ReadyInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		StopGrace:     cfg.StopGrace,
	})
}

func supervisorStartRequest(kind types.WorkerKind, key, profile string) supervisor.StartRequest {
	return supervisor.StartRequest{
		Kind:           kind,
		CorrelationKey: key,
		ProfileID:      profile,
	}
}

// printJSON writes a single-line JSON result to stdout. Logs go to stderr,
// so stdout stays machine-readable for callers.
func printJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
