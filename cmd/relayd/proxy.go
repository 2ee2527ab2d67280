package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// Proxy worker commands
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage direct proxy workers",
}

var proxyStartCmd = &cobra.Command{
	Use:   "start --upstream URL",
	Short: "Start (or reuse) a proxy worker for an upstream URL",
	Long: `Start a detached worker exposing a local SOCKS5 endpoint that forwards
through the given upstream proxy. An empty scheme or direct:// relays
straight through the OS. If a live worker already exists for the same
upstream URL, its descriptor is returned unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		upstream, _ := cmd.Flags().GetString("upstream")
		profile, _ := cmd.Flags().GetString("profile")
		if upstream == "" {
			return fmt.Errorf("--upstream is required")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		d, err := newSupervisor(store).StartWorker(cmd.Context(), supervisorStartRequest(
			types.WorkerKindDirectProxy, upstream, profile,
		))
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var proxyStopCmd = &cobra.Command{
	Use:   "stop --id ID",
	Short: "Stop a proxy worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			return fmt.Errorf("--id is required")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		stopped, err := newSupervisor(store).StopWorker(id)
		if err != nil {
			return err
		}
		return printJSON(stopResult{Stopped: stopped})
	},
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proxy workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWorkers(func(d *types.WorkerDescriptor) bool {
			return d.Kind == types.WorkerKindDirectProxy
		})
	},
}

func init() {
	proxyCmd.AddCommand(proxyStartCmd)
	proxyCmd.AddCommand(proxyStopCmd)
	proxyCmd.AddCommand(proxyListCmd)

	proxyStartCmd.Flags().String("upstream", "", "Upstream proxy URL (socks5://, http:// or direct://)")
	proxyStartCmd.Flags().String("profile", "", "Browser profile id to associate")
	proxyStopCmd.Flags().String("id", "", "Worker id")
}

type stopResult struct {
	Stopped bool `json:"stopped"`
}

type workerListItem struct {
	*types.WorkerDescriptor
	Alive bool `json:"alive"`
}

// listWorkers prints the descriptors matching the filter, annotated with
// process liveness so callers can tell a stale file from a live worker.
func listWorkers(match func(*types.WorkerDescriptor) bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	sup := newSupervisor(store)

	all, err := sup.List()
	if err != nil {
		return err
	}
	items := make([]workerListItem, 0, len(all))
	for _, d := range all {
		if !match(d) {
			continue
		}
		items = append(items, workerListItem{WorkerDescriptor: d, Alive: sup.IsAlive(d)})
	}
	return printJSON(items)
}
