package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// VPN worker commands
var vpnCmd = &cobra.Command{
	Use:   "vpn",
	Short: "Manage VPN tunnel workers",
}

var vpnStartCmd = &cobra.Command{
	Use:   "start --profile ID --kind wireguard|openvpn",
	Short: "Start (or reuse) a VPN worker for a profile",
	Long: `Start a detached worker that connects the VPN tunnel for the given
profile and exposes it as a local SOCKS5 endpoint. The profile config is
read from <data-dir>/profiles/<profile>.conf. If a live worker already
exists for the profile, its descriptor is returned unchanged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		kind, _ := cmd.Flags().GetString("kind")
		if profile == "" {
			return fmt.Errorf("--profile is required")
		}
		wk := types.WorkerKind(kind)
		if wk != types.WorkerKindWireGuard && wk != types.WorkerKindOpenVPN {
			return fmt.Errorf("--kind must be wireguard or openvpn")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		d, err := newSupervisor(store).StartWorker(cmd.Context(), supervisorStartRequest(wk, profile, profile))
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var vpnStopCmd = &cobra.Command{
	Use:   "stop --id ID",
	Short: "Stop a VPN worker",
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

var vpnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List VPN workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listWorkers(func(d *types.WorkerDescriptor) bool {
			return d.Kind == types.WorkerKindWireGuard || d.Kind == types.WorkerKindOpenVPN
		})
	},
}

func init() {
	vpnCmd.AddCommand(vpnStartCmd)
	vpnCmd.AddCommand(vpnStopCmd)
	vpnCmd.AddCommand(vpnListCmd)

	vpnStartCmd.Flags().String("profile", "", "VPN profile id")
	vpnStartCmd.Flags().String("kind", "wireguard", "Tunnel kind: wireguard or openvpn")
	vpnStopCmd.Flags().String("id", "", "Worker id")
}
