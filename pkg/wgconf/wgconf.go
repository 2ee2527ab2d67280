package wgconf

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/zhom/donutbrowser-sub002/pkg/tunnel/wireguard"
)

// Parse reads standard wg-quick style config text ([Interface]/[Peer]
// sections) into a tunnel config. Required fields: PrivateKey, PublicKey
// and Endpoint; everything else has working defaults.
func Parse(vpnID string, text []byte) (wireguard.Config, error) {
	file, err := ini.Load(text)
	if err != nil {
		return wireguard.Config{}, fmt.Errorf("failed to parse wireguard config: %w", err)
	}

	iface := file.Section("Interface")
	peer := file.Section("Peer")

	cfg := wireguard.Config{
		VPNID:        vpnID,
		PrivateKey:   strings.TrimSpace(iface.Key("PrivateKey").String()),
		PeerPublic:   strings.TrimSpace(peer.Key("PublicKey").String()),
		PresharedKey: strings.TrimSpace(peer.Key("PresharedKey").String()),
		Endpoint:     strings.TrimSpace(peer.Key("Endpoint").String()),
		Addresses:    splitList(iface.Key("Address").String()),
		DNS:          splitList(iface.Key("DNS").String()),
		AllowedIPs:   splitList(peer.Key("AllowedIPs").String()),
	}
	if v, err := iface.Key("MTU").Int(); err == nil && v > 0 {
		cfg.MTU = v
	}
	if v, err := peer.Key("PersistentKeepalive").Int(); err == nil && v > 0 {
		cfg.Keepalive = v
	}

	if cfg.PrivateKey == "" {
		return wireguard.Config{}, fmt.Errorf("wireguard config missing Interface.PrivateKey")
	}
	if cfg.PeerPublic == "" {
		return wireguard.Config{}, fmt.Errorf("wireguard config missing Peer.PublicKey")
	}
	if cfg.Endpoint == "" {
		return wireguard.Config{}, fmt.Errorf("wireguard config missing Peer.Endpoint")
	}
	if len(cfg.Addresses) == 0 {
		return wireguard.Config{}, fmt.Errorf("wireguard config missing Interface.Address")
	}
	return cfg, nil
}

func splitList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
