package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// Banner returns the pre-authentication banner the device's SSH server sends.
// Authentication does not need to succeed; the banner arrives before it.
func Banner(ctx context.Context, dev *topology.Device) (string, error) {
	if dev.Transport != topology.TransportSSH && dev.Transport != topology.TransportSSHShell {
		d := *dev
		d.Transport, d.Port = topology.TransportSSH, 0
		dev = &d
	}
	config, err := sshClientConfig(dev)
	if err != nil {
		return "", fmt.Errorf("device %s: %w", dev.Name, err)
	}

	var (
		mu     sync.Mutex
		banner strings.Builder
	)
	config.BannerCallback = func(message string) error {
		mu.Lock()
		defer mu.Unlock()
		banner.WriteString(message)
		return nil
	}

	client, dialErr := dialSSHClient(ctx, dev, config)
	if client != nil {
		client.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	if banner.Len() > 0 {
		return banner.String(), nil
	}
	if dialErr != nil {
		return "", fmt.Errorf("device %s: reading banner: %w", dev.Name, dialErr)
	}
	util.WithDevice(dev.Name).Debug("SSH server sent no banner")
	return "", nil
}
