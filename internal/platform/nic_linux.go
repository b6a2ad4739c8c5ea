//go:build linux

package platform

import (
	"packet-intake/internal/config"
	"packet-intake/internal/logger"
	"packet-intake/internal/platform/linux"
	"packet-intake/pkg/nic"
)

func openAFPacket(cfg *config.Config, names []string, log *logger.Logger) (nic.NIC, error) {
	dev, err := linux.Open(linux.Options{
		Interfaces:    names,
		QueuesPerPort: cfg.Pipeline.QueuesPerPort,
		RingSize:      cfg.NIC.RingSize,
		FrameSize:     cfg.NIC.FrameSize,
		PoolSize:      cfg.NIC.FramePoolSize,
		PollTimeout:   cfg.NIC.PollTimeout,
		Promiscuous:   cfg.NIC.Promiscuous,
		Log:           log,
	})
	if err != nil {
		return nil, err
	}
	return dev, nil
}
