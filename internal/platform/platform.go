// Package platform opens the configured NIC driver and pins worker threads.
package platform

import (
	"errors"
	"fmt"

	"packet-intake/internal/config"
	"packet-intake/internal/logger"
	"packet-intake/pkg/nic"
)

var ErrNotSupported = errors.New("not supported on this platform")

// OpenNIC builds the driver named by cfg.NIC.Driver. Port setup failures come
// back as *nic.PortError.
func OpenNIC(cfg *config.Config, log *logger.Logger) (nic.NIC, error) {
	names := make([]string, len(cfg.NIC.Ports))
	for i, p := range cfg.NIC.Ports {
		names[i] = p.Name
	}

	switch cfg.NIC.Driver {
	case config.DriverSynthetic:
		dev, err := nic.NewSynthetic(nic.SyntheticOptions{
			Ports:         len(names),
			QueuesPerPort: cfg.Pipeline.QueuesPerPort,
			RingSize:      cfg.NIC.RingSize,
			FrameSize:     cfg.NIC.FrameSize,
			PoolSize:      cfg.NIC.FramePoolSize,
			RatePPS:       cfg.NIC.Synthetic.RatePPS,
			FrameSizes:    cfg.NIC.Synthetic.FrameSizes,
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	case config.DriverPcap:
		dev, err := nic.OpenPcapReplay(nic.ReplayOptions{
			Paths:         names,
			QueuesPerPort: cfg.Pipeline.QueuesPerPort,
			RingSize:      cfg.NIC.RingSize,
			FrameSize:     cfg.NIC.FrameSize,
			PoolSize:      cfg.NIC.FramePoolSize,
			RatePPS:       cfg.NIC.Replay.RatePPS,
			Loop:          cfg.NIC.Replay.Loop,
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	case config.DriverAFPacket:
		return openAFPacket(cfg, names, log)
	}
	return nil, nic.NewPortError(0, "", nic.StageValidate, fmt.Errorf("unknown driver %q", cfg.NIC.Driver))
}
