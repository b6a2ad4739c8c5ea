//go:build !linux

package platform

import (
	"packet-intake/internal/config"
	"packet-intake/internal/logger"
	"packet-intake/pkg/nic"
)

func openAFPacket(cfg *config.Config, names []string, log *logger.Logger) (nic.NIC, error) {
	name := ""
	if len(names) > 0 {
		name = names[0]
	}
	return nil, nic.NewPortError(0, name, nic.StageValidate, ErrNotSupported)
}
