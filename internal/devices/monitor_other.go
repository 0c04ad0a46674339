//go:build !linux

package devices

import "context"

func (m *Monitor) start(context.Context) error {
	m.logger.Info("Hotplug monitoring not available on this platform")
	return nil
}
