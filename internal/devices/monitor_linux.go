//go:build linux

package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/boothcam/pkg/linuxav/hotplug"
)

func (m *Monitor) start(ctx context.Context) error {
	mon, err := hotplug.NewMonitor()
	if err != nil {
		return fmt.Errorf("failed to open uevent socket: %w", err)
	}
	mon.Watch(hotplug.SubsystemVideo4Linux)

	uevents := make(chan hotplug.Event, 16)
	go func() {
		defer func() { _ = mon.Close() }()
		if err := mon.Run(ctx, uevents); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("Hotplug monitor stopped", "error", err)
		}
	}()
	go func() {
		for ev := range uevents {
			m.handle(ev)
		}
		m.logger.Info("Hotplug monitoring stopped")
	}()

	m.logger.Info("Hotplug monitoring started", "subsystem", hotplug.SubsystemVideo4Linux)
	return nil
}
