//go:build linux

package hotplug

import (
	"context"
	"errors"
	"sync"
	"syscall"
)

// netlinkKobjectUEvent is NETLINK_KOBJECT_UEVENT.
const netlinkKobjectUEvent = 15

// kernelGroup is the multicast group the kernel broadcasts uevents on.
const kernelGroup = 1

// Monitor reads uevents from a netlink socket.
type Monitor struct {
	fd int

	mu         sync.RWMutex
	subsystems map[string]struct{}
}

// NewMonitor opens and binds the netlink socket.
func NewMonitor() (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := syscall.Bind(fd, &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	// A receive timeout lets Run notice cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, subsystems: make(map[string]struct{})}, nil
}

// Watch restricts Run to the given subsystems. With no subsystems every event
// passes.
func (m *Monitor) Watch(subsystems ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subsystems {
		m.subsystems[s] = struct{}{}
	}
}

func (m *Monitor) wants(subsystem string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.subsystems) == 0 {
		return true
	}
	_, ok := m.subsystems[subsystem]
	return ok
}

// Close closes the socket.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// Run forwards matching events to out until ctx is done or the socket fails.
// It closes out on return.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) error {
	defer close(out)
	buf := make([]byte, 16<<10)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := syscall.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
			continue
		case err != nil:
			return err
		case n == 0:
			continue
		}

		ev := ParseUEvent(buf[:n])
		if ev == nil || !m.wants(ev.Subsystem) {
			continue
		}
		select {
		case out <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
