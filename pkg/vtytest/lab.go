package vtytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/topology"
	"github.com/vtyconform/vtyconform/pkg/util"
)

// maxParallelDials bounds concurrent session setup.
const maxParallelDials = 8

// Dialer opens a session to a device.
type Dialer func(ctx context.Context, dev *topology.Device) (session.Session, error)

// Lab is a loaded topology with an open session per device.
type Lab struct {
	Topology *topology.Topology

	dial     Dialer
	mu       sync.Mutex
	sessions map[string]session.Session
}

// NewLab returns an unconnected lab. A nil dial uses session.Dial.
func NewLab(topo *topology.Topology, dial Dialer) *Lab {
	if dial == nil {
		dial = func(ctx context.Context, dev *topology.Device) (session.Session, error) {
			return session.Dial(ctx, dev)
		}
	}
	return &Lab{
		Topology: topo,
		dial:     dial,
		sessions: make(map[string]session.Session),
	}
}

// Connect opens sessions to every device in parallel. Devices that are
// already connected are left alone. All connect failures are returned joined.
func (l *Lab) Connect(ctx context.Context) error {
	p := pool.New().WithMaxGoroutines(maxParallelDials).WithErrors()

	for _, name := range l.Topology.DeviceNames() {
		l.mu.Lock()
		_, ok := l.sessions[name]
		l.mu.Unlock()
		if ok {
			continue
		}

		dev := l.Topology.Devices[name]
		p.Go(func() error {
			sess, err := l.dial(ctx, dev)
			if err != nil {
				return &InfraError{Op: "connect", Device: dev.Name, Err: err}
			}
			util.WithDevice(dev.Name).Debug("connected")
			l.mu.Lock()
			l.sessions[dev.Name] = sess
			l.mu.Unlock()
			return nil
		})
	}
	return p.Wait()
}

// Session returns the open session for a device.
func (l *Lab) Session(name string) (session.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess, ok := l.sessions[name]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", name, util.ErrNotConnected)
	}
	return sess, nil
}

// Device returns the topology entry for a device.
func (l *Lab) Device(name string) (*topology.Device, error) {
	return l.Topology.Device(name)
}

// Close closes every open session.
func (l *Lab) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for name, sess := range l.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
		delete(l.sessions, name)
	}
	return firstErr
}
