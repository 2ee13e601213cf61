// Package dbusstatus broadcasts status.Snapshot values over the session
// D-Bus bus. It is a transport adapter over internal/statusbus; the core
// sync engine never depends on it directly.
package dbusstatus

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/auriora/onedrivefs/internal/logging"
	"github.com/auriora/onedrivefs/internal/status"
	"github.com/auriora/onedrivefs/internal/statusbus"
)

const (
	objectPath = dbus.ObjectPath("/org/onedrivefs/Status")
	ifaceName  = "org.onedrivefs.Status"
	signalName = ifaceName + ".Changed"
)

// Broadcaster emits a D-Bus signal for every snapshot published on a Bus.
type Broadcaster struct {
	conn *dbus.Conn
}

// Connect opens a session bus connection. Returns an error the caller may
// choose to treat as non-fatal: the daemon functions correctly with no
// D-Bus session present, just without this transport.
func Connect() (*Broadcaster, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &Broadcaster{conn: conn}, nil
}

func (b *Broadcaster) Close() error {
	return b.conn.Close()
}

// Run subscribes to bus and emits a signal per snapshot until ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context, bus *statusbus.Bus) {
	logger := logging.For("dbusstatus")
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := b.emit(snap); err != nil {
				logger.Warn().Err(err).Msg("failed to emit status signal")
			}
		}
	}
}

func (b *Broadcaster) emit(snap status.Snapshot) error {
	return b.conn.Emit(objectPath, signalName,
		snap.Authenticated, snap.Online, string(snap.SyncState), snap.HasConflicts, snap.IsMounted)
}
