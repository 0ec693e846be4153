package systemd

import (
	"context"
	"errors"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
)

var (
	dbusC  *systemdDbus.Conn
	dbusMu sync.RWMutex
)

// dbusConnManager hands out a shared connection to the init system's bus
// and knows how to replace it when it goes stale.
type dbusConnManager struct{}

// newDbusConnManager returns a manager for the system bus. The agent always
// runs as the in-guest init's peer; a session bus mode does not apply here.
func newDbusConnManager() *dbusConnManager {
	return &dbusConnManager{}
}

// getConnection lazily initializes and returns the shared bus connection.
func (d *dbusConnManager) getConnection() (*systemdDbus.Conn, error) {
	// Fast path: a read lock suffices once the connection exists.
	dbusMu.RLock()
	if conn := dbusC; conn != nil {
		dbusMu.RUnlock()
		return conn, nil
	}
	dbusMu.RUnlock()

	dbusMu.Lock()
	defer dbusMu.Unlock()
	if conn := dbusC; conn != nil {
		return conn, nil
	}

	conn, err := systemdDbus.NewWithContext(context.TODO())
	if err != nil {
		return nil, err
	}
	dbusC = conn
	return conn, nil
}

// resetConnection drops the shared connection if it is still the one the
// caller got, so the next getConnection reconnects.
func (d *dbusConnManager) resetConnection(conn *systemdDbus.Conn) {
	dbusMu.Lock()
	defer dbusMu.Unlock()
	if dbusC != nil && dbusC == conn {
		dbusC.Close()
		dbusC = nil
	}
}

// retryOnDisconnect calls op, and if the error it returns is about a closed
// bus connection, re-establishes the connection and retries once. A
// restarted init system closes our connection from its side; one reconnect
// attempt covers that without masking persistent failures.
func (d *dbusConnManager) retryOnDisconnect(op func(*systemdDbus.Conn) error) error {
	retried := false
	for {
		conn, err := d.getConnection()
		if err != nil {
			return err
		}
		err = op(conn)
		if err == nil {
			return nil
		}
		if retried || !errors.Is(err, dbus.ErrClosed) {
			return err
		}
		d.resetConnection(conn)
		retried = true
	}
}

// getManagerProperty returns the value of a property of the bus manager
// object, stripped of its variant quoting.
func (d *dbusConnManager) getManagerProperty(name string) (string, error) {
	var str string
	err := d.retryOnDisconnect(func(conn *systemdDbus.Conn) error {
		var err error
		str, err = conn.GetManagerProperty(name)
		return err
	})
	if err != nil {
		return "", err
	}
	return unquote(str), nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
