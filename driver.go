package dialx

import (
	"fmt"
	"sync"
)

// Driver builds a Negotiator for one named negotiation stage from its text
// parameters. server selects the accept-side variant of the stage.
type Driver func(params map[string]string, server bool) (Negotiator, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("dialx: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("dialx: Register called twice for driver " + name)
	}
	drivers[name] = d
}

func GetDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("dialx: unknown driver %q", name)
	}
	return d, nil
}
