// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Driver opens sockets for the schemes it is registered under
type Driver interface {
	// Bind opens a reply socket listening on the endpoint
	Bind(ep Endpoint, opts *Options) (Socket, error)

	// Connect opens a request socket dialing the endpoint
	Connect(ep Endpoint, opts *Options) (Socket, error)
}

// registry maps URI schemes to drivers
type registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

var drivers = &registry{drivers: make(map[string]Driver)}

// Register makes a driver available for the given schemes. Registering a
// scheme twice replaces the earlier driver.
func Register(d Driver, schemes ...string) {
	drivers.mu.Lock()
	defer drivers.mu.Unlock()
	for _, s := range schemes {
		drivers.drivers[s] = d
	}
}

// Schemes returns the registered schemes in sorted order
func Schemes() []string {
	drivers.mu.RLock()
	defer drivers.mu.RUnlock()

	schemes := lo.Keys(drivers.drivers)
	sort.Strings(schemes)
	return schemes
}

func (r *registry) lookup(scheme string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return d, nil
}
