// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"

	"github.com/luxfi/msgsource/pkg/logger"
)

// Bind opens a reply socket on address. It fails if the address is
// malformed, its scheme has no driver, or the address is already bound.
func Bind(address string, opts *Options) (Socket, error) {
	return open(RoleReply, address, opts)
}

// Connect opens a request socket to address. Drivers connect lazily, so
// an unreachable peer is not an error here.
func Connect(address string, opts *Options) (Socket, error) {
	return open(RoleRequest, address, opts)
}

func open(role Role, address string, opts *Options) (Socket, error) {
	ep, err := ParseEndpoint(address)
	if err != nil {
		return nil, err
	}

	d, err := drivers.lookup(ep.Scheme)
	if err != nil {
		return nil, err
	}

	opts = withDefaults(opts)

	var sock Socket
	switch role {
	case RoleReply:
		sock, err = d.Bind(ep, opts)
	case RoleRequest:
		sock, err = d.Connect(ep, opts)
	default:
		return nil, fmt.Errorf("transport: unknown role %d", role)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s socket on %s: %w", role, address, err)
	}

	logger.Debug("Socket opened", "role", role.String(), "address", address)
	return sock, nil
}
