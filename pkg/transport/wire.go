// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"
	"strings"
)

const (
	// MaxMessageSize is 16MB
	MaxMessageSize = 16 * 1024 * 1024

	// DefaultNATSSubject is used when a nats:// address carries no path
	DefaultNATSSubject = "msgsource"
)

// Endpoint is a parsed socket address of the form scheme://rest
type Endpoint struct {
	Scheme string
	// Target is everything after "://", e.g. "*:5555" or "localhost:4222/orders"
	Target string
	Raw    string
}

// ParseEndpoint splits an address into scheme and target. It only checks
// the shape; the driver owning the scheme validates the target.
func ParseEndpoint(address string) (Endpoint, error) {
	scheme, target, ok := strings.Cut(address, "://")
	if !ok || scheme == "" {
		return Endpoint{}, fmt.Errorf("%w: %q (expected scheme://target)", ErrInvalidAddress, address)
	}
	if target == "" {
		return Endpoint{}, fmt.Errorf("%w: %q has an empty target", ErrInvalidAddress, address)
	}
	return Endpoint{
		Scheme: strings.ToLower(scheme),
		Target: target,
		Raw:    address,
	}, nil
}

// String returns the address the endpoint was parsed from
func (e Endpoint) String() string {
	return e.Raw
}

// URL returns the address with its scheme normalized to lower case
func (e Endpoint) URL() string {
	return e.Scheme + "://" + e.Target
}

// checkFrame rejects frames the peer would refuse to read
func checkFrame(data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), MaxMessageSize)
	}
	return nil
}
