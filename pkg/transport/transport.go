// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport opens request/reply sockets over pluggable drivers.
//
// A reply socket is bound to an address and answers one request per
// receive; a request socket is connected to an address and must receive
// the reply to its request before it sends again. Which driver handles an
// address is decided by its URI scheme:
//
//	rep, err := transport.Bind("tcp://*:5555", nil)
//	req, err := transport.Connect("tcp://localhost:5555", nil)
//	req, err := transport.Connect("nats://localhost:4222/greetings", nil)
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed            = errors.New("transport: connection closed")
	ErrInvalidAddress    = errors.New("transport: invalid address")
	ErrUnsupportedScheme = errors.New("transport: unsupported scheme")
	ErrNoRequest         = errors.New("transport: no request pending")
	ErrAddrInUse         = errors.New("transport: address in use")
)

// Role is the request/reply side a socket plays
type Role int

const (
	// RoleReply binds and answers requests
	RoleReply Role = iota
	// RoleRequest connects and issues requests
	RoleRequest
)

func (r Role) String() string {
	switch r {
	case RoleReply:
		return "reply"
	case RoleRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Socket is one request/reply endpoint. A Socket is owned by a single
// flow; only Close may be called concurrently with Recv.
type Socket interface {
	// Send transmits data as a single frame
	Send(data []byte) error

	// Recv waits for the next frame. If ctx ends first the pending
	// exchange is abandoned and ctx.Err() is returned.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the endpoint and unblocks a pending Recv with ErrClosed
	Close() error

	// Address returns the address the socket was opened with
	Address() string
}

// Options holds transport configuration
type Options struct {
	// Name identifies this process to drivers that announce themselves (NATS)
	Name string

	// SendTimeout bounds a blocked send; zero means the driver default
	SendTimeout time.Duration

	// MaxMessageSize caps inbound frames
	MaxMessageSize int

	// Username and Password authenticate against brokers that need it
	Username string
	Password string
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		Name:           "msgsource",
		SendTimeout:    10 * time.Second,
		MaxMessageSize: MaxMessageSize,
	}
}

func withDefaults(opts *Options) *Options {
	d := DefaultOptions()
	if opts == nil {
		return d
	}
	o := *opts
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = d.SendTimeout
	}
	if o.MaxMessageSize <= 0 || o.MaxMessageSize > MaxMessageSize {
		o.MaxMessageSize = d.MaxMessageSize
	}
	return &o
}
