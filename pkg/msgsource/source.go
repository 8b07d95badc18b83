// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package msgsource exchanges text messages over request/reply sockets.
//
// A Sender binds a reply socket and answers one request at a time; a
// Client connects a request socket, sends one message and waits for its
// reply. Both enforce strict alternation of send and receive.
package msgsource

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/luxfi/msgsource/pkg/transport"
)

var (
	// ErrClosed is returned by any operation after Close
	ErrClosed = errors.New("msgsource: closed")

	// ErrRequestPending is returned when a client sends again before
	// receiving the reply to its previous request
	ErrRequestPending = errors.New("msgsource: request already pending, receive its reply first")

	// ErrNoPendingRequest is returned when a reply is sent with no request
	// to answer, or a client receives without having sent
	ErrNoPendingRequest = errors.New("msgsource: no pending request")

	// ErrAddressInUse is returned when a sender's address is already bound
	ErrAddressInUse = transport.ErrAddrInUse
)

// Source emits messages on a bound endpoint
type Source interface {
	Send(message string) error
	Close() error
}

// SourceClient sends requests and receives their replies
type SourceClient interface {
	Send(message string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Reply is the outcome of an asynchronous receive
type Reply struct {
	Text string
	Err  error
}

// Options configures senders and clients
type Options struct {
	// Transport is passed through to the socket driver
	Transport *transport.Options
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{Transport: transport.DefaultOptions()}
}

func newSocketID() string {
	return uuid.NewString()[:8]
}
