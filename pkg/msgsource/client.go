// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package msgsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/msgsource/pkg/logger"
	"github.com/luxfi/msgsource/pkg/transport"
)

// ClientState tracks where a client is in the request cycle
type ClientState int

const (
	// ClientIdle may send a request
	ClientIdle ClientState = iota
	// ClientAwaitingReply has sent a request and must receive its reply
	ClientAwaitingReply
	// ClientDisposed is terminal
	ClientDisposed
)

func (s ClientState) String() string {
	switch s {
	case ClientIdle:
		return "idle"
	case ClientAwaitingReply:
		return "awaiting-reply"
	case ClientDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// errDisposed is returned by a receive interrupted by Close. It matches
// both ErrClosed and context.Canceled.
var errDisposed = fmt.Errorf("%w: %w", ErrClosed, context.Canceled)

// Client owns one connected request socket and a cancellation token that
// lives as long as the client. Closing the client cancels the token.
type Client struct {
	id     string
	socket transport.Socket

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state ClientState
}

var _ SourceClient = (*Client)(nil)

// NewClient connects a request socket to address. The connection is made
// in the background; an unreachable peer only shows up as a receive that
// never completes.
func NewClient(address string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	socket, err := transport.Connect(address, opts.Transport)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:     newSocketID(),
		socket: socket,
		ctx:    ctx,
		cancel: cancel,
		state:  ClientIdle,
	}
	logger.Info("Message client connected", "socket", c.id, "address", address)
	return c, nil
}

// Send transmits message as a single request frame. It fails with
// ErrRequestPending if the previous request has not been answered.
func (c *Client) Send(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case ClientDisposed:
		return ErrClosed
	case ClientAwaitingReply:
		return ErrRequestPending
	}

	if err := c.socket.Send([]byte(message)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	c.state = ClientAwaitingReply

	logger.Debug("Request sent", "socket", c.id, "bytes", len(message))
	return nil
}

// Receive waits for the reply to the pending request. If ctx ends first
// the request is abandoned, the client returns to idle and ctx.Err() is
// returned. If the client is closed meanwhile the error matches
// context.Canceled.
func (c *Client) Receive(ctx context.Context) (string, error) {
	c.mu.Lock()
	switch c.state {
	case ClientDisposed:
		c.mu.Unlock()
		return "", ErrClosed
	case ClientIdle:
		c.mu.Unlock()
		return "", ErrNoPendingRequest
	}
	c.mu.Unlock()

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	data, err := c.socket.Recv(recvCtx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == ClientDisposed || c.ctx.Err() != nil {
		return "", errDisposed
	}
	c.state = ClientIdle

	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("Request abandoned", "socket", c.id, "reason", ctx.Err())
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to receive reply: %w", err)
	}

	logger.Debug("Reply received", "socket", c.id, "bytes", len(data))
	return string(data), nil
}

// ReceiveAsync runs Receive in the background. The channel yields one
// Reply and is then closed.
func (c *Client) ReceiveAsync(ctx context.Context) <-chan Reply {
	out := make(chan Reply, 1)
	go func() {
		defer close(out)
		text, err := c.Receive(ctx)
		out <- Reply{Text: text, Err: err}
	}()
	return out
}

// Request sends message and waits for its reply
func (c *Client) Request(ctx context.Context, message string) (string, error) {
	if err := c.Send(message); err != nil {
		return "", err
	}
	return c.Receive(ctx)
}

// State returns the current position in the request cycle
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the connected address
func (c *Client) Address() string {
	return c.socket.Address()
}

// Close cancels any receive in flight and releases the socket. Calling
// it again is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == ClientDisposed {
		c.mu.Unlock()
		return nil
	}
	c.state = ClientDisposed
	c.mu.Unlock()

	c.cancel()
	logger.Info("Message client closed", "socket", c.id)
	return c.socket.Close()
}
