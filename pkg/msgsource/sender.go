// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package msgsource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/msgsource/pkg/logger"
	"github.com/luxfi/msgsource/pkg/transport"
)

// SenderState tracks where a sender is in the reply cycle
type SenderState int

const (
	// SenderListening waits for a request
	SenderListening SenderState = iota
	// SenderResponding holds a request that has not been answered
	SenderResponding
	// SenderClosed is terminal
	SenderClosed
)

func (s SenderState) String() string {
	switch s {
	case SenderListening:
		return "listening"
	case SenderResponding:
		return "responding"
	case SenderClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sender owns one bound reply socket. It answers requests in order:
// Receive a request, then Send exactly one reply.
type Sender struct {
	id     string
	socket transport.Socket

	mu    sync.Mutex
	state SenderState
}

var _ Source = (*Sender)(nil)

// NewSender binds a reply socket on address
func NewSender(address string, opts *Options) (*Sender, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	socket, err := transport.Bind(address, opts.Transport)
	if err != nil {
		return nil, err
	}

	s := &Sender{id: newSocketID(), socket: socket, state: SenderListening}
	logger.Info("Message source bound", "socket", s.id, "address", address)
	return s, nil
}

// Receive waits for the next request
func (s *Sender) Receive(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch s.state {
	case SenderClosed:
		s.mu.Unlock()
		return "", ErrClosed
	case SenderResponding:
		s.mu.Unlock()
		return "", fmt.Errorf("%w: reply to the current request first", ErrRequestPending)
	}
	s.mu.Unlock()

	data, err := s.socket.Recv(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrClosed) && s.State() == SenderClosed {
			return "", ErrClosed
		}
		return "", fmt.Errorf("failed to receive request: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SenderClosed {
		return "", ErrClosed
	}
	s.state = SenderResponding

	logger.Debug("Request received", "socket", s.id, "bytes", len(data))
	return string(data), nil
}

// Send replies to the pending request with message as a single frame
func (s *Sender) Send(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SenderClosed:
		return ErrClosed
	case SenderListening:
		return ErrNoPendingRequest
	}

	if err := s.socket.Send([]byte(message)); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	s.state = SenderListening

	logger.Debug("Reply sent", "socket", s.id, "bytes", len(message))
	return nil
}

// State returns the current position in the reply cycle
func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Address returns the bound address
func (s *Sender) Address() string {
	return s.socket.Address()
}

// Close releases the socket. Calling it again is a no-op.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.state == SenderClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = SenderClosed
	s.mu.Unlock()

	logger.Info("Message source closed", "socket", s.id)
	return s.socket.Close()
}
