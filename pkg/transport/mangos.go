// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Registers tcp, ipc, inproc, tls+tcp, ws and wss
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/luxfi/msgsource/pkg/logger"
)

// mangosSchemes are the URI schemes served by the scalability protocols driver
var mangosSchemes = []string{"tcp", "ipc", "inproc", "tls+tcp", "ws", "wss"}

func init() {
	Register(mangosDriver{}, mangosSchemes...)
}

// mangosDriver speaks the REQ/REP scalability protocols
type mangosDriver struct{}

func (mangosDriver) Bind(ep Endpoint, opts *Options) (Socket, error) {
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create reply socket: %w", err)
	}
	if err := configureMangos(sock, opts); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionSendDeadline, opts.SendTimeout); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to set send deadline: %w", err)
	}

	if err := sock.Listen(listenURL(ep)); err != nil {
		sock.Close()
		if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, mangos.ErrAddrInUse) {
			return nil, fmt.Errorf("%w: %w", ErrAddrInUse, err)
		}
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	logger.Info("Reply socket listening", "addr", ep.String())
	return newMangosSocket(sock, ep, RoleReply)
}

// listenURL turns the nanomsg wildcard host "*" into the empty host the
// net package listens on for all interfaces
func listenURL(ep Endpoint) string {
	switch ep.Scheme {
	case "tcp", "tls+tcp", "ws", "wss":
		if strings.HasPrefix(ep.Target, "*") {
			return ep.Scheme + "://" + strings.TrimPrefix(ep.Target, "*")
		}
	}
	return ep.URL()
}

func (mangosDriver) Connect(ep Endpoint, opts *Options) (Socket, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create request socket: %w", err)
	}
	if err := configureMangos(sock, opts); err != nil {
		sock.Close()
		return nil, err
	}
	// A request is sent once; a lost reply surfaces to the caller. Requests
	// carry no send deadline: they wait for a peer in the background and
	// Recv bounds the whole exchange.
	if err := sock.SetOption(mangos.OptionRetryTime, time.Duration(0)); err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to disable resend: %w", err)
	}

	// Asynchronous dial keeps connecting in the background
	err = sock.DialOptions(ep.URL(), map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	logger.Info("Request socket dialing", "addr", ep.String())
	return newMangosSocket(sock, ep, RoleRequest)
}

func configureMangos(sock mangos.Socket, opts *Options) error {
	if err := sock.SetOption(mangos.OptionMaxRecvSize, opts.MaxMessageSize); err != nil {
		return fmt.Errorf("failed to set max receive size: %w", err)
	}
	return nil
}

// mangosSocket runs every exchange on a mangos context so an abandoned
// receive can be discarded without disturbing the socket itself.
type mangosSocket struct {
	ep   Endpoint
	sock mangos.Socket
	role Role

	mu     sync.Mutex
	mctx   mangos.Context
	queued chan error // result of the request send still in flight
	closed bool
}

func newMangosSocket(sock mangos.Socket, ep Endpoint, role Role) (*mangosSocket, error) {
	mctx, err := sock.OpenContext()
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("failed to open socket context: %w", err)
	}
	return &mangosSocket{ep: ep, sock: sock, role: role, mctx: mctx}, nil
}

func (s *mangosSocket) current() (mangos.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.mctx == nil {
		return nil, ErrClosed
	}
	return s.mctx, nil
}

func (s *mangosSocket) Send(data []byte) error {
	if err := checkFrame(data); err != nil {
		return err
	}
	mctx, err := s.current()
	if err != nil {
		return err
	}
	if s.role == RoleRequest {
		return s.queue(mctx, data)
	}
	if err := mctx.Send(data); err != nil {
		return translateMangos(err)
	}
	return nil
}

// queue hands a request to mangos without waiting for a peer, as the
// request waits until the dialer connects
func (s *mangosSocket) queue(mctx mangos.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	queued := make(chan error, 1)
	go func() { queued <- mctx.Send(data) }()
	s.queued = queued
	return nil
}

// awaitQueued waits for a request handed to queue to leave the socket
func (s *mangosSocket) awaitQueued(ctx context.Context, mctx mangos.Context) error {
	s.mu.Lock()
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()
	if queued == nil {
		return nil
	}

	select {
	case err := <-queued:
		if err != nil {
			return translateMangos(err)
		}
		return nil
	case <-ctx.Done():
		s.abandon(mctx)
		return ctx.Err()
	}
}

func (s *mangosSocket) Recv(ctx context.Context) ([]byte, error) {
	mctx, err := s.current()
	if err != nil {
		return nil, err
	}

	if err := s.awaitQueued(ctx, mctx); err != nil {
		return nil, err
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := mctx.Recv()
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, translateMangos(r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		s.abandon(mctx)
		return nil, ctx.Err()
	}
}

// abandon drops the exchange running on stale and starts a fresh one.
// Closing the mangos context unblocks the receiving goroutine.
func (s *mangosSocket) abandon(stale mangos.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.mctx != stale {
		return
	}
	_ = stale.Close()

	mctx, err := s.sock.OpenContext()
	if err != nil {
		logger.Warn("Failed to reopen socket context", "addr", s.ep.String(), "err", err)
		s.mctx = nil
		return
	}
	s.mctx = mctx
}

func (s *mangosSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mctx = nil
	s.queued = nil
	s.mu.Unlock()

	if err := s.sock.Close(); err != nil && !errors.Is(err, mangos.ErrClosed) {
		return err
	}
	return nil
}

func (s *mangosSocket) Address() string {
	return s.ep.String()
}

func translateMangos(err error) error {
	switch {
	case errors.Is(err, mangos.ErrClosed):
		return ErrClosed
	case errors.Is(err, mangos.ErrProtoState):
		return fmt.Errorf("%w: %w", ErrNoRequest, err)
	default:
		return err
	}
}
