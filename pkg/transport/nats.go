// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/luxfi/msgsource/pkg/logger"
)

func init() {
	Register(natsDriver{}, "nats")
}

// natsDriver carries request/reply over a NATS subject. The reply side
// subscribes to the subject and answers on each request's reply inbox;
// the request side publishes with a private inbox.
//
// NATS subjects may have any number of subscribers, so binding the same
// address twice is not detected.
type natsDriver struct{}

// parseNATS splits nats://host:port/a/b into the server URL and subject "a.b"
func parseNATS(ep Endpoint) (serverURL, subject string, err error) {
	u, err := url.Parse(ep.URL())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: %q has no host", ErrInvalidAddress, ep.String())
	}

	subject = strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", ".")
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if strings.ContainsAny(subject, " \t*>") {
		return "", "", fmt.Errorf("%w: subject %q must be a literal subject", ErrInvalidAddress, subject)
	}

	u.Path = ""
	u.RawQuery = ""
	return u.String(), subject, nil
}

func natsConnect(serverURL string, opts *Options) (*nats.Conn, error) {
	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}
	if opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}
	return nats.Connect(serverURL, natsOpts...)
}

func (natsDriver) Bind(ep Endpoint, opts *Options) (Socket, error) {
	serverURL, subject, err := parseNATS(ep)
	if err != nil {
		return nil, err
	}
	nc, err := natsConnect(serverURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	logger.Info("Reply subject subscribed", "url", serverURL, "subject", subject)
	return &natsReplySocket{ep: ep, nc: nc, sub: sub, maxSize: opts.MaxMessageSize}, nil
}

func (natsDriver) Connect(ep Endpoint, opts *Options) (Socket, error) {
	serverURL, subject, err := parseNATS(ep)
	if err != nil {
		return nil, err
	}
	nc, err := natsConnect(serverURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s := &natsRequestSocket{ep: ep, nc: nc, subject: subject}
	if err := s.renewInbox(); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("Request subject ready", "url", serverURL, "subject", subject)
	return s, nil
}

// natsReplySocket holds at most one request awaiting its answer
type natsReplySocket struct {
	ep      Endpoint
	nc      *nats.Conn
	sub     *nats.Subscription
	maxSize int

	mu      sync.Mutex
	pending *nats.Msg
	closed  bool
}

func (s *natsReplySocket) Recv(ctx context.Context) ([]byte, error) {
	for {
		if s.isClosed() {
			return nil, ErrClosed
		}
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err != nil {
			return nil, translateNATS(ctx, err, s.isClosed())
		}
		if msg.Reply == "" {
			logger.Warn("Dropping request without reply inbox", "subject", msg.Subject)
			continue
		}
		if len(msg.Data) > s.maxSize {
			logger.Warn("Dropping oversized request", "subject", msg.Subject, "bytes", len(msg.Data))
			continue
		}

		s.mu.Lock()
		s.pending = msg
		s.mu.Unlock()
		return msg.Data, nil
	}
}

func (s *natsReplySocket) Send(data []byte) error {
	if err := checkFrame(data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.pending == nil {
		return ErrNoRequest
	}
	if err := s.nc.Publish(s.pending.Reply, data); err != nil {
		return err
	}
	s.pending = nil
	return nil
}

func (s *natsReplySocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *natsReplySocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = nil
	s.mu.Unlock()

	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		logger.Debug("Unsubscribe failed", "subject", s.sub.Subject, "err", err)
	}
	s.nc.Close()
	return nil
}

func (s *natsReplySocket) Address() string {
	return s.ep.String()
}

// natsRequestSocket receives replies on a private inbox. The inbox is
// replaced whenever a wait is abandoned so a late reply cannot be taken
// for the answer to the next request.
type natsRequestSocket struct {
	ep      Endpoint
	nc      *nats.Conn
	subject string

	mu     sync.Mutex
	inbox  string
	sub    *nats.Subscription
	closed bool
}

func (s *natsRequestSocket) renewInbox() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	inbox := nats.NewInbox()
	sub, err := s.nc.SubscribeSync(inbox)
	if err != nil {
		return fmt.Errorf("failed to subscribe to reply inbox: %w", err)
	}
	s.inbox = inbox
	s.sub = sub
	return nil
}

func (s *natsRequestSocket) Send(data []byte) error {
	if err := checkFrame(data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.nc.PublishRequest(s.subject, s.inbox, data)
}

func (s *natsRequestSocket) Recv(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := s.sub
	s.mu.Unlock()

	msg, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		closed := s.isClosed()
		if ctx.Err() != nil && !closed {
			if rerr := s.renewInbox(); rerr != nil {
				logger.Warn("Failed to renew reply inbox", "err", rerr)
			}
		}
		return nil, translateNATS(ctx, err, closed)
	}
	return msg.Data, nil
}

func (s *natsRequestSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *natsRequestSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	s.nc.Close()
	return nil
}

func (s *natsRequestSocket) Address() string {
	return s.ep.String()
}

func translateNATS(ctx context.Context, err error, closed bool) error {
	switch {
	case closed:
		return ErrClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
		return ErrClosed
	default:
		return err
	}
}
