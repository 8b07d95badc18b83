package msgsource

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func inprocAddr(t *testing.T) string {
	return "inproc://msgsource-" + strings.ReplaceAll(t.Name(), "/", "-")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newSender(t *testing.T, addr string) *Sender {
	t.Helper()
	s, err := NewSender(addr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := NewClient(addr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// echo answers every request with its own text until the sender closes
func echo(s *Sender) {
	for {
		msg, err := s.Receive(context.Background())
		if err != nil {
			return
		}
		if err := s.Send(msg); err != nil {
			return
		}
	}
}
