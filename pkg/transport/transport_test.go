package transport

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inprocAddr(t *testing.T) string {
	return "inproc://" + strings.ReplaceAll(t.Name(), "/", "-")
}

// freePort reserves a loopback port and releases it for the test to bind
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func openPair(t *testing.T, bindAddr, connectAddr string) (Socket, Socket) {
	t.Helper()
	rep, err := Bind(bindAddr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rep.Close() })

	req, err := Connect(connectAddr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { req.Close() })
	return rep, req
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestParseEndpoint(t *testing.T) {
	testCases := []struct {
		name    string
		address string
		scheme  string
		target  string
		wantErr bool
	}{
		{"tcp wildcard", "tcp://*:5555", "tcp", "*:5555", false},
		{"tcp host", "tcp://localhost:5555", "tcp", "localhost:5555", false},
		{"upper scheme", "TCP://localhost:5555", "tcp", "localhost:5555", false},
		{"nats subject", "nats://localhost:4222/greetings", "nats", "localhost:4222/greetings", false},
		{"no scheme", "localhost:5555", "", "", true},
		{"empty target", "tcp://", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tc.address)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, ep.Scheme)
			assert.Equal(t, tc.target, ep.Target)
			assert.Equal(t, tc.address, ep.String())
		})
	}
}

func TestSchemes(t *testing.T) {
	schemes := Schemes()
	assert.Contains(t, schemes, "tcp")
	assert.Contains(t, schemes, "inproc")
	assert.Contains(t, schemes, "nats")
	assert.IsIncreasing(t, schemes)
}

func TestOpenRejectsBadAddresses(t *testing.T) {
	_, err := Bind("localhost:5555", nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Connect("carrier-pigeon://coop", nil)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestRequestReplyInproc(t *testing.T) {
	addr := inprocAddr(t)
	rep, req := openPair(t, addr, addr)
	ctx := testContext(t)

	require.NoError(t, req.Send([]byte("ping")))

	got, err := rep.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	require.NoError(t, rep.Send([]byte("pong")))

	got, err = req.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
	assert.Equal(t, addr, req.Address())
}

func TestRequestReplyTCPWildcard(t *testing.T) {
	port := freePort(t)
	rep, req := openPair(t,
		fmt.Sprintf("tcp://*:%d", port),
		fmt.Sprintf("tcp://127.0.0.1:%d", port),
	)
	ctx := testContext(t)

	for _, text := range []string{"first", "", "третий"} {
		require.NoError(t, req.Send([]byte(text)))

		got, err := rep.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, text, string(got))

		require.NoError(t, rep.Send([]byte(strings.ToUpper(text))))

		got, err = req.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(text), string(got))
	}
}

func TestBindAddressInUse(t *testing.T) {
	addr := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	first, err := Bind(addr, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Bind(addr, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddrInUse)
}

func TestConnectIsLazy(t *testing.T) {
	addr := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	req, err := Connect(addr, nil)
	require.NoError(t, err)
	assert.NoError(t, req.Close())
}

func TestReplySendWithoutRequest(t *testing.T) {
	addr := inprocAddr(t)
	rep, _ := openPair(t, addr, addr)

	err := rep.Send([]byte("unsolicited"))
	assert.ErrorIs(t, err, ErrNoRequest)
}

func TestRecvDeadlineAbandonsExchange(t *testing.T) {
	addr := inprocAddr(t)
	rep, req := openPair(t, addr, addr)
	ctx := testContext(t)

	require.NoError(t, req.Send([]byte("ping")))
	got, err := rep.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "ping", string(got))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = req.Recv(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The late reply belongs to the abandoned exchange and is discarded
	require.NoError(t, rep.Send([]byte("late")))

	require.NoError(t, req.Send([]byte("again")))
	got, err = rep.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "again", string(got))

	require.NoError(t, rep.Send([]byte("fresh")))
	got, err = req.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestCloseUnblocksRecv(t *testing.T) {
	addr := inprocAddr(t)
	_, req := openPair(t, addr, addr)

	require.NoError(t, req.Send([]byte("ping")))

	errCh := make(chan error, 1)
	go func() {
		_, err := req.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, req.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after Close")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	addr := inprocAddr(t)
	rep, req := openPair(t, addr, addr)

	require.NoError(t, req.Close())
	assert.NoError(t, req.Close(), "Close is idempotent")

	assert.ErrorIs(t, req.Send([]byte("x")), ErrClosed)
	_, err := req.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, rep.Close())
	_, err = rep.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOversizedFrameRejected(t *testing.T) {
	addr := inprocAddr(t)
	_, req := openPair(t, addr, addr)

	err := req.Send(make([]byte, MaxMessageSize+1))
	assert.ErrorContains(t, err, "message too large")
}

func TestWithDefaults(t *testing.T) {
	o := withDefaults(nil)
	assert.Equal(t, DefaultOptions(), o)

	o = withDefaults(&Options{Name: "custom", MaxMessageSize: MaxMessageSize * 2})
	assert.Equal(t, "custom", o.Name)
	assert.Equal(t, MaxMessageSize, o.MaxMessageSize)
	assert.Equal(t, 10*time.Second, o.SendTimeout)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "reply", RoleReply.String())
	assert.Equal(t, "request", RoleRequest.String())
	assert.Equal(t, "unknown", Role(9).String())
}

func TestListenURL(t *testing.T) {
	testCases := []struct {
		address string
		want    string
	}{
		{"tcp://*:5555", "tcp://:5555"},
		{"TCP://*:5555", "tcp://:5555"},
		{"ws://*:8080/msgs", "ws://:8080/msgs"},
		{"tls+tcp://*:5555", "tls+tcp://:5555"},
		{"tcp://127.0.0.1:5555", "tcp://127.0.0.1:5555"},
		{"ipc:///tmp/*.sock", "ipc:///tmp/*.sock"},
		{"inproc://*", "inproc://*"},
	}

	for _, tc := range testCases {
		t.Run(tc.address, func(t *testing.T) {
			ep, err := ParseEndpoint(tc.address)
			require.NoError(t, err)
			assert.Equal(t, tc.want, listenURL(ep))
		})
	}
}

func TestWildcardBindKeepsAddress(t *testing.T) {
	addr := fmt.Sprintf("tcp://*:%d", freePort(t))

	rep, err := Bind(addr, nil)
	require.NoError(t, err)
	defer rep.Close()

	assert.Equal(t, addr, rep.Address())
}

func TestRequestQueuedUntilPeerBinds(t *testing.T) {
	port := freePort(t)
	req, err := Connect(fmt.Sprintf("tcp://127.0.0.1:%d", port), nil)
	require.NoError(t, err)
	defer req.Close()

	start := time.Now()
	require.NoError(t, req.Send([]byte("early")))
	assert.Less(t, time.Since(start), time.Second, "send must not wait for a peer")

	rep, err := Bind(fmt.Sprintf("tcp://*:%d", port), nil)
	require.NoError(t, err)
	defer rep.Close()
	ctx := testContext(t)

	got, err := rep.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "early", string(got))
	require.NoError(t, rep.Send([]byte("late peer")))

	got, err = req.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late peer", string(got))
}

func TestQueuedRequestAbandoned(t *testing.T) {
	req, err := Connect(fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)), nil)
	require.NoError(t, err)
	defer req.Close()

	require.NoError(t, req.Send([]byte("nobody home")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = req.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, req.Send([]byte("retry")), "socket is usable after an abandoned request")
}
