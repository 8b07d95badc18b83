package msgsource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingPongOverTCP(t *testing.T) {
	port := freePort(t)
	sender := newSender(t, fmt.Sprintf("tcp://*:%d", port))
	client := newClient(t, fmt.Sprintf("tcp://localhost:%d", port))
	ctx := testContext(t)

	require.NoError(t, client.Send("ping"))

	req, err := sender.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ping", req)
	assert.Equal(t, SenderResponding, sender.State())

	require.NoError(t, sender.Send("pong"))
	assert.Equal(t, SenderListening, sender.State())

	reply, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
}

func TestSenderSendWithoutRequest(t *testing.T) {
	sender := newSender(t, inprocAddr(t))

	err := sender.Send("unsolicited")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
	assert.Equal(t, SenderListening, sender.State())
}

func TestSenderBindTwice(t *testing.T) {
	addr := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))
	newSender(t, addr)

	_, err := NewSender(addr, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestSenderMalformedAddress(t *testing.T) {
	_, err := NewSender("not-an-address", nil)
	assert.Error(t, err)
}

func TestSenderReceiveTwice(t *testing.T) {
	addr := inprocAddr(t)
	sender := newSender(t, addr)
	client := newClient(t, addr)
	ctx := testContext(t)

	require.NoError(t, client.Send("one"))
	_, err := sender.Receive(ctx)
	require.NoError(t, err)

	_, err = sender.Receive(ctx)
	assert.ErrorIs(t, err, ErrRequestPending)
}

func TestSenderReceiveDeadline(t *testing.T) {
	sender := newSender(t, inprocAddr(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := sender.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, SenderListening, sender.State())
}

func TestSenderCloseUnblocksReceive(t *testing.T) {
	sender := newSender(t, inprocAddr(t))

	errCh := make(chan error, 1)
	go func() {
		_, err := sender.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sender.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
}

func TestSenderClose(t *testing.T) {
	addr := inprocAddr(t)
	sender, err := NewSender(addr, nil)
	require.NoError(t, err)
	assert.Equal(t, addr, sender.Address())

	require.NoError(t, sender.Close())
	assert.NoError(t, sender.Close(), "Close is idempotent")
	assert.Equal(t, SenderClosed, sender.State())

	assert.ErrorIs(t, sender.Send("late"), ErrClosed)
	_, err = sender.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSenderAddressReusableAfterClose(t *testing.T) {
	addr := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	first, err := NewSender(addr, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	newSender(t, addr)
}

func TestSenderStateString(t *testing.T) {
	assert.Equal(t, "listening", SenderListening.String())
	assert.Equal(t, "responding", SenderResponding.String())
	assert.Equal(t, "closed", SenderClosed.String())
	assert.Equal(t, "unknown", SenderState(42).String())
}
