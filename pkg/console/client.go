package console

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/msgsource/pkg/logger"
)

// Requester sends requests and receives their replies
type Requester interface {
	Send(message string) error
	Receive(ctx context.Context) (string, error)
}

// ClientOptions configures RunClient
type ClientOptions struct {
	// Address is shown in the banner
	Address string
	// ReceiveTimeout abandons a request whose reply takes longer. Zero
	// waits forever.
	ReceiveTimeout time.Duration
}

// RunClient sends each operator line and prints its reply. QuitCommand
// ends the loop without being sent. It returns nil when the operator
// quits, input ends or ctx is cancelled; socket failures are returned as
// is.
func RunClient(ctx context.Context, q Requester, con *Console, opts ClientOptions) error {
	con.Banner("Client started on %s. Enter a message to send, '%s' to exit.", opts.Address, QuitCommand)

	for {
		message, err := con.ReadLine(ctx)
		if err != nil {
			if stop(err) {
				logger.Debug("Client loop finished", "reason", err.Error())
				return nil
			}
			return err
		}

		if err := q.Send(message); err != nil {
			return err
		}

		reply, err := receive(ctx, q, opts.ReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if opts.ReceiveTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
				con.Warnf("No reply within %s, request abandoned", opts.ReceiveTimeout)
				continue
			}
			return err
		}
		con.Received("Received message", reply)
	}
}

func receive(ctx context.Context, q Requester, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return q.Receive(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return q.Receive(ctx)
}
