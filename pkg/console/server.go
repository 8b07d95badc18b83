package console

import (
	"context"
	"errors"
	"io"

	"github.com/luxfi/msgsource/pkg/logger"
)

// Responder answers requests one at a time
type Responder interface {
	Receive(ctx context.Context) (string, error)
	Send(message string) error
}

// ServerOptions configures RunServer
type ServerOptions struct {
	// Address is shown in the banner
	Address string
	// Echo answers every request with its own text instead of reading a
	// reply from the operator
	Echo bool
}

// RunServer receives requests and answers each with a line typed by the
// operator, or with the request itself in echo mode. It returns nil when
// the operator quits, input ends or ctx is cancelled; socket failures are
// returned as is.
func RunServer(ctx context.Context, r Responder, con *Console, opts ServerOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Echo {
		con.Banner("Server started on %s in echo mode. Type '%s' to exit.", opts.Address, QuitCommand)
		go watchQuit(ctx, con, cancel)
	} else {
		con.Banner("Server started on %s. Type a reply for each request, '%s' to exit.", opts.Address, QuitCommand)
	}

	for {
		request, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		con.Received("Received request", request)

		reply := request
		if !opts.Echo {
			reply, err = con.ReadLine(ctx)
			if err != nil {
				if stop(err) {
					logger.Debug("Server loop finished", "reason", err.Error())
					return nil
				}
				return err
			}
		}

		if err := r.Send(reply); err != nil {
			return err
		}
	}
}

// watchQuit keeps reading operator input while the loop echoes, so quit
// still works
func watchQuit(ctx context.Context, con *Console, cancel context.CancelFunc) {
	for {
		_, err := con.ReadLine(ctx)
		switch {
		case errors.Is(err, ErrQuit):
			cancel()
			return
		case err != nil:
			return
		}
	}
}

// stop reports whether err is a clean end of the operator loop
func stop(err error) bool {
	return errors.Is(err, ErrQuit) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
