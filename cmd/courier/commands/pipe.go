package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/domain"
	"courier/internal/websocket"
)

// pipe: stay connected and print pushed envelopes until interrupted.
func pipeCmd() *cobra.Command {
	var (
		wait  time.Duration
		count int
	)
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Receive pushed messages over a persistent connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := loadWire()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := w.Receiver.CreateMessagePipe()
			defer p.Shutdown()

			received := 0
			for count == 0 || received < count {
				_, err := p.Read(ctx, wait, func(env domain.Envelope) {
					printEnvelope(os.Stdout, env)
				})
				switch {
				case err == nil:
					received++
				case errors.Is(err, websocket.ErrTimeout):
					w.Logger.Debug("no envelope before timeout", "wait", wait)
				case errors.Is(err, context.Canceled):
					fmt.Printf("%d envelope(s) received\n", received)
					return nil
				case errors.Is(err, domain.ErrDecode):
					w.Logger.Warn("rejected undecodable push", "err", err)
				default:
					return err
				}
			}
			fmt.Printf("%d envelope(s) received\n", received)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", time.Minute, "how long each read waits for a push (0 waits forever)")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many envelopes (0 runs until interrupted)")
	return cmd
}
