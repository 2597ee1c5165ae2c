package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"courier/internal/domain"
)

// recv: drain the queue once.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv",
		Short: "Fetch and acknowledge your queued messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := loadWire()
			if err != nil {
				return err
			}
			envs, err := w.Receiver.RetrieveMessages(cmd.Context(), func(env domain.Envelope) {
				printEnvelope(os.Stdout, env)
			})
			fmt.Printf("%d envelope(s) received\n", len(envs))
			return err
		},
	}
}

func printEnvelope(w io.Writer, env domain.Envelope) {
	size := len(env.Content)
	if size == 0 {
		size = len(env.LegacyMessage)
	}
	fmt.Fprintf(w, "[%s.%d] %s at %d, %d bytes\n", env.Source, env.SourceDevice, env.Type, env.Timestamp, size)
}
