package commands

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"courier/internal/domain"
)

func attachmentCmd() *cobra.Command {
	var (
		id       uint64
		key      string
		relayArg string
		dest     string
		out      string
	)
	cmd := &cobra.Command{
		Use:   "attachment",
		Short: "Download and decrypt one attachment",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawKey, err := base64.StdEncoding.DecodeString(key)
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			w, err := loadWire()
			if err != nil {
				return err
			}
			if dest == "" {
				dir := filepath.Join(home, "attachments")
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return err
				}
				dest = filepath.Join(dir, strconv.FormatUint(id, 10)+".enc")
			}

			bar := newDownloadBar(barEnabled(logLevel, out), os.Stderr)
			pointer := domain.AttachmentPointer{ID: id, Key: rawKey, Relay: relayArg}
			rc, err := w.Receiver.RetrieveAttachment(cmd.Context(), pointer, dest, bar.Update)
			bar.Stop(err == nil)
			if err != nil {
				return err
			}
			defer rc.Close()

			var sink io.Writer = os.Stdout
			if out != "" {
				f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				sink = f
			}
			n, err := io.Copy(sink, rc)
			if err != nil {
				return err
			}
			if out != "" {
				pterm.Success.WithWriter(os.Stderr).Printf("Decrypted %d bytes to %s\n", n, out)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&id, "id", 0, "attachment id")
	cmd.Flags().StringVar(&key, "key", "", "base64 attachment key")
	cmd.Flags().StringVar(&relayArg, "relay", "", "relay holding the attachment (empty for the home service)")
	cmd.Flags().StringVar(&dest, "dest", "", "where to keep the ciphertext (default <home>/attachments/<id>.enc)")
	cmd.Flags().StringVar(&out, "out", "", "plaintext output file (default stdout)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
