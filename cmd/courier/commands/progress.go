package commands

import (
	"io"
	"sync"

	"github.com/pterm/pterm"
)

// downloadBar renders attachment download progress to w. It draws nothing
// when disabled or before the server has announced a length.
type downloadBar struct {
	mu      sync.Mutex
	w       io.Writer
	pb      *pterm.ProgressbarPrinter
	enabled bool
}

func newDownloadBar(enabled bool, w io.Writer) *downloadBar {
	return &downloadBar{w: w, enabled: enabled && w != nil}
}

// barEnabled draws only at info level, and never when the plaintext itself
// goes to stdout.
func barEnabled(logLevel, out string) bool {
	return logLevel == "info" && out != ""
}

// Update matches domain.ProgressListener.
func (b *downloadBar) Update(total, progress int64) {
	if !b.enabled || total <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		pb, err := pterm.DefaultProgressbar.
			WithWriter(b.w).
			WithTotal(int(total)).
			WithTitle("Downloading attachment").
			Start()
		if err != nil {
			b.enabled = false
			return
		}
		b.pb = pb
	}
	if delta := int(progress) - b.pb.Current; delta > 0 {
		b.pb.Add(delta)
	}
}

func (b *downloadBar) Stop(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pb == nil {
		return
	}
	_, _ = b.pb.Stop()
	if ok {
		pterm.Success.WithWriter(b.w).Println("Download complete")
	}
}
