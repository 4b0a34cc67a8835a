package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/facecloak/internal/observer"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// barProgress drives a progress bar on stderr. The total is unknown until
// the initial scan finishes, so the bar starts as a spinner.
type barProgress struct {
	bar *progressbar.ProgressBar
}

func newBarProgress() *barProgress {
	return &barProgress{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Scanning images"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)}
}

func (p *barProgress) Started(total int) {
	p.bar.ChangeMax(total)
}

func (p *barProgress) Done(observer.Result) {
	p.bar.Add(1)
}

func (p *barProgress) Finish() {
	p.bar.Finish()
	fmt.Fprintln(os.Stderr)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
