package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/cmd/trustgate/cli/config"
)

// progressEnabled reports whether stage progress should be written for mode.
// Auto mode writes progress only when stderr is a terminal.
func progressEnabled(mode string) bool {
	switch mode {
	case config.ProgressPlain:
		return false
	case config.ProgressTTY:
		return true
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// stageReporter writes one line per stage transition and a byte counter
// while the model loads.
type stageReporter struct {
	mu       sync.Mutex
	w        io.Writer
	enabled  bool
	counting bool
}

func newStageReporter(w io.Writer, enabled bool) *stageReporter {
	return &stageReporter{w: w, enabled: enabled}
}

// onStage returns the pipeline callback, or nil when progress is disabled.
func (r *stageReporter) onStage() trustgate.StageCallback {
	if !r.enabled {
		return nil
	}
	return func(ev trustgate.StageEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.counting {
			fmt.Fprintln(r.w)
			r.counting = false
		}
		fmt.Fprintf(r.w, "%s %s\n", stageMarker(ev.Status), ev.Stage)
	}
}

// loadProgress returns the loader callback, or nil when progress is disabled.
func (r *stageReporter) loadProgress() func(read, total int64) {
	if !r.enabled {
		return nil
	}
	return func(read, total int64) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.counting = true
		if total > 0 {
			fmt.Fprintf(r.w, "\r  %s / %s", humanize.IBytes(uint64(read)), humanize.IBytes(uint64(total)))
			return
		}
		fmt.Fprintf(r.w, "\r  %s", humanize.IBytes(uint64(read)))
	}
}

func stageMarker(status trustgate.StageStatus) string {
	switch status {
	case trustgate.StageStarted:
		return "..."
	case trustgate.StagePassed:
		return "ok "
	case trustgate.StageFailed:
		return "!! "
	case trustgate.StageSkipped:
		return "-- "
	default:
		return "   "
	}
}
