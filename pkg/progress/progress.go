package progress

import (
	"github.com/pterm/pterm"
)

// Bar renders a terminal progress bar, one tick per processed file.
// Satisfies mover.ProgressReporter.
type Bar struct {
	printer *pterm.ProgressbarPrinter
}

// New starts a progress bar for total files. Returns nil (no reporter)
// when disabled or when total is zero; callers treat a nil *Bar as
// no-op by not installing it.
func New(total int, title string, disabled bool) *Bar {
	if disabled || total <= 0 {
		return nil
	}

	printer, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return nil
	}

	return &Bar{printer: printer}
}

func (b *Bar) Increment() {
	b.printer.Increment()
}

// Stop tears the bar down; safe to call once the run finishes.
func (b *Bar) Stop() {
	_, _ = b.printer.Stop()
}
