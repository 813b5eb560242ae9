package handlers

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/conway-vibehost/vibehost-setup/internal/provisioning"
)

// Output modes for a provisioning run.
const (
	outputTUI   = "tui"
	outputPlain = "plain"
	outputJSON  = "json"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// outputMode picks how progress is shown.
func outputMode(opts ProvisionOptions, tty bool) string {
	switch {
	case opts.LogFormat == LogFormatJSON:
		return outputJSON
	case tty && !opts.Plain:
		return outputTUI
	default:
		return outputPlain
	}
}

// progressObserver draws a phase progress bar under the console log.
type progressObserver struct {
	provisioning.Observer
	bar *progressbar.ProgressBar
}

func newProgressObserver(inner provisioning.Observer, w io.Writer, phases int) *progressObserver {
	bar := progressbar.NewOptions(phases,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("provisioning"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	return &progressObserver{Observer: inner, bar: bar}
}

// Event implements provisioning.Observer.
func (o *progressObserver) Event(event provisioning.Event) {
	o.Observer.Event(event)
	if event.Type == provisioning.EventPhaseCompleted {
		_ = o.bar.Add(1)
	}
}

// Progress implements provisioning.Observer.
func (o *progressObserver) Progress(phase string, _, _ int) {
	o.bar.Describe(phase)
}

// WithFields implements provisioning.Observer.
func (o *progressObserver) WithFields(fields map[string]string) provisioning.Observer {
	return &progressObserver{Observer: o.Observer.WithFields(fields), bar: o.bar}
}

func (o *progressObserver) finish() {
	_ = o.bar.Finish()
}
