// Package notify reports sync run results by email.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/warehouse"
)

// FormResult is the outcome of syncing one form.
type FormResult struct {
	Form     string
	Err      error
	Fetched  int
	Dropped  int
	Outcome  *warehouse.Outcome
	Duration time.Duration
}

// RunSummary aggregates the results of one sync run.
type RunSummary struct {
	StartedAt time.Time
	Duration  time.Duration
	Window    string
	Results   []FormResult
}

// Failed reports whether any form in the run failed.
func (s *RunSummary) Failed() bool {
	for _, r := range s.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Subject builds the email subject line for this run.
func (s *RunSummary) Subject() string {
	if s.Failed() {
		return "zukosync: sync run completed with errors"
	}
	return "zukosync: sync run completed"
}

// Body renders a plain-text report, one line per form.
func (s *RunSummary) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync run started %s, took %s, window %s\n\n",
		s.StartedAt.UTC().Format(time.RFC3339), s.Duration.Round(time.Second), s.Window)

	for _, r := range s.Results {
		if r.Err != nil {
			fmt.Fprintf(&b, "[%s] FAILED (%s): %v\n", r.Form, errors.TypeOf(r.Err), r.Err)
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: fetched %d, inserted %d, skipped %d",
			r.Form, r.Outcome.Action, r.Fetched, r.Outcome.RowsInserted, r.Outcome.RowsSkipped)
		if r.Dropped > 0 {
			fmt.Fprintf(&b, ", dropped %d", r.Dropped)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Notifier delivers a run summary somewhere a human will see it.
type Notifier interface {
	Notify(summary *RunSummary) error
}

// Nop is a Notifier that discards summaries, used when notifications are
// disabled.
type Nop struct{}

func (Nop) Notify(*RunSummary) error { return nil }
