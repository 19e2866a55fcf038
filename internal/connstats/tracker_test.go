package connstats

import (
	"strings"
	"testing"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker("front")

	tr.State("a", New)
	tr.State("b", New)
	tr.State("a", Active)
	tr.State("a", Closed)

	report := tr.Report(false)
	if !strings.Contains(report, "curr=1") {
		t.Errorf("Report() = %q, want curr=1 (b still open)", report)
	}
	if !strings.Contains(report, "pk=2") {
		t.Errorf("Report() = %q, want pk=2", report)
	}

	tr.State("b", Closed)
	report = tr.Report(false)
	if !strings.Contains(report, "curr=0") {
		t.Errorf("Report() = %q, want curr=0", report)
	}
}

func TestTrackerName(t *testing.T) {
	tr := NewTracker("front")
	if tr.Name() != "front" {
		t.Errorf("Name() = %q, want front", tr.Name())
	}
}

func TestTrackerUnknownKeyDoesNotPanic(t *testing.T) {
	tr := NewTracker("front")
	tr.State("ghost", Active)
	tr.State("ghost", Closed)

	report := tr.Report(false)
	if !strings.Contains(report, "errs=2") {
		t.Errorf("Report() = %q, want errs=2 for two unknown-key transitions", report)
	}
}

func TestTrackerReportReset(t *testing.T) {
	tr := NewTracker("front")
	tr.State("a", New)
	tr.State("a", Closed)

	tr.Report(true)
	report := tr.Report(false)
	if !strings.Contains(report, "connFor=0.0s") {
		t.Errorf("Report() after reset = %q, want connFor=0.0s", report)
	}
}
