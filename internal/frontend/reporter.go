package frontend

import "fmt"

// Name implements reporter.Reporter.
func (d *Dispatcher) Name() string {
	return "Frontend: (on " + d.listener.Addr().String() + ")"
}

// Report implements reporter.Reporter.
func (d *Dispatcher) Report(resetCounters bool) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	errs := 0
	for _, v := range d.failureCounters {
		errs += v
	}

	s := fmt.Sprintf("routed=%d errs=%d (sni=%d unknown=%d dial=%d) concurrency=%d %s",
		d.routedCount, errs,
		d.failureCounters[ferSNIMissing], d.failureCounters[ferUnknownDomain], d.failureCounters[ferDialFailed],
		d.cct.Peak(resetCounters), d.conns.Report(resetCounters))

	if resetCounters {
		d.stats = stats{}
	}

	return s
}
