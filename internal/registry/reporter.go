package registry

import "fmt"

// Name implements reporter.Reporter.
func (s *Store) Name() string {
	return "Registry"
}

// Report implements reporter.Reporter. resetCounters has no effect - the store has no counters of
// its own to reset, only the current set of registered services to describe.
func (s *Store) Report(resetCounters bool) string {
	services := s.All()
	return fmt.Sprintf("services=%d", len(services))
}
