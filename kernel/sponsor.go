package kernel

import "fmt"

// ---------------------------------------------------------------------------
// Sponsor: resource-policy selection for a run
// ---------------------------------------------------------------------------

// Sponsor selects the resource policy a runtime boots with: whether
// turns are traced, whether a watchdog budget bounds each turn, and
// whether consumed events are reclaimed.
type Sponsor interface {
	Name() string

	// TraceEnabled reports whether the dispatcher logs each turn.
	TraceEnabled() bool

	// WatchdogBudget returns the per-turn instruction budget.
	// Zero means unlimited.
	WatchdogBudget() int

	// RetainEvents reports whether consumed events are kept on a
	// rooted chain instead of being released.
	RetainEvents() bool
}

// DefaultWatchdogBudget bounds a turn under the default sponsor.
const DefaultWatchdogBudget = 4096

// defaultSponsor is the full-service policy: tracing plus watchdog.
type defaultSponsor struct {
	budget int
	trace  bool
}

func (s *defaultSponsor) Name() string        { return "default" }
func (s *defaultSponsor) TraceEnabled() bool  { return s.trace }
func (s *defaultSponsor) WatchdogBudget() int { return s.budget }
func (s *defaultSponsor) RetainEvents() bool  { return false }

// DefaultSponsor returns the full-service policy. A non-positive
// budget falls back to DefaultWatchdogBudget.
func DefaultSponsor(budget int, trace bool) Sponsor {
	if budget <= 0 {
		budget = DefaultWatchdogBudget
	}
	return &defaultSponsor{budget: budget, trace: trace}
}

// fastSponsor is the reduced-overhead variant: no tracing, no watchdog.
type fastSponsor struct{}

func (fastSponsor) Name() string        { return "fast" }
func (fastSponsor) TraceEnabled() bool  { return false }
func (fastSponsor) WatchdogBudget() int { return 0 }
func (fastSponsor) RetainEvents() bool  { return false }

// FastSponsor returns the reduced-overhead policy.
func FastSponsor() Sponsor {
	return fastSponsor{}
}

// debugSponsor never reclaims consumed events: they stay on a rooted
// chain so a post-mortem can walk every delivery in order.
type debugSponsor struct {
	budget int
}

func (s *debugSponsor) Name() string        { return "debug" }
func (s *debugSponsor) TraceEnabled() bool  { return true }
func (s *debugSponsor) WatchdogBudget() int { return s.budget }
func (s *debugSponsor) RetainEvents() bool  { return true }

// DebugSponsor returns the debug policy.
func DebugSponsor(budget int) Sponsor {
	if budget <= 0 {
		budget = DefaultWatchdogBudget
	}
	return &debugSponsor{budget: budget}
}

// SponsorByName resolves a policy name from configuration.
func SponsorByName(name string, budget int, trace bool) (Sponsor, error) {
	switch name {
	case "", "default":
		return DefaultSponsor(budget, trace), nil
	case "fast":
		return FastSponsor(), nil
	case "debug":
		return DebugSponsor(budget), nil
	default:
		return nil, fmt.Errorf("unknown sponsor policy %q", name)
	}
}
