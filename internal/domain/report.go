package domain

// DefaultLookbackDays is used when a report config leaves the window unset.
const DefaultLookbackDays = 30

// ReportInjectionConfig attaches a generated report to notifications with a matching subject.
type ReportInjectionConfig struct {
	Subject      string
	ReportType   string
	LookbackDays *int
	ScopeID      *string
	Active       bool
}

// Lookback returns the configured window, falling back to DefaultLookbackDays.
func (c *ReportInjectionConfig) Lookback() int {
	if c == nil || c.LookbackDays == nil || *c.LookbackDays <= 0 {
		return DefaultLookbackDays
	}
	return *c.LookbackDays
}
