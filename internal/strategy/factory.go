package strategy

import "time"

// Names of the strategies the factory recognizes.
const (
	NameRoundRobin         = "round_robin"
	NameLeastConnections   = "least_connections"
	NameHealthScore        = "health_score"
	NameWeightedRoundRobin = "weighted_round_robin"
	NameResponseTime       = "response_time"
	NameAURA               = "aura"
	NameHELIOS             = "helios"

	// NameAURAWire and NameHELIOSWire are the original's wire-format
	// config strings for AURA/HELIOS (original_source's
	// load_balancer.py checks strategy_name == 'alpha1'/'beta1'
	// directly); accepted as aliases so a config built per spec.md's
	// documented enum doesn't silently fall back to round_robin.
	NameAURAWire   = "alpha1"
	NameHELIOSWire = "beta1"
)

// New constructs a fresh Selector by name. An unrecognized name falls
// back to round_robin rather than erroring, matching the original
// behaviour of silently defaulting to a safe strategy.
func New(name string) Selector {
	switch name {
	case NameLeastConnections:
		return NewLeastConnections()
	case NameHealthScore:
		return NewHealthScore()
	case NameWeightedRoundRobin:
		return NewWeightedRoundRobin()
	case NameResponseTime:
		return NewResponseTime()
	case NameAURA, NameAURAWire:
		return NewAURA(100, time.Now())
	case NameHELIOS, NameHELIOSWire:
		return NewHELIOS(1.25, 60*time.Second)
	case NameRoundRobin:
		return NewRoundRobin()
	default:
		return NewRoundRobin()
	}
}
