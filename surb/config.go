package surb

import "time"

// Config is the tunables a running Balancer can be hot-reconfigured with,
// as one unit, without losing integrator state.
type Config struct {
	// TargetSurbBufferSize is the controller setpoint.
	TargetSurbBufferSize uint32
	// MaxOutputPerSec caps the controller's output rate: keep-alive SURBs/sec
	// for the PID (initiator) controller, or egress packets/sec for the
	// proportional (responder) controller.
	MaxOutputPerSec float64
	// SamplingInterval is how often the balancer ticks. Default 100ms.
	SamplingInterval time.Duration
	// DecayFraction debits the controller's view of the estimate by this
	// fraction of the setpoint every interval, to account for loss. The
	// optimal value is workload-dependent; this implementation defaults to
	// 0 (no decay).
	DecayFraction float64
	// GrowThreshold and GrowWindow parameterize the proportional
	// controller's setpoint growth: if the observed ratio stays above
	// GrowThreshold for GrowWindow continuously, the setpoint is raised to
	// the observed level.
	GrowThreshold float64
	GrowWindow    time.Duration
}

// DefaultConfig returns reasonable defaults for every tunable.
func DefaultConfig() Config {
	return Config{
		TargetSurbBufferSize: 100,
		MaxOutputPerSec:      50,
		SamplingInterval:     100 * time.Millisecond,
		DecayFraction:        0,
		GrowThreshold:        1.5,
		GrowWindow:           2 * time.Second,
	}
}
