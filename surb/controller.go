package surb

import (
	"sync"
	"time"
)

// Controller converts an observed SURB inventory level into an output rate
// and supports hot reconfiguration without discarding its internal state.
type Controller interface {
	Tick(level int64, dt time.Duration) float64
	Reconfigure(cfg Config)
}

// PIDController is the initiator-side variant: input is the current
// estimated SURB inventory at the peer, setpoint is TargetSurbBufferSize,
// output is a keep-alive send rate capped by MaxOutputPerSec.
type PIDController struct {
	mu sync.Mutex
	kp, ki, kd float64
	cfg        Config

	integral  float64
	prevError float64
	havePrev  bool
}

// NewPIDController constructs a PID controller with the given gains.
func NewPIDController(kp, ki, kd float64, cfg Config) *PIDController {
	return &PIDController{kp: kp, ki: ki, kd: kd, cfg: cfg}
}

// Reconfigure atomically replaces the setpoint, rate cap, and decay
// parameters, preserving the integrator and derivative state.
func (c *PIDController) Reconfigure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Tick advances the controller by one sampling interval and returns the
// clamped output rate.
func (c *PIDController) Tick(level int64, dt time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	decay := c.cfg.DecayFraction * float64(c.cfg.TargetSurbBufferSize)
	observed := float64(level) - decay
	setpoint := float64(c.cfg.TargetSurbBufferSize)
	err := setpoint - observed

	seconds := dt.Seconds()
	c.integral += err * seconds
	derivative := 0.0
	if c.havePrev && seconds > 0 {
		derivative = (err - c.prevError) / seconds
	}
	c.prevError = err
	c.havePrev = true

	out := c.kp*err + c.ki*c.integral + c.kd*derivative
	return clamp(out, 0, c.cfg.MaxOutputPerSec)
}

// ProportionalController is the responder-side variant: input is the ratio
// of estimated inventory to setpoint, output is a packet-per-second egress
// rate limit. The setpoint grows when the ratio sustains above GrowThreshold
// for GrowWindow.
type ProportionalController struct {
	mu         sync.Mutex
	cfg        Config
	setpoint   float64
	aboveSince time.Time
	above      bool
	now        func() time.Time
}

// NewProportionalController constructs a proportional controller seeded
// with cfg's initial setpoint.
func NewProportionalController(cfg Config) *ProportionalController {
	return &ProportionalController{cfg: cfg, setpoint: float64(cfg.TargetSurbBufferSize), now: time.Now}
}

// Reconfigure atomically replaces the controller's configuration. The
// current (possibly grown) setpoint is preserved unless the new
// TargetSurbBufferSize is itself larger.
func (c *ProportionalController) Reconfigure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if float64(cfg.TargetSurbBufferSize) > c.setpoint {
		c.setpoint = float64(cfg.TargetSurbBufferSize)
	}
	c.above = false
}

// Tick advances the controller by one sampling interval and returns the
// clamped output rate.
func (c *ProportionalController) Tick(level int64, dt time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.setpoint <= 0 {
		c.setpoint = 1
	}
	ratio := float64(level) / c.setpoint

	now := c.now()
	if ratio > c.cfg.GrowThreshold {
		if !c.above {
			c.above = true
			c.aboveSince = now
		} else if now.Sub(c.aboveSince) >= c.cfg.GrowWindow {
			c.setpoint = float64(level)
			c.above = false
		}
	} else {
		c.above = false
	}

	return clamp(ratio*c.cfg.MaxOutputPerSec, 0, c.cfg.MaxOutputPerSec)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
