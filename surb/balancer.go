package surb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Balancer is the periodic control loop: each sampling interval it reads
// the estimator's level, drives controller toward the configured setpoint,
// and republishes the resulting rate limit.
type Balancer struct {
	estimator  *Estimator
	controller Controller

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	levelCh chan int64
	cancel  context.CancelFunc
	done    chan struct{}

	lastProduced, lastConsumed atomic.Uint64
}

// NewBalancer constructs a balancer over estimator driven by controller,
// initially configured with cfg.
func NewBalancer(estimator *Estimator, controller Controller, cfg Config) *Balancer {
	controller.Reconfigure(cfg)
	return &Balancer{
		estimator:  estimator,
		controller: controller,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.MaxOutputPerSec), max(1, int(cfg.MaxOutputPerSec))),
		levelCh:    make(chan int64, 8),
	}
}

// Reconfigure hot-swaps the setpoint, rate cap, and decay parameters
// without losing integrator state.
func (b *Balancer) Reconfigure(cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	b.controller.Reconfigure(cfg)
	b.limiter.SetLimit(rate.Limit(cfg.MaxOutputPerSec))
	b.limiter.SetBurst(max(1, int(cfg.MaxOutputPerSec)))
}

// Limiter returns the rate limiter currently gating egress, reflecting the
// controller's latest output.
func (b *Balancer) Limiter() *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter
}

// Levels returns the channel the balancer publishes its estimated level to
// on every tick, for readiness gating.
func (b *Balancer) Levels() <-chan int64 { return b.levelCh }

// Run starts the periodic tick loop; it returns once ctx is canceled or Stop
// is called.
func (b *Balancer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		b.loop(ctx)
	}()
}

func (b *Balancer) loop(ctx context.Context) {
	b.mu.Lock()
	interval := b.cfg.SamplingInterval
	b.mu.Unlock()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Balancer) tick() {
	level := b.estimator.Level()

	b.mu.Lock()
	interval := b.cfg.SamplingInterval
	out := b.controller.Tick(level, interval)
	b.limiter.SetLimit(rate.Limit(out))
	b.mu.Unlock()

	select {
	case b.levelCh <- level:
	default:
	}
}

// Stop halts the tick loop and waits for it to exit.
func (b *Balancer) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
	}
}

// WaitReady blocks until the estimated level reaches at least half the
// configured setpoint, or a hard 10s timeout elapses.
func (b *Balancer) WaitReady(ctx context.Context) error {
	b.mu.Lock()
	target := int64(b.cfg.TargetSurbBufferSize) / 2
	b.mu.Unlock()

	if b.estimator.Level() >= target {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for {
		select {
		case level := <-b.levelCh:
			if level >= target {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("surb: balancer did not reach readiness within %s: %w", 10*time.Second, ctx.Err())
		}
	}
}
