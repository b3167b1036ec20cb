package surb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/surb"
)

func TestEstimatorLevelAndDelta(t *testing.T) {
	var e surb.Estimator
	e.RecordProduced(5)
	e.RecordConsumed()
	require.Equal(t, int64(4), e.Level())

	delta, produced, consumed := e.Delta(0, 0)
	require.Equal(t, int64(4), delta)
	require.Equal(t, uint64(5), produced)
	require.Equal(t, uint64(1), consumed)
}

// With the estimated level (200) already above half the setpoint (100),
// WaitReady returns without error once the balancer is running.
func TestBalancerReadyWhenLevelAboveHalfSetpoint(t *testing.T) {
	var e surb.Estimator
	e.RecordProduced(200)

	cfg := surb.DefaultConfig()
	cfg.TargetSurbBufferSize = 100
	cfg.SamplingInterval = 10 * time.Millisecond
	cfg.MaxOutputPerSec = 1000

	ctrl := surb.NewPIDController(0.5, 0.05, 0.0, cfg)
	bal := surb.NewBalancer(&e, ctrl, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bal.Run(ctx)
	defer bal.Stop()

	require.NoError(t, bal.WaitReady(context.Background()))
}

func TestProportionalControllerGrowsSetpoint(t *testing.T) {
	cfg := surb.DefaultConfig()
	cfg.TargetSurbBufferSize = 10
	cfg.GrowThreshold = 1.2
	cfg.GrowWindow = 20 * time.Millisecond
	cfg.MaxOutputPerSec = 100

	ctrl := surb.NewProportionalController(cfg)
	first := ctrl.Tick(20, 10*time.Millisecond)
	require.Greater(t, first, 0.0)

	time.Sleep(30 * time.Millisecond)
	ctrl.Tick(20, 10*time.Millisecond)
	grown := ctrl.Tick(20, 10*time.Millisecond)
	require.LessOrEqual(t, grown, cfg.MaxOutputPerSec)
	// Level 15 is below the grown setpoint 20 but above the original 10, so
	// only a grown setpoint yields an output under the cap.
	require.Less(t, ctrl.Tick(15, 10*time.Millisecond), cfg.MaxOutputPerSec)
}

func TestBalancerReconfigureHotSwapsWithoutPanicking(t *testing.T) {
	var e surb.Estimator
	cfg := surb.DefaultConfig()
	ctrl := surb.NewPIDController(1, 0, 0, cfg)
	bal := surb.NewBalancer(&e, ctrl, cfg)

	cfg.TargetSurbBufferSize = 50
	bal.Reconfigure(cfg)
	require.Equal(t, cfg.MaxOutputPerSec, float64(bal.Limiter().Limit()))
}
