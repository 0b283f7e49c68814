package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, ModeExponential, p.Mode)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 5, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestNewPolicyOverrides(t *testing.T) {
	p, err := NewPolicy(ModeFixed, 5*time.Second, 2*time.Second, 7)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.Initial, "initial is clamped to max")
	assert.Equal(t, ModeFixed, p.Mode)
	assert.Equal(t, 7, p.MaxRetries)

	p, err = NewPolicy("", 0, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	_, err = NewPolicy("weird", 0, 0, 1)
	assert.Error(t, err)
}

func TestDelayModes(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		want []time.Duration
	}{
		{"fixed", ModeFixed, []time.Duration{100, 100, 100, 100}},
		{"linear", ModeLinear, []time.Duration{100, 200, 250, 250}},
		{"exponential", ModeExponential, []time.Duration{100, 200, 250, 250}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.mode, 100*time.Millisecond, 250*time.Millisecond, 4)
			require.NoError(t, err)
			for i, want := range tt.want {
				assert.Equal(t, want*time.Millisecond, p.Delay(i+1), "retry %d", i+1)
			}
			assert.Zero(t, p.Delay(0))
			assert.Zero(t, p.Delay(-1))
		})
	}

	exp := Policy{Mode: ModeExponential, Initial: time.Second, Max: time.Hour}
	assert.Equal(t, time.Hour, exp.Delay(64), "large retries do not overflow")
}

func TestJitteredStaysInBounds(t *testing.T) {
	p := Policy{Mode: ModeFixed, Initial: time.Second, Max: 10 * time.Second, Jitter: 0.25}
	for i := 0; i < 200; i++ {
		d := p.Jittered(1)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}

	p.Initial = p.Max
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, p.Jittered(1), p.Max)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	p := Policy{Mode: ModeFixed, Initial: time.Minute, Max: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)

	p = Policy{Mode: ModeFixed, Initial: time.Millisecond, Max: time.Millisecond}
	assert.NoError(t, p.Wait(context.Background(), 1))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"zero initial", Policy{Initial: 0, Max: time.Second}, true},
		{"zero max", Policy{Initial: time.Second, Max: 0}, true},
		{"negative retries", Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}, true},
		{"jitter too large", Policy{Initial: time.Second, Max: time.Second, Jitter: 1}, true},
		{"no retries", Policy{Initial: time.Second, Max: 2 * time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
