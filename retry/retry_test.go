/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffPolicyDeterministicSchedule(t *testing.T) {
	p := NewExponentialBackoffPolicyWithOpts(time.Second, 0, ExponentialBackoffOpts{
		Multiplier: 2,
		NoJitter:   true,
	})
	bf := p.NewBackOff()
	require.Equal(t, 1*time.Second, bf.NextBackOff())
	require.Equal(t, 2*time.Second, bf.NextBackOff())
	require.Equal(t, 4*time.Second, bf.NextBackOff())
	require.Equal(t, 8*time.Second, bf.NextBackOff())
}

func TestExponentialBackoffPolicyMaxInterval(t *testing.T) {
	p := NewExponentialBackoffPolicyWithOpts(time.Second, 0, ExponentialBackoffOpts{
		Multiplier:  2,
		NoJitter:    true,
		MaxInterval: 3 * time.Second,
	})
	bf := p.NewBackOff()
	require.Equal(t, 1*time.Second, bf.NextBackOff())
	require.Equal(t, 2*time.Second, bf.NextBackOff())
	require.Equal(t, 3*time.Second, bf.NextBackOff())
	require.Equal(t, 3*time.Second, bf.NextBackOff())
}

func TestExponentialBackoffPolicyMaxAttempts(t *testing.T) {
	p := NewExponentialBackoffPolicyWithOpts(10*time.Millisecond, 2, ExponentialBackoffOpts{NoJitter: true})
	bf := p.NewBackOff()
	require.NotEqual(t, backoff.Stop, bf.NextBackOff())
	require.NotEqual(t, backoff.Stop, bf.NextBackOff())
	require.Equal(t, backoff.Stop, bf.NextBackOff())
}

func TestExponentialBackoffPolicyDefaultJitter(t *testing.T) {
	p := NewExponentialBackoffPolicy(2*time.Second, 0)
	bf := p.NewBackOff()
	for i := 0; i < 5; i++ {
		d := bf.NextBackOff()
		require.NotEqual(t, backoff.Stop, d)
		require.GreaterOrEqual(t, d, time.Second)
	}
}

func TestConstantBackoffPolicy(t *testing.T) {
	p := NewConstantBackoffPolicy(50*time.Millisecond, 3)
	bf := p.NewBackOff()
	for i := 0; i < 3; i++ {
		require.Equal(t, 50*time.Millisecond, bf.NextBackOff())
	}
	require.Equal(t, backoff.Stop, bf.NextBackOff())
}

func TestPolicyFunc(t *testing.T) {
	var p Policy = PolicyFunc(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	})
	require.Equal(t, time.Millisecond, p.NewBackOff().NextBackOff())
}
