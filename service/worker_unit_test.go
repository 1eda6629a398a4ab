/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

func requireNoFatalError(t *testing.T, fatalErr chan error) {
	t.Helper()
	close(fatalErr)
	require.NoError(t, <-fatalErr)
}

func TestWorkerUnit_StartStop(t *testing.T) {
	t.Run("non-graceful stop does not wait for the worker", func(t *testing.T) {
		var ticks atomic.Int32
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				time.Sleep(time.Second)
				ticks.Store(100)
				return nil
			default:
			}
			ticks.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger())

		unit := NewWorkerUnit(periodicWorker)
		fatalErr := make(chan error)
		go unit.Start(fatalErr)

		time.Sleep(time.Millisecond * 450)
		require.NoError(t, unit.Stop(false))
		require.GreaterOrEqual(t, int(ticks.Load()), 4)
		require.LessOrEqual(t, int(ticks.Load()), 6)
		requireNoFatalError(t, fatalErr)
	})

	t.Run("graceful stop gives up after the timeout", func(t *testing.T) {
		slowWorker := WorkerFunc(func(ctx context.Context) error {
			time.Sleep(time.Second * 3) // Emulate a long blocking operation.
			return nil
		})
		unit := NewWorkerUnitWithOpts(slowWorker, WorkerUnitOpts{GracefulStopTimeout: time.Millisecond * 500})
		fatalErr := make(chan error)
		go unit.Start(fatalErr)

		time.Sleep(time.Millisecond * 100)
		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
		requireNoFatalError(t, fatalErr)
	})

	t.Run("graceful stop without timeout waits for the worker", func(t *testing.T) {
		var done atomic.Bool
		slowWorker := WorkerFunc(func(ctx context.Context) error {
			time.Sleep(time.Millisecond * 250)
			done.Store(true)
			return nil
		})
		unit := NewWorkerUnit(slowWorker)
		fatalErr := make(chan error)
		go unit.Start(fatalErr)

		time.Sleep(time.Millisecond * 100)
		require.NoError(t, unit.Stop(true))
		require.True(t, done.Load())
		requireNoFatalError(t, fatalErr)
	})
}
