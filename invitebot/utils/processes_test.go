package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessManager_Shutdown(t *testing.T) {
	pm := NewProcessManager()
	stopped := make(chan string, 2)
	for _, name := range []string{"sequencer-2", "sequencer-1"} {
		pm.Start(name, func(ctx context.Context) {
			<-ctx.Done()
			stopped <- name
		})
	}
	assert.Equal(t, []string{"sequencer-1", "sequencer-2"}, pm.Names())

	require.NoError(t, pm.Shutdown(time.Second))
	assert.Len(t, stopped, 2)
}

func TestProcessManager_ReplaceAndStop(t *testing.T) {
	pm := NewProcessManager()
	first := make(chan struct{})
	pm.Start("sequencer", func(ctx context.Context) {
		<-ctx.Done()
		close(first)
	})
	pm.Start("sequencer", func(ctx context.Context) {
		<-ctx.Done()
	})

	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("replaced process was not cancelled")
	}
	assert.Equal(t, 1, pm.Count())
	assert.True(t, pm.Running("sequencer"))

	pm.Stop("sequencer")
	assert.Zero(t, pm.Count())
	require.NoError(t, pm.Shutdown(time.Second))
}

func TestProcessManager_RecoversPanics(t *testing.T) {
	pm := NewProcessManager()
	pm.Start("broken", func(context.Context) {
		panic("boom")
	})
	require.NoError(t, pm.Shutdown(time.Second))
}
