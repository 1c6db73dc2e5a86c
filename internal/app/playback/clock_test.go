package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClock_AfterFunc(t *testing.T) {
	clock := WallClock{Resolution: time.Millisecond}
	fired := make(chan struct{})

	timer := clock.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop(), "already fired")
}

func TestWallClock_Stop(t *testing.T) {
	clock := WallClock{Resolution: time.Millisecond}
	fired := make(chan struct{}, 1)

	timer := clock.AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, timer.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StatePlaying, "playing"},
		{StateAwaitingDisconnect, "awaiting_disconnect"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
