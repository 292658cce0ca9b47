package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateRunning, next)

	next, err = Transition(next, EventStop)
	require.NoError(t, err)
	require.Equal(t, StateStopping, next)

	next, err = Transition(next, EventHalted)
	require.NoError(t, err)
	require.Equal(t, StateStopped, next)

	next, err = Transition(next, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateRunning, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle stop invalid", state: StateIdle, event: EventStop, want: StateIdle, wantErr: true},
		{name: "idle halted invalid", state: StateIdle, event: EventHalted, want: StateIdle, wantErr: true},
		{name: "running start invalid", state: StateRunning, event: EventStart, want: StateRunning, wantErr: true},
		{name: "running halted invalid", state: StateRunning, event: EventHalted, want: StateRunning, wantErr: true},
		{name: "running reset invalid", state: StateRunning, event: EventReset, want: StateRunning, wantErr: true},
		{name: "stopping stop invalid", state: StateStopping, event: EventStop, want: StateStopping, wantErr: true},
		{name: "stopping start invalid", state: StateStopping, event: EventStart, want: StateStopping, wantErr: true},
		{name: "stopped stop invalid", state: StateStopped, event: EventStop, want: StateStopped, wantErr: true},
		{name: "stopped reset valid", state: StateStopped, event: EventReset, want: StateIdle},
		{name: "idle reset valid", state: StateIdle, event: EventReset, want: StateIdle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestStateActive(t *testing.T) {
	require.False(t, StateIdle.Active())
	require.True(t, StateRunning.Active())
	require.True(t, StateStopping.Active())
	require.False(t, StateStopped.Active())
}
