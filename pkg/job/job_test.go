package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	j := New("id-1", "monthly", "summary", map[string]any{"k": "v"}, "alice", 7, time.Minute)

	require.Equal(t, "id-1", j.ID)
	require.Equal(t, StatusQueued, j.Status)
	require.Equal(t, 7, j.Priority)
	require.Equal(t, 1, j.Attempt)
	require.False(t, j.CreatedAt.IsZero())
	require.False(t, j.QueuedAt.IsZero())
	require.True(t, j.StartedAt.IsZero())
	require.True(t, j.CompletedAt.IsZero())
	require.Zero(t, j.Progress)
}

func TestClampPriority(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero selects default", 0, DefaultPriority},
		{"below minimum", -3, MinPriority},
		{"above maximum", 42, MaxPriority},
		{"in range", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClampPriority(tt.in))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusFailed, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusQueued, false},
		{StatusPaused, StatusRunning, true},
		{StatusPaused, StatusCancelled, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusQueued, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusQueued, true},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusQueued, false},
		{StatusCancelled, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_IllegalLeavesStatusUnchanged(t *testing.T) {
	j := New("id-1", "n", "mock", nil, "", 0, 0)

	err := j.Transition(StatusCompleted)
	require.Error(t, err)
	require.True(t, IsInvalidTransition(err))
	require.Equal(t, StatusQueued, j.Status)
	require.True(t, j.CompletedAt.IsZero())
}

func TestTransition_Timestamps(t *testing.T) {
	j := New("id-1", "n", "mock", nil, "", 0, 0)

	require.NoError(t, j.Transition(StatusRunning))
	require.False(t, j.StartedAt.IsZero())
	started := j.StartedAt

	// Pause and resume must not reset started_at.
	require.NoError(t, j.Transition(StatusPaused))
	require.NoError(t, j.Transition(StatusRunning))
	require.Equal(t, started, j.StartedAt)

	require.NoError(t, j.Transition(StatusCompleted))
	require.False(t, j.CompletedAt.IsZero())
	require.True(t, j.CompletedAt.Equal(j.StartedAt) || j.CompletedAt.After(j.StartedAt))
	require.True(t, j.StartedAt.Equal(j.CreatedAt) || j.StartedAt.After(j.CreatedAt))
}

func TestStatusIsTerminal(t *testing.T) {
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusFailed.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
	require.False(t, StatusQueued.IsTerminal())
	require.False(t, StatusRunning.IsTerminal())
	require.False(t, StatusPaused.IsTerminal())
}

func TestSetProgress(t *testing.T) {
	j := New("id-1", "n", "mock", nil, "", 0, 0)

	j.SetProgress(40, "loading")
	require.Equal(t, 40, j.Progress)
	require.Equal(t, "loading", j.Step)

	// Backwards moves are ignored, step still updates.
	j.SetProgress(10, "still loading")
	require.Equal(t, 40, j.Progress)
	require.Equal(t, "still loading", j.Step)

	j.SetProgress(250, "")
	require.Equal(t, 100, j.Progress)
	require.Equal(t, "still loading", j.Step)

	j2 := New("id-2", "n", "mock", nil, "", 0, 0)
	j2.SetProgress(-5, "x")
	require.Zero(t, j2.Progress)
}

func TestSnapshot_Isolation(t *testing.T) {
	j := New("id-1", "n", "mock", map[string]any{"a": 1}, "", 0, 0)
	j.Files = []File{{Filename: "out.csv", Size: 10}}
	j.Err = &Error{Kind: KindInternal, Message: "boom"}

	snap := j.Snapshot()

	j.Args["a"] = 2
	j.Files[0].Filename = "changed.csv"
	j.Err.Message = "changed"

	require.Equal(t, 1, snap.Args["a"])
	require.Equal(t, "out.csv", snap.Files[0].Filename)
	require.Equal(t, "boom", snap.Err.Message)
}

func TestNewRetry(t *testing.T) {
	j := New("id-1", "n", "mock", map[string]any{"a": 1}, "alice", 3, time.Minute)
	require.NoError(t, j.Transition(StatusRunning))
	require.NoError(t, j.Transition(StatusFailed))
	j.Err = &Error{Kind: KindInternal, Message: "boom", Retryable: true}

	retry := j.NewRetry("id-2")

	require.Equal(t, "id-2", retry.ID)
	require.Equal(t, StatusQueued, retry.Status)
	require.Equal(t, 2, retry.Attempt)
	require.Nil(t, retry.Err)
	require.Equal(t, j.ReportID, retry.ReportID)

	// Original record keeps its failure detail.
	require.Equal(t, StatusFailed, j.Status)
	require.NotNil(t, j.Err)
}
