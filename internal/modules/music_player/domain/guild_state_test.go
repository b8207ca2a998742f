package domain

import (
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

const (
	userOne snowflake.ID = 1
	userTwo snowflake.ID = 2
)

func TestGuildState_EnqueueIntoIdleQueue(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))

	result, err := state.Enqueue(trackFor("A", userOne), DefaultQueueLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Position != 1 {
		t.Errorf("expected position 1, got %d", result.Position)
	}
	if result.RequesterCount != 1 {
		t.Errorf("expected requester count 1, got %d", result.RequesterCount)
	}
	if state.IsPlaying() {
		t.Error("expected enqueue not to start playback")
	}

	outcome := state.Advance()
	if outcome.QueueEmpty {
		t.Fatal("expected PlayTrack outcome")
	}
	if outcome.Track.Title != "A" {
		t.Errorf("expected to play %q, got %q", "A", outcome.Track.Title)
	}
	if !state.IsPlaying() {
		t.Error("expected state to be Playing")
	}
	if np := state.NowPlaying(); np == nil || np.Title != "A" {
		t.Errorf("expected now playing %q, got %v", "A", np)
	}
}

func TestGuildState_EnqueueQueueFull(t *testing.T) {
	limits := QueueLimits{MaxQueueSize: 3, MaxUserSongs: 10}
	state := NewGuildState(snowflake.ID(100))

	for i := range 3 {
		if _, err := state.Enqueue(trackFor("t", snowflake.ID(i+10)), limits); err != nil {
			t.Fatalf("unexpected error on enqueue %d: %v", i, err)
		}
	}

	_, err := state.Enqueue(trackFor("overflow", userOne), limits)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if state.PendingLen() != 3 {
		t.Errorf("expected length to stay 3, got %d", state.PendingLen())
	}
}

func TestGuildState_EnqueueUserQuotaExceeded(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	limits := DefaultQueueLimits()

	for range 3 {
		if _, err := state.Enqueue(trackFor("mine", userOne), limits); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	_, err := state.Enqueue(trackFor("fourth", userOne), limits)
	if !errors.Is(err, ErrUserQuotaExceeded) {
		t.Fatalf("expected ErrUserQuotaExceeded, got %v", err)
	}
	if state.PendingLen() != 3 {
		t.Errorf("expected length to stay 3, got %d", state.PendingLen())
	}

	// Other requesters are unaffected.
	result, err := state.Enqueue(trackFor("theirs", userTwo), limits)
	if err != nil {
		t.Fatalf("unexpected error for other requester: %v", err)
	}
	if result.Position != 4 {
		t.Errorf("expected position 4, got %d", result.Position)
	}
}

func TestGuildState_QuotaFreesUpAfterPlayback(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	limits := DefaultQueueLimits()

	for range 3 {
		_, _ = state.Enqueue(trackFor("mine", userOne), limits)
	}
	state.Advance()

	if _, err := state.Enqueue(trackFor("again", userOne), limits); err != nil {
		t.Errorf("expected enqueue to succeed once a track left the queue, got %v", err)
	}
}

func TestGuildState_LimitsHoldAfterAnySequence(t *testing.T) {
	limits := QueueLimits{MaxQueueSize: 5, MaxUserSongs: 2}
	state := NewGuildState(snowflake.ID(100))

	requesters := []snowflake.ID{1, 2, 1, 3, 1, 2, 2, 4, 3, 5, 1, 6}
	for i, requester := range requesters {
		_, err := state.Enqueue(trackFor("t", requester), limits)

		if state.PendingLen() > limits.MaxQueueSize {
			t.Fatalf("step %d: queue length %d exceeds max %d", i, state.PendingLen(), limits.MaxQueueSize)
		}
		if err == nil {
			for _, r := range requesters {
				if n := state.pending.CountByRequester(r); n > limits.MaxUserSongs {
					t.Fatalf("step %d: requester %d has %d songs", i, r, n)
				}
			}
		}
		if i%4 == 3 {
			state.Advance()
		}
	}
}

func TestGuildState_AdvanceEmptyIsIdempotent(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	state.MarkPlaying()

	for i := range 3 {
		outcome := state.Advance()
		if !outcome.QueueEmpty {
			t.Fatalf("call %d: expected QueueEmpty", i)
		}
		if state.IsPlaying() {
			t.Fatalf("call %d: expected Idle", i)
		}
		if state.NowPlaying() != nil {
			t.Fatalf("call %d: expected no now-playing track", i)
		}
	}
}

func TestGuildState_AdvancePreservesEnqueueOrder(t *testing.T) {
	limits := QueueLimits{MaxQueueSize: 100, MaxUserSongs: 100}
	state := NewGuildState(snowflake.ID(100))

	want := []string{"one", "two", "three", "four", "five"}
	for _, title := range want {
		if _, err := state.Enqueue(trackFor(title, userOne), limits); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var got []string
	for range want {
		outcome := state.Advance()
		if outcome.QueueEmpty {
			t.Fatal("unexpected QueueEmpty")
		}
		got = append(got, outcome.Track.Title)
	}

	if !equalStrings(got, want) {
		t.Errorf("expected play order %v, got %v", want, got)
	}
	if outcome := state.Advance(); !outcome.QueueEmpty {
		t.Error("expected QueueEmpty after draining the queue")
	}
}

func TestGuildState_AdvanceIncrementsSession(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	limits := DefaultQueueLimits()
	_, _ = state.Enqueue(trackFor("a", userOne), limits)
	_, _ = state.Enqueue(trackFor("b", userTwo), limits)

	first := state.Advance()
	second := state.Advance()

	if first.SessionID == second.SessionID {
		t.Error("expected each played track to get a new session")
	}
	if state.SessionID() != second.SessionID {
		t.Errorf("expected current session %d, got %d", second.SessionID, state.SessionID())
	}
}

func TestGuildState_RemoveAt(t *testing.T) {
	limits := QueueLimits{MaxQueueSize: 10, MaxUserSongs: 10}

	tests := []struct {
		name      string
		position  int
		wantErr   error
		wantTitle string
		remaining []string
	}{
		{"head shifts the rest", 1, nil, "a", []string{"b", "c"}},
		{"tail keeps order", 3, nil, "c", []string{"a", "b"}},
		{"zero", 0, ErrInvalidPosition, "", []string{"a", "b", "c"}},
		{"past end", 5, ErrInvalidPosition, "", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewGuildState(snowflake.ID(100))
			for _, title := range []string{"a", "b", "c"} {
				_, _ = state.Enqueue(trackFor(title, userOne), limits)
			}

			removed, err := state.RemoveAt(tt.position)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if removed.Title != tt.wantTitle {
				t.Errorf("expected removed %q, got %q", tt.wantTitle, removed.Title)
			}
			if got := titles(state.Pending()); !equalStrings(got, tt.remaining) {
				t.Errorf("expected remaining %v, got %v", tt.remaining, got)
			}
		})
	}
}

func TestGuildState_RemoveAtEmpty(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))

	if _, err := state.RemoveAt(1); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestGuildState_RemoveAtDoesNotTouchNowPlaying(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	limits := DefaultQueueLimits()
	_, _ = state.Enqueue(trackFor("playing", userOne), limits)
	_, _ = state.Enqueue(trackFor("pending", userTwo), limits)
	state.Advance()

	if _, err := state.RemoveAt(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if np := state.NowPlaying(); np == nil || np.Title != "playing" {
		t.Errorf("expected now playing to be unchanged, got %v", np)
	}
}

func TestGuildState_StartFailureCounter(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))

	if n := state.RecordStartFailure(); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if n := state.RecordStartFailure(); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
	state.ResetStartFailures()
	if n := state.RecordStartFailure(); n != 1 {
		t.Errorf("expected counter to restart at 1, got %d", n)
	}
}

func TestGuildState_Stop(t *testing.T) {
	state := NewGuildState(snowflake.ID(100))
	limits := DefaultQueueLimits()
	_, _ = state.Enqueue(trackFor("a", userOne), limits)
	_, _ = state.Enqueue(trackFor("b", userTwo), limits)
	outcome := state.Advance()

	if dropped := state.Stop(); dropped != 1 {
		t.Errorf("expected 1 dropped track, got %d", dropped)
	}
	if state.IsPlaying() || state.NowPlaying() != nil {
		t.Error("expected Idle after Stop")
	}
	if state.SessionID() == outcome.SessionID {
		t.Error("expected Stop to invalidate the playing session")
	}
}
