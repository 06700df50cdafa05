package activity

import (
	"errors"
	"testing"
	"time"
)

var allStates = []State{Off, Idle, Listening, Thinking, Speaking, Singing, Happy, Sneezing, Distorted}

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		cur  State
		ev   Event
		want State
	}{
		{"open from off", Off, ChannelOpened{}, Idle},
		{"audio from idle", Idle, AudioScheduled{}, Speaking},
		{"audio from listening", Listening, AudioScheduled{}, Speaking},
		{"audio from happy", Happy, AudioScheduled{}, Speaking},
		{"audio while off", Off, AudioScheduled{}, Off},
		{"drained from speaking", Speaking, PlaybackDrained{}, Idle},
		{"drained from listening", Listening, PlaybackDrained{}, Listening},
		{"drained while off", Off, PlaybackDrained{}, Off},
		{"interrupt from speaking", Speaking, Interrupted{}, Idle},
		{"interrupt from thinking", Thinking, Interrupted{}, Idle},
		{"interrupt while off", Off, Interrupted{}, Off},
		{"listening cue", Idle, RemoteCue{State: Listening}, Listening},
		{"thinking cue over speaking", Speaking, RemoteCue{State: Thinking}, Thinking},
		{"cue while off", Off, RemoteCue{State: Listening}, Off},
		{"off cue ignored", Idle, RemoteCue{State: Off}, Idle},
		{"turn ends while thinking", Thinking, TurnEnded{}, Idle},
		{"turn ends while listening", Listening, TurnEnded{}, Idle},
		{"turn ends over playing audio", Listening, TurnEnded{Playing: true}, Speaking},
		{"turn ends while speaking", Speaking, TurnEnded{Playing: true}, Speaking},
		{"turn ends during excursion", Happy, TurnEnded{}, Happy},
		{"turn ends while off", Off, TurnEnded{}, Off},
		{"personality from idle", Idle, Excursion{State: Sneezing, Source: FromPersonality}, Sneezing},
		{"personality while speaking", Speaking, Excursion{State: Happy, Source: FromPersonality}, Speaking},
		{"personality while off", Off, Excursion{State: Singing, Source: FromPersonality}, Off},
		{"session excursion while speaking", Speaking, Excursion{State: Distorted, Source: FromSession}, Distorted},
		{"session excursion while off", Off, Excursion{State: Happy, Source: FromSession}, Off},
		{"non-transient excursion", Idle, Excursion{State: Speaking, Source: FromSession}, Idle},
		{"dwell reverts", Sneezing, DwellElapsed{State: Sneezing}, Idle},
		{"stale dwell", Speaking, DwellElapsed{State: Happy}, Speaking},
		{"dwell on non-transient", Speaking, DwellElapsed{State: Speaking}, Speaking},
		{"acquisition failure", Idle, AcquisitionFailed{Err: errors.New("denied")}, Off},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transition(tt.cur, tt.ev); got != tt.want {
				t.Errorf("Transition(%v, %T) = %v, want %v", tt.cur, tt.ev, got, tt.want)
			}
		})
	}
}

func TestTransition_CloseAlwaysOff(t *testing.T) {
	for _, s := range allStates {
		if got := Transition(s, ChannelClosed{}); got != Off {
			t.Errorf("Transition(%v, ChannelClosed) = %v, want OFF", s, got)
		}
	}
}

func TestTransition_OffOnlyLeftByOpen(t *testing.T) {
	events := []Event{
		AudioScheduled{}, PlaybackDrained{}, Interrupted{},
		RemoteCue{State: Thinking}, Excursion{State: Happy, Source: FromSession},
		DwellElapsed{State: Happy}, ChannelClosed{},
	}
	for _, ev := range events {
		if got := Transition(Off, ev); got != Off {
			t.Errorf("Transition(OFF, %T) = %v, want OFF", ev, got)
		}
	}
}

func TestDwell(t *testing.T) {
	tests := []struct {
		s    State
		want time.Duration
	}{
		{Sneezing, 800 * time.Millisecond},
		{Singing, 3 * time.Second},
		{Happy, 2 * time.Second},
		{Distorted, 600 * time.Millisecond},
		{Idle, 0},
		{Speaking, 0},
	}
	for _, tt := range tests {
		if got := Dwell(tt.s); got != tt.want {
			t.Errorf("Dwell(%v) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestStateText(t *testing.T) {
	for _, s := range allStates {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back State
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", b, err)
		}
		if back != s {
			t.Errorf("text round trip %v -> %q -> %v", s, b, back)
		}
	}
	if _, err := ParseState("sleepy"); err == nil {
		t.Error("expected error for unknown state")
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}
