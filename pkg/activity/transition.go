package activity

// Event is something that happened to the session.
type Event interface {
	event()
}

// ChannelOpened: microphone acquired and the channel handshake completed.
type ChannelOpened struct{}

// ChannelClosed: the channel closed, locally or remotely.
type ChannelClosed struct{ Err error }

// AcquisitionFailed: a mission-critical device could not be acquired.
type AcquisitionFailed struct{ Err error }

// AudioScheduled: an inbound chunk was decoded and scheduled for playback.
type AudioScheduled struct{}

// PlaybackDrained: the last active chunk finished playing.
type PlaybackDrained struct{}

// Interrupted: the remote side reported barge-in.
type Interrupted struct{}

// RemoteCue: a control event from the channel suggesting a state,
// e.g. Listening on input transcription or Thinking on a tool call.
type RemoteCue struct{ State State }

// TurnEnded: the remote side finished its turn. Playing reports whether
// any chunk is still scheduled or sounding.
type TurnEnded struct{ Playing bool }

// ExcursionSource says who asked for a transient state.
type ExcursionSource int

const (
	// FromPersonality is a random idle tick. It only applies from Idle.
	FromPersonality ExcursionSource = iota
	// FromSession is the session itself (tool call, malformed audio).
	// It applies from any state but Off.
	FromSession
)

// Excursion: enter a transient state that reverts to Idle after its dwell.
type Excursion struct {
	State  State
	Source ExcursionSource
}

// DwellElapsed: a transient state's dwell ran out.
type DwellElapsed struct{ State State }

func (ChannelOpened) event()     {}
func (ChannelClosed) event()     {}
func (AcquisitionFailed) event() {}
func (AudioScheduled) event()    {}
func (PlaybackDrained) event()   {}
func (Interrupted) event()       {}
func (RemoteCue) event()         {}
func (TurnEnded) event()         {}
func (Excursion) event()         {}
func (DwellElapsed) event()      {}

// Transition returns the state after ev. The latest event always wins;
// nothing is queued or stacked. Events other than ChannelOpened leave Off
// untouched, so stragglers arriving after a close cannot revive the face.
func Transition(cur State, ev Event) State {
	switch e := ev.(type) {
	case ChannelOpened:
		return Idle

	case ChannelClosed, AcquisitionFailed:
		return Off

	case AudioScheduled:
		if cur == Off {
			return Off
		}
		return Speaking

	case PlaybackDrained:
		if cur == Speaking {
			return Idle
		}
		return cur

	case Interrupted:
		if cur == Off {
			return Off
		}
		return Idle

	case RemoteCue:
		if cur == Off || e.State == Off {
			return cur
		}
		return e.State

	case TurnEnded:
		// A cue state only lasts for its turn. Audio still playing keeps
		// the face speaking until the drain.
		if cur != Listening && cur != Thinking {
			return cur
		}
		if e.Playing {
			return Speaking
		}
		return Idle

	case Excursion:
		if cur == Off || !e.State.Transient() {
			return cur
		}
		if e.Source == FromPersonality && cur != Idle {
			return cur
		}
		return e.State

	case DwellElapsed:
		if cur == e.State && cur.Transient() {
			return Idle
		}
		return cur
	}
	return cur
}
