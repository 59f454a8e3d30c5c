package game

import (
	"time"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Step phase of a channel's game
type Step string

const (
	StepNewGame  Step = "new_game" // never started by an admin
	StepWaiting  Step = "waiting"  // old winner owes the winner a new 'rade
	StepProvided Step = "provided" // winner holds the 'rade, round not yet open
	StepGuessing Step = "guessing" // round open for guesses
)

// Valid reports a known step.
func (s Step) Valid() bool {
	switch s {
	case StepNewGame, StepWaiting, StepProvided, StepGuessing:
		return true
	}
	return false
}

// ParseStep converts a persisted step. Unknown values are a persistence
// failure, never a silent default.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.Valid() {
		return "", apperrors.Newf(apperrors.ErrUnknownStep, "step %q", s)
	}
	return step, nil
}

// ChannelState game state of one channel
type ChannelState struct {
	Step      Step     `json:"step"`
	Winner    string   `json:"winner"`
	OldWinner string   `json:"old_winner"`
	Emojirade []string `json:"emojirade"`
}

// NewChannelState returns the state of a channel never seen before.
func NewChannelState() ChannelState {
	return ChannelState{Step: StepNewGame, Emojirade: []string{}}
}

// Clone deep copies the state.
func (s ChannelState) Clone() ChannelState {
	c := s
	c.Emojirade = append([]string{}, s.Emojirade...)
	return c
}

// Trigger event driving a transition
type Trigger string

const (
	TriggerStart   Trigger = "start"   // admin starts or restarts a game
	TriggerProvide Trigger = "provide" // old winner submits the 'rade
	TriggerBegin   Trigger = "begin"   // winner posts the emoji clue
	TriggerGuess   Trigger = "guess"   // a player guesses correctly
	TriggerAward   Trigger = "award"   // winner manually awards the round
)

// Inference a command implied purely by channel state
type Inference int

const (
	// InferBegin an emoji-only message from the winner while provided.
	InferBegin Inference = iota + 1
	// InferGuess any player message while guessing.
	InferGuess
)

func (i Inference) String() string {
	switch i {
	case InferBegin:
		return "begin"
	case InferGuess:
		return "guess"
	default:
		return "unknown"
	}
}

// Operation ledger operation
type Operation string

const (
	OpIncrement Operation = "++"
	OpDecrement Operation = "--"
)

// Valid reports a known operation.
func (o Operation) Valid() bool {
	return o == OpIncrement || o == OpDecrement
}

// ScoreEvent one ledger entry
type ScoreEvent struct {
	Channel   string    `json:"channel"`
	User      string    `json:"user_id"`
	Operation Operation `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// Standing leaderboard row
type Standing struct {
	User  string `json:"user_id"`
	Score int    `json:"score"`
}
