package game

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Guard rejection texts shown to players.
const (
	MsgGameNotStarted   = "Game has not started yet, please wait for an admin to start it!"
	MsgSamePlayers      = "The winner and the 'rade provider need to be different people"
	MsgNotProvider      = "You're not the one providing the 'rade right now"
	MsgNotWinner        = "You're not the current winner, stop awarding other people the win >.>"
	MsgAwardPlayers     = "You're not allowed to award current players the win >.>"
	MsgGuessKnownAnswer = "You already know the answer, no guessing >.>"
	MsgNotClueGiver     = "Only the current winner can kick off the round"
	MsgNoRound          = "There's no round in progress right now"
	MsgNotAwaitingRade  = "No 'rade is expected right now"
)

// Input arguments of a trigger
type Input struct {
	// Actor is the player performing the action.
	Actor string
	// Target receives the win for guess and award.
	Target string
	// Winner and Provider seed a new game.
	Winner    string
	Provider  string
	Emojirade []string
}

// StateTransition one row of the transition table
type StateTransition struct {
	From    Step
	Trigger Trigger
	To      Step
	Guard   func(st ChannelState, in Input) error
	Action  func(st *ChannelState, in Input)
}

type transitionKey struct {
	from    Step
	trigger Trigger
}

// Store per-channel game state machine of one workspace.
//
// Mutations persist before committing in memory, so a failed write leaves
// the in-memory state as it was.
type Store struct {
	mu          sync.RWMutex
	channels    map[string]*ChannelState
	transitions map[transitionKey]StateTransition
	persister   StatePersister
	logger      *zap.Logger
}

// NewStore creates an empty store. Call Load to restore persisted state.
func NewStore(persister StatePersister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		channels:    make(map[string]*ChannelState),
		transitions: make(map[transitionKey]StateTransition),
		persister:   persister,
		logger:      logger,
	}
	s.initTransitions()
	return s
}

func (s *Store) initTransitions() {
	for _, from := range []Step{StepNewGame, StepWaiting, StepProvided, StepGuessing} {
		s.addTransition(StateTransition{
			From:    from,
			Trigger: TriggerStart,
			To:      StepWaiting,
			Guard: func(st ChannelState, in Input) error {
				if in.Winner == "" || in.Provider == "" {
					return apperrors.New(apperrors.ErrMissingArg, "winner and provider are required")
				}
				if in.Winner == in.Provider {
					return apperrors.New(apperrors.ErrGuardRejected, MsgSamePlayers)
				}
				return nil
			},
			Action: func(st *ChannelState, in Input) {
				st.Winner = in.Winner
				st.OldWinner = in.Provider
				st.Emojirade = []string{}
			},
		})
	}

	s.addTransition(StateTransition{
		From:    StepWaiting,
		Trigger: TriggerProvide,
		To:      StepProvided,
		Guard: func(st ChannelState, in Input) error {
			if in.Actor != st.OldWinner {
				return apperrors.New(apperrors.ErrNotEligible, MsgNotProvider)
			}
			if len(in.Emojirade) == 0 {
				return apperrors.New(apperrors.ErrMissingArg, "emojirade is empty")
			}
			return nil
		},
		Action: func(st *ChannelState, in Input) {
			st.Emojirade = append([]string{}, in.Emojirade...)
		},
	})

	s.addTransition(StateTransition{
		From:    StepProvided,
		Trigger: TriggerBegin,
		To:      StepGuessing,
		Guard: func(st ChannelState, in Input) error {
			if in.Actor != st.Winner {
				return apperrors.New(apperrors.ErrNotEligible, MsgNotClueGiver)
			}
			return nil
		},
	})

	s.addTransition(StateTransition{
		From:    StepGuessing,
		Trigger: TriggerGuess,
		To:      StepWaiting,
		Guard: func(st ChannelState, in Input) error {
			if in.Target == st.Winner || in.Target == st.OldWinner {
				return apperrors.New(apperrors.ErrNotEligible, MsgGuessKnownAnswer)
			}
			return nil
		},
		Action: rotateWinners,
	})

	s.addTransition(StateTransition{
		From:    StepGuessing,
		Trigger: TriggerAward,
		To:      StepWaiting,
		Guard: func(st ChannelState, in Input) error {
			if in.Target == st.Winner || in.Target == st.OldWinner {
				return apperrors.New(apperrors.ErrNotEligible, MsgAwardPlayers)
			}
			if in.Actor != st.Winner {
				return apperrors.New(apperrors.ErrNotEligible, MsgNotWinner)
			}
			return nil
		},
		Action: rotateWinners,
	})
}

// rotateWinners the guesser becomes the winner, the previous winner becomes
// the provider of the next 'rade.
func rotateWinners(st *ChannelState, in Input) {
	st.OldWinner = st.Winner
	st.Winner = in.Target
	st.Emojirade = []string{}
}

func (s *Store) addTransition(t StateTransition) {
	s.transitions[transitionKey{from: t.From, trigger: t.Trigger}] = t
}

// Load replaces the in-memory state with the persisted document.
func (s *Store) Load(ctx context.Context) error {
	states, err := s.persister.LoadStates(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrPersistenceRead, "load channel states")
	}

	channels := make(map[string]*ChannelState, len(states))
	for ch, st := range states {
		if !st.Step.Valid() {
			return apperrors.Newf(apperrors.ErrUnknownStep, "channel %s: step %q", ch, st.Step)
		}
		c := st.Clone()
		channels[ch] = &c
	}

	s.mu.Lock()
	s.channels = channels
	s.mu.Unlock()

	s.logger.Info("channel states loaded", zap.Int("channels", len(channels)))
	return nil
}

// Get returns a copy of the channel's state, registering the channel as a
// new game on first reference.
func (s *Store) Get(channel string) ChannelState {
	s.mu.RLock()
	st, ok := s.channels[channel]
	s.mu.RUnlock()
	if ok {
		return st.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.channels[channel]; ok {
		return st.Clone()
	}
	fresh := NewChannelState()
	s.channels[channel] = &fresh
	return fresh.Clone()
}

// Lookup returns the channel's state without registering it.
func (s *Store) Lookup(channel string) (ChannelState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.channels[channel]
	if !ok {
		return ChannelState{}, false
	}
	return st.Clone(), true
}

// Channels returns every known channel id, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Check evaluates the transition for trigger without mutating anything.
func (s *Store) Check(channel string, trigger Trigger, in Input) error {
	_, err := s.resolve(s.Get(channel), trigger, in)
	return err
}

func (s *Store) resolve(st ChannelState, trigger Trigger, in Input) (StateTransition, error) {
	t, ok := s.transitions[transitionKey{from: st.Step, trigger: trigger}]
	if !ok {
		if st.Step == StepNewGame {
			return t, apperrors.New(apperrors.ErrGameNotStarted, MsgGameNotStarted)
		}
		return t, apperrors.Newf(apperrors.ErrWrongStep, "%s", wrongStepMessage(trigger))
	}
	if t.Guard != nil {
		if err := t.Guard(st, in); err != nil {
			return t, err
		}
	}
	return t, nil
}

func wrongStepMessage(trigger Trigger) string {
	switch trigger {
	case TriggerProvide:
		return MsgNotAwaitingRade
	default:
		return MsgNoRound
	}
}

// Fire applies trigger to the channel and returns the states before and
// after. Guard failures are recoverable errors carrying player-facing text;
// persistence failures are fatal and leave the state untouched.
func (s *Store) Fire(ctx context.Context, channel string, trigger Trigger, in Input) (before, after ChannelState, err error) {
	return s.fire(ctx, channel, trigger, in, func(after ChannelState) error {
		return s.persister.SaveState(ctx, channel, after)
	})
}

// fire is Fire with the write supplied by the caller. save receives the
// state after the transition and must be durable when it returns nil.
func (s *Store) fire(ctx context.Context, channel string, trigger Trigger, in Input, save func(ChannelState) error) (before, after ChannelState, err error) {
	before = s.Get(channel)

	t, err := s.resolve(before, trigger, in)
	if err != nil {
		s.logger.Debug("transition rejected",
			zap.String("channel", channel),
			zap.String("step", string(before.Step)),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return before, before, err
	}

	after = before.Clone()
	if t.Action != nil {
		t.Action(&after, in)
	}
	after.Step = t.To

	if err := save(after.Clone()); err != nil {
		s.logger.Error("channel state persist failed",
			zap.String("channel", channel),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return before, before, apperrors.Wrapf(err, apperrors.ErrPersistenceWrite, "save state for %s", channel)
	}

	committed := after.Clone()
	s.mu.Lock()
	s.channels[channel] = &committed
	s.mu.Unlock()

	s.logger.Info("state transition",
		zap.String("channel", channel),
		zap.String("from", string(before.Step)),
		zap.String("to", string(after.Step)),
		zap.String("trigger", string(trigger)),
		zap.String("winner", after.Winner),
		zap.String("old_winner", after.OldWinner))
	return before, after, nil
}

// Start starts, or restarts, the game with winner about to receive a 'rade
// from provider.
func (s *Store) Start(ctx context.Context, channel, winner, provider string) (ChannelState, error) {
	_, after, err := s.Fire(ctx, channel, TriggerStart, Input{Winner: winner, Provider: provider})
	return after, err
}

// Provide stores the 'rade sent by the old winner.
func (s *Store) Provide(ctx context.Context, channel, actor string, emojirade []string) (ChannelState, error) {
	_, after, err := s.Fire(ctx, channel, TriggerProvide, Input{Actor: actor, Emojirade: emojirade})
	return after, err
}

// Begin opens the round once the winner posts the emoji clue.
func (s *Store) Begin(ctx context.Context, channel, actor string) (ChannelState, error) {
	_, after, err := s.Fire(ctx, channel, TriggerBegin, Input{Actor: actor})
	return after, err
}

// CheckGuess validates that guesser may win the round.
func (s *Store) CheckGuess(channel, guesser string) error {
	return s.Check(channel, TriggerGuess, Input{Actor: guesser, Target: guesser})
}

// CheckAward validates a manual award from awarder to target.
func (s *Store) CheckAward(channel, awarder, target string) error {
	return s.Check(channel, TriggerAward, Input{Actor: awarder, Target: target})
}

// MatchesGuess reports whether text answers the channel's open round.
func (s *Store) MatchesGuess(channel, text string) bool {
	st, ok := s.Lookup(channel)
	if !ok || st.Step != StepGuessing {
		return false
	}
	return MatchesAny(text, st.Emojirade)
}

// AwaitingEmojirade returns the channels where user owes a 'rade, sorted.
func (s *Store) AwaitingEmojirade(user string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for ch, st := range s.channels {
		if st.Step == StepWaiting && st.OldWinner == user {
			out = append(out, ch)
		}
	}
	sort.Strings(out)
	return out
}

// Infer yields the commands implied by the channel's state for ev. Messages
// from bots, including this one, never infer anything.
func (s *Store) Infer(ev *chat.Event, botID string) []Inference {
	if !ev.Valid() || ev.IsBot() {
		return nil
	}
	player, _ := ev.PlayerID()
	if player == botID {
		return nil
	}

	st, ok := s.Lookup(ev.Channel)
	if !ok {
		return nil
	}

	switch st.Step {
	case StepProvided:
		if player == st.Winner && IsEmojiOnly(ev.Text) {
			return []Inference{InferBegin}
		}
	case StepGuessing:
		return []Inference{InferGuess}
	}
	return nil
}

// RejectionMessage extracts the player-facing text of a recoverable error.
func RejectionMessage(err error) (string, bool) {
	if !apperrors.IsRecoverable(err) {
		return "", false
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Details == "" {
		return "", false
	}
	return appErr.Details, true
}
