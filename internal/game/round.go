package game

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

// RoundPersister is implemented by persisters that can store a round's
// closing state and the winner's score entry in one write.
type RoundPersister interface {
	CloseRound(ctx context.Context, channel string, state ChannelState, event ScoreEvent) error
}

// RoundResult outcome of a closed round.
type RoundResult struct {
	// Before is the state the round closed from, carrying the answer.
	Before   ChannelState
	Winner   string
	Score    int
	FirstWin bool
}

// GuessRound closes the round in favour of guesser and records the point.
func GuessRound(ctx context.Context, s *Store, k *ScoreKeeper, channel, guesser string) (RoundResult, error) {
	return closeRound(ctx, s, k, channel, TriggerGuess, Input{Actor: guesser, Target: guesser})
}

// AwardRound closes the round in favour of target on the winner's say so
// and records the point.
func AwardRound(ctx context.Context, s *Store, k *ScoreKeeper, channel, awarder, target string) (RoundResult, error) {
	return closeRound(ctx, s, k, channel, TriggerAward, Input{Actor: awarder, Target: target})
}

// closeRound writes the state before the score. A failed state write leaves
// both untouched, so the round can be retried without scoring twice. When
// store and ledger share a RoundPersister both writes are one.
func closeRound(ctx context.Context, s *Store, k *ScoreKeeper, channel string, trigger Trigger, in Input) (RoundResult, error) {
	res := RoundResult{Winner: in.Target, FirstWin: k.isFirstWin(channel, in.Target)}

	if rp, ok := sharedRoundPersister(s, k); ok {
		ev := k.event(channel, in.Target, OpIncrement)
		before, _, err := s.fire(ctx, channel, trigger, in, func(after ChannelState) error {
			return rp.CloseRound(ctx, channel, after, ev)
		})
		if err != nil {
			return RoundResult{}, err
		}
		k.record(ev)
		res.Before = before
		res.Score = k.CurrentScore(channel, in.Target)
		return res, nil
	}

	before, _, err := s.Fire(ctx, channel, trigger, in)
	if err != nil {
		return RoundResult{}, err
	}
	res.Before = before

	score, _, err := k.Increment(ctx, channel, in.Target)
	if err != nil {
		k.logger.Error("round closed without its point",
			zap.String("channel", channel),
			zap.String("winner", in.Target),
			zap.Error(err))
		return res, err
	}
	res.Score = score
	return res, nil
}

func sharedRoundPersister(s *Store, k *ScoreKeeper) (RoundPersister, bool) {
	rp, ok := s.persister.(RoundPersister)
	if !ok {
		return nil, false
	}
	a, b := any(s.persister), any(k.persister)
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() || a != b {
		return nil, false
	}
	return rp, true
}
