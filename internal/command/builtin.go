package command

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	"github.com/wfunc/emojirades/internal/game"
)

// firstWinEmojis celebrate a player's first ever point in a channel.
var firstWinEmojis = []string{
	":tada:", ":first_place_medal:", ":sunglasses:", ":nerd_face:", ":birthday:", ":beers:",
}

const (
	historyDefault = 5
	historyMax     = 50
)

var newGame = Definition{
	Name:        "new-game",
	Patterns:    []string{`(?i)^\s*<@{me}>\s+new\s*game\s+<@(?P<winner>{id})>(?:\s+<@(?P<provider>{id})>)?`},
	Description: "Start a new game, the provider (you, if omitted) sends the first 'rade to the winner",
	Example:     "<@bot> new game <@winner> [<@provider>]",
	AdminOnly:   true,
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			winner, err := inv.Arg("winner")
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}
			provider := inv.Args["provider"]
			if provider == "" {
				provider = inv.Player
			}

			if _, err := inv.Env.Store.Start(ctx, inv.Event.Channel, winner, provider); err != nil {
				for r, err := range rejectOr(err) {
					if !yield(r, err) {
						return
					}
				}
				return
			}

			for r := range replies(
				chat.Say("A new game has started! %s will send a 'rade to %s", chat.Mention(provider), chat.Mention(winner)),
				chat.SayTo(chat.ToUser(provider), "You'll now need to send me the new 'rade for %s", chat.Mention(winner)),
				chat.SayTo(chat.ToUser(provider), "Please reply back in the format `emojirade Point Break` if `Point Break` was the new 'rade"),
			) {
				if !yield(r, nil) {
					return
				}
			}
		}
	},
}

var setEmojirade = Definition{
	Name:        "set-emojirade",
	Patterns:    []string{`(?is)^\s*emojirades?\s+(?P<emojirade>.+?)\s*$`},
	Description: "Send the new 'rade to the winner, with optional alternative answers",
	Example:     `emojirade "Point Break", alt: "The Matrix"`,
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			raw, err := inv.Arg("emojirade")
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}
			emojirade := ParseEmojirade(raw)
			if len(emojirade) == 0 {
				yield(chat.Say("That 'rade is empty, try `emojirade Point Break`"), nil)
				return
			}

			store := inv.Env.Store
			targets := store.AwaitingEmojirade(inv.Player)
			if slices.Contains(targets, inv.Event.Channel) {
				targets = []string{inv.Event.Channel}
			}
			if len(targets) == 0 {
				// Let the state machine explain why this channel is not expecting one.
				if _, known := store.Lookup(inv.Event.Channel); known {
					_, err := store.Provide(ctx, inv.Event.Channel, inv.Player, emojirade)
					for r, err := range rejectOr(err) {
						if !yield(r, err) {
							return
						}
					}
					return
				}
				yield(chat.Say("%s", game.MsgNotAwaitingRade), nil)
				return
			}

			for _, channel := range targets {
				st, err := store.Provide(ctx, channel, inv.Player, emojirade)
				if err != nil {
					for r, err := range rejectOr(err) {
						if !yield(r, err) {
							return
						}
					}
					continue
				}

				rs := []chat.Reply{
					chat.SayTo(chat.ToUser(st.Winner), "You're up in <#%s>! Your 'rade is: %s", channel, quoteAll(emojirade)),
					chat.SayTo(chat.ToUser(st.Winner), "Post it as emoji in <#%s> to kick off the round", channel),
					chat.SayTo(chat.ToChannel(channel), ":mailbox: 'rade sent to %s, waiting for them to post the emoji!", chat.Mention(st.Winner)),
				}
				if channel != inv.Event.Channel {
					rs = append(rs, chat.Say("Thanks for the new 'rade! I've sent it to %s", chat.Mention(st.Winner)))
				}
				for _, r := range rs {
					if !yield(r, nil) {
						return
					}
				}
			}
		}
	},
}

var correctGuess = Definition{
	Name:        "correct-guess",
	Patterns:    []string{`<@(?P<target_user>{id})>\s*\+\+`},
	Description: "Award the round to the player who guessed your emojirade",
	Example:     "<@user>++",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			target, err := inv.Arg("target_user")
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}
			channel := inv.Event.Channel
			if err := inv.Env.Store.CheckAward(channel, inv.Player, target); err != nil {
				for r, err := range rejectOr(err) {
					if !yield(r, err) {
						return
					}
				}
				return
			}

			res, err := game.AwardRound(ctx, inv.Env.Store, inv.Env.Ledger, channel, inv.Player, target)
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}

			for _, r := range winReplies(inv.Env, res) {
				if !yield(r, nil) {
					return
				}
			}
		}
	},
}

var minusMinus = Definition{
	Name:        "minus-minus",
	Patterns:    []string{`<@(?P<target_user>{id})>\s*--`},
	Description: "Take a point back from a player, to fix mistakes",
	Example:     "<@user>--",
	AdminOnly:   true,
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			target, err := inv.Arg("target_user")
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}
			score, err := inv.Env.Ledger.Decrement(ctx, inv.Event.Channel, target)
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}
			yield(chat.Say("Oops %s, you're now at %s", chat.Mention(target), points(score)), nil)
		}
	},
}

// stepDescriptions presentation of each step
var stepDescriptions = map[game.Step]string{
	game.StepNewGame:  "Game has not started yet, please wait for an admin to start it!",
	game.StepWaiting:  "Waiting for {provider} to provide a 'rade to {winner}",
	game.StepProvided: "Waiting for {winner} to post an emoji to kick off the round!",
	game.StepGuessing: "Come on, everyone's guessing! Get to it! :runner:",
}

var gameStatus = Definition{
	Name:        "game-status",
	Patterns:    []string{`(?i)<@{me}>\s+(?:game\s*)?(?:status|state)\b`},
	Description: "Show the current status of the game",
	AdminOnly:   true,
	Example:     "<@bot> game status",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		st := inv.Env.Store.Get(inv.Event.Channel)
		if st.Step == game.StepNewGame {
			return replies(chat.Say("Status: %s", stepDescriptions[game.StepNewGame]))
		}

		tr := inv.Env.Transport
		provider := tr.DisplayName(ctx, st.OldWinner)
		winner := tr.DisplayName(ctx, st.Winner)
		lines := []string{
			"Status: " + strings.NewReplacer("{provider}", provider, "{winner}", winner).Replace(stepDescriptions[st.Step]),
			"'rade provider: " + provider,
			"'rade-r: " + winner,
		}
		return replies(chat.Say("%s", strings.Join(lines, "\n")))
	},
}

var leaderboard = Definition{
	Name:        "leaderboard",
	Patterns:    []string{`(?i)<@{me}>\s+(?:leaderboard|scoreboard|scores)\b`},
	Description: "Show the channel's scores",
	Example:     "<@bot> leaderboard",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		standings := inv.Env.Ledger.Leaderboard(inv.Event.Channel)
		if len(standings) == 0 {
			return replies(chat.Say("Nobody has scored in this channel yet"))
		}

		var b strings.Builder
		b.WriteString(":trophy: Leaderboard")
		for i, s := range standings {
			fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, inv.Env.Transport.DisplayName(ctx, s.User), points(s.Score))
		}
		return replies(chat.Say("%s", b.String()))
	},
}

var history = Definition{
	Name:        "history",
	Patterns:    []string{`(?i)<@{me}>\s+history(?:\s+(?P<limit>\d+))?`},
	Description: "Show the most recent score changes in the channel",
	Example:     "<@bot> history [count]",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		limit := historyDefault
		if raw := inv.Args["limit"]; raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = min(n, historyMax)
			}
		}

		events := inv.Env.Ledger.History(inv.Event.Channel, limit)
		if len(events) == 0 {
			return replies(chat.Say("No score history in this channel yet"))
		}

		var b strings.Builder
		b.WriteString("Latest score changes:")
		for _, ev := range events {
			fmt.Fprintf(&b, "\n`%s` %s %s", ev.Timestamp.UTC().Format("2006-01-02 15:04"),
				inv.Env.Transport.DisplayName(ctx, ev.User), ev.Operation)
		}
		return replies(chat.Say("%s", b.String()))
	},
}

func help(c *Catalog) Definition {
	return Definition{
		Name:        "help",
		Patterns:    []string{`(?i)<@{me}>\s+help\b`},
		Description: "Show this help",
		Example:     "<@bot> help",
		Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
			me := chat.Mention(inv.Env.Transport.BotID())
			var b strings.Builder
			b.WriteString("Available commands:")
			for _, d := range c.Describe() {
				example := strings.ReplaceAll(d.Example, "<@bot>", me)
				fmt.Fprintf(&b, "\n`%s` %s", example, d.Description)
				if d.AdminOnly {
					b.WriteString(" (admin)")
				}
			}
			return replies(chat.Say("%s", b.String()))
		},
	}
}

var beginRound = Definition{
	Name:        "begin-round",
	Description: "The winner posted the emoji clue, guessing is open",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			if _, err := inv.Env.Store.Begin(ctx, inv.Event.Channel, inv.Player); err != nil {
				for r, err := range rejectOr(err) {
					if !yield(r, err) {
						return
					}
				}
				return
			}
			yield(chat.Say(":runner: %s has posted the emojirade, get guessing everyone!", chat.Mention(inv.Player)), nil)
		}
	},
}

var inferredGuess = Definition{
	Name:        "guess",
	Description: "A message matching the emojirade wins the round",
	Run: func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error] {
		return func(yield func(chat.Reply, error) bool) {
			channel := inv.Event.Channel
			store := inv.Env.Store
			if !store.MatchesGuess(channel, inv.Event.Text) {
				return
			}
			if err := store.CheckGuess(channel, inv.Player); err != nil {
				for r, err := range rejectOr(err) {
					if !yield(r, err) {
						return
					}
				}
				return
			}

			res, err := game.GuessRound(ctx, store, inv.Env.Ledger, channel, inv.Player)
			if err != nil {
				yield(chat.Reply{}, err)
				return
			}

			var rs []chat.Reply
			if inv.Event.MessageID != "" {
				rs = append(rs, chat.Reply{To: chat.Here(), Response: chat.Reaction("tada", inv.Event.MessageID)})
			}
			rs = append(rs, winReplies(inv.Env, res)...)
			for _, r := range rs {
				if !yield(r, nil) {
					return
				}
			}
		}
	},
}

// winReplies announces a finished round. The winner of res.Before now owes
// the new winner a 'rade.
func winReplies(env *Env, res game.RoundResult) []chat.Reply {
	congrats := fmt.Sprintf("Congrats %s, you're now at %s", chat.Mention(res.Winner), points(res.Score))
	if res.FirstWin {
		congrats += " " + firstWinEmojis[env.randN(len(firstWinEmojis))]
	}

	provider := res.Before.Winner
	if env.Logger != nil {
		env.Logger.Info("round won",
			zap.String("winner", res.Winner),
			zap.String("provider", provider),
			zap.Int("score", res.Score),
			zap.Bool("first_win", res.FirstWin))
	}

	return []chat.Reply{
		chat.Say("%s", congrats),
		chat.Say("%s", FormatAnswer(res.Before.Emojirade)),
		chat.SayTo(chat.ToUser(provider), "You'll now need to send me the new 'rade for %s", chat.Mention(res.Winner)),
		chat.SayTo(chat.ToUser(provider), "Please reply back in the format `emojirade Point Break` if `Point Break` was the new 'rade"),
	}
}

func points(score int) string {
	if score == 1 || score == -1 {
		return fmt.Sprintf("%d point", score)
	}
	return fmt.Sprintf("%d points", score)
}

func quoteAll(emojirade []string) string {
	quoted := make([]string, 0, len(emojirade))
	for _, e := range emojirade {
		quoted = append(quoted, "`"+e+"`")
	}
	return strings.Join(quoted, " OR ")
}
