package command

import (
	"context"
	"iter"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/emojirades/internal/chat"
	apperrors "github.com/wfunc/emojirades/internal/errors"
	"github.com/wfunc/emojirades/internal/game"
)

// idPattern matches a user id inside a mention.
const idPattern = `[\w.\-]+`

// Env is the per-workspace context every command runs against.
type Env struct {
	Store     *game.Store
	Ledger    *game.ScoreKeeper
	Transport chat.Transport
	IsAdmin   func(user string) bool
	Logger    *zap.Logger
	// Rand returns a value in [0, n). Defaults to math/rand.
	Rand func(n int) int
}

func (e *Env) randN(n int) int {
	if e.Rand != nil {
		return e.Rand(n)
	}
	return rand.IntN(n)
}

// Invocation binds a definition to one event.
type Invocation struct {
	Event  *chat.Event
	Player string
	Args   map[string]string
	Env    *Env
}

// Arg returns a named capture group, failing when it did not participate in
// the match.
func (inv *Invocation) Arg(name string) (string, error) {
	v := strings.TrimSpace(inv.Args[name])
	if v == "" {
		return "", apperrors.Newf(apperrors.ErrMissingArg, "%s", name)
	}
	return v, nil
}

// RunFunc produces the lazy reply sequence of a command. Side effects happen
// while iterating, before the replies describing them are yielded.
type RunFunc func(ctx context.Context, inv *Invocation) iter.Seq2[chat.Reply, error]

// Definition one entry of the catalog
type Definition struct {
	Name        string
	Patterns    []string
	Description string
	Example     string
	AdminOnly   bool
	Run         RunFunc
}

// Descriptor is the help listing entry of a definition.
type Descriptor struct {
	Name        string `json:"name"`
	Example     string `json:"example"`
	Description string `json:"description"`
	AdminOnly   bool   `json:"admin_only"`
}

type compiled struct {
	def      Definition
	patterns []*regexp.Regexp
}

// Catalog the ordered, static list of commands.
type Catalog struct {
	defs     []Definition
	inferred map[game.Inference]Definition

	mu    sync.Mutex
	cache map[string][]compiled
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	c := &Catalog{
		inferred: map[game.Inference]Definition{
			game.InferBegin: beginRound,
			game.InferGuess: inferredGuess,
		},
		cache: make(map[string][]compiled),
	}
	c.defs = []Definition{
		newGame,
		setEmojirade,
		correctGuess,
		minusMinus,
		gameStatus,
		leaderboard,
		history,
		help(c),
	}
	return c
}

// Definitions pattern-matched definitions in match order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition{}, c.defs...)
}

// Describe returns the help listing.
func (c *Catalog) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, Descriptor{
			Name:        d.Name,
			Example:     d.Example,
			Description: d.Description,
			AdminOnly:   d.AdminOnly,
		})
	}
	return out
}

// Inferred returns the definition executed for a state inference.
func (c *Catalog) Inferred(inf game.Inference) (Definition, bool) {
	d, ok := c.inferred[inf]
	return d, ok
}

// Match scans the catalog in order and returns the first definition whose
// pattern matches text, with its named capture groups.
func (c *Catalog) Match(text, botID string) (Definition, map[string]string, bool) {
	for _, cd := range c.compiledFor(botID) {
		for _, re := range cd.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			args := make(map[string]string)
			for i, name := range re.SubexpNames() {
				if name != "" && i < len(m) {
					args[name] = m[i]
				}
			}
			return cd.def, args, true
		}
	}
	return Definition{}, nil, false
}

func (c *Catalog) compiledFor(botID string) []compiled {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[botID]; ok {
		return cached
	}

	replacer := strings.NewReplacer("{me}", regexp.QuoteMeta(botID), "{id}", idPattern)
	out := make([]compiled, 0, len(c.defs))
	for _, d := range c.defs {
		cd := compiled{def: d}
		for _, p := range d.Patterns {
			cd.patterns = append(cd.patterns, regexp.MustCompile(replacer.Replace(p)))
		}
		out = append(out, cd)
	}
	c.cache[botID] = out
	return out
}

// replies yields rs in order.
func replies(rs ...chat.Reply) iter.Seq2[chat.Reply, error] {
	return func(yield func(chat.Reply, error) bool) {
		for _, r := range rs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// fail yields a single error.
func fail(err error) iter.Seq2[chat.Reply, error] {
	return func(yield func(chat.Reply, error) bool) {
		yield(chat.Reply{}, err)
	}
}

// rejectOr turns a recoverable guard error into rejection text; anything
// else is passed through as an error.
func rejectOr(err error) iter.Seq2[chat.Reply, error] {
	if err == nil {
		return replies()
	}
	if msg, ok := game.RejectionMessage(err); ok {
		return replies(chat.Say("%s", msg))
	}
	return fail(err)
}
