// Package generator runs the generate, dedupe and persist pipeline.
package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"roast-machine/internal/config"
	"roast-machine/internal/corpus"
	"roast-machine/internal/models"
	"roast-machine/internal/queue"
	"roast-machine/pkg/logger"
)

// ErrNoOutput is returned when no attempt produced any usable text.
var ErrNoOutput = errors.New("model produced no usable output")

type Outcome string

const (
	OutcomeOriginal          Outcome = "original"
	OutcomeFallbackDuplicate Outcome = "fallback_duplicate"
	OutcomeFallbackShort     Outcome = "fallback_short"
)

type Result struct {
	Joke     models.Joke
	Outcome  Outcome
	Attempts int
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type DuplicateChecker interface {
	IsDuplicate(candidate string) bool
}

type Saver interface {
	Save(text, factoid, technique string) (models.Joke, error)
}

type Queue interface {
	PublishJoke(ctx context.Context, joke *queue.JokeMessage) error
}

type Generator struct {
	cfg    config.GeneratorConfig
	corpus *corpus.Corpus
	model  Completer
	dedup  DuplicateChecker
	store  Saver
	q      Queue

	randMu sync.Mutex
	intN   func(n int) int
}

type Option func(*Generator)

// WithQueue publishes every saved joke. Publish failures are logged only.
func WithQueue(q Queue) Option {
	return func(g *Generator) {
		g.q = q
	}
}

// WithRand makes factoid, technique and example choice deterministic.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.intN = r.IntN
	}
}

func New(cfg config.GeneratorConfig, c *corpus.Corpus, model Completer, dedup DuplicateChecker, store Saver, opts ...Option) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ExamplesPerPrompt <= 0 {
		cfg.ExamplesPerPrompt = 1
	}
	if cfg.Subject == "" {
		cfg.Subject = "the Bittensor (TAO) crypto ecosystem"
	}

	g := &Generator{
		cfg:    cfg,
		corpus: c,
		model:  model,
		dedup:  dedup,
		store:  store,
		intN:   rand.IntN,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type candidate struct {
	text      string
	factoid   string
	technique string
	rejected  Outcome
}

// Generate asks the model for a joke up to MaxAttempts times. Empty, short or
// duplicate output is retried; when every attempt is rejected the last
// non-empty output is kept and the result says why it was rejected.
func (g *Generator) Generate(ctx context.Context) (Result, error) {
	var (
		last    *candidate
		lastErr error
	)

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		c, err := g.attempt(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			lastErr = err
			logger.Warn("Model call failed",
				logger.Int("attempt", attempt),
				logger.Err(err),
			)
			continue
		}

		if c.text == "" {
			logger.Debug("Empty model output", logger.Int("attempt", attempt))
			continue
		}

		last = &c

		if utf8.RuneCountInString(c.text) < g.cfg.MinLength {
			c.rejected = OutcomeFallbackShort
			logger.Debug("Joke too short", logger.Int("attempt", attempt), logger.Int("runes", utf8.RuneCountInString(c.text)))
			continue
		}

		if g.dedup != nil && g.dedup.IsDuplicate(c.text) {
			c.rejected = OutcomeFallbackDuplicate
			logger.Debug("Joke too similar to existing material", logger.Int("attempt", attempt))
			continue
		}

		return g.persist(ctx, c, OutcomeOriginal, attempt)
	}

	if last == nil {
		if lastErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrNoOutput, lastErr)
		}
		return Result{}, ErrNoOutput
	}

	logger.Info("Retries exhausted, keeping last attempt",
		logger.String("reason", string(last.rejected)),
	)

	return g.persist(ctx, *last, last.rejected, g.cfg.MaxAttempts)
}

func (g *Generator) attempt(ctx context.Context) (candidate, error) {
	factoid, technique, examples := g.pick()
	p := BuildPrompt(g.cfg.Subject, technique.Name, examples, factoid)

	raw, err := g.model.Complete(ctx, p.System, p.User)
	if err != nil {
		return candidate{}, err
	}

	return candidate{
		text:      Clean(raw),
		factoid:   factoid,
		technique: technique.Name,
	}, nil
}

// pick draws a factoid, a technique and distinct examples of that technique.
func (g *Generator) pick() (string, corpus.Technique, []string) {
	g.randMu.Lock()
	defer g.randMu.Unlock()

	factoid := g.corpus.Factoids[g.intN(len(g.corpus.Factoids))]
	technique := g.corpus.Techniques[g.intN(len(g.corpus.Techniques))]

	pool := append([]string(nil), technique.Examples...)
	k := min(g.cfg.ExamplesPerPrompt, len(pool))
	for i := 0; i < k; i++ {
		j := i + g.intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return factoid, technique, pool[:k]
}

func (g *Generator) persist(ctx context.Context, c candidate, outcome Outcome, attempts int) (Result, error) {
	joke, err := g.store.Save(c.text, c.factoid, c.technique)
	if err != nil {
		return Result{}, fmt.Errorf("failed to save joke: %w", err)
	}

	logger.Info("Joke generated",
		logger.String("id", joke.ID),
		logger.String("style", joke.Style),
		logger.String("outcome", string(outcome)),
		logger.Int("attempts", attempts),
	)

	if g.q != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.q.PublishJoke(pubCtx, queue.NewJokeMessage(joke)); err != nil {
			logger.Warn("Failed to publish joke", logger.String("id", joke.ID), logger.Err(err))
		}
	}

	return Result{Joke: joke, Outcome: outcome, Attempts: attempts}, nil
}
