// Package app wires the roast machine components from configuration.
package app

import (
	"context"
	"fmt"

	"roast-machine/internal/bot"
	"roast-machine/internal/config"
	"roast-machine/internal/corpus"
	"roast-machine/internal/database"
	"roast-machine/internal/generator"
	"roast-machine/internal/github"
	"roast-machine/internal/llm"
	"roast-machine/internal/preview"
	"roast-machine/internal/queue"
	"roast-machine/internal/share"
	"roast-machine/internal/similarity"
	"roast-machine/internal/store"
	"roast-machine/internal/web"
	"roast-machine/pkg/logger"
)

type App struct {
	Config  *config.Config
	Corpus  *corpus.Corpus
	Store   *store.Store
	GitHub  *github.Client
	Share   *share.Service
	Preview *preview.Renderer

	// Optional integrations, nil when disabled.
	DB    *database.DB
	Jokes *database.JokeRepository
	Users *database.UserRepository
	Queue *queue.NATS

	model *llm.Client
	gen   *generator.Generator
}

// New builds every component that does not need the model endpoint and
// connects the optional database and NATS integrations.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	c, err := corpus.Load(cfg.Corpus.FactoidsPath, cfg.Corpus.ExamplesPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Corpus loaded",
		logger.Int("factoids", len(c.Factoids)),
		logger.Int("techniques", len(c.Techniques)),
	)

	st, err := store.New(cfg.Store.Dir, store.WithStyles(c.Names()))
	if err != nil {
		return nil, err
	}

	renderer, err := preview.New(cfg.Preview)
	if err != nil {
		return nil, err
	}

	gh := github.New(cfg.GitHub)
	if !gh.Configured() {
		logger.Warn("GITHUB_TOKEN not set, sharing is disabled")
	}

	a := &App{
		Config:  cfg,
		Corpus:  c,
		Store:   st,
		GitHub:  gh,
		Share:   share.New(st, gh, cfg.Server.SiteURL),
		Preview: renderer,
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Jokes = database.NewJokeRepository(db)
		a.Users = database.NewUserRepository(db)
		logger.Info("Connected to database", logger.String("host", cfg.Database.Host))
	}

	if cfg.NATS.Enabled {
		q, err := queue.New(cfg.NATS)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
		logger.Info("Connected to NATS", logger.String("url", cfg.NATS.URL))
	}

	return a, nil
}

// Generator builds the generation pipeline on first use.
func (a *App) Generator() (*generator.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}

	model, err := llm.New(a.Config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	dedup := similarity.New(a.Corpus.AllExamples(), a.Store,
		similarity.WithThreshold(a.Config.Generator.DedupThreshold),
		similarity.WithWindow(a.Config.Generator.RecentWindow),
	)

	var opts []generator.Option
	if a.Queue != nil {
		opts = append(opts, generator.WithQueue(a.Queue))
	}

	a.model = model
	a.gen = generator.New(a.Config.Generator, a.Corpus, model, dedup, a.Store, opts...)

	return a.gen, nil
}

func (a *App) Web() (*web.Server, error) {
	gen, err := a.Generator()
	if err != nil {
		return nil, err
	}

	return web.New(a.Config.Server, web.Deps{
		Generator: gen,
		Catalog:   a.Store,
		Sharer:    a.Share,
		Images:    a.Preview,
		Styles:    a.Corpus.Names(),
		ModelName: a.model.Model(),
		PerPage:   a.Config.Store.PerPage,
	})
}

// Bot returns the Telegram front end, or nil when it is disabled.
func (a *App) Bot() (*bot.Bot, error) {
	if !a.Config.Bot.Enabled {
		return nil, nil
	}

	gen, err := a.Generator()
	if err != nil {
		return nil, err
	}

	opts := []bot.Option{bot.WithStyles(a.Corpus.Names())}
	if a.Users != nil {
		opts = append(opts, bot.WithUsers(a.Users), bot.WithArchive(a.Jokes))
	}

	return bot.New(a.Config.Bot, gen, a.Store, a.Share, opts...)
}

// ArchiveEnabled reports whether this process should consume joke events.
func (a *App) ArchiveEnabled() bool {
	return a.Queue != nil && a.Jokes != nil && a.Config.NATS.Consume
}

// RunArchive copies published jokes into the database until ctx is done.
func (a *App) RunArchive(ctx context.Context) error {
	logger.Info("Starting joke archive consumer")
	return a.Queue.ConsumeJokes(ctx, a.archiveJoke)
}

func (a *App) archiveJoke(ctx context.Context, msg *queue.JokeMessage) error {
	inserted, err := a.Jokes.Create(ctx, msg.Joke(), msg.Hash)
	if err != nil {
		return err
	}

	if inserted {
		logger.Debug("Joke archived", logger.String("id", msg.ID))
	} else {
		logger.Debug("Joke already archived", logger.String("id", msg.ID), logger.String("hash", msg.Hash))
	}
	return nil
}

func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
