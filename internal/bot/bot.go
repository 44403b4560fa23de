package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/generator"
	"roast-machine/internal/models"
	"roast-machine/internal/store"
	"roast-machine/pkg/logger"

	"gopkg.in/telebot.v4"
)

const latestLimit = 5

var (
	ErrRateLimited  = errors.New("telegram rate limited")
	ErrEmptyToken   = errors.New("telegram bot token is required")
	ErrNoGenerator  = errors.New("bot needs a joke generator")
	ErrNotConnected = errors.New("bot is not running")
)

type Generator interface {
	Generate(ctx context.Context) (generator.Result, error)
}

type Catalog interface {
	List(opts store.ListOptions) ([]models.Joke, error)
	Stats() (store.Stats, error)
}

type Linker interface {
	Permalink(id string) string
}

type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
	Count(ctx context.Context) (int, error)
}

type ArchiveCounter interface {
	Count(ctx context.Context) (int, error)
}

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

type Bot struct {
	cfg      config.BotConfig
	settings telebot.Settings

	gen     Generator
	jokes   Catalog
	links   Linker
	styles  []string
	users   UserStore
	archive ArchiveCounter

	ctx        context.Context
	send       sender
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Bot)

// WithUsers records everyone who sends /start.
func WithUsers(users UserStore) Option {
	return func(b *Bot) {
		b.users = users
	}
}

// WithArchive adds the archive row count to /stats.
func WithArchive(archive ArchiveCounter) Option {
	return func(b *Bot) {
		b.archive = archive
	}
}

// WithStyles sets the technique names accepted by /latest.
func WithStyles(styles []string) Option {
	return func(b *Bot) {
		b.styles = styles
	}
}

func New(cfg config.BotConfig, gen Generator, jokes Catalog, links Linker, opts ...Option) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}
	if gen == nil {
		return nil, ErrNoGenerator
	}

	b := &Bot{
		cfg:   cfg,
		gen:   gen,
		jokes: jokes,
		links: links,
		settings: telebot.Settings{
			Token:  cfg.Token,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				logger.Error("Telegram handler failed", logger.Err(err))
			},
		},
		ctx:        context.Background(),
		maxRetries: 3,
		retryDelay: time.Second,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Run polls Telegram until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	tbot, err := telebot.NewBot(b.settings)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	b.ctx = ctx
	b.send = tbot
	b.setupHandlers(tbot)

	go tbot.Start()
	logger.Info("Telegram bot started", logger.String("username", tbot.Me.Username))

	<-ctx.Done()
	tbot.Stop()
	logger.Info("Telegram bot stopped")

	return nil
}

func (b *Bot) setupHandlers(bot *telebot.Bot) {
	bot.Handle(telebot.OnText, func(c telebot.Context) error {
		logger.Debug("Incoming text message",
			logger.Int64("user_id", c.Sender().ID),
			logger.String("username", c.Sender().Username),
		)
		return b.reply(c, "Use /roast to get a fresh joke!")
	})

	bot.Handle("/start", b.handleStart)
	bot.Handle("/roast", b.handleRoast)
	bot.Handle("/latest", b.handleLatest)
	bot.Handle("/stats", b.handleStats)
	bot.Handle("/help", b.handleHelp)
}

func (b *Bot) reply(c telebot.Context, text string) error {
	return b.sendMessageWithRetry(c.Chat().ID, text)
}

func (b *Bot) sendMessageWithRetry(chatID int64, text string) error {
	if b.send == nil {
		return ErrNotConnected
	}

	retryDelay := b.retryDelay

	for i := 0; i < b.maxRetries; i++ {
		_, err := b.send.Send(&telebot.Chat{ID: chatID}, text, &telebot.SendOptions{
			ParseMode: telebot.ParseMode(b.cfg.ParseMode),
		})

		if err != nil {
			if isRateLimit(err) {
				logger.Warn("Rate limited, retrying...",
					logger.Int("retry", i+1),
					logger.Int("max_retries", b.maxRetries),
				)
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	return ErrRateLimited
}

func isRateLimit(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "retry after")
}

func (b *Bot) handleStart(c telebot.Context) error {
	if b.users != nil {
		user := &models.User{
			TelegramID: c.Sender().ID,
			Username:   c.Sender().Username,
			FirstName:  c.Sender().FirstName,
			LastName:   c.Sender().LastName,
		}
		if err := b.users.Upsert(b.ctx, user); err != nil {
			logger.Error("Failed to save user", logger.Err(err))
		}
	}

	return b.reply(c, "*Welcome to the Roast Machine!*\n\n"+b.commands())
}

func (b *Bot) handleRoast(c telebot.Context) error {
	return b.reply(c, b.roastText(b.ctx))
}

func (b *Bot) handleLatest(c telebot.Context) error {
	return b.reply(c, b.latestText(c.Args()))
}

func (b *Bot) handleStats(c telebot.Context) error {
	return b.reply(c, b.statsText(b.ctx))
}

func (b *Bot) handleHelp(c telebot.Context) error {
	return b.reply(c, "*Help*\n\n"+b.commands())
}

func (b *Bot) commands() string {
	return "Commands:\n" +
		"- /roast - Generate a fresh joke\n" +
		"- /latest [style] - The newest jokes\n" +
		"- /stats - Joke statistics\n" +
		"- /help - Show this help message"
}

func (b *Bot) roastText(ctx context.Context) string {
	res, err := b.gen.Generate(ctx)
	if err != nil {
		logger.Error("Failed to generate joke", logger.Err(err))
		return "The roast machine is out of material right now. Try again later!"
	}

	return fmt.Sprintf("%s\n\n_%s_\n%s",
		b.escape(res.Joke.Text),
		b.escape(res.Joke.Style),
		b.links.Permalink(res.Joke.ID),
	)
}

func (b *Bot) latestText(args []string) string {
	style := ""
	if len(args) > 0 {
		var ok bool
		style, ok = b.resolveStyle(strings.Join(args, " "))
		if !ok {
			return "Unknown style. Try one of: " + b.escape(strings.Join(b.styles, ", "))
		}
	}

	jokes, err := b.jokes.List(store.ListOptions{Limit: latestLimit, Style: style})
	if err != nil {
		logger.Error("Failed to list jokes", logger.Err(err))
		return "Failed to load jokes"
	}
	if len(jokes) == 0 {
		return "No jokes yet. Use /roast to make one!"
	}

	var sb strings.Builder
	sb.WriteString("*Latest jokes*\n")
	for _, j := range jokes {
		fmt.Fprintf(&sb, "\n%s\n_%s, %s_\n", b.escape(j.Text), b.escape(j.Style), j.DisplayTime())
	}
	return sb.String()
}

func (b *Bot) resolveStyle(arg string) (string, bool) {
	for _, s := range b.styles {
		if strings.EqualFold(s, strings.TrimSpace(arg)) {
			return s, true
		}
	}
	return "", false
}

func (b *Bot) statsText(ctx context.Context) string {
	st, err := b.jokes.Stats()
	if err != nil {
		logger.Error("Failed to get stats", logger.Err(err))
		return "Failed to get statistics"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Roast Statistics*\n\nTotal jokes: %d\n", st.Total)
	for _, s := range b.styles {
		if n := st.ByStyle[s]; n > 0 {
			fmt.Fprintf(&sb, "%s: %d\n", b.escape(s), n)
		}
	}

	if b.archive != nil {
		if n, err := b.archive.Count(ctx); err == nil {
			fmt.Fprintf(&sb, "Archived: %d\n", n)
		}
	}
	if b.users != nil {
		if n, err := b.users.Count(ctx); err == nil {
			fmt.Fprintf(&sb, "Total users: %d\n", n)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func (b *Bot) escape(s string) string {
	if telebot.ParseMode(b.cfg.ParseMode) != telebot.ModeMarkdown {
		return s
	}
	return markdownEscaper.Replace(s)
}
