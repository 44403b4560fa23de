package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/generator"
	"roast-machine/internal/models"
	"roast-machine/internal/store"

	"gopkg.in/telebot.v4"
)

type fakeGenerator struct {
	res generator.Result
	err error
}

func (f *fakeGenerator) Generate(context.Context) (generator.Result, error) {
	return f.res, f.err
}

type fakeCatalog struct {
	jokes []models.Joke
	stats store.Stats
	opts  store.ListOptions
}

func (f *fakeCatalog) List(opts store.ListOptions) ([]models.Joke, error) {
	f.opts = opts
	return f.jokes, nil
}

func (f *fakeCatalog) Stats() (store.Stats, error) {
	return f.stats, nil
}

type fakeLinker struct{}

func (fakeLinker) Permalink(id string) string { return "https://roast.example/joke/" + id }

type fakeCounter struct{ n int }

func (f fakeCounter) Count(context.Context) (int, error) { return f.n, nil }

type fakeSender struct {
	errs  []error
	calls int
	text  string
	chat  int64
}

func (f *fakeSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	f.calls++
	f.text, _ = what.(string)
	f.chat = to.(*telebot.Chat).ID
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &telebot.Message{}, nil
}

var testCfg = config.BotConfig{
	Token:     "test-token",
	ParseMode: "Markdown",
}

func newTestBot(t *testing.T, gen Generator, cat Catalog, opts ...Option) *Bot {
	t.Helper()
	b, err := New(testCfg, gen, cat, fakeLinker{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestNewBot(t *testing.T) {
	_, err := New(testCfg, &fakeGenerator{}, &fakeCatalog{}, fakeLinker{})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestNewBotNoToken(t *testing.T) {
	_, err := New(config.BotConfig{ParseMode: "Markdown"}, &fakeGenerator{}, nil, nil)
	if !errors.Is(err, ErrEmptyToken) {
		t.Errorf("New() error = %v, want %v", err, ErrEmptyToken)
	}
}

func TestNewBotNoGenerator(t *testing.T) {
	_, err := New(testCfg, nil, nil, nil)
	if !errors.Is(err, ErrNoGenerator) {
		t.Errorf("New() error = %v, want %v", err, ErrNoGenerator)
	}
}

func TestRoastText(t *testing.T) {
	gen := &fakeGenerator{res: generator.Result{Joke: models.Joke{
		ID:    "20250101-000000-miners",
		Text:  "Miners_optimize *vibes*",
		Style: "Irony",
	}}}
	b := newTestBot(t, gen, &fakeCatalog{})

	got := b.roastText(context.Background())
	want := "Miners\\_optimize \\*vibes\\*\n\n_Irony_\nhttps://roast.example/joke/20250101-000000-miners"
	if got != want {
		t.Errorf("roastText() = %q, want %q", got, want)
	}
}

func TestRoastTextFailure(t *testing.T) {
	b := newTestBot(t, &fakeGenerator{err: generator.ErrNoOutput}, &fakeCatalog{})

	if got := b.roastText(context.Background()); !strings.Contains(got, "Try again later") {
		t.Errorf("roastText() = %q, want failure notice", got)
	}
}

func TestLatestText(t *testing.T) {
	cat := &fakeCatalog{jokes: []models.Joke{
		{Text: "first", Style: "Irony", CreatedAt: time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)},
	}}
	b := newTestBot(t, &fakeGenerator{}, cat, WithStyles([]string{"Irony", "Hyperbole"}))

	tests := []struct {
		name      string
		args      []string
		wantStyle string
		contains  string
	}{
		{"no filter", nil, "", "first"},
		{"case insensitive", []string{"irony"}, "Irony", "2025-01-02 03:04 UTC"},
		{"unknown", []string{"Puns"}, "", "Unknown style"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat.opts = store.ListOptions{}
			got := b.latestText(tt.args)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("latestText() = %q, want it to contain %q", got, tt.contains)
			}
			if cat.opts.Style != tt.wantStyle {
				t.Errorf("Style = %q, want %q", cat.opts.Style, tt.wantStyle)
			}
		})
	}
}

func TestLatestTextEmpty(t *testing.T) {
	b := newTestBot(t, &fakeGenerator{}, &fakeCatalog{})

	got := b.latestText(nil)
	if !strings.Contains(got, "No jokes yet") {
		t.Errorf("latestText() = %q", got)
	}
}

func TestStatsText(t *testing.T) {
	cat := &fakeCatalog{stats: store.Stats{Total: 3, ByStyle: map[string]int{"Irony": 2, "Hyperbole": 1}}}
	b := newTestBot(t, &fakeGenerator{}, cat,
		WithStyles([]string{"Hyperbole", "Irony", "Analogy"}),
		WithArchive(fakeCounter{n: 7}),
	)

	want := "*Roast Statistics*\n\nTotal jokes: 3\nHyperbole: 1\nIrony: 2\nArchived: 7"
	if got := b.statsText(context.Background()); got != want {
		t.Errorf("statsText() = %q, want %q", got, want)
	}
}

func TestEscapeOnlyInMarkdown(t *testing.T) {
	b := newTestBot(t, &fakeGenerator{}, &fakeCatalog{})
	if got := b.escape("a_b"); got != `a\_b` {
		t.Errorf("escape() = %q", got)
	}

	b.cfg.ParseMode = "HTML"
	if got := b.escape("a_b"); got != "a_b" {
		t.Errorf("escape() = %q", got)
	}
}

func TestSendMessageWithRetry(t *testing.T) {
	flood := errors.New("telegram: Too Many Requests: retry after 1 (429)")

	tests := []struct {
		name      string
		errs      []error
		wantErr   error
		wantCalls int
	}{
		{"first try", nil, nil, 1},
		{"recovers", []error{flood}, nil, 2},
		{"gives up", []error{flood, flood, flood}, ErrRateLimited, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBot(t, &fakeGenerator{}, &fakeCatalog{})
			s := &fakeSender{errs: tt.errs}
			b.send = s
			b.retryDelay = time.Millisecond

			err := b.sendMessageWithRetry(42, "hello")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("sendMessageWithRetry() error = %v, want %v", err, tt.wantErr)
			}
			if s.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", s.calls, tt.wantCalls)
			}
			if s.chat != 42 {
				t.Errorf("chat = %d, want 42", s.chat)
			}
		})
	}
}

func TestSendMessageOtherError(t *testing.T) {
	b := newTestBot(t, &fakeGenerator{}, &fakeCatalog{})
	boom := errors.New("chat not found")
	s := &fakeSender{errs: []error{boom}}
	b.send = s

	err := b.sendMessageWithRetry(1, "x")
	if !errors.Is(err, boom) {
		t.Errorf("sendMessageWithRetry() error = %v, want %v", err, boom)
	}
	if s.calls != 1 {
		t.Errorf("calls = %d, want 1", s.calls)
	}
}

func TestSendMessageNotRunning(t *testing.T) {
	b := newTestBot(t, &fakeGenerator{}, &fakeCatalog{})
	if err := b.sendMessageWithRetry(1, "x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("sendMessageWithRetry() error = %v, want %v", err, ErrNotConnected)
	}
}
