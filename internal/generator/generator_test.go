package generator

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/corpus"
	"roast-machine/internal/models"
	"roast-machine/internal/queue"
	"roast-machine/internal/similarity"
	"roast-machine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []Prompt
}

func (m *scriptedModel) Complete(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.prompts)
	m.prompts = append(m.prompts, Prompt{System: system, User: user})

	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

type dedupFunc func(string) bool

func (f dedupFunc) IsDuplicate(s string) bool { return f(s) }

type memorySaver struct {
	saved []models.Joke
	err   error
}

func (s *memorySaver) Save(text, factoid, technique string) (models.Joke, error) {
	if s.err != nil {
		return models.Joke{}, s.err
	}
	j := models.Joke{ID: store.Slug(text), Text: text, Factoid: factoid, Style: technique}
	s.saved = append(s.saved, j)
	return j, nil
}

type recordingQueue struct {
	msgs []*queue.JokeMessage
	err  error
}

func (q *recordingQueue) PublishJoke(_ context.Context, m *queue.JokeMessage) error {
	q.msgs = append(q.msgs, m)
	return q.err
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New(
		[]string{"TAO went to zero"},
		[]corpus.Technique{{Name: "Misdirection", Examples: []string{"old joke"}}},
	)
	require.NoError(t, err)
	return c
}

func defaultConfig() config.GeneratorConfig {
	return config.GeneratorConfig{MaxAttempts: 3, MinLength: 20, ExamplesPerPrompt: 1}
}

func TestGenerateEndToEnd(t *testing.T) {
	c := testCorpus(t)
	s, err := store.New(t.TempDir(), store.WithStyles(c.Names()))
	require.NoError(t, err)

	model := &scriptedModel{replies: []string{"<think>ok</think>Fresh joke text"}}
	cfg := defaultConfig()
	cfg.MinLength = 10
	g := New(cfg, c, model, similarity.New(c.AllExamples(), s), s)

	res, err := g.Generate(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, `^\d{8}-\d{6}-fresh-joke-text$`, res.Joke.ID)
	assert.Equal(t, "Fresh joke text", res.Joke.Text)
	assert.Equal(t, "Misdirection", res.Joke.Style)
	assert.Equal(t, "TAO went to zero", res.Joke.Factoid)
	assert.Equal(t, OutcomeOriginal, res.Outcome)
	assert.Equal(t, 1, res.Attempts)

	stored, err := s.Get(res.Joke.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fresh joke text", stored.Text)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0].System, "- old joke\n")
	assert.Equal(t, "Write a roast joke using this fact: TAO went to zero", model.prompts[0].User)
}

func TestGenerateRetriesThenAccepts(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"<think>only thinking",
		"too short",
		"Validators are the only audience that boos before the show starts.",
	}}
	saver := &memorySaver{}

	res, err := New(defaultConfig(), testCorpus(t), model, nil, saver).Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeOriginal, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, model.prompts, 3)
	require.Len(t, saver.saved, 1)
}

func TestGenerateFallsBackToLastDuplicate(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"First duplicate joke that is long enough",
		"Second duplicate joke that is long enough",
		"Third duplicate joke that is long enough",
	}}
	saver := &memorySaver{}
	alwaysDup := dedupFunc(func(string) bool { return true })

	res, err := New(defaultConfig(), testCorpus(t), model, alwaysDup, saver).Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallbackDuplicate, res.Outcome)
	assert.Equal(t, "Third duplicate joke that is long enough", res.Joke.Text)
	assert.Equal(t, 3, res.Attempts)
}

func TestGenerateFallbackKeepsLastNonEmpty(t *testing.T) {
	model := &scriptedModel{replies: []string{"short one", "<think>cut off", ""}}
	saver := &memorySaver{}

	res, err := New(defaultConfig(), testCorpus(t), model, nil, saver).Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeFallbackShort, res.Outcome)
	assert.Equal(t, "short one", res.Joke.Text)
}

func TestGenerateNoOutput(t *testing.T) {
	model := &scriptedModel{replies: []string{"<think>never finishes"}}

	_, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{}).Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestGenerateModelErrors(t *testing.T) {
	boom := errors.New("endpoint down")

	t.Run("all attempts fail", func(t *testing.T) {
		model := &scriptedModel{replies: []string{""}, errs: []error{boom, boom, boom}}
		_, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{}).Generate(context.Background())
		assert.ErrorIs(t, err, ErrNoOutput)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("error then success", func(t *testing.T) {
		model := &scriptedModel{
			replies: []string{"", "The dip bought them therapy, then sold the therapist."},
			errs:    []error{boom},
		}
		res, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{}).Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
	})
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{replies: []string{"irrelevant"}}
	_, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{}).Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.prompts)
}

func TestGenerateSaveError(t *testing.T) {
	model := &scriptedModel{replies: []string{"A perfectly fine joke about subnets"}}
	_, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{err: errors.New("disk full")}).Generate(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestGeneratePublishes(t *testing.T) {
	model := &scriptedModel{replies: []string{"A perfectly fine joke about subnets"}}
	q := &recordingQueue{err: errors.New("nats down")}

	res, err := New(defaultConfig(), testCorpus(t), model, nil, &memorySaver{}, WithQueue(q)).Generate(context.Background())
	require.NoError(t, err, "publish failures must not fail generation")

	require.Len(t, q.msgs, 1)
	assert.Equal(t, res.Joke.ID, q.msgs[0].ID)
	assert.Equal(t, queue.Hash(res.Joke.Text), q.msgs[0].Hash)
}

func TestPickDistinctExamples(t *testing.T) {
	c, err := corpus.New([]string{"f1", "f2"}, []corpus.Technique{
		{Name: "A", Examples: []string{"a1", "a2", "a3", "a4"}},
		{Name: "B", Examples: []string{"b1"}},
	})
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.ExamplesPerPrompt = 3
	g := New(cfg, c, nil, nil, nil, WithRand(rand.New(rand.NewPCG(1, 2))))

	for i := 0; i < 50; i++ {
		_, tech, examples := g.pick()
		want := min(3, len(tech.Examples))
		require.Len(t, examples, want)

		seen := map[string]bool{}
		for _, ex := range examples {
			assert.False(t, seen[ex], "duplicate example %q", ex)
			seen[ex] = true
			assert.Contains(t, tech.Examples, ex)
		}
	}

	// pick must not reorder the corpus itself.
	assert.Equal(t, []string{"a1", "a2", "a3", "a4"}, c.Techniques[0].Examples)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("the Bittensor (TAO) crypto ecosystem", "Misdirection", []string{"Some example joke here."}, "Subnets cost TAO")

	assert.Contains(t, p.System, "DO NOT copy")
	assert.Contains(t, p.System, "MUST be original")
	assert.True(t, strings.HasSuffix(p.System, "/no_think"))
	assert.Contains(t, p.System, "Misdirection")
	assert.Contains(t, p.System, "Some example joke here.")
	assert.Contains(t, p.System, "Bittensor (TAO)")
	assert.Equal(t, 1, strings.Count(p.System, "\n- Some"))
	assert.Equal(t, "Write a roast joke using this fact: Subnets cost TAO", p.User)

	multi := BuildPrompt("x", "Irony", []string{"one", "two"}, "f")
	assert.Contains(t, multi.System, "- one\n- two\n")
	assert.Contains(t, multi.System, "Here are examples")
}

func TestGenerateUsesClock(t *testing.T) {
	c := testCorpus(t)
	s, err := store.New(t.TempDir(), store.WithClock(func() time.Time {
		return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	}))
	require.NoError(t, err)

	model := &scriptedModel{replies: []string{`"Fresh joke text about the halving"`}}
	res, err := New(defaultConfig(), c, model, nil, s).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20250203-040506-fresh-joke-text-about-the-halving", res.Joke.ID)
}
